package main

import "github.com/Polymer/tools-common/cmd"

func main() {
	cmd.Execute()
}
