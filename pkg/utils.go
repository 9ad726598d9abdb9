package pkg

import (
	"path/filepath"
	"runtime"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// ModuleRoot returns the directory that contains this module's own copy of the
// default configuration files. Config discovery falls back to this directory
// when the working project doesn't carry its own ruleset.
func ModuleRoot() (string, error) {
	_, mypath, _, ok := runtime.Caller(0)
	if !ok {
		return "", eris.New("Failed to determine module path!")
	}

	// this file lives in <root>/pkg
	return filepath.Dir(filepath.Dir(mypath)), nil
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
