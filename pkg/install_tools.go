package pkg

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// InstallTools go-installs every import pinned in the module's tools.go into
// the .tools directory next to it. The directory is meant to go on PATH, for
// example through direnv.
func InstallTools() error {
	root, err := ModuleRoot()
	if err != nil {
		return err
	}

	binPath := filepath.Join(root, ".tools")
	toolsFile := filepath.Join(root, "tools.go")

	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, toolsFile, nil, parser.ImportsOnly)
	if err != nil {
		return eris.Wrapf(err, "Failed to parse %s", toolsFile)
	}

	PrintTask(fmt.Sprintf("Installing tools into %s", binPath))
	for _, item := range parsed.Imports {
		dep := strings.Trim(item.Path.Value, `"`)
		PrintSubtask(dep)

		cmd := exec.Command("go", "install", dep)
		cmd.Dir = root
		cmd.Env = append(os.Environ(), "GOBIN="+binPath)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		err := cmd.Run()
		if err != nil {
			PrintError(fmt.Sprintf("Failed to install %s", dep))
			return eris.Wrapf(err, "Failed to install %s", dep)
		}
	}

	return nil
}
