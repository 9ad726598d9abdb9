package tasks

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// toolEnv returns the environment for external tools with the project's
// node_modules/.bin prepended to PATH so locally installed tool versions win
// over global ones.
func toolEnv(dir string) []string {
	binPath := filepath.Join(dir, "node_modules", ".bin")

	env := os.Environ()
	found := false
	for idx, item := range env {
		if strings.HasPrefix(item, "PATH=") {
			env[idx] = "PATH=" + binPath + string(os.PathListSeparator) + item[len("PATH="):]
			found = true
			break
		}
	}

	if !found {
		env = append(env, "PATH="+binPath)
	}

	return env
}

// runTool executes an external tool in dir and streams its output to the
// console. In dry-run mode the command is only logged.
func runTool(ctx context.Context, dir string, args ...string) error {
	if runDryRun(ctx) {
		log(ctx).Info().Msgf("Would run: %s", strings.Join(args, " "))
		return nil
	}

	log(ctx).Debug().Msgf("Running %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = toolEnv(dir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err != nil {
		return eris.Wrapf(err, "Tool %s failed", args[0])
	}

	return nil
}

// runToolCapture executes an external tool in dir and returns its combined
// output. The error is returned unwrapped so callers can inspect the exit
// status; tools like linters use it to distinguish findings from crashes.
// In dry-run mode the command is only logged and both results are nil.
func runToolCapture(ctx context.Context, dir string, args ...string) ([]byte, error) {
	if runDryRun(ctx) {
		log(ctx).Info().Msgf("Would run: %s", strings.Join(args, " "))
		return nil, nil
	}

	log(ctx).Debug().Msgf("Running %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = toolEnv(dir)

	return cmd.CombinedOutput()
}

// exitStatus extracts the exit code from an error returned by runToolCapture.
// The second result is false if the tool never ran or was killed by a signal.
func exitStatus(err error) (int, bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), true
	}

	return 0, false
}
