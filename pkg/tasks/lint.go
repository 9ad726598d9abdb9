package tasks

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// lintAction builds the action shared by both linters: discover the ruleset,
// resolve the source selection and hand everything to the external tool. The
// tool's report is logged in full before its exit status is translated, so
// every finding reaches the console even when the task fails. violationExit
// is the code the tool reserves for style problems; everything else is
// treated as a crash and passed through.
func lintAction(opts Options, tool, configName string, patterns []string, violationExit int, extraArgs ...string) ActionFunc {
	return func(ctx context.Context) error {
		config, err := findConfig(ctx, opts.Dir, configName)
		if err != nil {
			return err
		}

		files, err := resolvePatterns(opts.Dir, patterns)
		if err != nil {
			return err
		}

		if len(files) == 0 {
			log(ctx).Debug().Msgf("No sources for %s", tool)
			return nil
		}

		args := append([]string{tool}, extraArgs...)
		args = append(args, "--config", config)
		args = append(args, files...)

		output, err := runToolCapture(ctx, opts.Dir, args...)
		if report := strings.TrimSpace(string(output)); report != "" {
			log(ctx).Warn().Str("task", tool).Msg(report)
		}

		if err != nil {
			if code, ok := exitStatus(err); ok && code == violationExit {
				return eris.Wrapf(ErrLintViolations, "%s found problems", tool)
			}

			return eris.Wrapf(err, "Tool %s failed", tool)
		}

		return nil
	}
}

// RegisterTSLint adds the tslint task which checks the type-checked sources
// against the discovered tslint.json ruleset. tslint reserves exit code 2
// for rule violations.
func RegisterTSLint(reg *Registry, opts Options) error {
	if reg.Has("tslint") {
		return nil
	}

	return reg.RegisterTask(&Task{
		Name:   "tslint",
		Desc:   "Checks the type-checked sources for style problems",
		Action: lintAction(opts, "tslint", "tslint.json", opts.TSSrcs, 2, "--format", "verbose"),
	})
}

// RegisterESLint adds the eslint task which checks the plain script sources
// against the discovered .eslintrc.json ruleset. The tool's own config
// cascade is disabled so only the file we discovered applies. eslint reserves
// exit code 1 for rule violations.
func RegisterESLint(reg *Registry, opts Options) error {
	if reg.Has("eslint") {
		return nil
	}

	return reg.RegisterTask(&Task{
		Name:   "eslint",
		Desc:   "Checks the plain script sources for style problems",
		Action: lintAction(opts, "eslint", ".eslintrc.json", opts.JSSrcs, 1, "--no-eslintrc"),
	})
}

// RegisterLint sets up both linters and the dependency check, then adds the
// lint task which only aggregates them.
func RegisterLint(reg *Registry, opts Options) error {
	if reg.Has("lint") {
		return nil
	}

	if err := RegisterTSLint(reg, opts); err != nil {
		return err
	}
	if err := RegisterESLint(reg, opts); err != nil {
		return err
	}
	if err := RegisterDepcheck(reg, opts); err != nil {
		return err
	}

	return reg.RegisterTask(&Task{
		Name: "lint",
		Desc: "Runs all style and dependency checks",
		Deps: []string{"tslint", "eslint", "depcheck"},
	})
}
