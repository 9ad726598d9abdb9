package tasks

import "context"

// RegisterTest sets up everything build-all provides and adds the test task
// which hands the test files to the external runner. Only paths are passed;
// the runner loads and executes the files itself.
func RegisterTest(reg *Registry, opts Options) error {
	if reg.Has("test") {
		return nil
	}

	if err := RegisterBuildAll(reg, opts); err != nil {
		return err
	}

	return reg.RegisterTask(&Task{
		Name: "test",
		Desc: "Builds the project and runs the tests",
		Deps: []string{"build"},
		Action: func(ctx context.Context) error {
			files, err := resolvePatterns(opts.Dir, []string{"test/**/*_test.js"})
			if err != nil {
				return err
			}

			if len(files) == 0 {
				log(ctx).Warn().Msg("No test files found")
				return nil
			}

			args := append([]string{"mocha", "--reporter", "tap"}, files...)
			return runTool(ctx, opts.Dir, args...)
		},
	})
}
