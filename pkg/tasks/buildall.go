package tasks

import "context"

// RegisterBuildAll sets up clean, lint and build and adds the build-all task
// which runs them strictly in that order, stopping at the first failure.
// Clean has to finish before anything else so no stale artifacts get linted
// or compiled; the prerequisite graph alone would only guarantee "before",
// not this exact relative order.
func RegisterBuildAll(reg *Registry, opts Options) error {
	if reg.Has("build-all") {
		return nil
	}

	if err := RegisterClean(reg, opts); err != nil {
		return err
	}
	if err := RegisterLint(reg, opts); err != nil {
		return err
	}
	if err := RegisterBuild(reg, opts); err != nil {
		return err
	}

	return reg.RegisterTask(&Task{
		Name: "build-all",
		Desc: "Cleans, lints and builds the project",
		Action: func(ctx context.Context) error {
			return reg.RunSequence(ctx, "clean", "lint", "build")
		},
	})
}
