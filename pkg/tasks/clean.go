package tasks

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// RegisterClean adds the clean task which removes the build artifacts listed
// in the options. Missing directories are fine, so clean can run any number
// of times. Already registered clean tasks are left alone which allows
// composite setups to share one registry.
func RegisterClean(reg *Registry, opts Options) error {
	if reg.Has("clean") {
		return nil
	}

	return reg.RegisterTask(&Task{
		Name: "clean",
		Desc: "Removes all build artifacts",
		Action: func(ctx context.Context) error {
			for _, item := range opts.BuildArtifacts {
				path := item
				if !filepath.IsAbs(path) {
					path = filepath.Join(opts.Dir, path)
				}

				if runDryRun(ctx) {
					log(ctx).Info().Msgf("Would remove %s", path)
					continue
				}

				log(ctx).Debug().Msgf("Removing %s", path)
				err := os.RemoveAll(path)
				if err != nil {
					return eris.Wrapf(err, "Failed to remove %s", path)
				}
			}

			return nil
		},
	})
}
