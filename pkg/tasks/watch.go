package tasks

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/cortesi/moddwatch"
	"github.com/rotisserie/eris"
)

// RegisterWatch sets up build-all and adds the watch task which re-runs it
// whenever a source file changes. The output directories are excluded so our
// own writes don't retrigger a build.
func RegisterWatch(reg *Registry, opts Options) error {
	if reg.Has("watch") {
		return nil
	}

	if err := RegisterBuildAll(reg, opts); err != nil {
		return err
	}

	return reg.RegisterTask(&Task{
		Name: "watch",
		Desc: "Rebuilds the project whenever a source file changes",
		Action: func(ctx context.Context) error {
			root, err := filepath.Abs(opts.Dir)
			if err != nil {
				return eris.Wrapf(err, "Failed to resolve %s", opts.Dir)
			}

			patterns := []string{}
			patterns = append(patterns, opts.TSSrcs...)
			patterns = append(patterns, opts.JSSrcs...)
			patterns = append(patterns, opts.DataSrcs...)

			excludes := []string{"lib/**", "typings/**", "dist/**", "node_modules/**"}

			changes := make(chan *moddwatch.Mod, 1)
			watcher, err := moddwatch.Watch(root, patterns, excludes, 500*time.Millisecond, changes)
			if err != nil {
				return eris.Wrapf(err, "Failed to watch %s", root)
			}
			defer watcher.Stop()

			log(ctx).Info().Msgf("Watching %s", root)

			runCtx := NewRunContext(ctx, runDryRun(ctx), runForce(ctx))
			if err := reg.Run(runCtx, "build-all"); err != nil {
				log(ctx).Error().Err(err).Msg("Build failed")
			}

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case mod, ok := <-changes:
					if !ok {
						return nil
					}
					if mod == nil || mod.Empty() {
						continue
					}

					touched := append([]string{}, mod.Added...)
					touched = append(touched, mod.Changed...)
					touched = append(touched, mod.Deleted...)
					log(ctx).Info().Msgf("Changed: %s", strings.Join(touched, ", "))

					// Every rebuild gets a fresh run context, otherwise the
					// memoized tasks from the previous round would be skipped.
					runCtx := NewRunContext(ctx, runDryRun(ctx), runForce(ctx))
					err := reg.Run(runCtx, "build-all")
					if err != nil {
						// keep watching, the next change gets a fresh attempt
						log(ctx).Error().Err(err).Msg("Build failed")
					}
				}
			}
		},
	})
}
