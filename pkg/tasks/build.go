package tasks

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// globBase returns the part of a glob pattern before the first wildcard, the
// directory the matches are considered relative to. A literal pattern maps to
// its parent directory.
func globBase(pattern string) string {
	parts := strings.Split(filepath.ToSlash(pattern), "/")

	base := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.ContainsAny(part, "*?[") {
			break
		}
		base = append(base, part)
	}

	if len(base) == len(parts) && len(base) > 0 {
		base = base[:len(base)-1]
	}

	return path.Join(base...)
}

func copyFile(source, dest string) error {
	info, err := os.Stat(source)
	if err != nil {
		return eris.Wrapf(err, "Failed to check %s", source)
	}

	err = os.MkdirAll(filepath.Dir(dest), 0770)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", filepath.Dir(dest))
	}

	reader, err := os.Open(source)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", source)
	}
	defer reader.Close()

	writer, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", dest)
	}
	defer writer.Close()

	_, err = io.Copy(writer, reader)
	if err != nil {
		return eris.Wrapf(err, "Failed to copy %s to %s", source, dest)
	}

	return writer.Close()
}

// RegisterCompile adds the compile task which runs the external compiler with
// the discovered project configuration. The compiler writes its output to the
// directory the configuration names, lib/ with our defaults.
func RegisterCompile(reg *Registry, opts Options) error {
	if reg.Has("compile") {
		return nil
	}

	return reg.RegisterTask(&Task{
		Name: "compile",
		Desc: "Compiles the type-checked sources",
		Action: func(ctx context.Context) error {
			config, err := findConfig(ctx, opts.Dir, "tsconfig.json")
			if err != nil {
				return err
			}

			return runTool(ctx, opts.Dir, "tsc", "--project", config)
		},
	})
}

// RegisterBuild sets up compile and adds the build task which copies the data
// files into lib/ once compilation is done. Paths below each selection's base
// directory are preserved, src/foo/a.html ends up as lib/foo/a.html.
func RegisterBuild(reg *Registry, opts Options) error {
	if reg.Has("build") {
		return nil
	}

	if err := RegisterCompile(reg, opts); err != nil {
		return err
	}

	return reg.RegisterTask(&Task{
		Name: "build",
		Desc: "Compiles the sources and assembles the lib directory",
		Deps: []string{"compile"},
		Action: func(ctx context.Context) error {
			for _, pattern := range opts.DataSrcs {
				base := filepath.Join(opts.Dir, globBase(pattern))

				files, err := resolvePatterns(opts.Dir, []string{pattern})
				if err != nil {
					return err
				}

				for _, file := range files {
					rel, err := filepath.Rel(base, file)
					if err != nil {
						return eris.Wrapf(err, "Failed to resolve %s against %s", file, base)
					}

					dest := filepath.Join(opts.Dir, "lib", rel)
					if runDryRun(ctx) {
						log(ctx).Info().Msgf("Would copy %s to %s", file, dest)
						continue
					}

					log(ctx).Debug().Msgf("Copying %s to %s", file, dest)
					err = copyFile(file, dest)
					if err != nil {
						return err
					}
				}
			}

			return nil
		},
	})
}
