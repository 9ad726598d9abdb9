package tasks

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
)

// writePack streams every file below root into a brotli compressed tar
// archive at dest. Entry names are relative to root.
func writePack(root, dest string) error {
	handle, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", dest)
	}

	brw := brotli.NewWriterLevel(handle, brotli.BestCompression)
	archive := tar.NewWriter(brw)

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return eris.Wrapf(err, "Failed to build archive entry for %s", path)
		}
		header.Name = filepath.ToSlash(rel)

		err = archive.WriteHeader(header)
		if err != nil {
			return eris.Wrapf(err, "Failed to write archive entry for %s", path)
		}

		reader, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "Failed to open %s", path)
		}
		defer reader.Close()

		_, err = io.Copy(archive, reader)
		if err != nil {
			return eris.Wrapf(err, "Failed to pack %s", path)
		}

		return nil
	})
	if err != nil {
		handle.Close()
		return err
	}

	err = archive.Close()
	if err == nil {
		err = brw.Close()
	}
	if err == nil {
		err = handle.Close()
	}
	if err != nil {
		return eris.Wrapf(err, "Failed to finalize %s", dest)
	}

	return nil
}

// RegisterPack sets up build and adds the pack task which bundles the build
// output into a single compressed archive under dist/.
func RegisterPack(reg *Registry, opts Options) error {
	if reg.Has("pack") {
		return nil
	}

	if err := RegisterBuild(reg, opts); err != nil {
		return err
	}

	return reg.RegisterTask(&Task{
		Name: "pack",
		Desc: "Bundles the build output into a distributable archive",
		Deps: []string{"build"},
		Action: func(ctx context.Context) error {
			libPath := filepath.Join(opts.Dir, "lib")
			if _, err := os.Stat(libPath); err != nil {
				return eris.Wrapf(err, "Nothing to pack in %s", libPath)
			}

			absDir, err := filepath.Abs(opts.Dir)
			if err != nil {
				return eris.Wrapf(err, "Failed to resolve %s", opts.Dir)
			}

			dest := filepath.Join(opts.Dir, "dist", filepath.Base(absDir)+".pak")
			if runDryRun(ctx) {
				log(ctx).Info().Msgf("Would pack %s into %s", libPath, dest)
				return nil
			}

			err = os.MkdirAll(filepath.Dir(dest), os.FileMode(0770))
			if err != nil {
				return eris.Wrapf(err, "Failed to create %s", filepath.Dir(dest))
			}

			log(ctx).Info().Msgf("Packing %s", dest)
			return writePack(libPath, dest)
		},
	})
}
