package pkg

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
)

func resolveArg(base, arg string) string {
	if filepath.IsAbs(arg) {
		return arg
	}

	return filepath.Join(base, arg)
}

// expandArgs resolves the given arguments against base. On Windows glob
// patterns are expanded here because no shell does it for us.
func expandArgs(base string, args []string, allowEmpty bool) ([]string, error) {
	if runtime.GOOS != "windows" {
		items := make([]string, len(args))
		for idx, arg := range args {
			items[idx] = resolveArg(base, arg)
		}

		return items, nil
	}

	items := []string{}
	for _, arg := range args {
		matches, err := filepath.Glob(resolveArg(base, arg))
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", arg)
		}

		if matches == nil {
			if allowEmpty {
				continue
			}

			return nil, eris.Errorf("Pattern %s produced no matches", arg)
		}

		items = append(items, matches...)
	}

	return items, nil
}

// RemovePaths deletes the given files or directories. Directories need
// recursive; with force, missing items are not an error.
func RemovePaths(base string, paths []string, recursive, force bool) error {
	items, err := expandArgs(base, paths, force)
	if err != nil {
		return err
	}

	for _, item := range items {
		info, err := os.Stat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}

			return eris.Wrapf(err, "Could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
	}

	for _, item := range items {
		err := os.RemoveAll(item)
		if err != nil && (!force || !eris.Is(err, os.ErrNotExist)) {
			return eris.Wrapf(err, "Could not delete %s", item)
		}
	}

	return nil
}

// MovePaths moves the given items to the last argument. Several items can
// only be moved into an existing directory; a single item is renamed if the
// destination doesn't exist yet.
func MovePaths(base string, args []string) error {
	if len(args) < 2 {
		return eris.New("Not enough parameters")
	}

	items, err := expandArgs(base, args[:len(args)-1], false)
	if err != nil {
		return err
	}

	dest := resolveArg(base, filepath.Clean(args[len(args)-1]))
	info, err := os.Stat(dest)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "Failed to retrieve info about destination %s", dest)
	}
	destIsDir := err == nil && info.IsDir()

	if !destIsDir {
		if len(items) > 1 {
			return eris.Errorf("Can't move multiple items to %s because it is not a directory!", dest)
		}

		parent := filepath.Dir(dest)
		info, err := os.Stat(parent)
		if err != nil {
			return eris.Wrapf(err, "Could not find destination directory %s", parent)
		}
		if !info.IsDir() {
			return eris.Errorf("%s is not a directory!", parent)
		}

		err = os.Rename(items[0], dest)
		if err != nil {
			return eris.Wrapf(err, "Failed to move %s to %s", items[0], dest)
		}

		return nil
	}

	for _, item := range items {
		itemDest := filepath.Join(dest, filepath.Base(item))
		err = os.Rename(item, itemDest)
		if err != nil {
			return eris.Wrapf(err, "Failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}

// MakeDirs creates the given directories. With parents, missing parent
// directories are created as well and existing directories are fine.
func MakeDirs(base string, dirs []string, parents bool) error {
	for _, item := range dirs {
		item = resolveArg(base, item)

		var err error
		if parents {
			err = os.MkdirAll(item, 0770)
		} else {
			err = os.Mkdir(item, 0770)
		}

		if err != nil {
			return eris.Wrapf(err, "Failed to create %s", item)
		}
	}

	return nil
}
