package tasks

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/Polymer/tools-common/pkg"
)

// validConfig checks that the file at path actually parses as the format its
// extension announces. Tool configs are JSON, our own manifests are YAML.
func validConfig(path string) error {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "Failed to read %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		var parsed interface{}
		err = yaml.Unmarshal(content, &parsed)
		if err != nil {
			return eris.Wrapf(err, "Failed to parse %s", path)
		}
	default:
		if !json.Valid(content) {
			return eris.Errorf("Failed to parse %s: not valid JSON", path)
		}
	}

	return nil
}

// findConfig locates the named configuration file. The project directory
// wins; the module's own bundled defaults serve as fallback. A file that
// exists but doesn't parse is treated as absent.
func findConfig(ctx context.Context, dir, name string) (string, error) {
	candidates := []string{filepath.Join(dir, name)}

	root, err := pkg.ModuleRoot()
	if err == nil {
		candidates = append(candidates, filepath.Join(root, name))
	} else {
		log(ctx).Warn().Err(err).Msg("Could not determine module root")
	}

	for _, path := range candidates {
		_, err := os.Stat(path)
		if err != nil {
			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrapf(err, "Failed to check %s", path)
			}
			continue
		}

		err = validConfig(path)
		if err != nil {
			log(ctx).Warn().Err(err).Msgf("Skipping unusable config %s", path)
			continue
		}

		return path, nil
	}

	return "", eris.Wrapf(ErrConfigNotFound, "no usable %s", name)
}
