package tasks

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

func globReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	return ioutil.ReadDir(path)
}

// resolvePatterns expands the given glob patterns relative to base and
// returns the matched paths. Supports ** through GlobStar. Patterns that
// match nothing are silently dropped.
func resolvePatterns(base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  globReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	for _, item := range patterns {
		if !filepath.IsAbs(item) {
			item = filepath.Join(base, item)
		}
		item = filepath.ToSlash(item)

		words := make([]*syntax.Word, 0)
		parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as a result. Skip those results.
			if !strings.Contains(match, "*") {
				result = append(result, match)
			}
		}
	}
	return result, nil
}
