package tasks

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testCtx() context.Context {
	logger := zerolog.Nop()
	return WithLogger(context.Background(), &logger)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}

	err = ioutil.WriteFile(path, []byte(content), 0660)
	if err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
