package duckdb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStageFileIsOwnerOnlyAndExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.duckdb")
	if err := stageFile(path, strings.NewReader("duck")); err != nil {
		t.Fatalf("stageFile() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0o600 || info.Size() != 4 {
		t.Fatalf("mode = %v size = %d", info.Mode().Perm(), info.Size())
	}
	if err := stageFile(path, strings.NewReader("again")); err == nil {
		t.Fatal("expected error when the staged file already exists")
	}
}
