package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	root := t.TempDir()
	store := filepath.Join(root, "kb")
	if err := os.MkdirAll(filepath.Join(store, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"index.faiss":        "0123456789",
		"metadata.json":      "[]",
		"nested/extra.bin":   "abc",
		"../application.log": "log line",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(store, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"store directory", []string{store}, 15},
		{"single file", []string{filepath.Join(store, "metadata.json")}, 2},
		{"file and directory", []string{filepath.Join(root, "application.log"), store}, 23},
		{"missing path skipped", []string{filepath.Join(root, "gone"), store}, 15},
		{"empty path skipped", []string{"", store}, 15},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		got, err := DiskUsageBytes(tt.paths...)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %d bytes, want %d", tt.name, got, tt.want)
		}
	}
}
