package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// WritePIDFile writes pid to path the way a running daemon would.
func WritePIDFile(t testing.TB, path string, pid int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
