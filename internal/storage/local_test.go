package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCreateAndRelease(t *testing.T) {
	local, err := NewLocal(filepath.Join(t.TempDir(), "work"))
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}

	ws, err := local.Create()
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	for _, dir := range []string{ws.InDir, ws.OutDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(ws.OutDir, "result.pdf"), []byte("x"), 0o640); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if !ws.Released() {
		t.Fatal("expected Released to be true")
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatalf("expected workspace to be removed, stat err=%v", err)
	}
	// 2回目は何もしない
	if err := ws.Release(); err != nil {
		t.Fatalf("second Release returned error: %v", err)
	}
}

func TestReleaseNil(t *testing.T) {
	var ws *Workspace
	if err := ws.Release(); err != nil {
		t.Fatalf("nil Release returned error: %v", err)
	}
	if !ws.Released() {
		t.Fatal("nil workspace should report released")
	}
}

func TestNewLocalRequiresRoot(t *testing.T) {
	if _, err := NewLocal(""); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestSweepStale(t *testing.T) {
	root := t.TempDir()
	local, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}

	old, err := local.Create()
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	fresh, err := local.Create()
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	unrelated := filepath.Join(root, "keep-me")
	if err := os.MkdirAll(unrelated, 0o750); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	for _, dir := range []string{old.Dir, unrelated} {
		if err := os.Chtimes(dir, past, past); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
	}

	removed, err := local.SweepStale(time.Hour)
	if err != nil {
		t.Fatalf("SweepStale returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old.Dir); !os.IsNotExist(err) {
		t.Fatalf("expected stale workspace to be removed, err=%v", err)
	}
	if _, err := os.Stat(fresh.Dir); err != nil {
		t.Fatalf("fresh workspace should remain: %v", err)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatalf("non-workspace directory should remain: %v", err)
	}
}
