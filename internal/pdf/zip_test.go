package pdf

import (
	"archive/zip"
	"io"
	"path/filepath"
	"testing"
)

func TestWriteZip(t *testing.T) {
	first := writeTempFile(t, "a", []byte("first"))
	second := writeTempFile(t, "b", []byte("second"))
	out := filepath.Join(t.TempDir(), "out.zip")

	err := WriteZip(out, []ZipEntry{
		{Name: "page-01.png", Path: first},
		{Name: "page-02.png", Path: second},
	})
	if err != nil {
		t.Fatalf("WriteZip returned error: %v", err)
	}

	reader, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("failed to open zip: %v", err)
	}
	defer reader.Close()

	want := map[string]string{"page-01.png": "first", "page-02.png": "second"}
	if len(reader.File) != len(want) {
		t.Fatalf("unexpected entry count: %d", len(reader.File))
	}
	for i, f := range reader.File {
		if i == 0 && f.Name != "page-01.png" {
			t.Fatalf("entries out of order: %s", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open entry %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != want[f.Name] {
			t.Fatalf("entry %s = %q, want %q", f.Name, data, want[f.Name])
		}
	}
}

func TestWriteZipMissingEntry(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.zip")
	err := WriteZip(out, []ZipEntry{{Name: "x", Path: filepath.Join(t.TempDir(), "missing")}})
	if err == nil {
		t.Fatal("expected error for missing entry")
	}
}
