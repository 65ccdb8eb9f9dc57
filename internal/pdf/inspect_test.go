package pdf

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestAcceptPDF(t *testing.T) {
	pdfPath := writeTempFile(t, "blob", []byte("%PDF-1.4\n% dummy pdf content\n"))
	textPath := writeTempFile(t, "blob", []byte("hello world"))

	tests := []struct {
		name     string
		filename string
		declared string
		path     string
		want     bool
	}{
		{"declared pdf", "scan", "application/pdf", textPath, true},
		{"declared pdf with params", "scan", "application/pdf; charset=binary", textPath, true},
		{"pdf extension", "report.PDF", "", textPath, true},
		{"other declared type", "photo.png", "image/png", pdfPath, false},
		{"octet-stream sniffed pdf", "upload", "application/octet-stream", pdfPath, true},
		{"undeclared sniffed pdf", "upload", "", pdfPath, true},
		{"undeclared text", "notes.txt", "", textPath, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contentType, ok := AcceptPDF(tt.filename, tt.declared, tt.path)
			if ok != tt.want {
				t.Fatalf("AcceptPDF(%q, %q) = %v, want %v", tt.filename, tt.declared, ok, tt.want)
			}
			if ok && contentType != "application/pdf" {
				t.Fatalf("unexpected content type: %s", contentType)
			}
		})
	}
}

func TestCountPagesUnreadable(t *testing.T) {
	path := writeTempFile(t, "broken.pdf", []byte("%PDF-1.4\nnot really a pdf"))
	if pages := CountPages(path); pages != 0 {
		t.Fatalf("CountPages = %d, want 0", pages)
	}
	if pages := CountPages(filepath.Join(t.TempDir(), "missing.pdf")); pages != 0 {
		t.Fatalf("CountPages(missing) = %d, want 0", pages)
	}
}
