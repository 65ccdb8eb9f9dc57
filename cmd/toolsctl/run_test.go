package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/toolshub/internal/pdf"
)

const samplePDF = "%PDF-1.4\n% dummy pdf content\n"

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"single", []string{"text=社外秘"}, map[string]string{"text": "社外秘"}, false},
		{"value with equals", []string{"text=a=b"}, map[string]string{"text": "a=b"}, false},
		{"last wins", []string{"angle=90", "angle=180"}, map[string]string{"angle": "180"}, false},
		{"empty value", []string{"text="}, map[string]string{"text": ""}, false},
		{"missing equals", []string{"text"}, nil, true},
		{"empty name", []string{" =value"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.values)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintToolsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTools(&buf, pdf.Operations(), false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(pdf.Operations())+1)
	assert.True(t, strings.HasPrefix(lines[0], "TOOL"))
	assert.Contains(t, buf.String(), "merge-pdf")
	assert.Contains(t, buf.String(), "2+")
	assert.Contains(t, buf.String(), "pages,angle")
}

func TestPrintToolsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTools(&buf, pdf.Operations(), true))

	var decoded []pdf.Operation
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, len(pdf.Operations()))
	assert.NotContains(t, buf.String(), "localhost", "endpoints must not leak into the catalog")
}

func TestRunToolWritesArtifact(t *testing.T) {
	var gotAngle string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAngle = r.FormValue("angle")
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, samplePDF)
	}))
	defer srv.Close()

	input := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(input, []byte(samplePDF), 0o644))
	outDir := filepath.Join(t.TempDir(), "out")

	var progress bytes.Buffer
	path, err := runTool(context.Background(), runOptions{
		Operation: pdf.OperationRotate,
		Files:     []string{input},
		Params:    map[string]string{"pages": "1", "angle": "180"},
		Endpoint:  srv.URL,
		OutDir:    outDir,
		Timeout:   5 * time.Second,
		Progress:  &progress,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "report-rotated.pdf"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, string(data))
	assert.Equal(t, "180", gotAngle)
	assert.Contains(t, progress.String(), "[100%] succeeded")
}

func TestRunToolReportsRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"broken pdf"}`)
	}))
	defer srv.Close()

	input := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(input, []byte(samplePDF), 0o644))

	_, err := runTool(context.Background(), runOptions{
		Operation: pdf.OperationCompress,
		Files:     []string{input},
		Endpoint:  srv.URL,
		OutDir:    t.TempDir(),
		Timeout:   5 * time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pdf")
}

func TestRunToolRejectsNonPDF(t *testing.T) {
	input := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(input, []byte("plain text"), 0o644))

	_, err := runTool(context.Background(), runOptions{
		Operation: pdf.OperationCompress,
		Files:     []string{input},
		Endpoint:  "http://127.0.0.1:1/unused",
		OutDir:    t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PDF file was accepted")
}
