package transform

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUpload(t *testing.T, name, content string) UploadFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return UploadFile{Name: name, ContentType: "application/pdf", Path: path}
}

func TestClientSendMultipart(t *testing.T) {
	var (
		fields   map[string]string
		fileBody string
		fileType string
		fileName string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		fh := r.MultipartForm.File["file"][0]
		fileName = fh.Filename
		fileType = fh.Header.Get("Content-Type")
		f, _ := fh.Open()
		data, _ := io.ReadAll(f)
		f.Close()
		fileBody = string(data)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	var uploaded atomic.Bool
	headers := false
	client := NewClient(nil, nil)
	resp, err := client.Send(context.Background(), &Request{
		JobID:     "job-1",
		URL:       srv.URL,
		FileField: "file",
		Files:     []UploadFile{writeUpload(t, `we"ird.pdf`, samplePDF)},
		Params:    map[string]string{"text": "社外秘", "angle": "90"},
	}, Hooks{
		Uploaded:        func() { uploaded.Store(true) },
		ResponseHeaders: func() { headers = true },
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, map[string]string{"text": "社外秘", "angle": "90"}, fields)
	assert.Equal(t, samplePDF, fileBody)
	assert.Equal(t, "application/pdf", fileType)
	assert.Equal(t, `we"ird.pdf`, fileName)
	assert.True(t, headers)
	assert.Eventually(t, uploaded.Load, time.Second, 5*time.Millisecond)
}

func TestClientSendRequiresFileField(t *testing.T) {
	_, err := NewClient(nil, nil).Send(context.Background(), &Request{URL: "http://example.invalid"}, Hooks{})
	require.Error(t, err)
}

func TestClientSendInvalidURL(t *testing.T) {
	_, err := NewClient(nil, nil).Send(context.Background(), &Request{
		URL:       "://bad",
		FileField: "file",
	}, Hooks{})
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestClientSendStatusError(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		want        string
	}{
		{"json error", "application/json", `{"error":"ファイルが壊れています"}`, http.StatusUnprocessableEntity, "ファイルが壊れています"},
		{"json message", "application/json", `{"message":"too large"}`, http.StatusRequestEntityTooLarge, "too large"},
		{"plain text", "text/plain", "  engine offline \n", http.StatusServiceUnavailable, "engine offline"},
		{"html page", "text/html", "<html><body>502</body></html>", http.StatusBadGateway, "変換に失敗しました (HTTP 502)。"},
		{"empty body", "", "", http.StatusInternalServerError, "変換に失敗しました (HTTP 500)。"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			headers := false
			_, err := NewClient(nil, nil).Send(context.Background(), &Request{
				URL:       srv.URL,
				FileField: "file",
				Files:     []UploadFile{writeUpload(t, "a.pdf", samplePDF)},
			}, Hooks{ResponseHeaders: func() { headers = true }})

			require.Error(t, err)
			var jobErr *Error
			require.ErrorAs(t, err, &jobErr)
			assert.Equal(t, KindTransport, jobErr.Kind)
			assert.Equal(t, tt.status, jobErr.StatusCode)
			assert.Equal(t, tt.want, jobErr.Message)
			assert.False(t, headers, "response hook must not fire for error statuses")
		})
	}
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "payload")
	}))
	defer srv.Close()

	client := NewClient(nil, nil)
	resp, err := client.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "payload", string(data))

	_, err = client.Fetch(context.Background(), srv.URL+"/missing")
	var jobErr *Error
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, http.StatusNotFound, jobErr.StatusCode)
}

func TestMessageFromBodyTruncates(t *testing.T) {
	long := strings.Repeat("あ", 400)
	msg := messageFromBody([]byte(long))
	assert.True(t, strings.HasSuffix(msg, "…"))
	assert.LessOrEqual(t, len(msg), 512+len("…"))
}

func TestDecodeDataURI(t *testing.T) {
	r, err := decodeDataURI("data:text/plain;base64,aGVsbG8=")
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "hello", string(data))

	r, err = decodeDataURI("data:,hello%20world")
	require.NoError(t, err)
	data, _ = io.ReadAll(r)
	assert.Equal(t, "hello world", string(data))

	_, err = decodeDataURI("data:image/png;base64")
	require.Error(t, err)
}
