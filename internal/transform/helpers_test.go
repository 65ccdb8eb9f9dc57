package transform

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/toolshub/internal/pdf"
	"github.com/yourusername/toolshub/internal/storage"
)

const samplePDF = "%PDF-1.4\n% dummy pdf content\n"

// 先頭8バイトがPNGシグネチャであれば mimetype は image/png と判定する
var samplePNG = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)

func pdfSource(name string) Source {
	return Source{Name: name, ContentType: "application/pdf", Reader: strings.NewReader(samplePDF)}
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.snaps))
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.Status {
			out = append(out, s.Status)
		}
	}
	return out
}

func (r *recorder) snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

// lastSnapshotFor は jobID を持つ最後の通知を返します。
func lastSnapshotFor(r *recorder, jobID string) *Snapshot {
	snaps := r.snapshots()
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].JobID == jobID {
			return &snaps[i]
		}
	}
	return nil
}

type testController struct {
	*Controller
	store *storage.Local
}

func newTestController(t *testing.T, op pdf.OperationType, endpoint string, mutate ...func(*Options)) testController {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	opts := Options{
		Endpoint: endpoint,
		Client:   NewClient(&http.Client{}, nil),
		Storage:  store,
	}
	for _, m := range mutate {
		m(&opts)
	}
	ctrl, err := NewController(op, opts)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	return testController{Controller: ctrl, store: store}
}

func waitDone(t *testing.T, ctrl *Controller) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Wait(ctx))
	return ctrl.Snapshot()
}

func selectPDF(t *testing.T, ctrl *Controller, names ...string) {
	t.Helper()
	sources := make([]Source, len(names))
	for i, name := range names {
		sources[i] = pdfSource(name)
	}
	accepted, err := ctrl.SelectInput(context.Background(), sources...)
	require.NoError(t, err)
	require.True(t, accepted)
}
