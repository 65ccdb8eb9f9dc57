package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/toolshub/internal/logging"
)

const writeTimeout = 3 * time.Second

// Writer は Record を保存できるストアが実装します。
type Writer interface {
	Upsert(ctx context.Context, record *Record) error
}

// Recorder はジョブ状態を1つのバックグラウンド goroutine で順番に保存します。
// 呼び出し側をブロックしないよう、キューが一杯の場合は記録を捨てます。
type Recorder struct {
	store  Writer
	queue  chan *Record
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewRecorder は Recorder を作成して書き込みを開始します。
func NewRecorder(store Writer, buffer int, logger *zap.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store:  store,
		queue:  make(chan *Record, buffer),
		logger: logging.OrNop(logger).Named("jobs"),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record は保存を依頼します。Close 後の呼び出しは無視されます。
func (r *Recorder) Record(record *Record) {
	if record == nil || record.JobID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- record:
	default:
		r.logger.Warn("job record dropped", zap.String("job_id", record.JobID), zap.String("status", record.Status))
	}
}

// Close はキューに残った記録を書き終えてから戻ります。
func (r *Recorder) Close(ctx context.Context) {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
	case <-ctx.Done():
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for record := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.store.Upsert(ctx, record); err != nil {
			r.logger.Warn("failed to save job record",
				zap.String("job_id", record.JobID),
				zap.String("status", record.Status),
				zap.Error(err),
			)
		}
		cancel()
	}
}
