package transform

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/toolshub/internal/logging"
	"github.com/yourusername/toolshub/internal/pdf"
	"github.com/yourusername/toolshub/internal/storage"
)

// ControllerFactory は訪問者とツールごとのコントローラーを作成します。
type ControllerFactory func(visitor string, op pdf.OperationType) (*Controller, error)

type registryKey struct {
	visitor string
	op      pdf.OperationType
}

type registryEntry struct {
	ctrl     *Controller
	lastUsed time.Time
}

// Registry は訪問者ごと・ツールごとのコントローラーを保持します。
// 一定時間操作がなかったコントローラーは Sweep で Close されます。
type Registry struct {
	factory ControllerFactory
	idle    time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[registryKey]*registryEntry
	closed  bool
}

// RegistryOptions は Registry の設定です。
type RegistryOptions struct {
	Endpoints map[pdf.OperationType]string
	Client    *Client
	Storage   *storage.Local
	Timeout   time.Duration
	Idle      time.Duration
	Logger    *zap.Logger
	// Observer は訪問者IDとともに各コントローラーの状態変化を受け取ります。
	Observer func(visitor string, snap Snapshot)
}

// NewRegistry は Options から既定のファクトリーを組み立てて Registry を作成します。
func NewRegistry(opts RegistryOptions) *Registry {
	logger := logging.OrNop(opts.Logger)
	factory := func(visitor string, op pdf.OperationType) (*Controller, error) {
		var observer Observer
		if opts.Observer != nil {
			observer = func(snap Snapshot) { opts.Observer(visitor, snap) }
		}
		return NewController(op, Options{
			Endpoint: opts.Endpoints[op],
			Client:   opts.Client,
			Storage:  opts.Storage,
			Timeout:  opts.Timeout,
			Logger:   logger.With(zap.String("visitor", visitor)),
			Observer: observer,
		})
	}
	return NewRegistryWithFactory(factory, opts.Idle, logger)
}

// NewRegistryWithFactory は任意のファクトリーで Registry を作成します。
func NewRegistryWithFactory(factory ControllerFactory, idle time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		factory: factory,
		idle:    idle,
		logger:  logging.OrNop(logger).Named("registry"),
		now:     time.Now,
		entries: make(map[registryKey]*registryEntry),
	}
}

// Get は訪問者とツールに対応するコントローラーを返します。なければ作成します。
func (r *Registry) Get(visitor string, op pdf.OperationType) (*Controller, error) {
	key := registryKey{visitor: visitor, op: op}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if entry, ok := r.entries[key]; ok {
		entry.lastUsed = r.now()
		return entry.ctrl, nil
	}

	ctrl, err := r.factory(visitor, op)
	if err != nil {
		return nil, err
	}
	r.entries[key] = &registryEntry{ctrl: ctrl, lastUsed: r.now()}
	return ctrl, nil
}

// Len は保持しているコントローラーの数を返します。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep は idle 以上使われていないコントローラーを Close し、取り除いた数を返します。
// 送信中のコントローラーは対象外です。
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var expired []*Controller
	for key, entry := range r.entries {
		if entry.lastUsed.After(cutoff) || entry.ctrl.Busy() {
			continue
		}
		expired = append(expired, entry.ctrl)
		delete(r.entries, key)
	}
	r.mu.Unlock()

	for _, ctrl := range expired {
		ctrl.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("idle controllers closed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run は ctx が終了するまで interval ごとに Sweep を実行します。
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close はすべてのコントローラーを Close します。以後の Get は ErrClosed を返します。
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[registryKey]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.ctrl.Close()
	}
}
