// Package storage はローカルの作業ディレクトリを提供します。
//
// 1つのジョブにつき <root>/<id>/in（入力）と <root>/<id>/out（成果物）を作成し、
// Release でディレクトリごと削除します。
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local は作業ディレクトリのルートを管理します。
type Local struct {
	root string
}

// NewLocal はルートディレクトリを作成して Local を返します。
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
	}
	return &Local{root: root}, nil
}

// Root はルートディレクトリのパスを返します。
func (l *Local) Root() string {
	return l.root
}

// Workspace は1ジョブ分の作業ディレクトリです。
type Workspace struct {
	ID     string
	Dir    string
	InDir  string
	OutDir string

	releaseOnce sync.Once
	releaseErr  error
	released    bool
	mu          sync.Mutex
}

// Create は新しい作業ディレクトリを作成します。
func (l *Local) Create() (*Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(l.root, id)
	ws := &Workspace{
		ID:     id,
		Dir:    dir,
		InDir:  filepath.Join(dir, "in"),
		OutDir: filepath.Join(dir, "out"),
	}
	for _, d := range []string{ws.InDir, ws.OutDir} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
		}
	}
	return ws, nil
}

// Release は作業ディレクトリを削除します。何度呼んでも削除は1回です。
func (w *Workspace) Release() error {
	if w == nil {
		return nil
	}
	w.releaseOnce.Do(func() {
		w.mu.Lock()
		w.released = true
		w.mu.Unlock()
		w.releaseErr = os.RemoveAll(w.Dir)
	})
	return w.releaseErr
}

// Released は Release 済みかどうかを返します。
func (w *Workspace) Released() bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

// SweepStale は olderThan より古い作業ディレクトリを削除し、削除した数を返します。
// 異常終了で残ったディレクトリの掃除に使います。
func (l *Local) SweepStale(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return 0, fmt.Errorf("作業ディレクトリの読み込みに失敗しました: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(l.root, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
