package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/toolshub/internal/logging"
	"github.com/yourusername/toolshub/internal/pdf"
	"github.com/yourusername/toolshub/internal/storage"
)

// Options はコントローラーの依存関係です。
type Options struct {
	Endpoint string         // 変換APIのURL（空ならツールの既定値）
	Client   *Client        // nil なら既定の Client
	Storage  *storage.Local // 入力と成果物の保存先（必須）
	Timeout  time.Duration  // 1回の送信のタイムアウト（0 なら無制限）
	Logger   *zap.Logger
	Observer Observer
}

// Controller は1つのツールについて、ジョブ1件のライフサイクルを管理します。
//
// 状態遷移: idle → validating → submitting → awaiting_result → {succeeded | failed}
// Reset でいつでも idle に戻ります。同時に進行するリクエストは最大1件です。
type Controller struct {
	op       pdf.Operation
	endpoint string
	client   *Client
	store    *storage.Local
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	mu        sync.Mutex
	notifyMu  sync.Mutex
	gen       uint64 // ジョブを差し替えるたびに増え、古いリクエストの結果を捨てるのに使う
	closed    bool
	ws        *storage.Workspace
	inputs    []inputFile
	params    map[string]string
	jobID     string
	status    Status
	progress  ProgressInfo
	result    *Artifact
	err       *Error
	cancel    context.CancelFunc
	done      chan struct{}
	updatedAt time.Time
}

// NewController は idle 状態のコントローラーを作成します。
func NewController(op pdf.OperationType, opts Options) (*Controller, error) {
	operation, ok := pdf.Lookup(op)
	if !ok {
		return nil, fmt.Errorf("unknown operation: %s", op)
	}
	if opts.Storage == nil {
		return nil, errors.New("storage is nil")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = operation.DefaultEndpoint
	}
	logger := logging.OrNop(opts.Logger).Named("transform").With(zap.String("operation", string(op)))
	client := opts.Client
	if client == nil {
		client = NewClient(nil, opts.Logger)
	}

	c := &Controller{
		op:       operation,
		endpoint: endpoint,
		client:   client,
		store:    opts.Storage,
		timeout:  opts.Timeout,
		logger:   logger,
		observer: opts.Observer,
		now:      time.Now,
		status:   StatusIdle,
	}
	c.params = c.defaultParams()
	c.updatedAt = c.now().UTC()
	return c, nil
}

// Operation はこのコントローラーが扱うツールを返します。
func (c *Controller) Operation() pdf.Operation {
	return c.op
}

// SelectInput は入力ファイルを受け付け、以前のジョブを破棄して idle 状態にします。
// PDFとして受け付けられるファイルが1つもなければ何もせず false を返します。
// 単一ファイルのツールでは先頭のファイルだけを見ます。
// error はローカルへの保存に失敗した場合にのみ返します。
func (c *Controller) SelectInput(ctx context.Context, sources ...Source) (bool, error) {
	if len(sources) == 0 {
		return false, nil
	}
	if !c.op.MultiFile {
		sources = sources[:1]
	}
	if c.isClosed() {
		return false, ErrClosed
	}

	ws, err := c.store.Create()
	if err != nil {
		return false, err
	}

	accepted := make([]inputFile, 0, len(sources))
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			_ = ws.Release()
			return false, err
		}
		in, ok, err := storeSource(ws.InDir, i, src)
		if err != nil {
			_ = ws.Release()
			return false, err
		}
		if !ok {
			c.logger.Debug("input rejected", zap.String("name", src.Name), zap.String("content_type", src.ContentType))
			continue
		}
		accepted = append(accepted, in)
	}
	if len(accepted) == 0 {
		_ = ws.Release()
		return false, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Release()
		return false, ErrClosed
	}
	cancelled := c.discardLocked()
	c.ws = ws
	c.inputs = accepted
	c.touchLocked()
	c.logger.Info("input selected", zap.Int("files", len(accepted)))
	c.unlockAndNotify(cancelled...)
	return true, nil
}

// SetParameter はツールのパラメータを1つ記録します。検証は Submit 時に行います。
func (c *Controller) SetParameter(name, value string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.params[name] = value
	c.touchLocked()
	c.unlockAndNotify()
}

// Submit は入力とパラメータを検証し、変換APIへのリクエストを非同期で開始します。
// 検証に失敗した場合はジョブを failed にして ValidationError を返し、リクエストは送りません。
// 送信中の場合は ErrSubmissionInFlight を返し、状態は変えません。
// 結果の完了を待つには Wait を使います。
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.status.InFlight():
		c.mu.Unlock()
		return ErrSubmissionInFlight
	case c.status == StatusSucceeded:
		c.mu.Unlock()
		return ErrResultPending
	}

	c.gen++
	gen := c.gen
	c.jobID = uuid.NewString()
	c.err = nil
	c.result = nil
	c.status = StatusValidating
	c.progress = ProgressInfo{}
	c.touchLocked()
	validating := c.snapshotLocked()

	pages := 0
	if len(c.inputs) > 0 {
		pages = c.inputs[0].Pages
	}
	if err := c.op.Validate(len(c.inputs), pages, c.params); err != nil {
		verr := toValidationError(err)
		c.failLocked(verr)
		c.logger.Info("validation failed", zap.String("job_id", c.jobID), zap.String("message", verr.Message))
		c.unlockAndNotify(validating)
		return verr
	}

	req := c.buildRequestLocked()
	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	} else {
		reqCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.status = StatusSubmitting
	c.progress = checkpoint(StageDispatch)
	c.touchLocked()
	ws := c.ws
	c.logger.Info("submitted", zap.String("job_id", req.JobID), zap.String("url", req.URL))
	c.unlockAndNotify(validating)

	go c.run(reqCtx, cancel, gen, req, ws, done)
	return nil
}

// Wait は進行中のリクエストが完了するか ctx が終了するまで待ちます。
// 進行中のリクエストがなければすぐに返ります。
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Download は成果物を開きます。succeeded 以外の状態では ErrResultUnavailable を返します。
func (c *Controller) Download() (*Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusSucceeded || c.result == nil {
		return nil, ErrResultUnavailable
	}
	file, err := os.Open(c.result.path)
	if err != nil {
		return nil, fmt.Errorf("成果物の読み込みに失敗しました: %w", err)
	}
	return &Delivery{
		JobID:       c.jobID,
		Filename:    c.result.Filename,
		ContentType: c.result.ContentType,
		Size:        c.result.Size,
		Body:        file,
	}, nil
}

// Reset は進行中のリクエストを取り消し、入力・パラメータ・成果物・エラー・進捗を消去します。
// 作業ディレクトリはこの時点で削除されます。
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	cancelled := c.discardLocked()
	c.params = c.defaultParams()
	c.touchLocked()
	c.logger.Debug("reset")
	c.unlockAndNotify(cancelled...)
}

// Close は Reset と同様にすべてを解放し、以後の操作を受け付けなくします。
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	cancelled := c.discardLocked()
	c.closed = true
	c.touchLocked()
	c.unlockAndNotify(cancelled...)
}

// Busy は変換APIへのリクエストが進行中かどうかを返します。
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.InFlight()
}

// Snapshot は現在の状態を返します。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, req *Request, ws *storage.Workspace, done chan struct{}) {
	defer close(done)
	defer cancel()

	start := time.Now()
	hooks := Hooks{
		Uploaded: func() {
			c.advance(gen, StatusAwaitingResult, checkpoint(StageUploaded))
		},
		ResponseHeaders: func() {
			c.advance(gen, StatusAwaitingResult, checkpoint(StageResponse))
		},
	}

	artifact, err := c.execute(ctx, req, hooks, ws.OutDir)
	c.finish(gen, ws, req.JobID, artifact, err, time.Since(start))
}

func (c *Controller) execute(ctx context.Context, req *Request, hooks Hooks, outDir string) (*Artifact, error) {
	resp, err := c.client.Send(ctx, req, hooks)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	filename := c.op.OutputFilename(req.Files[0].Name)
	switch c.op.Result {
	case pdf.ResultKindBatch:
		return storeBatch(ctx, c.client, req.URL, resp, outDir, filename)
	default:
		return storeBinary(resp, outDir, filename)
	}
}

// advance はリクエスト中の状態と進捗を前に進めます。後退する更新は無視します。
func (c *Controller) advance(gen uint64, status Status, progress ProgressInfo) {
	c.mu.Lock()
	if c.gen != gen || c.closed || !c.status.InFlight() {
		c.mu.Unlock()
		return
	}
	changed := false
	if status.rank() > c.status.rank() {
		c.status = status
		changed = true
	}
	if progress.Percent > c.progress.Percent {
		c.progress = progress
		changed = true
	}
	if !changed {
		c.mu.Unlock()
		return
	}
	c.touchLocked()
	c.unlockAndNotify()
}

func (c *Controller) finish(gen uint64, ws *storage.Workspace, jobID string, artifact *Artifact, err error, elapsed time.Duration) {
	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		// 差し替え済みのジョブの結果は捨てる。Release 後に書き込まれたファイルもここで消す
		if ws.Released() {
			_ = os.RemoveAll(ws.Dir)
		}
		c.logger.Debug("stale result discarded", zap.String("job_id", jobID))
		return
	}
	c.cancel = nil

	if err != nil {
		terr := toTransportError(err)
		c.failLocked(terr)
		c.logger.Warn("transform failed",
			zap.String("job_id", jobID),
			zap.Int("status_code", terr.StatusCode),
			zap.String("message", terr.Message),
			zap.Error(terr.Err),
			zap.Duration("elapsed", elapsed),
		)
		c.unlockAndNotify()
		return
	}

	c.result = artifact
	c.err = nil
	c.status = StatusSucceeded
	c.progress = checkpoint(StageCompleted)
	c.touchLocked()
	c.logger.Info("transform succeeded",
		zap.String("job_id", jobID),
		zap.String("filename", artifact.Filename),
		zap.Int64("size", artifact.Size),
		zap.Int("parts", len(artifact.Parts)),
		zap.Duration("elapsed", elapsed),
	)
	c.unlockAndNotify()
}

// discardLocked は進行中のリクエストを取り消し、作業ディレクトリを解放して idle に戻します。
// 取り消したジョブがあれば、そのジョブIDを持つ cancelled のスナップショットを返します。
func (c *Controller) discardLocked() []Snapshot {
	var cancelled []Snapshot
	if c.status.InFlight() && c.jobID != "" {
		snap := c.snapshotLocked()
		snap.Status = StatusCancelled
		snap.UpdatedAt = c.now().UTC()
		cancelled = append(cancelled, snap)
		c.logger.Info("job cancelled", zap.String("job_id", c.jobID))
	}

	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.done = nil
	if c.ws != nil {
		if err := c.ws.Release(); err != nil {
			c.logger.Warn("failed to release workspace", zap.String("dir", c.ws.Dir), zap.Error(err))
		}
		c.ws = nil
	}
	c.inputs = nil
	c.jobID = ""
	c.status = StatusIdle
	c.progress = ProgressInfo{}
	c.result = nil
	c.err = nil
	return cancelled
}

func (c *Controller) failLocked(err *Error) {
	c.status = StatusFailed
	c.err = err
	c.result = nil
	c.touchLocked()
}

func (c *Controller) buildRequestLocked() *Request {
	files := make([]UploadFile, len(c.inputs))
	for i, in := range c.inputs {
		files[i] = UploadFile{Name: in.Name, ContentType: in.ContentType, Path: in.path}
	}
	params := make(map[string]string, len(c.params))
	for k, v := range c.params {
		params[k] = v
	}
	return &Request{
		JobID:     c.jobID,
		URL:       c.endpoint,
		FileField: c.op.FileField,
		Files:     files,
		Params:    params,
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		JobID:     c.jobID,
		Operation: c.op.Type,
		Status:    c.status,
		Progress:  c.progress,
		UpdatedAt: c.updatedAt,
	}
	if len(c.inputs) > 0 {
		snap.Inputs = make([]pdf.SourceFileMeta, len(c.inputs))
		for i, in := range c.inputs {
			snap.Inputs[i] = in.SourceFileMeta
		}
	}
	if len(c.params) > 0 {
		snap.Params = make(map[string]string, len(c.params))
		for k, v := range c.params {
			snap.Params[k] = v
		}
	}
	if c.result != nil {
		snap.Result = &ResultInfo{
			Filename:    c.result.Filename,
			ContentType: c.result.ContentType,
			Size:        c.result.Size,
			Parts:       append([]Part(nil), c.result.Parts...),
		}
	}
	if c.err != nil {
		snap.Error = &ErrorInfo{
			Code:       string(c.err.Kind),
			Message:    c.err.Message,
			StatusCode: c.err.StatusCode,
		}
	}
	return snap
}

// unlockAndNotify は mu を解放してから Observer を呼びます。
// earlier は現在の状態より前に通知するスナップショットです。
// notifyMu を mu の解放前に取ることで、通知の順序を状態遷移の順序に揃えます。
func (c *Controller) unlockAndNotify(earlier ...Snapshot) {
	if c.observer == nil {
		c.mu.Unlock()
		return
	}
	snaps := append(earlier, c.snapshotLocked())
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	for _, snap := range snaps {
		c.observer(snap)
	}
}

func (c *Controller) touchLocked() {
	c.updatedAt = c.now().UTC()
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) defaultParams() map[string]string {
	params := make(map[string]string, len(c.op.Defaults))
	for k, v := range c.op.Defaults {
		params[k] = v
	}
	return params
}

// storeSource は入力を作業ディレクトリにコピーし、PDFとして受け付けるか判定します。
func storeSource(inDir string, index int, src Source) (inputFile, bool, error) {
	if src.Reader == nil {
		return inputFile{}, false, nil
	}
	name := filepath.Base(src.Name)
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	path := filepath.Join(inDir, fmt.Sprintf("input-%02d.pdf", index+1))
	size, err := writeFile(path, src.Reader)
	if err != nil {
		return inputFile{}, false, fmt.Errorf("入力ファイルの保存に失敗しました: %w", err)
	}

	contentType, ok := pdf.AcceptPDF(name, src.ContentType, path)
	if !ok {
		_ = os.Remove(path)
		return inputFile{}, false, nil
	}

	return inputFile{
		SourceFileMeta: pdf.SourceFileMeta{
			Name:        name,
			ContentType: contentType,
			Size:        size,
			Pages:       pdf.CountPages(path),
		},
		path: path,
	}, true, nil
}

func toValidationError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var pdfErr *pdf.Error
	if errors.As(err, &pdfErr) {
		return validationError(pdfErr.Message, err)
	}
	return validationError(err.Error(), err)
}

func toTransportError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transportError(0, "変換APIの応答がタイムアウトしました。", err)
	}
	if errors.Is(err, context.Canceled) {
		return transportError(0, "リクエストがキャンセルされました。", err)
	}
	return transportError(0, "変換に失敗しました。", err)
}
