package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/toolshub/internal/logging"
)

const maxErrorBodyBytes = 64 << 10

// UploadFile はリクエストに添付する1ファイルです。
type UploadFile struct {
	Name        string
	ContentType string
	Path        string
}

// Request は変換APIへの1回分の送信内容です。
type Request struct {
	JobID     string
	URL       string
	FileField string
	Files     []UploadFile
	Params    map[string]string
}

// Hooks はリクエストの節目で呼ばれるコールバックです。nil のものは呼ばれません。
type Hooks struct {
	Uploaded        func() // リクエスト本文を書き終えた
	ResponseHeaders func() // 成功ステータスのレスポンスヘッダーを受信した
}

// Client は Remote Transform Endpoint への HTTP クライアントです。
// リトライ、認証、冪等キーは扱いません。
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient は Client を作成します。httpClient が nil の場合は既定のクライアントを使います。
func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		http:   httpClient,
		logger: logging.OrNop(logger).Named("transform.client"),
	}
}

// Send は multipart/form-data でファイルとパラメータを POST します。
// 2xx 以外のステータスは TransportError として返し、本文は読み捨てます。
// 成功時のレスポンス本文は呼び出し側で Close します。
func (c *Client) Send(ctx context.Context, req *Request, hooks Hooks) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if req.FileField == "" {
		return nil, fmt.Errorf("request.FileField is required")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(mw, req)
		if err == nil {
			err = mw.Close()
		}
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		// パイプへの書き込みは読み手に渡った時点で戻るので、ここで本文の送信は終わっている
		if hooks.Uploaded != nil {
			hooks.Uploaded()
		}
		_ = pw.Close()
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, transportError(0, "変換APIのURLが正しくありません。", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	c.logger.Info("request",
		zap.String("job_id", req.JobID),
		zap.String("url", req.URL),
		zap.Int("files", len(req.Files)),
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		_ = pr.CloseWithError(err)
		c.logger.Warn("send error",
			zap.String("job_id", req.JobID),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil, wrapTransportError(ctx, err)
	}

	c.logger.Info("response",
		zap.String("job_id", req.JobID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode/100 != 2 {
		// 本文を読み切る前に返ってきたエラーでは書き込み側の goroutine を止める
		_ = pr.CloseWithError(io.ErrClosedPipe)
		return nil, statusError(resp)
	}
	if hooks.ResponseHeaders != nil {
		hooks.ResponseHeaders()
	}
	return resp, nil
}

// Fetch はバッチ結果の参照先を GET します。
func (c *Client) Fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, transportError(0, "変換結果の参照先が正しくありません。", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(ctx, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}
	return resp, nil
}

func writeMultipart(mw *multipart.Writer, req *Request) error {
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, req.Params[k]); err != nil {
			return err
		}
	}

	for _, f := range req.Files {
		if err := writeFilePart(mw, req.FileField, f); err != nil {
			return err
		}
	}
	return nil
}

func writeFilePart(mw *multipart.Writer, field string, f UploadFile) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open upload %s: %w", f.Name, err)
	}
	defer file.Close()

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(field), escapeQuotes(f.Name)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func wrapTransportError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return transportError(0, "変換APIの応答がタイムアウトしました。", err)
	}
	return transportError(0, "変換APIに接続できませんでした。", err)
}

// statusError はエラーレスポンスの本文から利用者向けのメッセージを作ります。
func statusError(resp *http.Response) *Error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))

	err := fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	if msg := messageFromBody(body); msg != "" {
		return transportError(resp.StatusCode, msg, err)
	}
	return transportError(resp.StatusCode, fmt.Sprintf("変換に失敗しました (HTTP %d)。", resp.StatusCode), err)
}

func messageFromBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if strings.HasPrefix(trimmed, "<") {
		// HTML のエラーページは表示に向かない
		return ""
	}
	const limit = 512
	if len(trimmed) > limit {
		trimmed = strings.ToValidUTF8(trimmed[:limit], "") + "…"
	}
	return trimmed
}
