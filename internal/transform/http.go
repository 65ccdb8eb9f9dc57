package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/toolshub/internal/logging"
	"github.com/yourusername/toolshub/internal/pdf"
)

const contextControllerKey = "transform.controller"

// statusClientClosedRequest はクライアントが応答を待たずに切断したことを表します（nginx と同じ 499）。
const statusClientClosedRequest = 499

// VisitorFunc はリクエストから訪問者IDを取り出します。
type VisitorFunc func(c *gin.Context) string

// HandlerOptions は HTTP ハンドラーの設定です。
type HandlerOptions struct {
	MaxUploadBytes int64       // アップロード全体の上限（0 なら無制限）
	Visitor        VisitorFunc // nil の場合は全リクエストで1つのコントローラーを共有
	Logger         *zap.Logger
}

// Handler はツールごとのコントローラーを HTTP で操作するハンドラー群です。
type Handler struct {
	registry *Registry
	opts     HandlerOptions
	logger   *zap.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(registry *Registry, opts HandlerOptions) *Handler {
	return &Handler{
		registry: registry,
		opts:     opts,
		logger:   logging.OrNop(opts.Logger).Named("http"),
	}
}

// Register は /tools 以下のルートを登録します。
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/tools", h.ListTools)

	tool := r.Group("/tools/:tool", h.resolveController)
	{
		tool.GET("", h.Snapshot)
		tool.POST("/input", h.SelectInput)
		tool.PUT("/params", h.SetParams)
		tool.POST("/submit", h.Submit)
		tool.GET("/download", h.Download)
		tool.POST("/reset", h.Reset)
	}
}

// ListTools は GET /api/tools のハンドラーです。
func (h *Handler) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": pdf.Operations()})
}

// Snapshot は GET /api/tools/:tool のハンドラーです。
func (h *Handler) Snapshot(c *gin.Context) {
	ctrl := controllerFrom(c)
	c.JSON(http.StatusOK, gin.H{"job": ctrl.Snapshot()})
}

// SelectInput は POST /api/tools/:tool/input のハンドラーです。
// PDFとして受け付けられるファイルがなければ accepted=false を返し、状態は変えません。
func (h *Handler) SelectInput(c *gin.Context) {
	ctrl := controllerFrom(c)

	if h.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "LIMIT_EXCEEDED",
				"message": fmt.Sprintf("アップロードできるサイズは %d MB までです。", h.opts.MaxUploadBytes>>20),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "multipart/form-data でPDFファイルを送信してください。",
		})
		return
	}
	defer form.RemoveAll()

	headers := collectFiles(form)
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "アップロードされたPDFファイルが見つかりません。",
		})
		return
	}

	sources := make([]Source, 0, len(headers))
	for _, fh := range headers {
		file, err := fh.Open()
		if err != nil {
			respondWithError(c, fmt.Errorf("open upload: %w", err))
			return
		}
		defer file.Close()
		sources = append(sources, Source{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Reader:      file,
		})
	}

	accepted, err := ctrl.SelectInput(c.Request.Context(), sources...)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accepted": accepted,
		"job":      ctrl.Snapshot(),
	})
}

// SetParams は PUT /api/tools/:tool/params のハンドラーです。
// JSON オブジェクトまたはフォームで受け取ります。値の検証は送信時に行います。
func (h *Handler) SetParams(c *gin.Context) {
	ctrl := controllerFrom(c)

	params, err := readParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": err.Error(),
		})
		return
	}
	for name, value := range params {
		ctrl.SetParameter(name, value)
	}
	c.JSON(http.StatusOK, gin.H{"job": ctrl.Snapshot()})
}

// Submit は POST /api/tools/:tool/submit のハンドラーです。
// ?wait=true の場合は結果が出るまで待ってから返します。
func (h *Handler) Submit(c *gin.Context) {
	ctrl := controllerFrom(c)

	if err := ctrl.Submit(c.Request.Context()); err != nil {
		respondWithError(c, err)
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		if err := ctrl.Wait(c.Request.Context()); err != nil {
			// 待機をやめてもジョブは続行する。結果は GET /api/tools/:tool で確認できる
			h.logger.Debug("wait aborted", zap.String("job_id", ctrl.Snapshot().JobID), zap.Error(err))
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"job": ctrl.Snapshot()})
		return
	}

	snap := ctrl.Snapshot()
	c.JSON(http.StatusAccepted, gin.H{
		"jobId": snap.JobID,
		"job":   snap,
	})
}

// Download は GET /api/tools/:tool/download のハンドラーです。
// ?job=<jobId> を付けた場合は、そのジョブが現在の成果物でなければ 410 を返します。
func (h *Handler) Download(c *gin.Context) {
	ctrl := controllerFrom(c)

	delivery, err := ctrl.Download()
	if err != nil {
		respondWithError(c, err)
		return
	}
	defer delivery.Body.Close()

	if jobID := c.Query("job"); jobID != "" && jobID != delivery.JobID {
		c.JSON(http.StatusGone, gin.H{
			"code":    "RESULT_REPLACED",
			"message": "このジョブの変換結果は、新しいジョブの結果に置き換えられました。",
		})
		return
	}

	streamDelivery(c, delivery)
}

// Reset は POST /api/tools/:tool/reset のハンドラーです。
func (h *Handler) Reset(c *gin.Context) {
	ctrl := controllerFrom(c)
	ctrl.Reset()
	c.JSON(http.StatusOK, gin.H{"job": ctrl.Snapshot()})
}

func (h *Handler) resolveController(c *gin.Context) {
	op := pdf.OperationType(c.Param("tool"))
	if _, ok := pdf.Lookup(op); !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"code":    "TOOL_NOT_FOUND",
			"message": "指定されたツールは存在しません。",
		})
		return
	}

	visitor := ""
	if h.opts.Visitor != nil {
		visitor = h.opts.Visitor(c)
	}
	ctrl, err := h.registry.Get(visitor, op)
	if err != nil {
		h.logger.Error("failed to get controller", zap.String("tool", string(op)), zap.Error(err))
		respondWithError(c, err)
		c.Abort()
		return
	}
	c.Set(contextControllerKey, ctrl)
	c.Next()
}

func controllerFrom(c *gin.Context) *Controller {
	return c.MustGet(contextControllerKey).(*Controller)
}

func collectFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	var files []*multipart.FileHeader
	for _, field := range []string{"files", "files[]", "file", "file[]"} {
		files = append(files, form.File[field]...)
	}
	return files
}

func readParams(c *gin.Context) (map[string]string, error) {
	if c.ContentType() == gin.MIMEJSON {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, errors.New("リクエスト本文の読み込みに失敗しました。")
		}
		var raw map[string]any
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&raw); err != nil {
			return nil, errors.New("パラメータは JSON オブジェクトで指定してください。例: {\"text\":\"社外秘\"}")
		}
		params := make(map[string]string, len(raw))
		for k, v := range raw {
			s, ok := paramString(v)
			if !ok {
				return nil, fmt.Errorf("パラメータ %s の値は文字列・数値・真偽値で指定してください。", k)
			}
			params[k] = s
		}
		return params, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, errors.New("パラメータの形式が正しくありません。")
	}
	params := make(map[string]string, len(c.Request.PostForm))
	for k, values := range c.Request.PostForm {
		if len(values) > 0 {
			params[k] = values[len(values)-1]
		}
	}
	return params, nil
}

func paramString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "", true
	default:
		return "", false
	}
}

func respondWithError(c *gin.Context, err error) {
	var jobErr *Error
	switch {
	case errors.As(err, &jobErr):
		status := http.StatusBadGateway
		if jobErr.Kind == KindValidation {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"code":    string(jobErr.Kind),
			"message": jobErr.Message,
		})
	case errors.Is(err, ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "SUBMISSION_IN_FLIGHT",
			"message": "変換処理の実行中です。完了までお待ちください。",
		})
	case errors.Is(err, ErrResultPending):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "RESULT_PENDING",
			"message": "変換結果があります。ダウンロードするか、リセットしてからやり直してください。",
		})
	case errors.Is(err, ErrResultUnavailable):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "RESULT_UNAVAILABLE",
			"message": "ダウンロードできる変換結果がありません。",
		})
	case errors.Is(err, ErrClosed):
		c.JSON(http.StatusGone, gin.H{
			"code":    "SESSION_EXPIRED",
			"message": "しばらく操作がなかったため、最初からやり直してください。",
		})
	case errors.Is(err, context.Canceled):
		c.JSON(statusClientClosedRequest, gin.H{
			"code":    "CLIENT_CLOSED_REQUEST",
			"message": "リクエストが中断されました。",
		})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"code":    "WAIT_TIMEOUT",
			"message": "変換の完了を待つ間にタイムアウトしました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func streamDelivery(c *gin.Context, d *Delivery) {
	contentType := d.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	encodedName := url.PathEscape(d.Filename)
	asciiName := strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, d.Filename)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", asciiName, encodedName))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", d.JobID)
	c.DataFromReader(http.StatusOK, d.Size, contentType, d.Body, nil)
}
