// Package session はログインなしで使えるツール向けに、訪問者の識別とCSRF保護を提供します。
//
// 訪問者IDは署名付きクッキーセッションに保存し、ツールごとのコントローラーを引き当てるキーになります。
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/toolshub/internal/logging"
)

const (
	CookieName           = "th_session"
	sessionKeyVisitor    = "visitor_id"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	// CSRFHeader は状態を変更するリクエストで送り返すヘッダーです。
	CSRFHeader = "X-CSRF-Token"
)

// ContextVisitorKey は、ハンドラー間で訪問者IDを共有するためのキーです。
const ContextVisitorKey = "session.visitor"

const defaultMaxLifetime = 12 * time.Hour

// Manager は訪問者セッションの発行と検証を行います。
type Manager struct {
	idleTimeout time.Duration
	maxLifetime time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewManager は Manager を作成します。idleTimeout が 0 以下なら無操作による失効はありません。
func NewManager(idleTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		idleTimeout: idleTimeout,
		maxLifetime: defaultMaxLifetime,
		logger:      logging.OrNop(logger).Named("session"),
		now:         time.Now,
	}
}

// MaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func (m *Manager) MaxAgeSeconds() int {
	return int(m.maxLifetime.Seconds())
}

// Visitor は訪問者IDを確定するミドルウェアです。
// セッションがない、または失効している場合は新しい訪問者として発行し直します。
// CSRFトークンは毎回レスポンスヘッダーで返します。
func (m *Manager) Visitor() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		now := m.now()

		visitor, _ := session.Get(sessionKeyVisitor).(string)
		token, _ := session.Get(sessionKeyCSRF).(string)
		issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
		lastActive := readUnix(session.Get(sessionKeyLastActive))

		switch {
		case visitor == "" || token == "":
			visitor = ""
		case issuedAt.IsZero() || now.Sub(issuedAt) > m.maxLifetime:
			m.logger.Debug("session expired", zap.String("visitor", visitor))
			visitor = ""
		case m.idleTimeout > 0 && (lastActive.IsZero() || now.Sub(lastActive) > m.idleTimeout):
			m.logger.Debug("session idle timeout", zap.String("visitor", visitor))
			visitor = ""
		}

		if visitor == "" {
			newToken, err := generateToken()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    "TOKEN_GENERATION_FAILED",
					"message": "CSRF トークンの生成に失敗しました",
				})
				return
			}
			session.Clear()
			visitor = uuid.NewString()
			token = newToken
			session.Set(sessionKeyVisitor, visitor)
			session.Set(sessionKeyIssuedAt, now.Unix())
			session.Set(sessionKeyCSRF, token)
		}

		session.Set(sessionKeyLastActive, now.Unix())
		if err := session.Save(); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    "SESSION_SAVE_FAILED",
				"message": "セッションの保存に失敗しました",
			})
			return
		}

		c.Header(CSRFHeader, token)
		c.Set(ContextVisitorKey, visitor)
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダーを検証するミドルウェアです。Visitor の後に置きます。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "CSRF トークンが設定されていません",
			})
			return
		}

		received := c.GetHeader(CSRFHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "CSRF トークンが一致しません",
			})
			return
		}

		c.Next()
	}
}

// VisitorID は Visitor ミドルウェアが確定した訪問者IDを返します。
func VisitorID(c *gin.Context) string {
	return c.GetString(ContextVisitorKey)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
