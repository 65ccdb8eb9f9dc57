// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/toolshub/internal/config"
	"github.com/yourusername/toolshub/internal/jobs"
	"github.com/yourusername/toolshub/internal/logging"
	"github.com/yourusername/toolshub/internal/session"
	"github.com/yourusername/toolshub/internal/storage"
	"github.com/yourusername/toolshub/internal/transform"
)

const (
	serviceName     = "toolshub-api"
	serviceVersion  = "0.2.0"
	sweepInterval   = time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: cfg.GinMode != gin.ReleaseMode,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	store, err := storage.NewLocal(cfg.WorkDir)
	if err != nil {
		return err
	}
	// 前回の異常終了で残った作業ディレクトリを掃除
	if removed, err := store.SweepStale(cfg.SessionIdleTimeout()); err != nil {
		logger.Warn("failed to sweep stale workspaces", zap.Error(err))
	} else if removed > 0 {
		logger.Info("stale workspaces removed", zap.Int("count", removed))
	}

	jobStore, recorder, err := setupJobs(cfg, logger)
	if err != nil {
		return err
	}

	registry := transform.NewRegistry(transform.RegistryOptions{
		Endpoints: cfg.Endpoints,
		Client:    transform.NewClient(&http.Client{}, logger),
		Storage:   store,
		Timeout:   cfg.RequestTimeout(),
		Idle:      cfg.SessionIdleTimeout(),
		Logger:    logger,
		Observer:  recordObserver(recorder),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go registry.Run(ctx, sweepInterval)

	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger))
	router.MaxMultipartMemory = 32 << 20

	sessionManager := session.NewManager(cfg.SessionIdleTimeout(), logger)
	router.Use(sessions.Sessions(session.CookieName, newCookieStore(cfg, sessionManager, logger)))
	router.Use(cors.New(newCORSConfig(cfg)))

	// ルーティングの設定
	setupRoutes(router, cfg, registry, sessionManager, jobStore, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	registry.Close()
	if recorder != nil {
		recorder.Close(shutdownCtx)
	}
	if jobStore != nil {
		_ = jobStore.Close()
	}
	return nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// setupRoutes は API グループとセッション周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, registry *transform.Registry, sessionManager *session.Manager, jobStore *jobs.Store, logger *zap.Logger) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	api.Use(sessionManager.Visitor(), sessionManager.VerifyCSRF())
	{
		handler := transform.NewHandler(registry, transform.HandlerOptions{
			MaxUploadBytes: cfg.MaxFileSize,
			Visitor:        session.VisitorID,
			Logger:         logger,
		})
		handler.Register(api)

		// Redis が設定されている場合のみジョブ照会を提供
		if jobStore != nil {
			api.GET("/jobs/:id", jobStatusHandler(jobStore))
		}
	}
}

func newCookieStore(cfg *config.Config, sessionManager *session.Manager, logger *zap.Logger) cookie.Store {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		// debug モードでは起動ごとの鍵で代用する（再起動でセッションは失効）
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Fatal("failed to generate session secret", zap.Error(err))
		}
		logger.Warn("SESSION_SECRET is not set; using an ephemeral key")
	}

	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionManager.MaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	return store
}

func newCORSConfig(cfg *config.Config) cors.Config {
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		session.CSRFHeader,
	}
	// ダウンロード時のファイル名とジョブID、CSRF トークンをフロントエンドから読めるようにする
	corsConfig.ExposeHeaders = []string{session.CSRFHeader, "Content-Disposition", "X-Job-Id"}
	return corsConfig
}
