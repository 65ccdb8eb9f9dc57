package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/toolshub/internal/config"
	"github.com/yourusername/toolshub/internal/jobs"
	"github.com/yourusername/toolshub/internal/session"
	"github.com/yourusername/toolshub/internal/transform"
)

// setupJobs は REDIS_URL が設定されている場合にジョブ状態の保存先を用意します。
func setupJobs(cfg *config.Config, logger *zap.Logger) (*jobs.Store, *jobs.Recorder, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, nil, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	store := jobs.NewStore(redis.NewClient(opt), cfg.JobTTL())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return store, jobs.NewRecorder(store, 0, logger), nil
}

// recordObserver はコントローラーの状態変化をジョブ記録として保存する Observer を返します。
func recordObserver(recorder *jobs.Recorder) func(visitor string, snap transform.Snapshot) {
	if recorder == nil {
		return nil
	}
	return func(visitor string, snap transform.Snapshot) {
		if record := recordFromSnapshot(visitor, snap); record != nil {
			recorder.Record(record)
		}
	}
}

// recordFromSnapshot はジョブIDのある状態だけを Record に変換します。
func recordFromSnapshot(visitor string, snap transform.Snapshot) *jobs.Record {
	if snap.JobID == "" {
		return nil
	}
	record := &jobs.Record{
		JobID:     snap.JobID,
		Visitor:   visitor,
		Operation: string(snap.Operation),
		Status:    string(snap.Status),
		Progress: jobs.ProgressInfo{
			Percent: snap.Progress.Percent,
			Stage:   snap.Progress.Stage,
		},
	}
	if snap.Result != nil {
		record.Filename = snap.Result.Filename
		// 後続のジョブで成果物が置き換わると、このURLは 410 を返す
		record.DownloadURL = fmt.Sprintf("/api/tools/%s/download?job=%s", snap.Operation, url.QueryEscape(snap.JobID))
	}
	if snap.Error != nil {
		record.Error = &jobs.ErrorInfo{
			Code:       snap.Error.Code,
			Message:    snap.Error.Message,
			StatusCode: snap.Error.StatusCode,
		}
	}
	return record
}

func jobStatusHandler(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := store.Get(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		// 他の訪問者のジョブは存在しないものとして扱う
		if record == nil || record.Visitor != session.VisitorID(c) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		c.JSON(http.StatusOK, record)
	}
}
