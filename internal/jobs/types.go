// Package jobs はジョブ状態を Redis に記録し、ジョブIDで参照できるようにします。
package jobs

import "time"

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID       string       `json:"jobId"`
	Visitor     string       `json:"-"`
	Operation   string       `json:"operation"`
	Status      string       `json:"status"`
	Progress    ProgressInfo `json:"progress"`
	Filename    string       `json:"filename,omitempty"`
	DownloadURL string       `json:"downloadUrl,omitempty"`
	Error       *ErrorInfo   `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

// storedRecord は Redis に保存する形式です。Visitor も含めます。
type storedRecord struct {
	Record
	VisitorID string `json:"visitor"`
}
