// Package transform はファイルのアップロード、外部変換APIでの変換、成果物のダウンロードまでを
// 1つのジョブとして管理するコントローラーを提供します。
package transform

import (
	"io"
	"time"

	"github.com/yourusername/toolshub/internal/pdf"
)

// Status はジョブの状態を表します。
type Status string

const (
	StatusIdle           Status = "idle"
	StatusValidating     Status = "validating"
	StatusSubmitting     Status = "submitting"
	StatusAwaitingResult Status = "awaiting_result"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"

	// StatusCancelled は取り消されたジョブの最後の通知にだけ現れます。
	// コントローラー自身はこの状態にならず、取り消し後は idle です。
	StatusCancelled Status = "cancelled"
)

// rank は状態の前後関係です。ジョブの状態は rank が増える方向にしか進みません。
func (s Status) rank() int {
	switch s {
	case StatusIdle:
		return 0
	case StatusValidating:
		return 1
	case StatusSubmitting:
		return 2
	case StatusAwaitingResult:
		return 3
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return 4
	default:
		return -1
	}
}

// InFlight は変換APIへのリクエストが進行中かどうかを返します。
func (s Status) InFlight() bool {
	return s == StatusSubmitting || s == StatusAwaitingResult
}

// Source はファイル選択またはドラッグ&ドロップで渡された1ファイルです。
type Source struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

type inputFile struct {
	pdf.SourceFileMeta
	path string
}

// Part はバッチ結果（ページごとの画像など）に含まれる1ファイルです。
type Part struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Artifact は変換結果です。バッチ結果は zip にまとめて1つの Artifact になります。
type Artifact struct {
	Filename    string
	ContentType string
	Size        int64
	Parts       []Part

	path string
}

// ErrorInfo はジョブ失敗時のエラー情報です。
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// ResultInfo は表示用の成果物情報です。
type ResultInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Parts       []Part `json:"parts,omitempty"`
}

// Snapshot は表示層に渡すジョブの現在状態です。
type Snapshot struct {
	JobID     string               `json:"jobId,omitempty"`
	Operation pdf.OperationType    `json:"operation"`
	Status    Status               `json:"status"`
	Progress  ProgressInfo         `json:"progress"`
	Inputs    []pdf.SourceFileMeta `json:"inputs,omitempty"`
	Params    map[string]string    `json:"params,omitempty"`
	Result    *ResultInfo          `json:"result,omitempty"`
	Error     *ErrorInfo           `json:"error,omitempty"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// Delivery はダウンロード用に開いた成果物です。Body は呼び出し側で Close します。
type Delivery struct {
	JobID       string
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Observer は状態が変わるたびに呼ばれます。呼び出し順は状態遷移の順序と一致します。
// Observer からコントローラーを操作してはいけません。
type Observer func(Snapshot)
