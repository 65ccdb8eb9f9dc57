package transform

import (
	"errors"
	"fmt"
)

// Kind はエラーの分類です。
type Kind string

const (
	// KindValidation は送信前に検出した入力・パラメータの不備です。
	KindValidation Kind = "VALIDATION_ERROR"
	// KindTransport は通信の失敗、または変換APIが成功以外を返したことを表します。
	KindTransport Kind = "TRANSPORT_ERROR"
)

// Error はジョブに記録され、利用者にそのまま表示されるエラーです。
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int // 変換APIのHTTPステータス（通信自体が失敗した場合は 0）
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation は err が ValidationError かどうかを返します。
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindValidation
}

// IsTransport は err が TransportError かどうかを返します。
func IsTransport(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransport
}

func validationError(message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

func transportError(status int, message string, err error) *Error {
	return &Error{Kind: KindTransport, StatusCode: status, Message: message, Err: err}
}

var (
	// ErrSubmissionInFlight は送信中に Submit が呼ばれたことを表します。状態は変わりません。
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrResultPending は成果物がある状態で Submit が呼ばれたことを表します。先に Reset が必要です。
	ErrResultPending = errors.New("result is ready; reset before submitting again")
	// ErrResultUnavailable は成功状態以外で Download が呼ばれたことを表します。
	ErrResultUnavailable = errors.New("no result available")
	// ErrClosed は Close 済みのコントローラーを操作したことを表します。
	ErrClosed = errors.New("controller closed")
)
