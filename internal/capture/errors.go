package capture

import (
	"errors"
	"fmt"

	"screen-recorder/internal/command"
)

// ErrCaptureUnavailable is returned when the OS denies or does not support
// source enumeration.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// ErrCaptureFailed is returned when acquiring a stream is denied or the
// source vanished.
var ErrCaptureFailed = errors.New("capture failed")

// CaptureError is a capture failure with optional command context.
type CaptureError struct {
	Kind       error       `json:"-"`
	Message    string      `json:"message"`
	CommandLog command.Log `json:"commandLog"`
	Err        error       `json:"-"`
}

// Error formats capture failures for logs and UI.
func (e *CaptureError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%v: %s (cmd=%s exit=%d)", e.Kind, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *CaptureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the error kind sentinel.
func (e *CaptureError) Is(target error) bool {
	return e != nil && e.Kind == target
}

func unavailable(message string, log command.Log, err error) error {
	return &CaptureError{Kind: ErrCaptureUnavailable, Message: message, CommandLog: log, Err: err}
}

func failed(message string, log command.Log, err error) error {
	return &CaptureError{Kind: ErrCaptureFailed, Message: message, CommandLog: log, Err: err}
}
