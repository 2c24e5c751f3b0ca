package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeCorruptData      = "CORRUPT_DATA"
	CodeIOFailure        = "IO_FAILURE"
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeSnapshotNotFound = "SNAPSHOT_NOT_FOUND"
)

// Sentinels for errors.Is. Matching is by code, so any MosaicError carrying
// the same code satisfies errors.Is against these.
var (
	ErrInvalidArgument  = New(CodeInvalidArgument, "invalid argument")
	ErrCorruptData      = New(CodeCorruptData, "corrupt snapshot data")
	ErrIOFailure        = New(CodeIOFailure, "i/o failure")
	ErrSnapshotNotFound = New(CodeSnapshotNotFound, "snapshot not found")
)

// MosaicError is a structured error with a code and actionable suggestion.
type MosaicError struct {
	Code       string // machine-readable code (e.g. CORRUPT_DATA)
	Message    string // human-readable description
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *MosaicError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *MosaicError) Unwrap() error {
	return e.Err
}

// New creates a MosaicError with the given code and message.
func New(code, message string) *MosaicError {
	return &MosaicError{Code: code, Message: message}
}

// Newf creates a MosaicError with a formatted message.
func Newf(code, format string, args ...any) *MosaicError {
	return &MosaicError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a MosaicError wrapping an existing error.
func Wrap(code, message string, err error) *MosaicError {
	return &MosaicError{Code: code, Message: message, Err: err}
}

// WithSuggestion sets the suggestion and returns the receiver.
func (e *MosaicError) WithSuggestion(suggestion string) *MosaicError {
	e.Suggestion = suggestion
	return e
}

// Is checks whether target matches this error's code.
func (e *MosaicError) Is(target error) bool {
	var me *MosaicError
	if errors.As(target, &me) {
		return e.Code == me.Code
	}
	return false
}

// AsCode extracts the MosaicError code from an error, or "" if not a MosaicError.
func AsCode(err error) string {
	var me *MosaicError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// Suggestion extracts the suggestion from an error, or "" if not a MosaicError.
func Suggestion(err error) string {
	var me *MosaicError
	if errors.As(err, &me) {
		return me.Suggestion
	}
	return ""
}
