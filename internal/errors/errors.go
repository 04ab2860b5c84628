// Package errors provides unified error handling with structured error codes.
// Recoverable input degradations (missed detections, silence, absent
// diarization) are never modeled as errors; they surface only as
// low-confidence decisions upstream.
package errors

import "fmt"

// Code classifies a fatal pipeline error.
type Code int

const (
	CodeUnknown Code = iota
	// CodeConfigInvalid marks inconsistent configuration, reported before
	// any processing starts.
	CodeConfigInvalid
	// CodeDecodeFailure marks a sustained frame or audio source failure
	// mid-stream; metadata carries the offset at which it occurred.
	CodeDecodeFailure
	// CodeBackendUnavailable marks a landmark backend that cannot serve
	// detections right now (connection lost, breaker open).
	CodeBackendUnavailable
	// CodeCancelled marks a run aborted by the caller.
	CodeCancelled
	// CodeTruncated marks a crop path that ended before its input did.
	CodeTruncated
)

var codeNames = map[Code]string{
	CodeUnknown:            "UNKNOWN",
	CodeConfigInvalid:      "CONFIG_INVALID",
	CodeDecodeFailure:      "DECODE_FAILURE",
	CodeBackendUnavailable: "BACKEND_UNAVAILABLE",
	CodeCancelled:          "CANCELLED",
	CodeTruncated:          "TRUNCATED",
}

// String returns the code's symbolic name.
func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// AppError is the base error type with structured code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// IsCode checks if an error (or any error it wraps) has a specific code.
func IsCode(err error, code Code) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return CodeUnknown
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}
