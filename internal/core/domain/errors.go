package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of a stream problem.
type ErrorKind string

const (
	// ErrorKindFrameIncomplete marks trailing bytes left without a terminator
	// at end of stream. Never surfaced to the caller.
	ErrorKindFrameIncomplete ErrorKind = "frame_incomplete"

	// ErrorKindDecode indicates a frame whose payload could not be parsed.
	ErrorKindDecode ErrorKind = "decode"

	// ErrorKindUnknownEntity indicates an event for an id outside the tracked set.
	ErrorKindUnknownEntity ErrorKind = "unknown_entity"

	// ErrorKindRejectedTransition indicates an event that would move an
	// entity out of a terminal status.
	ErrorKindRejectedTransition ErrorKind = "rejected_transition"

	// ErrorKindTransport indicates the underlying connection failed.
	ErrorKindTransport ErrorKind = "transport"
)

// Fatal reports whether errors of this kind end the current pass.
func (k ErrorKind) Fatal() bool {
	return k == ErrorKindTransport
}

var (
	// ErrAlreadyStreaming is returned when a pass is started while another
	// one is in flight.
	ErrAlreadyStreaming = errors.New("stream already in progress")

	// ErrNotStreaming is returned by cancel when nothing is streaming.
	ErrNotStreaming = errors.New("no stream in progress")

	// ErrUnknownEntity is returned when a caller names an id that is not tracked.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrEmptyFrame is wrapped by decode errors for frames without data lines.
	ErrEmptyFrame = errors.New("frame has no data")
)

// ConnectionErrorMessage is the message recorded on entities that were still
// pending when the connection failed.
const ConnectionErrorMessage = "connection error: stream ended before a result was received"

// StreamError is the canonical error for problems found while consuming a
// progress stream.
type StreamError struct {
	Kind     ErrorKind
	Message  string
	EntityID EntityID

	// Frame is the raw frame that caused the error, if any.
	Frame []byte

	Err error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.EntityID != "" {
		msg = fmt.Sprintf("%s (entity %s)", msg, e.EntityID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status that best describes this error.
func (e *StreamError) HTTPStatusCode() int {
	switch e.Kind {
	case ErrorKindDecode, ErrorKindFrameIncomplete:
		return http.StatusUnprocessableEntity
	case ErrorKindUnknownEntity:
		return http.StatusNotFound
	case ErrorKindRejectedTransition:
		return http.StatusConflict
	case ErrorKindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewStreamError creates a new stream error.
func NewStreamError(kind ErrorKind, message string) *StreamError {
	return &StreamError{
		Kind:    kind,
		Message: message,
	}
}

// WithEntity records the entity the error relates to.
func (e *StreamError) WithEntity(id EntityID) *StreamError {
	e.EntityID = id
	return e
}

// WithFrame records a copy of the offending frame.
func (e *StreamError) WithFrame(frame []byte) *StreamError {
	e.Frame = append([]byte(nil), frame...)
	return e
}

// WithCause sets the wrapped error.
func (e *StreamError) WithCause(err error) *StreamError {
	e.Err = err
	return e
}

// ErrDecode creates a decode error for a frame.
func ErrDecode(message string, frame []byte) *StreamError {
	return NewStreamError(ErrorKindDecode, message).WithFrame(frame)
}

// ErrUnknown creates an unknown-entity error.
func ErrUnknown(id EntityID) *StreamError {
	return NewStreamError(ErrorKindUnknownEntity, "event references an untracked id").
		WithEntity(id).
		WithCause(ErrUnknownEntity)
}

// ErrRejected creates a rejected-transition error.
func ErrRejected(id EntityID, from, to Status) *StreamError {
	return NewStreamError(ErrorKindRejectedTransition,
		fmt.Sprintf("cannot move from %s to %s without reset", from, to)).
		WithEntity(id)
}

// ErrTransport wraps a connection failure.
func ErrTransport(err error) *StreamError {
	return NewStreamError(ErrorKindTransport, "connection failed").WithCause(err)
}

// KindOf returns the kind of a StreamError found in err's chain, or "".
func KindOf(err error) ErrorKind {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
