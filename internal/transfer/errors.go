package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrSignaling         = errors.New("signaling error")
	ErrNegotiation       = errors.New("negotiation failed")
	ErrTransport         = errors.New("transport error")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrRoomFull          = errors.New("room is full")
	ErrChannelNotOpen    = errors.New("channel not open")
	ErrNotIdle           = errors.New("session already started")
	ErrInvalidCode       = errors.New("invalid room code")
)

// Error annotates a failure with the operation and, when relevant, the file
// it concerns.
type Error struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *Error {
	return &Error{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// Classify joins a taxonomy sentinel with the underlying cause so callers can
// match either with errors.Is.
func Classify(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
