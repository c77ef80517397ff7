package cli

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/camrelay/internal/ui"
)

var (
	ErrServerGone  = errors.New("signaling server closed the connection")
	ErrRejected    = errors.New("signaling server rejected the request")
	ErrTimeout     = errors.New("timeout")
	ErrRoomClosed  = errors.New("room closed")
	ErrInvalidCode = errors.New("room code must be 6 digits")
)

// OpError is a user-facing failure of one CLI step.
type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Print() {
	ui.PrintError(e.Error())
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}
