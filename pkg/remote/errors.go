package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when the legacy server rejects the credentials
	ErrAuth = errors.New("authentication failed")
	// ErrProtocol is returned when a response cannot be understood
	ErrProtocol = errors.New("protocol error")
)

// Error is an error reported by the legacy server itself.
type Error struct {
	Code    int
	Message string
	Name    string // server-side exception name
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("remote error %d (%s): %s: %s", e.Code, e.Name, e.Message, e.Detail)
	}
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// TransportError wraps a failure to reach the legacy server.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the whole phase rather than a
// single record.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var remoteErr *Error
	var transportErr *TransportError
	return errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrProtocol) ||
		errors.As(err, &remoteErr) ||
		errors.As(err, &transportErr)
}
