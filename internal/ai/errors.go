package ai

import (
	"errors"
	"fmt"
)

// TransportError wraps a failure talking to an external model service: the
// service was unreachable or returned data that cannot be used.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err unless it already carries a TransportError.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *TransportError
	if errors.As(err, &existing) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err came from an external service.
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}
