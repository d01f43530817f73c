package sending

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	// Transient failures may succeed on retry (throttling, timeouts, 5xx).
	Transient ErrorKind = iota
	// Permanent failures will never succeed for this address (hard bounce,
	// rejected recipient).
	Permanent
)

func (k ErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// DeliveryError is returned by Senders to classify a failure.
type DeliveryError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s delivery error (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s delivery error: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable failure.
func NewTransient(code string, err error) error {
	return &DeliveryError{Kind: Transient, Code: code, Err: err}
}

// NewPermanent wraps err as a non-retryable failure.
func NewPermanent(code string, err error) error {
	return &DeliveryError{Kind: Permanent, Code: code, Err: err}
}

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == Permanent
}

// IsTransient reports whether err is worth retrying. Unclassified errors are
// treated as transient; context cancellation is not.
func IsTransient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
