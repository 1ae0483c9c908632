package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error classifies Firestore failures by their gRPC status.
type Error struct {
	op          string
	err         error
	notFound    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError annotates err with op and its classification. Context cancellations pass through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.NotFound:
		return &Error{op: op, err: err, notFound: true}
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Aborted:
		return &Error{op: op, err: err, unavailable: true}
	default:
		return &Error{op: op, err: err}
	}
}

// IsNotFound reports whether err wraps a missing-document error.
func IsNotFound(err error) bool {
	if status.Code(err) == codes.NotFound {
		return true
	}
	var fsErr *Error
	return errors.As(err, &fsErr) && fsErr.IsNotFound()
}

// IsUnavailable reports whether err wraps a transient backend outage.
func IsUnavailable(err error) bool {
	var fsErr *Error
	return errors.As(err, &fsErr) && fsErr.IsUnavailable()
}
