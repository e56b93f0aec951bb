package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags the outcome of a remote read.
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of a remote read.  Callers switch on Kind: Value is
// only meaningful for KindOK and Err only for KindError.
type Result[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] { return Result[T]{Kind: KindOK, Value: v} }

// NotFound reports an absent remote resource.
func NotFound[T any]() Result[T] { return Result[T]{Kind: KindNotFound} }

// Failed wraps a remote failure other than absence.
func Failed[T any](err error) Result[T] { return Result[T]{Kind: KindError, Err: err} }

// resultOf classifies the return values of a remote call.
func resultOf[T any](v T, err error) Result[T] {
	if err == nil {
		return OK(v)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return NotFound[T]()
	}
	return Failed[T](err)
}

// APIError is a non-2xx answer from the platform.  Body is kept for server
// side logs and never returned to clients.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform: %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// IsNotFound reports whether err is a 404 answer from the platform.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
