package client

import (
	"fmt"
	"net/http"

	"github.com/xenking/marketplace-client/internal/domain/product"
)

// ErrNotFound matches any 404 response. It is the product package sentinel,
// so callers can test product lookups with either name.
var ErrNotFound = product.ErrNotFound

// NetworkError reports a transport failure: the request never produced an
// HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError reports a 4xx or 5xx response from the backend.
type HTTPError struct {
	Op         string
	StatusCode int
	// Message is the server supplied message, if any.
	Message string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, msg)
}

// Is reports 404 responses as ErrNotFound.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Unauthorized reports whether the backend rejected the credentials or token.
func (e *HTTPError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// ValidationError reports an argument rejected before any request was sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
