package dwolla

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError indicates that the client-credential exchange failed.
type AuthError struct {
	Err     error
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("dwolla auth error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("dwolla auth error: %s", e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// EmbeddedError is one entry of the provider's _embedded error list.
type EmbeddedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// APIError is a non-2xx response from the provider, surfaced after retries
// are exhausted or immediately for non-retryable statuses.
type APIError struct {
	Code     string
	Message  string
	Embedded []EmbeddedError
	Status   int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("dwolla API error: %d %s - %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("dwolla API error: status %d", e.Status)
}

// TransportError is a network-level failure with no HTTP response, surfaced
// once the retry budget is spent.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dwolla request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
