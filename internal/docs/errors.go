package docs

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks caller mistakes (empty query, bad parameters).
// Surfaced as a client error; never retried.
var ErrInvalidRequest = errors.New("invalid request")

// ConfigurationError indicates a missing or unusable deployment setting.
// It is distinct from request-scoped failures: the operator has to fix it.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Setting)
}

// FetchError is returned when the listing fetch fails and the whole crawl
// run is aborted without touching the store.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UpstreamError carries a failure from the chat worker back to the caller.
// StatusCode and Body are zero when the failure happened in transport.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("worker error: %v", e.Err)
	}
	return fmt.Sprintf("worker error: %d %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
