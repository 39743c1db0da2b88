package deck

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across components.
var (
	// ErrCardNotFound means every resolution stage missed.
	ErrCardNotFound = errors.New("card not found")
	// ErrProtectedSource means the source is anti-bot protected and the
	// configured policy skips it.
	ErrProtectedSource = errors.New("protected source skipped by policy")
	// ErrEmptyDecklist means a document held no card lines.
	ErrEmptyDecklist = errors.New("decklist has no entries")
)

// FetchError reports a fetch that failed after retries were exhausted, or a
// non-retryable HTTP status.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	default:
		return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a document whose structure an adapter could not read.
type ParseError struct {
	Adapter string
	URL     string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: parse %s: %s: %v", e.Adapter, e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: parse %s: %s", e.Adapter, e.URL, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError builds a ParseError for the named adapter.
func NewParseError(adapter, url, reason string, err error) *ParseError {
	return &ParseError{Adapter: adapter, URL: url, Reason: reason, Err: err}
}

// ConfigError is fatal at startup.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
