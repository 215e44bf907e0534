package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates a missing or invalid API token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidID indicates a malformed identifier supplied by a caller.
	ErrInvalidID = errors.New("invalid identifier")
)

// StatusCoder is implemented by errors that carry a transport status code.
type StatusCoder interface {
	StatusCode() int
}

// ConfigError reports a configuration value outside its required domain.
// It is fatal at startup.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Key, e.Reason)
}

// NewConfigError builds a ConfigError for key.
func NewConfigError(key, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// StoreError wraps a record store failure with an optional status code.
// Status 0 means the failure carried no code (network, timeout, driver).
type StoreError struct {
	Op     string
	Status int
	Err    error
}

func (e *StoreError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("store: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// StatusCode implements StatusCoder.
func (e *StoreError) StatusCode() int { return e.Status }

// NewStoreError builds a StoreError.
func NewStoreError(op string, status int, err error) *StoreError {
	return &StoreError{Op: op, Status: status, Err: err}
}

// StatusOf extracts the status code carried by err, or 0.
func StatusOf(err error) int {
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.StatusCode()
	}
	return 0
}

// UserMessage maps a store error to the message shown to editors.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch StatusOf(err) {
	case http.StatusUnauthorized:
		return "Session expired, please sign in again"
	case http.StatusForbidden:
		return "Permission denied"
	case http.StatusNotFound:
		return "Record not found, it may have been deleted"
	case http.StatusConflict:
		return "Conflicting change, refresh and try again"
	case http.StatusUnprocessableEntity:
		return "The store rejected the values"
	case http.StatusTooManyRequests:
		return "Too many requests, please retry shortly"
	default:
		return "Failed to save, please retry"
	}
}
