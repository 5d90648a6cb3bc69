// Package errors provides domain-specific error types for the AMVP
// client.
//
// These types carry structured context (operation, endpoint, HTTP
// status, retryability) that helps callers decide how to handle
// failures and provides better diagnostics than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrAuthFailed     = errors.New("authentication failed")
	ErrSessionExpired = errors.New("test session token expired")
	ErrNoCapability   = errors.New("no capability registered for algorithm")
	ErrNotReady       = errors.New("vector set not ready")
	ErrFIPSProvider   = errors.New("certified provider is not active")
)

// ── Structured error types ───────────────────────────────────────────

// ProtocolError represents a failure talking to the validation server.
type ProtocolError struct {
	Op        string // operation: "login", "register", "fetch", "submit", "put", "delete"
	Endpoint  string // URL involved
	Status    int    // HTTP status code, 0 when the request never completed
	Err       error  // underlying error
	Retryable bool   // whether the transport may retry
}

func (e *ProtocolError) Error() string {
	s := fmt.Sprintf("%s %s", e.Op, e.Endpoint)
	if e.Status != 0 {
		s += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	s += fmt.Sprintf(": %v", e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field or flag name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a ProtocolError, deriving retryability from the HTTP
// status when present and from the underlying error otherwise.
func Wrap(op, endpoint string, status int, err error) *ProtocolError {
	return &ProtocolError{
		Op:        op,
		Endpoint:  endpoint,
		Status:    status,
		Err:       err,
		Retryable: classifyRetryable(status, err),
	}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying at the transport
// layer.  The dispatcher itself never retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return classifyRetryable(0, err)
}

// classifyRetryable inspects HTTP status codes and standard library
// network error types.
func classifyRetryable(status int, err error) bool {
	switch status {
	case 429, 502, 503, 504:
		return true
	}
	if status != 0 {
		// Any other definitive HTTP answer is final.
		return false
	}
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use this package as a drop-in replacement for
// the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
