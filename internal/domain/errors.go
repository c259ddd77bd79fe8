package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrValidation          = errors.New("validation failed")
	ErrAuthentication      = errors.New("authentication failed")
	ErrConfiguration       = errors.New("configuration error")
	ErrCredential          = errors.New("credential error")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrSizing              = errors.New("sizing failed")
	ErrExecution           = errors.New("execution failed")
	ErrPersistence         = errors.New("persistence failed")
	ErrDuplicateSignal     = errors.New("duplicate signal")

	// Exchange-reported failures. Venue clients wrap their native errors
	// with one of these so the executor can classify them.
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExchangeAuth      = errors.New("exchange rejected credentials")
	ErrNetwork           = errors.New("network error")
	ErrSigningFailed     = errors.New("signing failed")
)

// ValidationError reports a single rejected signal field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid signal: " + e.Reason
	}
	return fmt.Sprintf("invalid signal: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// CredentialError reports a credential that could not be decrypted. The
// plaintext is never available when this error is returned.
type CredentialError struct {
	BotID string
	Field string
	Err   error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s for bot %s: %v", e.Field, e.BotID, e.Err)
}

func (e *CredentialError) Is(target error) bool { return target == ErrCredential }

func (e *CredentialError) Unwrap() error { return e.Err }

// ExecClass buckets an exchange error for callers and metrics.
type ExecClass string

const (
	ExecClassAuth              ExecClass = "auth"
	ExecClassInsufficientFunds ExecClass = "insufficient_funds"
	ExecClassInvalidOrder      ExecClass = "invalid_order"
	ExecClassRateLimit         ExecClass = "rate_limit"
	ExecClassNetwork           ExecClass = "network"
	ExecClassUnknown           ExecClass = "unknown"
)

// ExecutionError wraps an order submission failure with its class.
type ExecutionError struct {
	Class    ExecClass
	Exchange string
	Symbol   string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s on %s (%s): %v", e.Symbol, e.Exchange, e.Class, e.Err)
}

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

func (e *ExecutionError) Unwrap() error { return e.Err }

// Retryable reports whether a caller may reasonably resubmit later. The
// pipeline itself never retries.
func (e *ExecutionError) Retryable() bool {
	return e.Class == ExecClassRateLimit || e.Class == ExecClassNetwork
}
