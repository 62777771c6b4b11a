package translator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a translation failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindQuotaExceeded
	KindSafetyBlocked
	KindTruncated
	KindMalformed
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindQuotaExceeded:
		return "quota-exceeded"
	case KindSafetyBlocked:
		return "safety-blocked"
	case KindTruncated:
		return "truncated"
	case KindMalformed:
		return "malformed"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

var (
	ErrAllQuotaExceeded = errors.New("all models exceeded their quota, wait or upgrade the API key")
	ErrNoModelAvailable = errors.New("no model is available, check the API key")
	ErrMissingAPIKey    = errors.New("API key is not configured")
)

// Error is a classified translation failure.
type Error struct {
	Kind    Kind
	Model   string
	Code    int
	Status  string
	Message string
	// RetryAfter is the server-suggested delay, zero when absent.
	RetryAfter time.Duration
	// Permanent is set on a safety block that escalated to a domain block.
	Permanent bool
	Domain    string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Model != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Model, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, KindUnknown if it carries none.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must abort the whole session rather than
// just the chunk that produced it.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, context.Canceled) {
		return true
	}
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	switch te.Kind {
	case KindTruncated:
		return true
	case KindSafetyBlocked:
		return te.Permanent
	}
	return false
}

// IsRetryable reports whether the same request may succeed if repeated.
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	switch KindOf(err) {
	case KindNetwork, KindUnknown, KindQuotaExceeded, KindMalformed:
		return true
	}
	return false
}

// RetryAfter returns the server hint attached to err, if any.
func RetryAfter(err error) time.Duration {
	var te *Error
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
