// Package errclass classifies errors into four kinds: transient
// external, permanent external, semantic negative, and internal
// invariant violation. Classification drives retry/dead-letter decisions
// in the Work Queue and Disposition Engine.
package errclass

import (
	"errors"
	"net"
	"strings"
)

// Kind is one of the four error categories.
type Kind int

const (
	// KindTransient errors are retried with backoff; they never surface as
	// a terminal disposition or a user-visible error on their own.
	KindTransient Kind = iota
	// KindPermanent errors move the work item to dead-letter and the
	// business to state error without retry.
	KindPermanent
	// KindSemantic is not an error at all — a prescreener/verifier
	// correctly concluding a URL is not the business's own.
	KindSemantic
	// KindInternal is an invariant violation: illegal state transition,
	// dedup collision on update, persisted-schema violation. Retried once,
	// then alerted.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindSemantic:
		return "semantic"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Classified wraps an error with its Kind, so callers can both retry on it
// (errors.Is/As keeps working through %w) and inspect the category without
// re-deriving it from the error text.
type Classified struct {
	Kind Kind
	Err  error
}

func (c *Classified) Error() string { return c.Err.Error() }
func (c *Classified) Unwrap() error { return c.Err }

// Wrap attaches a Kind to err. A nil err returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Kind: kind, Err: err}
}

// Transient wraps err as a transient (retriable) error.
func Transient(err error) error { return Wrap(KindTransient, err) }

// Permanent wraps err as a permanent (non-retriable) error.
func Permanent(err error) error { return Wrap(KindPermanent, err) }

// Internal wraps err as an internal invariant violation.
func Internal(err error) error { return Wrap(KindInternal, err) }

// ClassOf returns the Kind attached to err via Wrap, defaulting to
// KindTransient for unclassified errors that still look retryable by
// shape (network timeouts, common transient substrings), and
// KindPermanent otherwise.
func ClassOf(err error) Kind {
	if err == nil {
		return KindTransient
	}
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	if looksRetryable(err) {
		return KindTransient
	}
	return KindPermanent
}

// Retryable reports whether an error's class should be retried by the
// Work Queue: transient and internal errors are retried (internal only
// once, enforced by the caller's max-attempts), permanent and semantic
// are not.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case KindTransient, KindInternal:
		return true
	default:
		return false
	}
}

func looksRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout", "timed out", "connection reset", "connection refused",
		"broken pipe", "eof", "temporary failure", "too many requests",
		"rate limit", "service unavailable", "429", "502", "503", "504",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
