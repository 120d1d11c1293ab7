package receipts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies failures of the receipt flow. Retry decisions and HTTP
// mapping depend only on the Kind, never on the concrete cause.
type Kind string

const (
	KindTransport         Kind = "transport"
	KindRateLimited       Kind = "rate_limited"
	KindMalformedResponse Kind = "malformed_response"
	KindNoItemsExtracted  Kind = "no_items_extracted"
	KindNoItemsMatched    Kind = "no_items_matched"
	KindNoItemsValidated  Kind = "no_items_validated"
	KindStateConflict     Kind = "state_conflict"
	KindProductNotFound   Kind = "product_not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindProviderRejected  Kind = "provider_rejected"
	KindInternal          Kind = "internal"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
	// RetryAfter is a provider hint; zero means use the default backoff.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether another attempt of the same call may succeed.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind == KindTransport || e.Kind == KindRateLimited
}

func NewError(kind Kind, op, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

func Errorf(kind Kind, op, format string, args ...any) *Error {
	return NewError(kind, op, fmt.Sprintf(format, args...), nil)
}

// Wrap tags err with kind unless it already carries one.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(kind, op, "", err)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
