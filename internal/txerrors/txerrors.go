// Package txerrors defines the error taxonomy shared by the transaction
// engine. Raw provider errors are classified once at the boundary and only
// typed errors travel upwards, so callers never branch on provider strings.
package txerrors

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the stable classification exposed to callers and, ultimately, to
// the UI layer.
type Kind string

const (
	KindUserRejected        Kind = "user_rejected"
	KindInsufficientFunds   Kind = "insufficient_funds"
	KindNonceStale          Kind = "nonce_stale"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindSimulationFailed    Kind = "simulation_failed"
	KindAlreadyConfirmed    Kind = "already_confirmed"
	KindUnknown             Kind = "unknown"
)

var (
	ErrUserRejected        = errors.New("user rejected signing request")
	ErrInsufficientFunds   = errors.New("insufficient funds for transaction")
	ErrNonceStale          = errors.New("nonce is stale")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrSimulationFailed    = errors.New("transaction simulation failed")
	ErrAlreadyConfirmed    = errors.New("original transaction already confirmed")
	ErrNothingToCancel     = errors.New("nothing to cancel")
)

// TransactionError wraps a cause with its classified kind. It is the only
// error type the engine returns from its public operations.
type TransactionError struct {
	Kind  Kind
	cause error
}

func (e *TransactionError) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.cause.Error()
}

func (e *TransactionError) Unwrap() error {
	return e.cause
}

// New wraps cause into a TransactionError of the given kind.
func New(kind Kind, cause error) *TransactionError {
	return &TransactionError{Kind: kind, cause: cause}
}

// KindOf returns the classified kind of err, classifying raw errors on the
// fly when no TransactionError is found in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr.Kind
	}
	return Classify(err).Kind
}

// Classify maps a raw provider/signer error onto the taxonomy. The string
// matching mirrors the error surfaces of go-ethereum's txpool and JSON-RPC
// stack; sentinel errors from this package pass through unchanged.
func Classify(err error) *TransactionError {
	if err == nil {
		return nil
	}

	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr
	}

	switch {
	case errors.Is(err, ErrUserRejected):
		return New(KindUserRejected, err)
	case errors.Is(err, ErrInsufficientFunds):
		return New(KindInsufficientFunds, err)
	case errors.Is(err, ErrNonceStale):
		return New(KindNonceStale, err)
	case errors.Is(err, ErrProviderUnavailable):
		return New(KindProviderUnavailable, err)
	case errors.Is(err, ErrSimulationFailed):
		return New(KindSimulationFailed, err)
	case errors.Is(err, ErrAlreadyConfirmed):
		return New(KindAlreadyConfirmed, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "invalid nonce") ||
		strings.Contains(msg, "stale nonce"):
		return New(KindNonceStale, err)
	case strings.Contains(msg, "insufficient funds"):
		return New(KindInsufficientFunds, err)
	case strings.Contains(msg, "replacement transaction underpriced") ||
		strings.Contains(msg, "already known") ||
		strings.Contains(msg, "known transaction"):
		// Replacement lost the race: the original occupies the nonce slot.
		return New(KindAlreadyConfirmed, err)
	case strings.Contains(msg, "execution reverted") ||
		strings.Contains(msg, "gas required exceeds allowance"):
		return New(KindSimulationFailed, err)
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		errors.Is(err, context.DeadlineExceeded):
		return New(KindProviderUnavailable, err)
	case strings.Contains(msg, "user denied") ||
		strings.Contains(msg, "request rejected"):
		return New(KindUserRejected, err)
	}

	return New(KindUnknown, err)
}

// IsRetriable reports whether err is worth another attempt under the bounded
// backoff policy. Only provider availability problems qualify; everything
// else is either terminal or handled by a dedicated recovery path
// (NonceStale gets a single resync, not blind retries).
func IsRetriable(err error) bool {
	return KindOf(err) == KindProviderUnavailable
}
