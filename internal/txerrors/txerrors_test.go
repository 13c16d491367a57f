package txerrors_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/txerrors"
)

func TestClassifyProviderStrings(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind txerrors.Kind
	}{
		{"nonce too low", errors.New("nonce too low: next nonce 7, tx nonce 5"), txerrors.KindNonceStale},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), txerrors.KindInsufficientFunds},
		{"replacement underpriced", errors.New("replacement transaction underpriced"), txerrors.KindAlreadyConfirmed},
		{"already known", errors.New("already known"), txerrors.KindAlreadyConfirmed},
		{"execution reverted", errors.New("execution reverted: ERC20: transfer amount exceeds balance"), txerrors.KindSimulationFailed},
		{"connection refused", errors.New("dial tcp 10.0.0.1:8545: connection refused"), txerrors.KindProviderUnavailable},
		{"rate limit", errors.New("429 Too Many Requests: rate limit exceeded"), txerrors.KindProviderUnavailable},
		{"deadline", context.DeadlineExceeded, txerrors.KindProviderUnavailable},
		{"unknown", errors.New("something odd happened"), txerrors.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classified := txerrors.Classify(tc.err)
			require.NotNil(t, classified)
			assert.Equal(t, tc.kind, classified.Kind)
		})
	}
}

func TestClassifyPreservesExistingClassification(t *testing.T) {
	original := txerrors.New(txerrors.KindUserRejected, errors.New("user closed the prompt"))
	wrapped := errors.Wrap(original, "failed to sign")

	classified := txerrors.Classify(wrapped)
	require.NotNil(t, classified)
	assert.Equal(t, txerrors.KindUserRejected, classified.Kind)
}

func TestClassifySentinels(t *testing.T) {
	classified := txerrors.Classify(errors.Wrap(txerrors.ErrNonceStale, "submit"))
	require.NotNil(t, classified)
	assert.Equal(t, txerrors.KindNonceStale, classified.Kind)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, txerrors.Kind(""), txerrors.KindOf(nil))
	assert.Equal(t, txerrors.KindNonceStale, txerrors.KindOf(errors.New("nonce too low")))
	assert.Equal(t, txerrors.KindUnknown, txerrors.KindOf(errors.New("boom")))
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, txerrors.IsRetriable(errors.New("connection refused")))
	assert.False(t, txerrors.IsRetriable(errors.New("nonce too low")))
	assert.False(t, txerrors.IsRetriable(errors.New("insufficient funds")))
	assert.False(t, txerrors.IsRetriable(nil))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := txerrors.New(txerrors.KindSimulationFailed, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "simulation_failed")
	assert.Contains(t, err.Error(), "root cause")
}
