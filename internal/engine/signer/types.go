package signer

import (
	"context"

	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/models"
)

// Service signs a transaction intent under a fee strategy. Two variants
// exist with the same contract: the direct signer uses the account's own key
// and the bundled signer additionally routes through a delegated
// smart-account when one is present.
type Service interface {
	// Sign allocates a nonce, builds and signs the transaction. Signing is
	// not idempotent: each call against the same intent produces a fresh,
	// independent transaction.
	Sign(ctx context.Context, client provider.Client, intent *models.TransactionIntent, strategy *models.GasFeeStrategy) (*models.SignedTransaction, error)
}
