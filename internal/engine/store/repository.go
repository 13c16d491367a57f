// Package store persists transaction records and guards their monotonic
// status transitions.
package store

import (
	"context"

	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/models"
)

// ErrNotFound is returned when no record matches (chainID, txHash).
var ErrNotFound = errors.New("transaction record not found")

// Repository is the transaction record store. Create and Finalize are the
// only mutations; both are atomic on (chainID, txHash).
type Repository interface {
	// Create inserts a new record. Status defaults to pending; an empty ID
	// is assigned. Inserting a duplicate (chainID, txHash) is an error.
	Create(ctx context.Context, record *models.TransactionRecord) error

	// Finalize transitions a pending record to the given terminal status
	// in a single atomic write. It reports false, without error, when the
	// record was already finalized: concurrent finalizers (confirmation
	// watcher vs cancellation) race and exactly one wins.
	Finalize(ctx context.Context, chainID int64, txHash string, status models.TransactionStatus, receipt *models.ReceiptSummary, errorKind string) (bool, error)

	// GetByHash returns the record for (chainID, txHash) or ErrNotFound.
	GetByHash(ctx context.Context, chainID int64, txHash string) (*models.TransactionRecord, error)

	// ListByOwner returns the records created from owner, newest first.
	// chainID 0 means all chains.
	ListByOwner(ctx context.Context, owner string, chainID int64) ([]*models.TransactionRecord, error)
}
