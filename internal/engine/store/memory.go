package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/models"
)

type memoryKey struct {
	chainID int64
	txHash  string
}

// memoryRepository is the in-memory Repository used in dev mode and tests.
type memoryRepository struct {
	mu      sync.Mutex
	records map[memoryKey]*models.TransactionRecord
}

// NewMemoryRepository creates an empty in-memory repository.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[memoryKey]*models.TransactionRecord)}
}

func (r *memoryRepository) Create(_ context.Context, record *models.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.StatusPending
	}
	record.TxHash = strings.ToLower(record.TxHash)
	record.FromAddress = strings.ToLower(record.FromAddress)
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt

	k := memoryKey{chainID: record.ChainID, txHash: record.TxHash}
	if _, exists := r.records[k]; exists {
		return errors.Errorf("duplicate transaction record for chain_id=%d hash=%s", record.ChainID, record.TxHash)
	}

	stored := *record
	r.records[k] = &stored
	return nil
}

func (r *memoryRepository) Finalize(_ context.Context, chainID int64, txHash string, status models.TransactionStatus, receipt *models.ReceiptSummary, errorKind string) (bool, error) {
	if !status.Terminal() {
		return false, errors.Errorf("status %q is not terminal", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[memoryKey{chainID: chainID, txHash: strings.ToLower(txHash)}]
	if !exists {
		return false, ErrNotFound
	}
	if record.Status != models.StatusPending {
		return false, nil
	}

	now := time.Now()
	record.Status = status
	record.ErrorKind = errorKind
	record.FinalizedAt = &now
	record.UpdatedAt = now
	if receipt != nil {
		blockNumber := receipt.BlockNumber
		gasUsed := receipt.GasUsed
		record.BlockNumber = &blockNumber
		record.GasUsed = &gasUsed
	}

	return true, nil
}

func (r *memoryRepository) GetByHash(_ context.Context, chainID int64, txHash string) (*models.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[memoryKey{chainID: chainID, txHash: strings.ToLower(txHash)}]
	if !exists {
		return nil, ErrNotFound
	}

	out := *record
	return &out, nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, owner string, chainID int64) ([]*models.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner = strings.ToLower(owner)
	out := make([]*models.TransactionRecord, 0)
	for _, record := range r.records {
		if record.FromAddress != owner {
			continue
		}
		if chainID != 0 && record.ChainID != chainID {
			continue
		}
		cloned := *record
		out = append(out, &cloned)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
