package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github/lumenwallet/tx-engine/internal/models"
)

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository opens a Postgres-backed repository and migrates the
// record table.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewGormRepository(dsn string) (Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.AutoMigrate(&models.TransactionRecord{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate transaction records")
	}

	return &gormRepository{db: db}, nil
}

func (r *gormRepository) Create(ctx context.Context, record *models.TransactionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.StatusPending
	}
	record.TxHash = strings.ToLower(record.TxHash)
	record.FromAddress = strings.ToLower(record.FromAddress)

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(err, "failed to insert transaction record")
	}
	return nil
}

func (r *gormRepository) Finalize(ctx context.Context, chainID int64, txHash string, status models.TransactionStatus, receipt *models.ReceiptSummary, errorKind string) (bool, error) {
	if !status.Terminal() {
		return false, errors.Errorf("status %q is not terminal", status)
	}

	now := time.Now()
	updates := map[string]any{
		"status":       status,
		"finalized_at": &now,
		"error_kind":   errorKind,
	}
	if receipt != nil {
		updates["block_number"] = &receipt.BlockNumber
		updates["gas_used"] = &receipt.GasUsed
	}

	// The status guard makes the pending -> terminal transition a single
	// compare-and-set; a concurrent finalizer simply affects zero rows.
	res := r.db.WithContext(ctx).
		Model(&models.TransactionRecord{}).
		Where("chain_id = ? AND tx_hash = ? AND status = ?", chainID, strings.ToLower(txHash), models.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to finalize transaction record")
	}

	return res.RowsAffected > 0, nil
}

func (r *gormRepository) GetByHash(ctx context.Context, chainID int64, txHash string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND tx_hash = ?", chainID, strings.ToLower(txHash)).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get transaction record")
	}
	return &record, nil
}

func (r *gormRepository) ListByOwner(ctx context.Context, owner string, chainID int64) ([]*models.TransactionRecord, error) {
	query := r.db.WithContext(ctx).
		Where("from_address = ?", strings.ToLower(owner)).
		Order("created_at DESC")
	if chainID != 0 {
		query = query.Where("chain_id = ?", chainID)
	}

	var records []*models.TransactionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list transaction records")
	}
	return records, nil
}
