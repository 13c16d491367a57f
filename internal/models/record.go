package models

import (
	"time"
)

// TransactionStatus is the monotonic lifecycle status of a stored record.
// Pending transitions to exactly one of Success, Failed or Cancelled and is
// never reversed.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusSuccess   TransactionStatus = "success"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s TransactionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// TransactionRecord is the persisted read model for a submitted transaction.
// (ChainID, TxHash) is unique; status transitions are guarded by the
// repository's atomic finalize.
type TransactionRecord struct {
	ID          string            `gorm:"primaryKey;type:uuid" json:"id"`
	ChainID     int64             `gorm:"uniqueIndex:idx_chain_tx_hash;not null" json:"chainId"`
	TxHash      string            `gorm:"uniqueIndex:idx_chain_tx_hash;not null" json:"txHash"`
	FromAddress string            `gorm:"index;not null" json:"from"`
	Nonce       uint64            `gorm:"not null" json:"nonce"`
	Status      TransactionStatus `gorm:"not null;default:pending" json:"status"`
	Kind        TxKind            `gorm:"not null" json:"kind"`
	Label       string            `json:"label,omitempty"`

	// Receipt fields, populated on finalization.
	BlockNumber  *int64  `json:"blockNumber,omitempty"`
	GasUsed      *uint64 `json:"gasUsed,omitempty"`
	ErrorKind    string  `json:"errorKind,omitempty"`
	ReplacedHash string  `json:"replacedHash,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	FinalizedAt *time.Time `json:"finalizedAt,omitempty"`
}

// TableName keeps the gorm table name explicit.
func (TransactionRecord) TableName() string {
	return "transaction_records"
}

// ReceiptSummary carries the subset of an on-chain receipt the record keeps.
type ReceiptSummary struct {
	BlockNumber int64
	GasUsed     uint64
	Succeeded   bool
}
