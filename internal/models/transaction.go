// Package models holds the domain types shared across the transaction
// engine packages.
package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TxKind discriminates the intent for downstream rendering and analytics.
// It is resolved once at intent construction time and carried through the
// pipeline unchanged.
type TxKind string

const (
	TxKindSend         TxKind = "send"
	TxKindSwap         TxKind = "swap"
	TxKindApprove      TxKind = "approve"
	TxKindContractCall TxKind = "contract_call"
	TxKindCancellation TxKind = "cancellation"
	TxKindSpeedUp      TxKind = "speed_up"
)

// TypeInfo describes what a transaction is for, independent of its on-chain
// shape.
type TypeInfo struct {
	Kind  TxKind `json:"kind"`
	Label string `json:"label,omitempty"`
}

// TransactionIntent is the immutable description of what the caller wants to
// execute. Nonce is normally left nil and allocated by the engine; a caller
// supplies it only for replacement transactions.
type TransactionIntent struct {
	ChainID  int64
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	Nonce    *uint64
	TypeInfo TypeInfo
}

// FeeType selects between the legacy single gas price and EIP-1559 fee
// fields.
type FeeType string

const (
	FeeTypeLegacy  FeeType = "legacy"
	FeeTypeEIP1559 FeeType = "eip1559"
)

// EstimateSpeed labels a shadow estimate for display purposes.
type EstimateSpeed string

const (
	EstimateSpeedUrgent EstimateSpeed = "urgent"
	EstimateSpeedNormal EstimateSpeed = "normal"
	EstimateSpeedLow    EstimateSpeed = "low"
)

// GasEstimate is a display-only alternate fee calculation. It is never used
// for signing.
type GasEstimate struct {
	Speed                EstimateSpeed
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	DisplayGwei          decimal.Decimal
}

// GasFeeStrategy is the fee configuration a transaction is actually signed
// with. Computed fresh per submission attempt, never mutated after signing.
type GasFeeStrategy struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasLimit             uint64
	Type                 FeeType
	ShadowEstimates      []GasEstimate
}

// Validate enforces the fee invariants: non-negative values and
// maxFeePerGas >= maxPriorityFeePerGas.
func (s *GasFeeStrategy) Validate() error {
	if s.MaxFeePerGas == nil || s.MaxPriorityFeePerGas == nil {
		return errors.New("fee fields must be set")
	}
	if s.MaxFeePerGas.Sign() < 0 || s.MaxPriorityFeePerGas.Sign() < 0 {
		return errors.New("fee values must be non-negative")
	}
	if s.MaxFeePerGas.Cmp(s.MaxPriorityFeePerGas) < 0 {
		return errors.New("maxFeePerGas must be >= maxPriorityFeePerGas")
	}
	if s.GasLimit == 0 {
		return errors.New("gas limit must be positive")
	}
	return nil
}

// SignedTransaction is the product of a single signing pass. Signing is not
// idempotent: signing the same intent again with a fresh nonce yields a
// different, independent transaction.
type SignedTransaction struct {
	RawBytes []byte
	Hash     common.Hash
	ChainID  int64
	Nonce    uint64
}

// DelegationInfo reports whether an account has delegated execution
// authority to a smart-contract wallet on a given chain. It is recomputed
// per signing attempt, never cached across chain-state changes.
type DelegationInfo struct {
	IsDelegated     bool
	DelegateAddress *common.Address
}
