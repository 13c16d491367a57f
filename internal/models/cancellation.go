package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CancellationKind selects the cancellation strategy.
type CancellationKind string

const (
	// CancellationClassic replaces a still-pending transaction by reusing
	// its nonce with a higher fee.
	CancellationClassic CancellationKind = "classic"
	// CancellationBatchIntent revokes off-chain-signed orders through a
	// single on-chain call; the orders share no nonce relationship.
	CancellationBatchIntent CancellationKind = "batch_intent"
	// CancellationSpeedUp re-sends the original call at the same nonce
	// with a higher fee instead of voiding it.
	CancellationSpeedUp CancellationKind = "speed_up"
)

// OrderRef references one off-chain-signed order by its EIP-712 hash
// together with the encoded order bytes needed for on-chain revocation.
type OrderRef struct {
	OrderHash    common.Hash
	EncodedOrder []byte
}

// CancellationRequest is the output of the cancellation orchestrator,
// ready for submission through the regular pipeline.
type CancellationRequest struct {
	Kind CancellationKind

	// Classic fields: the nonce of the transaction being replaced and the
	// replacement intent (zero-effect self transfer) with its bumped fee.
	Nonce       uint64
	TargetHash  common.Hash
	Replacement *TransactionIntent

	// BatchIntent fields: the deduplicated orders and the single on-chain
	// call revoking all of them.
	Orders   []OrderRef
	CallTo   common.Address
	CallData []byte

	// GasFee is nil when the simulation query failed; the caller may retry.
	GasFee *GasFeeStrategy

	// GasFeeKnown distinguishes "fee is nil because simulation failed"
	// (recoverable) from a fee that was simply not requested.
	GasFeeKnown bool
}

// MinReplacementFee returns the lowest fee accepted by the network to
// replace a transaction priced at prior: both the fee cap and the tip must
// be bumped by at least 10%, rounded up.
func MinReplacementFee(prior *big.Int) *big.Int {
	if prior == nil {
		return big.NewInt(0)
	}
	bumped := new(big.Int).Mul(prior, big.NewInt(110))
	bumped.Add(bumped, big.NewInt(99))
	return bumped.Div(bumped, big.NewInt(100))
}
