// Package cancel builds cancellation requests: nonce-replacement for
// ordinary pending transactions and batched on-chain revocation for
// off-chain-signed orders.
package cancel

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/txerrors"
	"github/lumenwallet/tx-engine/internal/util"
)

// orderRegistryABIJSON is the reactor's batched revocation entrypoint; one
// call invalidates every referenced order.
const orderRegistryABIJSON = `[{"type":"function","name":"cancelOrders","inputs":[{"name":"orderHashes","type":"bytes32[]"}],"outputs":[]}]`

var orderRegistryABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(orderRegistryABIJSON))
	if err != nil {
		panic(err)
	}
	orderRegistryABI = parsed
}

// Orchestrator decides the cancellation strategy and produces the request.
type Orchestrator interface {
	// BuildClassic builds a same-nonce, zero-effect replacement for a
	// still-pending transaction. The replacement fee is strictly greater
	// than the original's, respecting the network's minimum bump. When the
	// original already confirmed, ErrAlreadyConfirmed is returned wrapped
	// in its benign kind; callers normalize it to a non-error outcome.
	BuildClassic(ctx context.Context, client provider.Client, record *models.TransactionRecord) (*models.CancellationRequest, error)

	// BuildSpeedUp builds a same-nonce replacement that re-sends the
	// original call with a fee bumped past the network's minimum, so the
	// transaction lands sooner instead of being voided. The original must
	// still be in the pool; a dropped transaction has no payload left to
	// re-send.
	BuildSpeedUp(ctx context.Context, client provider.Client, record *models.TransactionRecord) (*models.CancellationRequest, error)

	// BuildBatch deduplicates the given off-chain orders by identity,
	// filters out malformed ones, and builds a single on-chain call
	// revoking all of them. The gas fee comes from a simulation query; on
	// simulation failure the request is still returned with an unknown
	// fee so the caller may retry. Zero valid orders yields
	// txerrors.ErrNothingToCancel.
	BuildBatch(ctx context.Context, client provider.Client, registry common.Address, from common.Address, orders []models.OrderRef) (*models.CancellationRequest, error)
}

type orchestrator struct{}

// NewOrchestrator creates the cancellation orchestrator.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewOrchestrator() Orchestrator {
	return &orchestrator{}
}

func (o *orchestrator) BuildClassic(ctx context.Context, client provider.Client, record *models.TransactionRecord) (*models.CancellationRequest, error) {
	if record.Status != models.StatusPending {
		return nil, txerrors.New(txerrors.KindAlreadyConfirmed,
			errors.Errorf("transaction %s is already %s", record.TxHash, record.Status))
	}

	targetHash := common.HexToHash(record.TxHash)
	originalTx, pending, err := client.TransactionByHash(ctx, targetHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// Dropped from the pool; the same-nonce replacement still
			// works, priced from scratch by the engine's fee strategy.
			originalTx = nil
		} else {
			return nil, txerrors.Classify(errors.Wrap(err, "failed to fetch original transaction"))
		}
	}
	if originalTx != nil && !pending {
		return nil, txerrors.New(txerrors.KindAlreadyConfirmed,
			errors.Errorf("transaction %s is already mined", record.TxHash))
	}

	from := common.HexToAddress(record.FromAddress)
	nonce := record.Nonce

	request := &models.CancellationRequest{
		Kind:       models.CancellationClassic,
		Nonce:      nonce,
		TargetHash: targetHash,
		Replacement: &models.TransactionIntent{
			ChainID: record.ChainID,
			From:    from,
			To:      from,
			Value:   new(big.Int),
			Nonce:   &nonce,
			TypeInfo: models.TypeInfo{
				Kind:  models.TxKindCancellation,
				Label: "Cancel " + string(record.Kind),
			},
		},
	}

	if originalTx != nil {
		request.GasFee = replacementFee(originalTx.GasFeeCap(), originalTx.GasTipCap())
		request.GasFeeKnown = true
	}

	return request, nil
}

func (o *orchestrator) BuildSpeedUp(ctx context.Context, client provider.Client, record *models.TransactionRecord) (*models.CancellationRequest, error) {
	if record.Status != models.StatusPending {
		return nil, txerrors.New(txerrors.KindAlreadyConfirmed,
			errors.Errorf("transaction %s is already %s", record.TxHash, record.Status))
	}

	targetHash := common.HexToHash(record.TxHash)
	originalTx, pending, err := client.TransactionByHash(ctx, targetHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, errors.Errorf("transaction %s was dropped from the pool and cannot be sped up", record.TxHash)
		}
		return nil, txerrors.Classify(errors.Wrap(err, "failed to fetch original transaction"))
	}
	if !pending {
		return nil, txerrors.New(txerrors.KindAlreadyConfirmed,
			errors.Errorf("transaction %s is already mined", record.TxHash))
	}
	if originalTx.To() == nil {
		return nil, errors.Errorf("transaction %s is a contract creation and cannot be sped up", record.TxHash)
	}

	nonce := record.Nonce
	fee := replacementFee(originalTx.GasFeeCap(), originalTx.GasTipCap())
	fee.GasLimit = originalTx.Gas()

	return &models.CancellationRequest{
		Kind:       models.CancellationSpeedUp,
		Nonce:      nonce,
		TargetHash: targetHash,
		Replacement: &models.TransactionIntent{
			ChainID: record.ChainID,
			From:    common.HexToAddress(record.FromAddress),
			To:      *originalTx.To(),
			Data:    originalTx.Data(),
			Value:   originalTx.Value(),
			Nonce:   &nonce,
			TypeInfo: models.TypeInfo{
				Kind:  models.TxKindSpeedUp,
				Label: "Speed up " + string(record.Kind),
			},
		},
		GasFee:      fee,
		GasFeeKnown: true,
	}, nil
}

// replacementFee bumps both fee fields past the network's replacement
// minimum.
func replacementFee(feeCap, tipCap *big.Int) *models.GasFeeStrategy {
	const selfTransferGas = 21000

	bumpedFee := models.MinReplacementFee(feeCap)
	bumpedTip := models.MinReplacementFee(tipCap)
	if bumpedFee.Cmp(bumpedTip) < 0 {
		bumpedFee = new(big.Int).Set(bumpedTip)
	}

	return &models.GasFeeStrategy{
		MaxFeePerGas:         bumpedFee,
		MaxPriorityFeePerGas: bumpedTip,
		GasLimit:             selfTransferGas,
		Type:                 models.FeeTypeEIP1559,
	}
}

func (o *orchestrator) BuildBatch(ctx context.Context, client provider.Client, registry common.Address, from common.Address, orders []models.OrderRef) (*models.CancellationRequest, error) {
	log := util.LogFromContext(ctx)

	seen := make(map[common.Hash]struct{}, len(orders))
	valid := make([]models.OrderRef, 0, len(orders))
	for _, order := range orders {
		if order.OrderHash == (common.Hash{}) || len(order.EncodedOrder) == 0 {
			// Malformed orders are filtered, never fail the whole batch.
			log.Warn().Str("order_hash", order.OrderHash.Hex()).Msg("Skipping malformed order reference")
			continue
		}
		if _, dup := seen[order.OrderHash]; dup {
			continue
		}
		seen[order.OrderHash] = struct{}{}
		valid = append(valid, order)
	}

	if len(valid) == 0 {
		return nil, txerrors.ErrNothingToCancel
	}

	hashes := make([][32]byte, 0, len(valid))
	for _, order := range valid {
		hashes = append(hashes, order.OrderHash)
	}

	callData, err := orderRegistryABI.Pack("cancelOrders", hashes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode order cancellation call")
	}

	request := &models.CancellationRequest{
		Kind:     models.CancellationBatchIntent,
		Orders:   valid,
		CallTo:   registry,
		CallData: callData,
	}

	// Gas for the batched revocation comes from simulation, not a local
	// estimate; a failed simulation leaves the fee unknown and the caller
	// may retry.
	registryAddr := registry
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &registryAddr,
		Data: callData,
	})
	if err != nil {
		log.Warn().Err(err).Int("orders", len(valid)).Msg("Batch cancellation gas simulation failed")
		request.GasFeeKnown = false
		return request, nil
	}

	// Only the simulated gas limit is pinned here; the engine prices the
	// fee fields through the regular strategy when it submits the call.
	request.GasFeeKnown = true
	request.GasFee = &models.GasFeeStrategy{GasLimit: gasLimit, Type: models.FeeTypeEIP1559}

	return request, nil
}
