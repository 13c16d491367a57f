// Package gas computes the EIP-1559 fee strategy a transaction is signed
// with, plus display-only shadow estimates.
package gas

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine/flags"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/txerrors"
)

const (
	feeHistoryBlocks = 5
	percentCap       = 100
	gweiDecimals     = -9
)

// rewardPercentiles requested from eth_feeHistory: low, normal, urgent.
var rewardPercentiles = []float64{10, 50, 90}

// Service computes gas fee strategies.
type Service interface {
	// GetStrategy returns the fee strategy for the given intent: an
	// EIP-1559 fee derived from recent fee history, a gas limit with a
	// safety margin over the simulation estimate, and shadow estimates for
	// display. All numeric rounding is upward.
	GetStrategy(ctx context.Context, client provider.Client, intent *models.TransactionIntent) (*models.GasFeeStrategy, error)
}

type service struct {
	cfg   config.Engine
	flags flags.Service
}

// NewService creates the gas config service.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(cfg config.Engine, flagService flags.Service) Service {
	return &service{cfg: cfg, flags: flagService}
}

func (s *service) GetStrategy(ctx context.Context, client provider.Client, intent *models.TransactionIntent) (*models.GasFeeStrategy, error) {
	var (
		wg         sync.WaitGroup
		history    *ethereum.FeeHistory
		historyErr error
		gasLimit   uint64
		gasErr     error
	)

	// Fee history and the simulation estimate are independent RPC calls;
	// run them concurrently.
	wg.Add(2)
	go func() {
		defer wg.Done()
		history, historyErr = client.FeeHistory(ctx, feeHistoryBlocks, nil, rewardPercentiles)
	}()
	go func() {
		defer wg.Done()
		gasLimit, gasErr = s.estimateGasLimit(ctx, client, intent)
	}()
	wg.Wait()

	if historyErr != nil {
		return nil, txerrors.Classify(errors.Wrap(historyErr, "failed to get fee history"))
	}
	if gasErr != nil {
		return nil, gasErr
	}

	baseFee := latestBaseFee(history)
	if baseFee == nil {
		return nil, errors.New("chain does not support EIP-1559 (no base fee in history)")
	}

	tip := s.pickTip(history)
	if tip.Sign() <= 0 {
		suggested, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, txerrors.Classify(errors.Wrap(err, "failed to suggest gas tip cap"))
		}
		tip = suggested
	}

	// maxFee = baseFee * multiplier + tip. The multiplier absorbs base fee
	// growth between estimation and inclusion.
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(s.cfg.BaseFeeMultiplier))
	maxFee.Add(maxFee, tip)

	strategy := &models.GasFeeStrategy{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
		GasLimit:             gasLimit,
		Type:                 models.FeeTypeEIP1559,
	}

	if s.cfg.ShadowEstimates {
		strategy.ShadowEstimates = shadowEstimates(history, baseFee, s.cfg.BaseFeeMultiplier)
	}

	if err := strategy.Validate(); err != nil {
		return nil, errors.Wrap(err, "computed fee strategy is invalid")
	}

	return strategy, nil
}

// estimateGasLimit simulates the call and adds the configured safety margin,
// rounding up.
func (s *service) estimateGasLimit(ctx context.Context, client provider.Client, intent *models.TransactionIntent) (uint64, error) {
	to := intent.To
	msg := ethereum.CallMsg{
		From:  intent.From,
		To:    &to,
		Value: intent.Value,
		Data:  intent.Data,
	}

	estimate, err := client.EstimateGas(ctx, msg)
	if err != nil {
		classified := txerrors.Classify(err)
		if classified.Kind == txerrors.KindProviderUnavailable {
			return 0, classified
		}
		return 0, txerrors.New(txerrors.KindSimulationFailed, errors.Wrap(err, "gas estimation failed"))
	}

	margin := s.cfg.GasLimitMarginPct
	withMargin := estimate * (percentCap + margin)
	return (withMargin + percentCap - 1) / percentCap, nil
}

// pickTip selects the reward percentile matching the fee_percentile flag
// variant and averages it over the sampled blocks, rounding up.
func (s *service) pickTip(history *ethereum.FeeHistory) *big.Int {
	idx := 1 // p50
	switch s.flags.Variant(flags.FeePercentile) {
	case "p10":
		idx = 0
	case "p90":
		idx = 2
	}
	return averageReward(history, idx)
}

func averageReward(history *ethereum.FeeHistory, idx int) *big.Int {
	sum := new(big.Int)
	count := int64(0)
	for _, rewards := range history.Reward {
		if idx < len(rewards) && rewards[idx] != nil {
			sum.Add(sum, rewards[idx])
			count++
		}
	}
	if count == 0 {
		return big.NewInt(0)
	}
	// Round up so we never undershoot the observed percentile.
	sum.Add(sum, big.NewInt(count-1))
	return sum.Div(sum, big.NewInt(count))
}

func latestBaseFee(history *ethereum.FeeHistory) *big.Int {
	if len(history.BaseFee) == 0 {
		return nil
	}
	baseFee := history.BaseFee[len(history.BaseFee)-1]
	if baseFee == nil || baseFee.Sign() == 0 {
		return nil
	}
	return baseFee
}

// shadowEstimates derives the urgent/normal/low display estimates from the
// same fee history sample. They are never used for signing.
func shadowEstimates(history *ethereum.FeeHistory, baseFee *big.Int, multiplier int64) []models.GasEstimate {
	speeds := []models.EstimateSpeed{
		models.EstimateSpeedLow,
		models.EstimateSpeedNormal,
		models.EstimateSpeedUrgent,
	}

	estimates := make([]models.GasEstimate, 0, len(speeds))
	for i, speed := range speeds {
		tip := averageReward(history, i)
		maxFee := new(big.Int).Mul(baseFee, big.NewInt(multiplier))
		maxFee.Add(maxFee, tip)

		estimates = append(estimates, models.GasEstimate{
			Speed:                speed,
			MaxFeePerGas:         maxFee,
			MaxPriorityFeePerGas: tip,
			DisplayGwei:          decimal.NewFromBigInt(maxFee, gweiDecimals),
		})
	}

	return estimates
}
