package gas_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine/flags"
	"github/lumenwallet/tx-engine/internal/engine/gas"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/test/ethmock"
	"github/lumenwallet/tx-engine/internal/txerrors"
)

func testEngineConfig() config.Engine {
	return config.Engine{
		GasLimitMarginPct: 20,
		BaseFeeMultiplier: 2,
		ShadowEstimates:   true,
	}
}

func testIntent() *models.TransactionIntent {
	return &models.TransactionIntent{
		ChainID: 1,
		From:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		To:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Value:   big.NewInt(1),
	}
}

func feeHistoryWith(baseFee int64, rewards ...[3]int64) *ethereum.FeeHistory {
	history := &ethereum.FeeHistory{
		BaseFee: []*big.Int{big.NewInt(baseFee)},
	}
	for _, r := range rewards {
		history.Reward = append(history.Reward, []*big.Int{
			big.NewInt(r[0]), big.NewInt(r[1]), big.NewInt(r[2]),
		})
	}
	return history
}

func TestGetStrategy(t *testing.T) {
	client := &ethmock.Client{
		FeeHistoryFn: func(_ context.Context, _ uint64, _ *big.Int, _ []float64) (*ethereum.FeeHistory, error) {
			return feeHistoryWith(10_000_000_000,
				[3]int64{100, 1_000_000_000, 5_000_000_000},
				[3]int64{200, 2_000_000_000, 6_000_000_000},
			), nil
		},
		EstimateGasFn: func(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
			return 50_000, nil
		},
	}
	s := gas.NewService(testEngineConfig(), flags.NewService(config.FeatureFlags{FeePercentile: "p50"}))

	strategy, err := s.GetStrategy(context.Background(), client, testIntent())
	require.NoError(t, err)

	// Tip is the p50 reward average: (1e9 + 2e9) / 2.
	assert.Equal(t, big.NewInt(1_500_000_000), strategy.MaxPriorityFeePerGas)
	// maxFee = baseFee*2 + tip.
	assert.Equal(t, big.NewInt(21_500_000_000), strategy.MaxFeePerGas)
	// Gas limit carries the 20% margin: 50000 * 1.2.
	assert.Equal(t, uint64(60_000), strategy.GasLimit)
	assert.Equal(t, models.FeeTypeEIP1559, strategy.Type)
	require.NoError(t, strategy.Validate())
}

func TestGetStrategyGasLimitRoundsUp(t *testing.T) {
	client := &ethmock.Client{
		FeeHistoryFn: func(_ context.Context, _ uint64, _ *big.Int, _ []float64) (*ethereum.FeeHistory, error) {
			return feeHistoryWith(1_000_000_000, [3]int64{1, 2, 3}), nil
		},
		EstimateGasFn: func(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
			return 21001, nil
		},
	}
	s := gas.NewService(testEngineConfig(), flags.NewService(config.FeatureFlags{}))

	strategy, err := s.GetStrategy(context.Background(), client, testIntent())
	require.NoError(t, err)

	// 21001 * 1.2 = 25201.2, rounded up.
	assert.Equal(t, uint64(25202), strategy.GasLimit)
}

func TestGetStrategyPercentileFlag(t *testing.T) {
	client := func() *ethmock.Client {
		return &ethmock.Client{
			FeeHistoryFn: func(_ context.Context, _ uint64, _ *big.Int, _ []float64) (*ethereum.FeeHistory, error) {
				return feeHistoryWith(1_000_000_000, [3]int64{100, 200, 300}), nil
			},
		}
	}

	for variant, expectedTip := range map[string]int64{
		"p10": 100,
		"p50": 200,
		"p90": 300,
		"":    200, // default
	} {
		s := gas.NewService(testEngineConfig(), flags.NewService(config.FeatureFlags{FeePercentile: variant}))
		strategy, err := s.GetStrategy(context.Background(), client(), testIntent())
		require.NoError(t, err, variant)
		assert.Equal(t, big.NewInt(expectedTip), strategy.MaxPriorityFeePerGas, variant)
	}
}

func TestGetStrategyFallsBackToSuggestedTip(t *testing.T) {
	client := &ethmock.Client{
		FeeHistoryFn: func(_ context.Context, _ uint64, _ *big.Int, _ []float64) (*ethereum.FeeHistory, error) {
			// Empty blocks: no rewards observed.
			return feeHistoryWith(1_000_000_000, [3]int64{0, 0, 0}), nil
		},
		SuggestGasTipCapFn: func(_ context.Context) (*big.Int, error) {
			return big.NewInt(777), nil
		},
	}
	s := gas.NewService(testEngineConfig(), flags.NewService(config.FeatureFlags{}))

	strategy, err := s.GetStrategy(context.Background(), client, testIntent())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(777), strategy.MaxPriorityFeePerGas)
	assert.Equal(t, 1, client.Calls("SuggestGasTipCap"))
}

func TestGetStrategyShadowEstimates(t *testing.T) {
	client := &ethmock.Client{
		FeeHistoryFn: func(_ context.Context, _ uint64, _ *big.Int, _ []float64) (*ethereum.FeeHistory, error) {
			return feeHistoryWith(10_000_000_000, [3]int64{100, 200, 300}), nil
		},
	}

	cfg := testEngineConfig()
	s := gas.NewService(cfg, flags.NewService(config.FeatureFlags{}))

	strategy, err := s.GetStrategy(context.Background(), client, testIntent())
	require.NoError(t, err)
	require.Len(t, strategy.ShadowEstimates, 3)

	assert.Equal(t, models.EstimateSpeedLow, strategy.ShadowEstimates[0].Speed)
	assert.Equal(t, models.EstimateSpeedNormal, strategy.ShadowEstimates[1].Speed)
	assert.Equal(t, models.EstimateSpeedUrgent, strategy.ShadowEstimates[2].Speed)

	// Faster speeds never price below slower ones.
	assert.True(t, strategy.ShadowEstimates[1].MaxFeePerGas.Cmp(strategy.ShadowEstimates[0].MaxFeePerGas) >= 0)
	assert.True(t, strategy.ShadowEstimates[2].MaxFeePerGas.Cmp(strategy.ShadowEstimates[1].MaxFeePerGas) >= 0)
	assert.False(t, strategy.ShadowEstimates[0].DisplayGwei.IsNegative())

	cfg.ShadowEstimates = false
	s = gas.NewService(cfg, flags.NewService(config.FeatureFlags{}))
	strategy, err = s.GetStrategy(context.Background(), client, testIntent())
	require.NoError(t, err)
	assert.Empty(t, strategy.ShadowEstimates)
}

func TestGetStrategySimulationFailure(t *testing.T) {
	client := &ethmock.Client{
		FeeHistoryFn: func(_ context.Context, _ uint64, _ *big.Int, _ []float64) (*ethereum.FeeHistory, error) {
			return feeHistoryWith(1_000_000_000, [3]int64{1, 2, 3}), nil
		},
		EstimateGasFn: func(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
			return 0, assert.AnError
		},
	}
	s := gas.NewService(testEngineConfig(), flags.NewService(config.FeatureFlags{}))

	_, err := s.GetStrategy(context.Background(), client, testIntent())
	require.Error(t, err)
	assert.Equal(t, txerrors.KindSimulationFailed, txerrors.KindOf(err))
}

func TestGetStrategyNoBaseFee(t *testing.T) {
	client := &ethmock.Client{
		FeeHistoryFn: func(_ context.Context, _ uint64, _ *big.Int, _ []float64) (*ethereum.FeeHistory, error) {
			return &ethereum.FeeHistory{}, nil
		},
	}
	s := gas.NewService(testEngineConfig(), flags.NewService(config.FeatureFlags{}))

	_, err := s.GetStrategy(context.Background(), client, testIntent())
	require.Error(t, err)
}
