// Package test provides server fixtures and request helpers for API tests.
package test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/api"
	"github/lumenwallet/tx-engine/internal/api/handlers"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine"
	"github/lumenwallet/tx-engine/internal/engine/analytics"
	"github/lumenwallet/tx-engine/internal/engine/cancel"
	"github/lumenwallet/tx-engine/internal/engine/delegation"
	"github/lumenwallet/tx-engine/internal/engine/flags"
	"github/lumenwallet/tx-engine/internal/engine/gas"
	"github/lumenwallet/tx-engine/internal/engine/keyring"
	"github/lumenwallet/tx-engine/internal/engine/nonce"
	"github/lumenwallet/tx-engine/internal/engine/permit"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/engine/signer"
	"github/lumenwallet/tx-engine/internal/engine/store"
	"github/lumenwallet/tx-engine/internal/metrics"
	"github/lumenwallet/tx-engine/internal/test/ethmock"
)

// Mnemonic is the BIP39 test vector mnemonic every fixture derives keys from.
const Mnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type clientProviders struct {
	client *ethmock.Client
}

//nolint:ireturn
func (p *clientProviders) GetClient(_ context.Context, _ int64) (provider.Client, error) {
	return p.client, nil
}

func (p *clientProviders) Close() {}

// NewTestClient returns an RPC fake with a healthy fee market.
func NewTestClient() *ethmock.Client {
	return &ethmock.Client{
		FeeHistoryFn: func(_ context.Context, _ uint64, _ *big.Int, _ []float64) (*ethereum.FeeHistory, error) {
			return &ethereum.FeeHistory{
				BaseFee: []*big.Int{big.NewInt(10_000_000_000)},
				Reward: [][]*big.Int{
					{big.NewInt(100), big.NewInt(1_000_000_000), big.NewInt(5_000_000_000)},
				},
			}, nil
		},
	}
}

// WithTestServer runs closure with a fully wired server backed by the given
// RPC fake and the in-memory record store.
func WithTestServer(t *testing.T, client *ethmock.Client, closure func(s *api.Server)) {
	t.Helper()

	cfg := config.Server{
		Echo: config.Echo{ListenAddress: ":0"},
		Engine: config.Engine{
			SubmitAttempts:     3,
			SubmitBackoff:      time.Millisecond,
			ConfirmPollEvery:   5 * time.Millisecond,
			ConfirmTimeout:     2 * time.Second,
			GasLimitMarginPct:  20,
			BaseFeeMultiplier:  2,
			AnalyticsQueueSize: 64,
		},
		Flags: config.FeatureFlags{FeePercentile: "p50"},
	}

	keys, err := keyring.NewFromMnemonic(Mnemonic, 1)
	require.NoError(t, err)

	providers := &clientProviders{client: client}
	flagService := flags.NewService(cfg.Flags)
	detector := delegation.NewDetector(providers)
	nonces := nonce.NewManager()
	metricsService := metrics.New()
	events := analytics.NewService(cfg.Engine.AnalyticsQueueSize, metricsService)

	eng := engine.NewService(
		cfg,
		providers,
		gas.NewService(cfg.Engine, flagService),
		signer.NewDirectService(keys, nonces, cfg.Engine),
		signer.NewBundledService(keys, nonces, cfg.Engine, detector, nil),
		flagService,
		nonces,
		store.NewMemoryRepository(),
		cancel.NewOrchestrator(),
		events,
		metricsService,
	)
	defer eng.Close()

	s := api.NewServer(cfg, eng, permit.NewService(keys, cfg.Engine), providers, metricsService)
	handlers.AttachAllRoutes(s)

	closure(s)
}
