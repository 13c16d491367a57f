// Package server implements the server subcommand: full service wiring and
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

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
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Starts the server",
		Long: `Starts the stateless RESTful JSON server

Requires configuration through ENV.`,
		Run: func(_ *cobra.Command, _ []string) {
			runServer()
		},
	}
}

func runServer() {
	cfg := config.DefaultServiceConfigFromEnv()

	zerolog.SetGlobalLevel(cfg.Logger.LogLevel())
	if cfg.Logger.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.NewConsoleWriter())
	}

	s, err := initServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Warn().Msg("Shutting down server")

	ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelFn()

	if err := s.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to gracefully shut down server")
	}

	s.Engine.Close()
	s.Providers.Close()
}

func initServer(cfg config.Server) (*api.Server, error) {
	metricsService := metrics.New()
	providers := provider.NewService(cfg)
	flagService := flags.NewService(cfg.Flags)
	detector := delegation.NewDetector(providers)

	keys, err := keyring.NewFromMnemonic(cfg.Keyring.Mnemonic, cfg.Keyring.Accounts)
	if err != nil {
		return nil, err
	}

	nonces := nonce.NewManager()
	directSigner := signer.NewDirectService(keys, nonces, cfg.Engine)
	bundledSigner := signer.NewBundledService(keys, nonces, cfg.Engine, detector, nil)

	var repo store.Repository
	if cfg.Database.DSN != "" {
		repo, err = store.NewGormRepository(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("No database DSN configured, using in-memory record store")
		repo = store.NewMemoryRepository()
	}

	var sinks []analytics.Sink
	if cfg.Kafka.Brokers != "" {
		sinks = append(sinks, analytics.NewKafkaSink(cfg.Kafka))
	}
	events := analytics.NewService(cfg.Engine.AnalyticsQueueSize, metricsService, sinks...)

	eng := engine.NewService(
		cfg,
		providers,
		gas.NewService(cfg.Engine, flagService),
		directSigner,
		bundledSigner,
		flagService,
		nonces,
		repo,
		cancel.NewOrchestrator(),
		events,
		metricsService,
	)

	permitService := permit.NewService(keys, cfg.Engine)

	s := api.NewServer(cfg, eng, permitService, providers, metricsService)
	handlers.AttachAllRoutes(s)

	return s, nil
}
