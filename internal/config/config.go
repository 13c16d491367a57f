// Package config provides the env-driven service configuration.
package config

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ModuleName is the canonical name of this service.
const ModuleName = "tx-engine"

// Chain describes one supported network.
type Chain struct {
	ChainID int64 `mapstructure:"chain_id"`
	// RPCURLs is comma separated; the provider fails over between them.
	RPCURLs string `mapstructure:"rpc_urls"`
	// Confirmations is the block depth required before a record finalizes.
	Confirmations uint64 `mapstructure:"confirmations"`
}

// Engine holds orchestrator tunables.
type Engine struct {
	SubmitAttempts     uint          `mapstructure:"submit_attempts"`
	SubmitBackoff      time.Duration `mapstructure:"submit_backoff"`
	RPCTimeout         time.Duration `mapstructure:"rpc_timeout"`
	ConfirmPollEvery   time.Duration `mapstructure:"confirm_poll_every"`
	ConfirmTimeout     time.Duration `mapstructure:"confirm_timeout"`
	GasLimitMarginPct  uint64        `mapstructure:"gas_limit_margin_pct"`
	BaseFeeMultiplier  int64         `mapstructure:"base_fee_multiplier"`
	ShadowEstimates    bool          `mapstructure:"shadow_estimates"`
	AnalyticsQueueSize int           `mapstructure:"analytics_queue_size"`
}

// Database holds the Postgres connection settings for the record store. An
// empty DSN selects the in-memory store (dev and tests).
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Kafka holds the analytics sink settings. Empty brokers disable the sink
// and analytics events go to the log only.
type Kafka struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// Keyring holds the signing key material source.
type Keyring struct {
	Mnemonic string `mapstructure:"mnemonic"`
	Accounts int    `mapstructure:"accounts"`
}

// Echo holds HTTP server settings.
type Echo struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// Logger holds logging settings.
type Logger struct {
	Level              string `mapstructure:"level"`
	PrettyPrintConsole bool   `mapstructure:"pretty_print_console"`
}

// FeatureFlags gates experimental paths.
type FeatureFlags struct {
	BundledSigner   bool   `mapstructure:"bundled_signer"`
	FeePercentile   string `mapstructure:"fee_percentile"`
	PermitByDefault bool   `mapstructure:"permit_by_default"`
}

// Server is the root configuration object.
type Server struct {
	Logger   Logger       `mapstructure:"logger"`
	Echo     Echo         `mapstructure:"echo"`
	Database Database     `mapstructure:"database"`
	Kafka    Kafka        `mapstructure:"kafka"`
	Keyring  Keyring      `mapstructure:"keyring"`
	Engine   Engine       `mapstructure:"engine"`
	Flags    FeatureFlags `mapstructure:"flags"`
	Chains   []Chain      `mapstructure:"chains"`
}

// ChainByID returns the chain config for chainID, or false when unknown.
func (s *Server) ChainByID(chainID int64) (Chain, bool) {
	for _, c := range s.Chains {
		if c.ChainID == chainID {
			return c, true
		}
	}
	return Chain{}, false
}

// LogLevel parses the configured level, defaulting to info.
func (l Logger) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(l.Level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

var (
	configOnce   sync.Once
	serverConfig Server
)

// DefaultServiceConfigFromEnv returns the server config, populated from
// TXENGINE_* environment variables with sane defaults. The config is parsed
// once per process.
func DefaultServiceConfigFromEnv() Server {
	configOnce.Do(func() {
		v := viper.New()
		v.SetEnvPrefix("TXENGINE")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		v.SetDefault("logger.level", "info")
		v.SetDefault("logger.pretty_print_console", false)
		v.SetDefault("echo.listen_address", ":8080")
		v.SetDefault("database.dsn", "")
		v.SetDefault("kafka.brokers", "")
		v.SetDefault("kafka.topic", "wallet.tx.lifecycle")
		v.SetDefault("keyring.accounts", 4)
		v.SetDefault("engine.submit_attempts", 3)
		v.SetDefault("engine.submit_backoff", 500*time.Millisecond)
		v.SetDefault("engine.rpc_timeout", 15*time.Second)
		v.SetDefault("engine.confirm_poll_every", 4*time.Second)
		v.SetDefault("engine.confirm_timeout", 30*time.Minute)
		v.SetDefault("engine.gas_limit_margin_pct", 20)
		v.SetDefault("engine.base_fee_multiplier", 2)
		v.SetDefault("engine.shadow_estimates", true)
		v.SetDefault("engine.analytics_queue_size", 256)
		v.SetDefault("flags.bundled_signer", true)
		v.SetDefault("flags.fee_percentile", "p50")
		v.SetDefault("flags.permit_by_default", true)

		if err := v.Unmarshal(&serverConfig); err != nil {
			panic(err)
		}
	})

	return serverConfig
}
