// Package flags provides read-only feature flag lookups used to gate
// experimental engine paths.
package flags

import (
	"github/lumenwallet/tx-engine/internal/config"
)

// Flag names understood by the engine.
const (
	BundledSigner   = "bundled_signer"
	FeePercentile   = "fee_percentile"
	PermitByDefault = "permit_by_default"
)

// Service exposes boolean and variant flag lookups. Unknown flags resolve to
// false / empty.
type Service interface {
	Bool(name string) bool
	Variant(name string) string
}

type service struct {
	cfg config.FeatureFlags
}

// NewService creates the flag service from static configuration.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(cfg config.FeatureFlags) Service {
	return &service{cfg: cfg}
}

func (s *service) Bool(name string) bool {
	switch name {
	case BundledSigner:
		return s.cfg.BundledSigner
	case PermitByDefault:
		return s.cfg.PermitByDefault
	default:
		return false
	}
}

func (s *service) Variant(name string) string {
	switch name {
	case FeePercentile:
		return s.cfg.FeePercentile
	default:
		return ""
	}
}
