package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PermitValidity is the fixed window a freshly signed permit stays valid.
// Expired permits are rejected by the consuming contract, not by the signer.
const PermitValidity = 20 * time.Minute

// PermitKind selects between the two historical permit message shapes.
type PermitKind string

const (
	// PermitEIP2612 is the standard owner/spender/value/nonce/deadline shape.
	PermitEIP2612 PermitKind = "eip2612"
	// PermitAllowed is the legacy holder/spender/nonce/expiry/allowed shape
	// (DAI-style).
	PermitAllowed PermitKind = "allowed"
)

// Eip2612Permit is the standard EIP-2612 permit message.
type Eip2612Permit struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Nonce    *big.Int
	Deadline *big.Int
}

// AllowedPermit is the legacy "allowed" permit message.
type AllowedPermit struct {
	Holder  common.Address
	Spender common.Address
	Nonce   *big.Int
	Expiry  *big.Int
	Allowed bool
}

// PermitMessage is the tagged union of the two permit shapes. Exactly one of
// the variant pointers is set, matching Kind.
type PermitMessage struct {
	Kind    PermitKind
	EIP2612 *Eip2612Permit
	Allowed *AllowedPermit
}

// SignedPermit carries a permit message together with its split signature.
type SignedPermit struct {
	Message PermitMessage
	V       uint8
	R       common.Hash
	S       common.Hash
}

// TokenPermitConfig declares how a token supports permits. Tokens without a
// config cannot be permitted and fall back to on-chain approvals.
type TokenPermitConfig struct {
	Address common.Address
	Name    string
	// Version is the EIP-712 domain version; empty means the token's domain
	// omits the version field entirely (not that it defaults to "1").
	Version string
	Kind    PermitKind
}
