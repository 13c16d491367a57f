// Package permit produces off-chain EIP-712 permit signatures enabling
// gasless token approvals. Two historical message shapes are supported:
// standard EIP-2612 and the legacy holder/expiry/allowed variant.
package permit

import (
	"context"
	"math/big"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine/keyring"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/txerrors"
)

// noncesSelector is ERC20Permit nonces(address).
var noncesSelector = common.Hex2Bytes("7ecebe00")

const (
	abiWordLength  = 32
	vOffset        = 27
	signatureRSLen = 64
)

// Result is the outcome of a permit request. Skipped means no permit was
// needed (allowance already sufficient, or the token has no permit config);
// the caller falls back to a standard approval transaction in that case.
type Result struct {
	Skipped    bool
	SkipReason string
	Permit     *models.SignedPermit
}

// Service signs permits.
type Service interface {
	// SignPermit signs a permit allowing spender to move requestedAmount
	// of the configured token on owner's behalf. The deadline is fixed at
	// 20 minutes from now; expired permits are rejected by the consuming
	// contract, not here.
	SignPermit(ctx context.Context, client provider.Client, chainID int64, token *models.TokenPermitConfig, owner, spender common.Address, currentAllowance, requestedAmount *big.Int) (*Result, error)
}

type service struct {
	keyring keyring.Service
	cfg     config.Engine
}

// NewService creates the permit signer.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(keys keyring.Service, cfg config.Engine) Service {
	return &service{keyring: keys, cfg: cfg}
}

func (s *service) SignPermit(ctx context.Context, client provider.Client, chainID int64, token *models.TokenPermitConfig, owner, spender common.Address, currentAllowance, requestedAmount *big.Int) (*Result, error) {
	if token == nil {
		return &Result{Skipped: true, SkipReason: "token has no permit configuration"}, nil
	}
	if currentAllowance != nil && requestedAmount != nil && currentAllowance.Cmp(requestedAmount) >= 0 {
		return &Result{Skipped: true, SkipReason: "allowance already covers requested amount"}, nil
	}

	privateKey, err := s.keyring.Key(owner)
	if err != nil {
		return nil, txerrors.New(txerrors.KindUserRejected, err)
	}

	permitNonce, err := s.fetchPermitNonce(ctx, client, token.Address, owner)
	if err != nil {
		return nil, txerrors.Classify(errors.Wrap(err, "failed to fetch permit nonce"))
	}

	deadline := big.NewInt(time.Now().Add(models.PermitValidity).Unix())

	message := buildMessage(token.Kind, owner, spender, requestedAmount, permitNonce, deadline)
	typedData := buildTypedData(token, chainID, message)

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash typed data")
	}

	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		// Signature rejection is terminal, never retried.
		return nil, txerrors.New(txerrors.KindUserRejected, errors.Wrap(err, "typed data signing failed"))
	}

	signed := &models.SignedPermit{
		Message: message,
		V:       signature[signatureRSLen] + vOffset,
		R:       common.BytesToHash(signature[:abiWordLength]),
		S:       common.BytesToHash(signature[abiWordLength:signatureRSLen]),
	}

	return &Result{Permit: signed}, nil
}

// fetchPermitNonce reads nonces(owner) from the token, retrying transient
// provider errors with the standard bounded backoff.
func (s *service) fetchPermitNonce(ctx context.Context, client provider.Client, token, owner common.Address) (*big.Int, error) {
	data := make([]byte, 0, len(noncesSelector)+abiWordLength)
	data = append(data, noncesSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), abiWordLength)...)

	var raw []byte
	err := retry.Do(
		func() error {
			var callErr error
			raw, callErr = client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(s.cfg.SubmitAttempts),
		retry.Delay(s.cfg.SubmitBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(txerrors.IsRetriable),
	)
	if err != nil {
		return nil, err
	}

	if len(raw) != abiWordLength {
		return nil, errors.Errorf("unexpected nonces() response length %d", len(raw))
	}
	return new(big.Int).SetBytes(raw), nil
}

func buildMessage(kind models.PermitKind, owner, spender common.Address, amount, nonce, deadline *big.Int) models.PermitMessage {
	if kind == models.PermitAllowed {
		return models.PermitMessage{
			Kind: models.PermitAllowed,
			Allowed: &models.AllowedPermit{
				Holder:  owner,
				Spender: spender,
				Nonce:   nonce,
				Expiry:  deadline,
				Allowed: true,
			},
		}
	}

	return models.PermitMessage{
		Kind: models.PermitEIP2612,
		EIP2612: &models.Eip2612Permit{
			Owner:    owner,
			Spender:  spender,
			Value:    amount,
			Nonce:    nonce,
			Deadline: deadline,
		},
	}
}
