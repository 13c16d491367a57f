package signer

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine/delegation"
	"github/lumenwallet/tx-engine/internal/engine/keyring"
	"github/lumenwallet/tx-engine/internal/engine/nonce"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/util"
)

// delegateABI is the batched execution entrypoint understood by the
// delegate contract. Field names and order are part of the deployed
// contract's ABI and must not change.
const delegateABIJSON = `[{"type":"function","name":"execute","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}]}],"outputs":[]}]`

var delegateABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(delegateABIJSON))
	if err != nil {
		panic(err)
	}
	delegateABI = parsed
}

// batchedCall mirrors the delegate contract's call tuple.
type batchedCall struct {
	To    common.Address `abi:"to"`
	Value *big.Int       `abi:"value"`
	Data  []byte         `abi:"data"`
}

type bundledService struct {
	keyring  keyring.Service
	nonces   *nonce.Manager
	cfg      config.Engine
	detector delegation.Detector

	// activationData, when set, is prepended to every batch as a call to
	// the account itself, activating the delegate in the same atomic unit.
	activationData []byte
}

// NewBundledService creates the delegation-aware signer variant. It falls
// back to the direct path transparently when the account has no delegation.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewBundledService(keys keyring.Service, nonces *nonce.Manager, cfg config.Engine, detector delegation.Detector, activationData []byte) Service {
	return &bundledService{
		keyring:        keys,
		nonces:         nonces,
		cfg:            cfg,
		detector:       detector,
		activationData: activationData,
	}
}

func (s *bundledService) Sign(ctx context.Context, client provider.Client, intent *models.TransactionIntent, strategy *models.GasFeeStrategy) (*models.SignedTransaction, error) {
	info, err := s.detector.Detect(ctx, intent.ChainID, intent.From)
	if err != nil {
		return nil, errors.Wrap(err, "failed to detect delegation")
	}

	if !info.IsDelegated {
		return signDirect(ctx, s.keyring, s.nonces, s.cfg, client, intent, strategy)
	}

	wrapped, err := s.wrapIntent(intent)
	if err != nil {
		return nil, err
	}

	util.LogFromContext(ctx).Debug().
		Str("account", intent.From.Hex()).
		Str("delegate", info.DelegateAddress.Hex()).
		Int64("chain_id", intent.ChainID).
		Msg("Signing through delegated smart account")

	return signDirect(ctx, s.keyring, s.nonces, s.cfg, client, wrapped, strategy)
}

// wrapIntent rewrites the intent as a call to the account's own delegated
// code: execute([activation?, mainCall]). The ETH value moves into the
// batched call; the outer transaction carries none.
func (s *bundledService) wrapIntent(intent *models.TransactionIntent) (*models.TransactionIntent, error) {
	value := intent.Value
	if value == nil {
		value = new(big.Int)
	}

	calls := make([]batchedCall, 0, 2)
	if len(s.activationData) > 0 {
		calls = append(calls, batchedCall{
			To:    intent.From,
			Value: new(big.Int),
			Data:  s.activationData,
		})
	}
	calls = append(calls, batchedCall{
		To:    intent.To,
		Value: value,
		Data:  intent.Data,
	})

	callData, err := delegateABI.Pack("execute", calls)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode batched call")
	}

	return &models.TransactionIntent{
		ChainID:  intent.ChainID,
		From:     intent.From,
		To:       intent.From,
		Data:     callData,
		Value:    new(big.Int),
		Nonce:    intent.Nonce,
		TypeInfo: intent.TypeInfo,
	}, nil
}
