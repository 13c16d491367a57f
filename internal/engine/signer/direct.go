// Package signer produces signed transactions from intents.
package signer

import (
	"context"
	"math/big"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine/keyring"
	"github/lumenwallet/tx-engine/internal/engine/nonce"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/txerrors"
)

type directService struct {
	keyring keyring.Service
	nonces  *nonce.Manager
	cfg     config.Engine
}

// NewDirectService creates the direct signer variant.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewDirectService(keys keyring.Service, nonces *nonce.Manager, cfg config.Engine) Service {
	return &directService{keyring: keys, nonces: nonces, cfg: cfg}
}

func (s *directService) Sign(ctx context.Context, client provider.Client, intent *models.TransactionIntent, strategy *models.GasFeeStrategy) (*models.SignedTransaction, error) {
	return signDirect(ctx, s.keyring, s.nonces, s.cfg, client, intent, strategy)
}

// signDirect is the shared EIP-1559 signing path; the bundled variant falls
// back to it when no delegation is present.
func signDirect(ctx context.Context, keys keyring.Service, nonces *nonce.Manager, cfg config.Engine, client provider.Client, intent *models.TransactionIntent, strategy *models.GasFeeStrategy) (*models.SignedTransaction, error) {
	if err := strategy.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid fee strategy")
	}

	privateKey, err := keys.Key(intent.From)
	if err != nil {
		// A missing or locked key is terminal; there is nothing to retry.
		return nil, txerrors.New(txerrors.KindUserRejected, err)
	}

	txNonce, allocated, err := resolveNonce(ctx, nonces, cfg, client, intent)
	if err != nil {
		return nil, err
	}

	to := intent.To
	value := intent.Value
	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(intent.ChainID),
		Nonce:     txNonce,
		GasTipCap: strategy.MaxPriorityFeePerGas,
		GasFeeCap: strategy.MaxFeePerGas,
		Gas:       strategy.GasLimit,
		To:        &to,
		Value:     value,
		Data:      intent.Data,
	})

	londonSigner := types.NewLondonSigner(big.NewInt(intent.ChainID))
	signedTx, err := types.SignTx(tx, londonSigner, privateKey)
	if err != nil {
		if allocated {
			nonces.Release(intent.ChainID, intent.From, txNonce)
		}
		return nil, txerrors.New(txerrors.KindUserRejected, errors.Wrap(err, "failed to sign transaction"))
	}

	rawBytes, err := signedTx.MarshalBinary()
	if err != nil {
		if allocated {
			nonces.Release(intent.ChainID, intent.From, txNonce)
		}
		return nil, errors.Wrap(err, "failed to marshal transaction")
	}

	return &models.SignedTransaction{
		RawBytes: rawBytes,
		Hash:     signedTx.Hash(),
		ChainID:  intent.ChainID,
		Nonce:    txNonce,
	}, nil
}

// resolveNonce uses the caller-pinned nonce for replacements and otherwise
// allocates through the serialized manager, retrying transient provider
// errors with bounded backoff.
func resolveNonce(ctx context.Context, nonces *nonce.Manager, cfg config.Engine, client provider.Client, intent *models.TransactionIntent) (uint64, bool, error) {
	if intent.Nonce != nil {
		return *intent.Nonce, false, nil
	}

	var txNonce uint64
	err := retry.Do(
		func() error {
			var acquireErr error
			txNonce, acquireErr = nonces.Acquire(ctx, client, intent.ChainID, intent.From)
			return acquireErr
		},
		retry.Context(ctx),
		retry.Attempts(cfg.SubmitAttempts),
		retry.Delay(cfg.SubmitBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(txerrors.IsRetriable),
	)
	if err != nil {
		return 0, false, txerrors.Classify(errors.Wrap(err, "failed to acquire nonce"))
	}

	return txNonce, true, nil
}
