// Package engine composes the gas, delegation, signing, provider, store and
// analytics services into the transaction submit/confirm/cancel pipeline.
package engine

import (
	"context"
	"math/big"
	"strconv"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine/analytics"
	"github/lumenwallet/tx-engine/internal/engine/cancel"
	"github/lumenwallet/tx-engine/internal/engine/flags"
	"github/lumenwallet/tx-engine/internal/engine/gas"
	"github/lumenwallet/tx-engine/internal/engine/nonce"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/engine/signer"
	"github/lumenwallet/tx-engine/internal/engine/store"
	"github/lumenwallet/tx-engine/internal/metrics"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/txerrors"
	"github/lumenwallet/tx-engine/internal/util"
)

// CancelStatus is the normalized outcome of a cancellation attempt. Races
// the cancellation lost ("too late") are success-shaped, not errors.
type CancelStatus string

const (
	CancelSubmitted        CancelStatus = "submitted"
	CancelAlreadyConfirmed CancelStatus = "already_confirmed"
	CancelNothingToDo      CancelStatus = "nothing_to_cancel"
	CancelFeeUnknown       CancelStatus = "fee_unknown"
)

// CancelOutcome reports what a cancellation attempt did.
type CancelOutcome struct {
	Status  CancelStatus
	Record  *models.TransactionRecord
	Request *models.CancellationRequest
}

// Service is the transaction execution and cancellation orchestrator.
type Service interface {
	// Submit runs the full pipeline: fee strategy, signer selection,
	// signing, broadcast with bounded retry, pending record write, and an
	// asynchronous confirmation watcher that finalizes the record.
	Submit(ctx context.Context, intent *models.TransactionIntent) (*models.TransactionRecord, error)

	// CancelTransaction replaces a still-pending transaction with a
	// same-nonce zero-effect transfer at a strictly higher fee. When the
	// original already confirmed the outcome is AlreadyConfirmed, not an
	// error.
	CancelTransaction(ctx context.Context, chainID int64, txHash string) (*CancelOutcome, error)

	// SpeedUpTransaction replaces a still-pending transaction with the
	// same call at a strictly higher fee so it lands sooner. Outcomes
	// mirror CancelTransaction.
	SpeedUpTransaction(ctx context.Context, chainID int64, txHash string) (*CancelOutcome, error)

	// CancelOrders revokes a batch of off-chain-signed orders through a
	// single on-chain call.
	CancelOrders(ctx context.Context, chainID int64, from, registry common.Address, orders []models.OrderRef) (*CancelOutcome, error)

	// Records exposes the repository read model.
	Records() store.Repository

	// Close waits for in-flight confirmation watchers to wind down.
	Close()
}

type service struct {
	cfg       config.Server
	providers provider.Service
	gasCfg    gas.Service
	direct    signer.Service
	bundled   signer.Service
	flags     flags.Service
	nonces    *nonce.Manager
	repo      store.Repository
	cancels   cancel.Orchestrator
	events    analytics.Service
	metrics   *metrics.Service

	watchers sync.WaitGroup
	closed   chan struct{}
}

// NewService wires the orchestrator. All collaborators are injected; there
// is no process-global state.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(
	cfg config.Server,
	providers provider.Service,
	gasService gas.Service,
	directSigner signer.Service,
	bundledSigner signer.Service,
	flagService flags.Service,
	nonces *nonce.Manager,
	repo store.Repository,
	cancels cancel.Orchestrator,
	events analytics.Service,
	metricsService *metrics.Service,
) Service {
	return &service{
		cfg:       cfg,
		providers: providers,
		gasCfg:    gasService,
		direct:    directSigner,
		bundled:   bundledSigner,
		flags:     flagService,
		nonces:    nonces,
		repo:      repo,
		cancels:   cancels,
		events:    events,
		metrics:   metricsService,
		closed:    make(chan struct{}),
	}
}

func (s *service) Submit(ctx context.Context, intent *models.TransactionIntent) (*models.TransactionRecord, error) {
	return s.submit(ctx, intent, nil, "")
}

// submit is the shared pipeline. overrideFee, when set, pins the fee
// strategy (replacement transactions); replacedHash marks cancellation
// records with the hash they replace.
func (s *service) submit(ctx context.Context, intent *models.TransactionIntent, overrideFee *models.GasFeeStrategy, replacedHash string) (*models.TransactionRecord, error) {
	if intent == nil {
		return nil, errors.New("intent is required")
	}

	log := util.LogFromContext(ctx).With().
		Int64("chain_id", intent.ChainID).
		Str("from", intent.From.Hex()).
		Str("kind", string(intent.TypeInfo.Kind)).
		Logger()

	client, err := s.providers.GetClient(ctx, intent.ChainID)
	if err != nil {
		return nil, txerrors.Classify(err)
	}

	strategy := overrideFee
	if strategy == nil {
		strategy, err = s.gasCfg.GetStrategy(ctx, client, intent)
		if err != nil {
			return nil, txerrors.Classify(err)
		}
	}

	signed, err := s.signAndBroadcast(ctx, client, intent, strategy)
	if err != nil {
		// The record is never created for a failed submission.
		return nil, err
	}

	record := &models.TransactionRecord{
		ChainID:      intent.ChainID,
		TxHash:       signed.Hash.Hex(),
		FromAddress:  intent.From.Hex(),
		Nonce:        signed.Nonce,
		Status:       models.StatusPending,
		Kind:         intent.TypeInfo.Kind,
		Label:        intent.TypeInfo.Label,
		ReplacedHash: replacedHash,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, errors.Wrap(err, "failed to create transaction record")
	}

	s.metrics.TxSubmitted.WithLabelValues(chainLabel(intent.ChainID)).Inc()
	s.events.Emit("transaction_submitted", map[string]any{
		"chain_id": intent.ChainID,
		"tx_hash":  record.TxHash,
		"kind":     intent.TypeInfo.Kind,
		"nonce":    signed.Nonce,
	})

	log.Info().Str("tx_hash", record.TxHash).Uint64("nonce", signed.Nonce).Msg("Transaction submitted")

	s.watchers.Add(1)
	go s.watch(record.ChainID, signed.Hash, record.ReplacedHash)

	return record, nil
}

// signAndBroadcast signs the intent and sends it, retrying transient
// provider errors with bounded backoff. A stale nonce gets exactly one
// resync-and-resign pass; pinned nonces (replacements) are never resynced,
// their staleness means the race is lost.
func (s *service) signAndBroadcast(ctx context.Context, client provider.Client, intent *models.TransactionIntent, strategy *models.GasFeeStrategy) (*models.SignedTransaction, error) {
	resynced := false

	for {
		signed, err := s.sign(ctx, client, intent, strategy)
		if err != nil {
			return nil, txerrors.Classify(err)
		}

		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(signed.RawBytes); err != nil {
			return nil, errors.Wrap(err, "failed to decode signed transaction")
		}

		err = retry.Do(
			func() error { return client.SendTransaction(ctx, tx) },
			retry.Context(ctx),
			retry.Attempts(s.cfg.Engine.SubmitAttempts),
			retry.Delay(s.cfg.Engine.SubmitBackoff),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(txerrors.IsRetriable),
			retry.OnRetry(func(_ uint, _ error) { s.metrics.RPCRetries.Inc() }),
		)
		if err == nil {
			return signed, nil
		}

		classified := txerrors.Classify(err)
		if classified.Kind == txerrors.KindNonceStale && intent.Nonce == nil && !resynced {
			resynced = true
			s.nonces.Resync(intent.ChainID, intent.From)
			s.metrics.NonceResyncs.Inc()
			util.LogFromContext(ctx).Warn().
				Str("from", intent.From.Hex()).
				Msg("Stale nonce on submission, resyncing once")
			continue
		}

		return nil, classified
	}
}

// sign selects the signer variant from the bundled-signer feature gate.
// The bundled signer owns delegation detection and falls back to the
// direct path itself, so the account's code is read exactly once per
// signing attempt.
func (s *service) sign(ctx context.Context, client provider.Client, intent *models.TransactionIntent, strategy *models.GasFeeStrategy) (*models.SignedTransaction, error) {
	if s.flags.Bool(flags.BundledSigner) {
		return s.bundled.Sign(ctx, client, intent, strategy)
	}
	return s.direct.Sign(ctx, client, intent, strategy)
}

func (s *service) CancelTransaction(ctx context.Context, chainID int64, txHash string) (*CancelOutcome, error) {
	record, err := s.repo.GetByHash(ctx, chainID, txHash)
	if err != nil {
		return nil, err
	}

	client, err := s.providers.GetClient(ctx, chainID)
	if err != nil {
		return nil, txerrors.Classify(err)
	}

	request, err := s.cancels.BuildClassic(ctx, client, record)
	if err != nil {
		if txerrors.KindOf(err) == txerrors.KindAlreadyConfirmed {
			// Lost the race before it started; benign.
			return &CancelOutcome{Status: CancelAlreadyConfirmed}, nil
		}
		return nil, err
	}

	s.metrics.CancelRequested.WithLabelValues(string(models.CancellationClassic)).Inc()
	s.events.Emit("cancellation_requested", map[string]any{
		"chain_id": chainID,
		"tx_hash":  record.TxHash,
		"kind":     models.CancellationClassic,
	})

	fee, err := s.replacementStrategy(ctx, client, request)
	if err != nil {
		return nil, err
	}

	replacement, err := s.submit(ctx, request.Replacement, fee, record.TxHash)
	if err != nil {
		kind := txerrors.KindOf(err)
		if kind == txerrors.KindAlreadyConfirmed || kind == txerrors.KindNonceStale {
			// The original landed first. The watcher finalizes it as
			// Success; normalize the cancellation to a benign outcome.
			return &CancelOutcome{Status: CancelAlreadyConfirmed, Request: request}, nil
		}
		return nil, err
	}

	return &CancelOutcome{Status: CancelSubmitted, Record: replacement, Request: request}, nil
}

func (s *service) SpeedUpTransaction(ctx context.Context, chainID int64, txHash string) (*CancelOutcome, error) {
	record, err := s.repo.GetByHash(ctx, chainID, txHash)
	if err != nil {
		return nil, err
	}

	client, err := s.providers.GetClient(ctx, chainID)
	if err != nil {
		return nil, txerrors.Classify(err)
	}

	request, err := s.cancels.BuildSpeedUp(ctx, client, record)
	if err != nil {
		if txerrors.KindOf(err) == txerrors.KindAlreadyConfirmed {
			return &CancelOutcome{Status: CancelAlreadyConfirmed}, nil
		}
		return nil, err
	}

	s.metrics.CancelRequested.WithLabelValues(string(models.CancellationSpeedUp)).Inc()
	s.events.Emit("speed_up_requested", map[string]any{
		"chain_id": chainID,
		"tx_hash":  record.TxHash,
	})

	fee, err := s.replacementStrategy(ctx, client, request)
	if err != nil {
		return nil, err
	}
	// Same call, same limit: the original's gas limit is authoritative.
	fee.GasLimit = request.GasFee.GasLimit

	replacement, err := s.submit(ctx, request.Replacement, fee, record.TxHash)
	if err != nil {
		kind := txerrors.KindOf(err)
		if kind == txerrors.KindAlreadyConfirmed || kind == txerrors.KindNonceStale {
			return &CancelOutcome{Status: CancelAlreadyConfirmed, Request: request}, nil
		}
		return nil, err
	}

	return &CancelOutcome{Status: CancelSubmitted, Record: replacement, Request: request}, nil
}

// replacementStrategy prices the replacement: current market fees, floored
// at the minimum bump over the original so the replacement is strictly
// dearer and accepted by the pool.
func (s *service) replacementStrategy(ctx context.Context, client provider.Client, request *models.CancellationRequest) (*models.GasFeeStrategy, error) {
	market, err := s.gasCfg.GetStrategy(ctx, client, request.Replacement)
	if err != nil {
		return nil, txerrors.Classify(err)
	}

	fee := &models.GasFeeStrategy{
		MaxFeePerGas:         new(big.Int).Set(market.MaxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).Set(market.MaxPriorityFeePerGas),
		GasLimit:             market.GasLimit,
		Type:                 models.FeeTypeEIP1559,
	}
	if request.GasFeeKnown && request.GasFee != nil {
		if fee.MaxFeePerGas.Cmp(request.GasFee.MaxFeePerGas) < 0 {
			fee.MaxFeePerGas.Set(request.GasFee.MaxFeePerGas)
		}
		if fee.MaxPriorityFeePerGas.Cmp(request.GasFee.MaxPriorityFeePerGas) < 0 {
			fee.MaxPriorityFeePerGas.Set(request.GasFee.MaxPriorityFeePerGas)
		}
		if fee.MaxFeePerGas.Cmp(fee.MaxPriorityFeePerGas) < 0 {
			fee.MaxFeePerGas.Set(fee.MaxPriorityFeePerGas)
		}
	}

	return fee, nil
}

func (s *service) CancelOrders(ctx context.Context, chainID int64, from, registry common.Address, orders []models.OrderRef) (*CancelOutcome, error) {
	client, err := s.providers.GetClient(ctx, chainID)
	if err != nil {
		return nil, txerrors.Classify(err)
	}

	request, err := s.cancels.BuildBatch(ctx, client, registry, from, orders)
	if err != nil {
		if errors.Is(err, txerrors.ErrNothingToCancel) {
			return &CancelOutcome{Status: CancelNothingToDo}, nil
		}
		return nil, err
	}

	s.metrics.CancelRequested.WithLabelValues(string(models.CancellationBatchIntent)).Inc()
	s.events.Emit("cancellation_requested", map[string]any{
		"chain_id": chainID,
		"orders":   len(request.Orders),
		"kind":     models.CancellationBatchIntent,
	})

	if !request.GasFeeKnown {
		// Simulation failed; surface the request so the caller can retry.
		return &CancelOutcome{Status: CancelFeeUnknown, Request: request}, nil
	}

	intent := &models.TransactionIntent{
		ChainID: chainID,
		From:    from,
		To:      request.CallTo,
		Data:    request.CallData,
		Value:   new(big.Int),
		TypeInfo: models.TypeInfo{
			Kind:  models.TxKindCancellation,
			Label: "Cancel orders",
		},
	}

	market, err := s.gasCfg.GetStrategy(ctx, client, intent)
	if err != nil {
		return nil, txerrors.Classify(err)
	}
	// The simulated gas limit is authoritative for the batched call.
	market.GasLimit = request.GasFee.GasLimit

	record, err := s.submit(ctx, intent, market, "")
	if err != nil {
		return nil, err
	}

	return &CancelOutcome{Status: CancelSubmitted, Record: record, Request: request}, nil
}

//nolint:ireturn
func (s *service) Records() store.Repository {
	return s.repo
}

func (s *service) Close() {
	close(s.closed)
	s.watchers.Wait()
	s.events.Close()
}

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}
