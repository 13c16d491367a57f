package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/txerrors"
)

// watch polls for the receipt of a submitted transaction and finalizes its
// record exactly once. It runs as an independent goroutine per transaction
// and stops on resolution, timeout, or engine shutdown.
func (s *service) watch(chainID int64, txHash common.Hash, replacedHash string) {
	defer s.watchers.Done()

	started := time.Now()
	logger := log.With().
		Str("component", "confirm_watcher").
		Int64("chain_id", chainID).
		Str("tx_hash", txHash.Hex()).
		Logger()

	ctx, cancelCtx := context.WithTimeout(context.Background(), s.cfg.Engine.ConfirmTimeout)
	defer cancelCtx()

	client, err := s.providers.GetClient(ctx, chainID)
	if err != nil {
		logger.Error().Err(err).Msg("Watcher could not get RPC client, record stays pending")
		return
	}

	confirmations := uint64(1)
	if chainCfg, ok := s.cfg.ChainByID(chainID); ok && chainCfg.Confirmations > 0 {
		confirmations = chainCfg.Confirmations
	}

	ticker := time.NewTicker(s.cfg.Engine.ConfirmPollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			logger.Debug().Msg("Engine closing, watcher released")
			return
		case <-ctx.Done():
			logger.Warn().Msg("Confirmation wait timed out, record stays pending")
			return
		case <-ticker.C:
		}

		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				logger.Debug().Err(err).Msg("Receipt poll failed, will retry")
				continue
			}
			// A replacement shares its nonce with the transaction it
			// replaced. If the original mined instead, this one can never
			// confirm; finalize it as the race loser.
			if replacedHash != "" {
				if _, oerr := client.TransactionReceipt(ctx, common.HexToHash(replacedHash)); oerr == nil {
					logger.Info().Str("replaced_hash", replacedHash).Msg("Replaced transaction mined first, replacement lost the race")
					s.finalize(ctx, chainID, txHash.Hex(), models.StatusFailed, nil, string(txerrors.KindAlreadyConfirmed), started)
					return
				}
			}
			continue
		}

		latest, err := client.BlockNumber(ctx)
		if err != nil {
			continue
		}
		receiptBlock := receipt.BlockNumber.Uint64()
		if latest < receiptBlock+confirmations-1 {
			continue
		}

		status := models.StatusSuccess
		errorKind := ""
		if receipt.Status != types.ReceiptStatusSuccessful {
			status = models.StatusFailed
			errorKind = string(txerrors.KindUnknown)
		}

		s.finalize(ctx, chainID, txHash.Hex(), status, &models.ReceiptSummary{
			BlockNumber: receipt.BlockNumber.Int64(),
			GasUsed:     receipt.GasUsed,
			Succeeded:   receipt.Status == types.ReceiptStatusSuccessful,
		}, errorKind, started)

		// A confirmed replacement cancels the transaction it replaced. The
		// compare-and-set tolerates the original's own watcher having won.
		if status == models.StatusSuccess && replacedHash != "" {
			applied, err := s.repo.Finalize(ctx, chainID, replacedHash, models.StatusCancelled, nil, "")
			if err != nil {
				logger.Warn().Err(err).Str("replaced_hash", replacedHash).Msg("Failed to mark replaced transaction cancelled")
			} else if applied {
				s.metrics.TxFinalized.WithLabelValues(string(models.StatusCancelled)).Inc()
				s.events.Emit("transaction_cancelled", map[string]any{
					"chain_id": chainID,
					"tx_hash":  replacedHash,
				})
			}
		}

		return
	}
}

func (s *service) finalize(ctx context.Context, chainID int64, txHash string, status models.TransactionStatus, receipt *models.ReceiptSummary, errorKind string, started time.Time) {
	applied, err := s.repo.Finalize(ctx, chainID, txHash, status, receipt, errorKind)
	if err != nil {
		log.Error().Err(err).Str("tx_hash", txHash).Msg("Failed to finalize transaction record")
		return
	}
	if !applied {
		// Somebody else (a cancellation path) already finalized; benign.
		return
	}

	s.metrics.TxFinalized.WithLabelValues(string(status)).Inc()
	s.metrics.ConfirmLatency.Observe(time.Since(started).Seconds())

	event := "transaction_confirmed"
	if status == models.StatusFailed {
		event = "transaction_failed"
	}
	s.events.Emit(event, map[string]any{
		"chain_id": chainID,
		"tx_hash":  txHash,
		"status":   status,
	})
}
