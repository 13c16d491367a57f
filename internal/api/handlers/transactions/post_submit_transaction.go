package transactions

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/api"
	"github/lumenwallet/tx-engine/internal/api/httperrors"
	"github/lumenwallet/tx-engine/internal/engine/store"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/txerrors"
	"github/lumenwallet/tx-engine/internal/util"
)

// SubmitTransactionPayload is the submit request body. Value is a decimal
// wei string to avoid precision loss; Data is hex encoded.
type SubmitTransactionPayload struct {
	ChainID int64  `json:"chainId"`
	From    string `json:"from"`
	To      string `json:"to"`
	Value   string `json:"value"`
	Data    string `json:"data"`
	Kind    string `json:"kind"`
	Label   string `json:"label"`
}

func PostSubmitTransactionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Engine.POST("/transactions", postSubmitTransactionHandler(s))
}

func postSubmitTransactionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body SubmitTransactionPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request body")
		}

		intent, err := intentFromPayload(&body)
		if err != nil {
			return err
		}

		record, err := s.Engine.Submit(ctx, intent)
		if err != nil {
			log.Debug().Err(err).Msg("Transaction submission failed")
			return mapEngineError(err)
		}

		return c.JSON(http.StatusCreated, record)
	}
}

func intentFromPayload(body *SubmitTransactionPayload) (*models.TransactionIntent, error) {
	if !common.IsHexAddress(body.From) || !common.IsHexAddress(body.To) {
		return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid from/to address")
	}

	value := new(big.Int)
	if body.Value != "" {
		parsed, ok := value.SetString(body.Value, 10)
		if !ok || parsed.Sign() < 0 {
			return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid value")
		}
	}

	var data []byte
	if body.Data != "" {
		decoded, err := hex.DecodeString(strings.TrimPrefix(body.Data, "0x"))
		if err != nil {
			return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid call data")
		}
		data = decoded
	}

	kind := models.TxKind(body.Kind)
	if kind == "" {
		kind = models.TxKindContractCall
	}

	return &models.TransactionIntent{
		ChainID: body.ChainID,
		From:    common.HexToAddress(body.From),
		To:      common.HexToAddress(body.To),
		Value:   value,
		Data:    data,
		TypeInfo: models.TypeInfo{
			Kind:  kind,
			Label: body.Label,
		},
	}, nil
}

// mapEngineError converts classified engine errors to the public payload.
func mapEngineError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return httperrors.NewHTTPError(http.StatusNotFound, httperrors.TypeRecordNotFound, "Transaction record not found")
	}

	kind := txerrors.KindOf(err)
	switch kind {
	case txerrors.KindUserRejected:
		return httperrors.NewTransactionError(string(kind), "Signing was rejected")
	case txerrors.KindInsufficientFunds:
		return httperrors.NewTransactionError(string(kind), "Insufficient funds")
	case txerrors.KindNonceStale:
		return httperrors.NewTransactionError(string(kind), "Nonce conflict, please retry")
	case txerrors.KindProviderUnavailable:
		return httperrors.NewHTTPError(http.StatusServiceUnavailable, httperrors.TypeTransaction, "Network provider unavailable")
	case txerrors.KindSimulationFailed:
		return httperrors.NewTransactionError(string(kind), "Transaction simulation failed")
	default:
		return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeTransaction, "Transaction failed")
	}
}
