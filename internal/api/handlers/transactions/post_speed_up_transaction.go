package transactions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github/lumenwallet/tx-engine/internal/api"
	"github/lumenwallet/tx-engine/internal/api/httperrors"
	"github/lumenwallet/tx-engine/internal/util"
)

// SpeedUpTransactionPayload identifies the pending transaction to re-send
// at a higher fee.
type SpeedUpTransactionPayload struct {
	ChainID int64  `json:"chainId"`
	TxHash  string `json:"txHash"`
}

func PostSpeedUpTransactionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Engine.POST("/transactions/speedup", postSpeedUpTransactionHandler(s))
}

func postSpeedUpTransactionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body SpeedUpTransactionPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request body")
		}
		if !strings.HasPrefix(body.TxHash, "0x") || len(body.TxHash) != 66 {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid transaction hash")
		}

		outcome, err := s.Engine.SpeedUpTransaction(ctx, body.ChainID, body.TxHash)
		if err != nil {
			log.Debug().Err(err).Str("tx_hash", body.TxHash).Msg("Speed-up failed")
			return mapEngineError(err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status": outcome.Status,
			"record": outcome.Record,
		})
	}
}
