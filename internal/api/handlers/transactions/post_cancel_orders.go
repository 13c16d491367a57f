package transactions

import (
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github/lumenwallet/tx-engine/internal/api"
	"github/lumenwallet/tx-engine/internal/api/httperrors"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/util"
)

// CancelOrdersPayload revokes a batch of signed orders on the given
// registry contract.
type CancelOrdersPayload struct {
	ChainID  int64          `json:"chainId"`
	From     string         `json:"from"`
	Registry string         `json:"registry"`
	Orders   []OrderPayload `json:"orders"`
}

type OrderPayload struct {
	OrderHash    string `json:"orderHash"`
	EncodedOrder string `json:"encodedOrder"`
}

func PostCancelOrdersRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Engine.POST("/orders/cancel", postCancelOrdersHandler(s))
}

func postCancelOrdersHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body CancelOrdersPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request body")
		}
		if !common.IsHexAddress(body.From) || !common.IsHexAddress(body.Registry) {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid from/registry address")
		}
		if len(body.Orders) == 0 {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "At least one order is required")
		}

		orders := make([]models.OrderRef, 0, len(body.Orders))
		for _, o := range body.Orders {
			encoded, err := hex.DecodeString(strings.TrimPrefix(o.EncodedOrder, "0x"))
			if err != nil {
				return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid encoded order")
			}
			orders = append(orders, models.OrderRef{
				OrderHash:    common.HexToHash(o.OrderHash),
				EncodedOrder: encoded,
			})
		}

		outcome, err := s.Engine.CancelOrders(ctx, body.ChainID, common.HexToAddress(body.From), common.HexToAddress(body.Registry), orders)
		if err != nil {
			log.Debug().Err(err).Int("orders", len(orders)).Msg("Order cancellation failed")
			return mapEngineError(err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status": outcome.Status,
			"record": outcome.Record,
		})
	}
}
