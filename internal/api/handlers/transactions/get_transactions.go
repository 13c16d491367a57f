package transactions

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github/lumenwallet/tx-engine/internal/api"
	"github/lumenwallet/tx-engine/internal/api/httperrors"
)

func GetTransactionsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Engine.GET("/transactions", getTransactionsHandler(s))
}

// getTransactionsHandler lists an owner's transaction records, optionally
// scoped to one chain.
func getTransactionsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		owner := c.QueryParam("owner")
		if !common.IsHexAddress(owner) {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid owner address")
		}

		var chainID int64
		if raw := c.QueryParam("chain_id"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed < 0 {
				return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid chain_id")
			}
			chainID = parsed
		}

		records, err := s.Engine.Records().ListByOwner(ctx, owner, chainID)
		if err != nil {
			return mapEngineError(err)
		}

		return c.JSON(http.StatusOK, records)
	}
}
