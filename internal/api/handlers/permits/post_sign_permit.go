// Package permits exposes EIP-2612 and DAI-style permit signing.
package permits

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github/lumenwallet/tx-engine/internal/api"
	"github/lumenwallet/tx-engine/internal/api/httperrors"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/models"
	"github/lumenwallet/tx-engine/internal/util"
)

// SignPermitPayload requests a gasless allowance signature. Amounts are
// decimal wei strings.
type SignPermitPayload struct {
	ChainID          int64  `json:"chainId"`
	Owner            string `json:"owner"`
	Spender          string `json:"spender"`
	CurrentAllowance string `json:"currentAllowance"`
	RequestedAmount  string `json:"requestedAmount"`
	Token            struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Version string `json:"version"`
		Kind    string `json:"kind"`
	} `json:"token"`
}

func PostSignPermitRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Engine.POST("/permits", postSignPermitHandler(s))
}

func postSignPermitHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body SignPermitPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request body")
		}
		if !common.IsHexAddress(body.Owner) || !common.IsHexAddress(body.Spender) {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid owner/spender address")
		}

		requested, ok := new(big.Int).SetString(body.RequestedAmount, 10)
		if !ok || requested.Sign() < 0 {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid requested amount")
		}

		allowance := new(big.Int)
		if body.CurrentAllowance != "" {
			if _, ok := allowance.SetString(body.CurrentAllowance, 10); !ok {
				return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid current allowance")
			}
		}

		var token *models.TokenPermitConfig
		if body.Token.Address != "" {
			if !common.IsHexAddress(body.Token.Address) {
				return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid token address")
			}
			kind := models.PermitKind(body.Token.Kind)
			if kind == "" {
				kind = models.PermitEIP2612
			}
			token = &models.TokenPermitConfig{
				Address: common.HexToAddress(body.Token.Address),
				Name:    body.Token.Name,
				Version: body.Token.Version,
				Kind:    kind,
			}
		}

		// A skipped permit never touches the network, so the client is
		// only dialed when a token is actually configured.
		var client provider.Client
		if token != nil {
			cl, err := s.Providers.GetClient(ctx, body.ChainID)
			if err != nil {
				return httperrors.NewHTTPError(http.StatusServiceUnavailable, httperrors.TypeTransaction, "Network provider unavailable")
			}
			client = cl
		}

		result, err := s.Permit.SignPermit(ctx, client, body.ChainID, token,
			common.HexToAddress(body.Owner), common.HexToAddress(body.Spender), allowance, requested)
		if err != nil {
			log.Debug().Err(err).Msg("Permit signing failed")
			return httperrors.NewHTTPError(http.StatusUnprocessableEntity, httperrors.TypeTransaction, "Permit signing failed")
		}

		if result.Skipped {
			s.Metrics.PermitsSkipped.Inc()
			return c.JSON(http.StatusOK, map[string]any{
				"skipped":    true,
				"skipReason": result.SkipReason,
			})
		}

		s.Metrics.PermitsSigned.Inc()
		return c.JSON(http.StatusOK, map[string]any{
			"skipped": false,
			"permit":  result.Permit,
		})
	}
}
