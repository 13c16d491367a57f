// Package handlers attaches all API routes to the server.
package handlers

import (
	"github.com/labstack/echo/v4"
	"github/lumenwallet/tx-engine/internal/api"
	"github/lumenwallet/tx-engine/internal/api/handlers/permits"
	"github/lumenwallet/tx-engine/internal/api/handlers/transactions"
)

// AttachAllRoutes mounts every engine route onto the server.
func AttachAllRoutes(s *api.Server) []*echo.Route {
	return []*echo.Route{
		transactions.PostSubmitTransactionRoute(s),
		transactions.PostCancelTransactionRoute(s),
		transactions.PostSpeedUpTransactionRoute(s),
		transactions.PostCancelOrdersRoute(s),
		transactions.GetTransactionsRoute(s),
		permits.PostSignPermitRoute(s),
	}
}
