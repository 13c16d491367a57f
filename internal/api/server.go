// Package api exposes the transaction engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github/lumenwallet/tx-engine/internal/api/httperrors"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine"
	"github/lumenwallet/tx-engine/internal/engine/permit"
	"github/lumenwallet/tx-engine/internal/engine/provider"
	"github/lumenwallet/tx-engine/internal/metrics"
)

// Server bundles the HTTP layer with its collaborators. All components are
// injected at construction; there is no module-level state.
type Server struct {
	Config    config.Server
	Echo      *echo.Echo
	Engine    engine.Service
	Permit    permit.Service
	Providers provider.Service
	Metrics   *metrics.Service
	Router    *Router
}

// Router groups the route families.
type Router struct {
	Management  *echo.Group
	APIV1Engine *echo.Group
}

// NewServer creates the server and mounts the management routes. The engine
// routes are attached by the handlers package.
func NewServer(cfg config.Server, eng engine.Service, permitService permit.Service, providers provider.Service, metricsService *metrics.Service) *Server {
	s := &Server{
		Config:    cfg,
		Engine:    eng,
		Permit:    permitService,
		Providers: providers,
		Metrics:   metricsService,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	s.Echo = e

	s.Router = &Router{
		Management:  e.Group("/-"),
		APIV1Engine: e.Group("/api/v1"),
	}

	s.Router.Management.GET("/ready", getReadyHandler(s))
	s.Router.Management.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metricsService.Registry(), promhttp.HandlerOpts{})))

	return s
}

// Start begins serving on the configured listen address.
func (s *Server) Start() error {
	log.Info().Str("listen_address", s.Config.Echo.ListenAddress).Msg("Starting HTTP server")
	return s.Echo.Start(s.Config.Echo.ListenAddress)
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

// Ready reports whether all components required for serving are present.
func (s *Server) Ready() bool {
	return s.Engine != nil && s.Permit != nil && s.Providers != nil && s.Metrics != nil
}

func getReadyHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Ready() {
			return c.String(521, "Not ready.")
		}
		return c.String(http.StatusOK, "Ready.")
	}
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpError *httperrors.HTTPError
	if errors.As(err, &httpError) {
		if writeErr := c.JSON(httpError.Code, httpError); writeErr != nil {
			log.Error().Err(writeErr).Msg("Failed to write error response")
		}
		return
	}

	var echoError *echo.HTTPError
	if errors.As(err, &echoError) {
		payload := httperrors.NewHTTPError(echoError.Code, httperrors.TypeGeneric, http.StatusText(echoError.Code))
		if writeErr := c.JSON(echoError.Code, payload); writeErr != nil {
			log.Error().Err(writeErr).Msg("Failed to write error response")
		}
		return
	}

	log.Error().Err(err).Msg("Unhandled error in request")
	payload := httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Internal server error")
	if writeErr := c.JSON(http.StatusInternalServerError, payload); writeErr != nil {
		log.Error().Err(writeErr).Msg("Failed to write error response")
	}
}
