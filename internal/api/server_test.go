package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/api"
	"github/lumenwallet/tx-engine/internal/test"
)

func TestGetReadyReadiness(t *testing.T) {
	test.WithTestServer(t, test.NewTestClient(), func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/-/ready", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
		require.Equal(t, "Ready.", res.Body.String())
	})
}

func TestGetReadyReadinessBroken(t *testing.T) {
	test.WithTestServer(t, test.NewTestClient(), func(s *api.Server) {
		// forcefully remove an initialized component to check if ready state works
		s.Permit = nil

		res := test.PerformRequest(t, s, "GET", "/-/ready", nil, nil)
		require.Equal(t, 521, res.Result().StatusCode)
		require.Equal(t, "Not ready.", res.Body.String())
	})
}

func TestGetMetrics(t *testing.T) {
	test.WithTestServer(t, test.NewTestClient(), func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/-/metrics", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
	})
}

func TestUnknownRouteErrorShape(t *testing.T) {
	test.WithTestServer(t, test.NewTestClient(), func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/api/v1/nope", nil, nil)
		require.Equal(t, http.StatusNotFound, res.Result().StatusCode)

		var body map[string]any
		test.ParseResponseBody(t, res, &body)
		require.Equal(t, float64(http.StatusNotFound), body["status"])
		require.Equal(t, "generic", body["type"])
	})
}
