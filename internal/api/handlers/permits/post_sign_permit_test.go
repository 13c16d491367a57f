package permits_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/api"
	"github/lumenwallet/tx-engine/internal/api/handlers/permits"
	"github/lumenwallet/tx-engine/internal/test"
)

const ownerAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"

func signPayload() permits.SignPermitPayload {
	p := permits.SignPermitPayload{
		ChainID:          1,
		Owner:            ownerAddress,
		Spender:          "0x2222222222222222222222222222222222222222",
		CurrentAllowance: "0",
		RequestedAmount:  "1000000",
	}
	p.Token.Address = "0x3333333333333333333333333333333333333333"
	p.Token.Name = "USD Coin"
	p.Token.Version = "2"
	p.Token.Kind = "eip2612"
	return p
}

func TestPostSignPermit(t *testing.T) {
	test.WithTestServer(t, test.NewTestClient(), func(s *api.Server) {
		res := test.PerformRequest(t, s, "POST", "/api/v1/permits", signPayload(), nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		var body map[string]any
		test.ParseResponseBody(t, res, &body)
		assert.Equal(t, false, body["skipped"])
		assert.NotNil(t, body["permit"])
	})
}

func TestPostSignPermitSkipsWithoutToken(t *testing.T) {
	client := test.NewTestClient()
	test.WithTestServer(t, client, func(s *api.Server) {
		payload := signPayload()
		payload.Token.Address = ""

		res := test.PerformRequest(t, s, "POST", "/api/v1/permits", payload, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		var body map[string]any
		test.ParseResponseBody(t, res, &body)
		assert.Equal(t, true, body["skipped"])
		assert.NotEmpty(t, body["skipReason"])
		// No token means no network traffic at all.
		assert.Zero(t, client.TotalCalls())
	})
}

func TestPostSignPermitSkipsWhenAllowanceCovers(t *testing.T) {
	test.WithTestServer(t, test.NewTestClient(), func(s *api.Server) {
		payload := signPayload()
		payload.CurrentAllowance = "1000000"

		res := test.PerformRequest(t, s, "POST", "/api/v1/permits", payload, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		var body map[string]any
		test.ParseResponseBody(t, res, &body)
		assert.Equal(t, true, body["skipped"])
	})
}

func TestPostSignPermitValidation(t *testing.T) {
	test.WithTestServer(t, test.NewTestClient(), func(s *api.Server) {
		payload := signPayload()
		payload.Owner = "not-an-address"
		res := test.PerformRequest(t, s, "POST", "/api/v1/permits", payload, nil)
		assert.Equal(t, http.StatusBadRequest, res.Result().StatusCode)

		payload = signPayload()
		payload.RequestedAmount = "a lot"
		res = test.PerformRequest(t, s, "POST", "/api/v1/permits", payload, nil)
		assert.Equal(t, http.StatusBadRequest, res.Result().StatusCode)
	})
}
