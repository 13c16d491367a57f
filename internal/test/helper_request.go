package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/api"
)

// PerformRequest sends a JSON request through the server's router and
// returns the recorded response.
func PerformRequest(t *testing.T, s *api.Server, method, path string, body any, headers http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for key, values := range headers {
		for _, value := range values {
			req.Header.Set(key, value)
		}
	}

	res := httptest.NewRecorder()
	s.Echo.ServeHTTP(res, req)
	return res
}

// ParseResponseBody unmarshals the recorded JSON body into target.
func ParseResponseBody(t *testing.T, res *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), target))
}
