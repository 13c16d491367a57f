package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/config"
	"github/lumenwallet/tx-engine/internal/engine/provider"
)

func TestParseRPCURLs(t *testing.T) {
	assert.Nil(t, provider.ParseRPCURLs(""))
	assert.Equal(t, []string{"http://a"}, provider.ParseRPCURLs("http://a"))
	assert.Equal(t, []string{"http://a", "http://b"}, provider.ParseRPCURLs("http://a,http://b"))
	assert.Equal(t, []string{"http://a", "http://b"}, provider.ParseRPCURLs(" http://a , http://b "))
	assert.Equal(t, []string{"http://a"}, provider.ParseRPCURLs("http://a,,"))
}

func TestGetClientUnknownChain(t *testing.T) {
	cfg := config.Server{
		Chains: []config.Chain{
			{ChainID: 1, RPCURLs: "http://localhost:8545"},
		},
	}
	s := provider.NewService(cfg)
	defer s.Close()

	_, err := s.GetClient(context.Background(), 999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestGetClientEmptyURLList(t *testing.T) {
	cfg := config.Server{
		Chains: []config.Chain{
			{ChainID: 5, RPCURLs: " , "},
		},
	}
	s := provider.NewService(cfg)
	defer s.Close()

	_, err := s.GetClient(context.Background(), 5)
	require.Error(t, err)
}
