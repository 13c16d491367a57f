// Package provider supplies and caches one RPC client per chain.
package provider

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/config"
)

// Service hands out the shared per-chain RPC client.
type Service interface {
	// GetClient returns the cached client for chainID, dialing it on first
	// use. The returned client is shared and safe for concurrent use.
	GetClient(ctx context.Context, chainID int64) (Client, error)

	// Close releases all cached clients.
	Close()
}

type service struct {
	cfg       config.Server
	clients   map[int64]*RPCClient
	clientsMu sync.RWMutex
}

// NewService creates the provider service from the chain table in cfg.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(cfg config.Server) Service {
	return &service{
		cfg:     cfg,
		clients: make(map[int64]*RPCClient),
	}
}

// GetClient returns the cached client for chainID, dialing it on first use.
//
//nolint:ireturn
func (s *service) GetClient(_ context.Context, chainID int64) (Client, error) {
	s.clientsMu.RLock()
	client, exists := s.clients[chainID]
	s.clientsMu.RUnlock()

	if exists && client != nil {
		return client, nil
	}

	chainCfg, ok := s.cfg.ChainByID(chainID)
	if !ok {
		return nil, errors.Errorf("chain %d is not configured", chainID)
	}

	urls := ParseRPCURLs(chainCfg.RPCURLs)
	if len(urls) == 0 {
		return nil, errors.Errorf("no valid RPC URLs for chain_id=%d", chainID)
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	// Re-check under the write lock; another task may have dialed already.
	if client, exists := s.clients[chainID]; exists && client != nil {
		return client, nil
	}

	client, err := NewRPCClient(urls)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create RPC client for chain_id=%d", chainID)
	}
	s.clients[chainID] = client

	return client, nil
}

// Close releases all cached clients.
func (s *service) Close() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for _, client := range s.clients {
		if client != nil {
			client.Close()
		}
	}
	s.clients = make(map[int64]*RPCClient)
}

// ParseRPCURLs splits a comma separated URL list, trimming whitespace and
// dropping empty entries.
func ParseRPCURLs(rpcURLs string) []string {
	if rpcURLs == "" {
		return nil
	}

	parts := strings.Split(rpcURLs, ",")
	result := make([]string, 0, len(parts))

	for _, url := range parts {
		url = strings.TrimSpace(url)
		if url != "" {
			result = append(result, url)
		}
	}

	return result
}
