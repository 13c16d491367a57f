// Package nonce serializes nonce allocation per (account, chain) pair.
// Everything else in the engine runs in parallel; this is the single
// required serialization point.
package nonce

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github/lumenwallet/tx-engine/internal/engine/provider"
)

type key struct {
	chainID int64
	account common.Address
}

type accountNonce struct {
	mu sync.Mutex
	// next is nil until the first allocation, which seeds it from the
	// node's pending pool.
	next   *uint64
	synced bool
}

// Manager hands out pairwise-distinct, strictly increasing nonces per
// (account, chain). Safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	slots map[key]*accountNonce
}

// NewManager creates an empty nonce manager.
func NewManager() *Manager {
	return &Manager{slots: make(map[key]*accountNonce)}
}

func (m *Manager) slot(chainID int64, account common.Address) *accountNonce {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{chainID: chainID, account: account}
	slot, ok := m.slots[k]
	if !ok {
		slot = &accountNonce{}
		m.slots[k] = slot
	}
	return slot
}

// Acquire allocates the next nonce for the account on the chain. The first
// allocation (and any allocation after Resync) is seeded from the node's
// pending nonce; subsequent ones increment locally so concurrent in-flight
// transactions never collide.
func (m *Manager) Acquire(ctx context.Context, client provider.Client, chainID int64, account common.Address) (uint64, error) {
	slot := m.slot(chainID, account)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.next == nil {
		pending, err := client.PendingNonceAt(ctx, account)
		if err != nil {
			return 0, errors.Wrap(err, "failed to fetch pending nonce")
		}
		slot.next = &pending
		slot.synced = true
	}

	n := *slot.next
	*slot.next = n + 1
	return n, nil
}

// Release returns an allocated nonce that was never broadcast. Only the most
// recently allocated nonce can be returned; anything older would punch a gap
// under transactions already in flight.
func (m *Manager) Release(chainID int64, account common.Address, nonce uint64) {
	slot := m.slot(chainID, account)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.next != nil && *slot.next == nonce+1 {
		*slot.next = nonce
	}
}

// Resync drops the local counter so the next Acquire re-seeds from the
// node. Called after a stale-nonce submission error.
func (m *Manager) Resync(chainID int64, account common.Address) {
	slot := m.slot(chainID, account)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	slot.next = nil
	slot.synced = false
}
