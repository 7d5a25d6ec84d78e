package api

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrStaleNonce = errors.New("nonce already used")

// NonceStore keeps the last accepted nonce per account across restarts
type NonceStore interface {
	SaveNonce(account common.Address, nonce uint64) error
	LoadNonces() (map[common.Address]uint64, error)
}

// NonceGuard rejects replayed signed requests. Each account's nonces must
// strictly increase; gaps are allowed.
type NonceGuard struct {
	mu    sync.Mutex
	last  map[common.Address]uint64
	store NonceStore // nil keeps nonces in memory only
}

// NewNonceGuard seeds the guard from store. A nil store is allowed.
func NewNonceGuard(store NonceStore) (*NonceGuard, error) {
	g := &NonceGuard{last: make(map[common.Address]uint64), store: store}
	if store == nil {
		return g, nil
	}
	last, err := store.LoadNonces()
	if err != nil {
		return nil, fmt.Errorf("load nonces: %w", err)
	}
	for a, n := range last {
		g.last[a] = n
	}
	return g, nil
}

// Use consumes nonce for account. The nonce is durable before it counts
// as used.
func (g *NonceGuard) Use(account common.Address, nonce uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if nonce <= g.last[account] {
		return fmt.Errorf("%w: got %d, last %d", ErrStaleNonce, nonce, g.last[account])
	}
	if g.store != nil {
		if err := g.store.SaveNonce(account, nonce); err != nil {
			return fmt.Errorf("save nonce: %w", err)
		}
	}
	g.last[account] = nonce
	return nil
}

// Last returns the highest nonce accepted for account
func (g *NonceGuard) Last(account common.Address) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last[account]
}
