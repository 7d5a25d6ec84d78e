package storage

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// MemoryStore keeps committed state in maps. Used by tests and ephemeral
// nodes; nothing survives a restart.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[core.BalanceKey]core.Balance
	orders   map[uint64]core.Order
	records  map[uint64]core.Record
	nonces   map[common.Address]uint64
	lastID   uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[core.BalanceKey]core.Balance),
		orders:   make(map[uint64]core.Order),
		records:  make(map[uint64]core.Record),
		nonces:   make(map[common.Address]uint64),
	}
}

func (s *MemoryStore) Commit(cs core.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range cs.Balances {
		if b.Amount == nil || b.Amount.IsZero() {
			delete(s.balances, b.Key())
			continue
		}
		s.balances[b.Key()] = core.Balance{Asset: b.Asset, Account: b.Account, Amount: b.Amount.Clone()}
	}
	for _, o := range cs.Orders {
		s.orders[o.ID] = o.Clone()
	}
	if cs.LastOrderID != 0 {
		s.lastID = cs.LastOrderID
	}
	for _, seq := range cs.DeleteRecords {
		delete(s.records, seq)
	}
	for _, r := range cs.Records {
		s.records[r.Seq] = r
	}
	return nil
}

func (s *MemoryStore) Load() (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := core.Snapshot{LastOrderID: s.lastID}
	for _, b := range s.balances {
		snap.Balances = append(snap.Balances, core.Balance{Asset: b.Asset, Account: b.Account, Amount: b.Amount.Clone()})
	}
	for _, o := range s.orders {
		snap.Orders = append(snap.Orders, o.Clone())
	}
	sort.Slice(snap.Orders, func(i, j int) bool { return snap.Orders[i].ID < snap.Orders[j].ID })
	for _, r := range s.records {
		snap.Records = append(snap.Records, r)
	}
	sort.Slice(snap.Records, func(i, j int) bool { return snap.Records[i].Seq < snap.Records[j].Seq })
	return snap, nil
}

func (s *MemoryStore) SaveNonce(account common.Address, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[account] = nonce
	return nil
}

func (s *MemoryStore) LoadNonces() (map[common.Address]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[common.Address]uint64, len(s.nonces))
	for a, n := range s.nonces {
		out[a] = n
	}
	return out, nil
}
