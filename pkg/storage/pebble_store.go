package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// PebbleStore persists exchange state in Pebble.
// Every ChangeSet is written as one synced batch, so a crash never leaves
// half an operation on disk.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) the database at path
func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Commit writes the change set atomically
func (s *PebbleStore) Commit(cs core.ChangeSet) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, b := range cs.Balances {
		key := balanceKey(b.Asset, b.Account)
		if b.Amount == nil || b.Amount.IsZero() {
			if err := batch.Delete(key, nil); err != nil {
				return fmt.Errorf("failed to delete balance %s: %w", b.Key(), err)
			}
			continue
		}
		if err := batch.Set(key, encodeAmount(b.Amount), nil); err != nil {
			return fmt.Errorf("failed to stage balance %s: %w", b.Key(), err)
		}
	}

	for _, o := range cs.Orders {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order %d: %w", o.ID, err)
		}
		if err := batch.Set(orderKey(o.ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage order %d: %w", o.ID, err)
		}
	}

	if cs.LastOrderID != 0 {
		if err := batch.Set(lastOrderIDKey(), encodeUint64(cs.LastOrderID), nil); err != nil {
			return fmt.Errorf("failed to stage last order id: %w", err)
		}
	}

	for _, seq := range cs.DeleteRecords {
		if err := batch.Delete(eventKey(seq), nil); err != nil {
			return fmt.Errorf("failed to delete record %d: %w", seq, err)
		}
	}
	for _, r := range cs.Records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal record %d: %w", r.Seq, err)
		}
		if err := batch.Set(eventKey(r.Seq), data, nil); err != nil {
			return fmt.Errorf("failed to stage record %d: %w", r.Seq, err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Load reads the full persisted state
func (s *PebbleStore) Load() (core.Snapshot, error) {
	var snap core.Snapshot

	balances, err := s.loadBalances()
	if err != nil {
		return snap, err
	}
	snap.Balances = balances

	orders, err := s.loadOrders()
	if err != nil {
		return snap, err
	}
	snap.Orders = orders

	last, err := s.LastOrderID()
	if err != nil {
		return snap, err
	}
	snap.LastOrderID = last

	records, err := s.LoadRecords(1, 0)
	if err != nil {
		return snap, err
	}
	snap.Records = records
	return snap, nil
}

// LastOrderID returns the highest order id ever issued, 0 if none
func (s *PebbleStore) LastOrderID() (uint64, error) {
	val, closer, err := s.db.Get(lastOrderIDKey())
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last order id: %w", err)
	}
	defer closer.Close()
	return decodeUint64(val)
}

// LoadOrder loads one order. Returns false if it doesn't exist.
func (s *PebbleStore) LoadOrder(id uint64) (core.Order, bool, error) {
	data, closer, err := s.db.Get(orderKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return core.Order{}, false, nil
	}
	if err != nil {
		return core.Order{}, false, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	defer closer.Close()

	var o core.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return core.Order{}, false, fmt.Errorf("failed to unmarshal order %d: %w", id, err)
	}
	return o, true, nil
}

// LoadRecords returns up to limit records starting at seq from.
// limit <= 0 loads everything.
func (s *PebbleStore) LoadRecords(from uint64, limit int) ([]core.Record, error) {
	if from == 0 {
		from = 1
	}
	prefix := []byte(prefixEvent)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(from),
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open record iterator: %w", err)
	}
	defer iter.Close()

	var out []core.Record
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		seq, err := parseEventKey(iter.Key())
		if err != nil {
			return nil, err
		}
		var r core.Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %d: %w", seq, err)
		}
		if r.Seq != seq {
			return nil, fmt.Errorf("record under key %d has seq %d", seq, r.Seq)
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

// SaveNonce records the last signed-request nonce accepted for account
func (s *PebbleStore) SaveNonce(account common.Address, nonce uint64) error {
	if err := s.db.Set(nonceKey(account), encodeUint64(nonce), pebble.Sync); err != nil {
		return fmt.Errorf("failed to save nonce for %s: %w", account.Hex(), err)
	}
	return nil
}

// LoadNonces returns the last accepted nonce of every account
func (s *PebbleStore) LoadNonces() (map[common.Address]uint64, error) {
	prefix := []byte(prefixNonce)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open nonce iterator: %w", err)
	}
	defer iter.Close()

	out := make(map[common.Address]uint64)
	for iter.First(); iter.Valid(); iter.Next() {
		account, err := parseNonceKey(iter.Key())
		if err != nil {
			return nil, err
		}
		nonce, err := decodeUint64(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("nonce of %s: %w", account.Hex(), err)
		}
		out[account] = nonce
	}
	return out, iter.Error()
}

func (s *PebbleStore) loadBalances() ([]core.Balance, error) {
	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open balance iterator: %w", err)
	}
	defer iter.Close()

	var out []core.Balance
	for iter.First(); iter.Valid(); iter.Next() {
		asset, account, err := parseBalanceKey(iter.Key())
		if err != nil {
			return nil, err
		}
		amount, err := decodeAmount(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("balance %s/%s: %w", asset.Hex(), account.Hex(), err)
		}
		out = append(out, core.Balance{Asset: asset, Account: account, Amount: amount})
	}
	return out, iter.Error()
}

func (s *PebbleStore) loadOrders() ([]core.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open order iterator: %w", err)
	}
	defer iter.Close()

	var out []core.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o core.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order %s: %w", iter.Key(), err)
		}
		out = append(out, o)
	}
	return out, iter.Error()
}
