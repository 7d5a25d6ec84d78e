package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
	"github.com/uhyunpark/hyperswap/pkg/app/core/custody"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// Config is fixed when the engine is created
type Config struct {
	FeeAccount common.Address
	FeePercent uint64 // whole percent of amountGet charged to the filler
}

// Engine is the custodial exchange: custody balances, the order book and
// trade settlement behind one writer lock.
//
// Every mutating call holds the write lock from validation through the
// durable commit and the in-memory apply, external asset transfers
// included. Readers take the read lock and never see a half-applied
// operation.
//
// Store, Logger and Clock may be set after New and before the first call.
type Engine struct {
	mu sync.RWMutex

	cfg     Config
	assets  AssetLedger
	custody *custody.Ledger
	book    *orderbook.Book
	events  *EventLog

	subscribers []func(core.Record)
	fault       error // set once a compensating commit fails

	Store  Store              // nil keeps state in memory only
	Logger *zap.SugaredLogger // nil disables logging
	Clock  util.Clock         // nil uses wall time
}

// New creates an engine with empty state
func New(cfg Config, assets AssetLedger) (*Engine, error) {
	if assets == nil {
		return nil, errors.New("asset ledger is required")
	}
	return &Engine{
		cfg:     cfg,
		assets:  assets,
		custody: custody.NewLedger(),
		book:    orderbook.NewBook(),
		events:  NewEventLog(),
	}, nil
}

func (e *Engine) log() *zap.SugaredLogger {
	if e.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return e.Logger
}

func (e *Engine) now() int64 {
	if e.Clock == nil {
		return util.RealClock{}.Now().Unix()
	}
	return e.Clock.Now().Unix()
}

// Restore replaces engine state with a persisted snapshot.
// Call before serving requests.
func (e *Engine) Restore(snap core.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	book := orderbook.NewBook()
	if err := book.Restore(snap.Orders, snap.LastOrderID); err != nil {
		return fmt.Errorf("restore orders: %w", err)
	}
	events := NewEventLog()
	if err := events.Append(snap.Records...); err != nil {
		return fmt.Errorf("restore events: %w", err)
	}
	ledger := custody.NewLedger()
	ledger.Restore(snap.Balances)

	e.custody = ledger
	e.book = book
	e.events = events

	e.log().Infow("engine_restored",
		"balances", len(snap.Balances),
		"orders", len(snap.Orders),
		"last_order_id", snap.LastOrderID,
		"records", len(snap.Records),
	)
	return nil
}

// Subscribe registers fn to receive every committed record in order.
// fn runs under the engine lock and must not block or call back into
// the engine.
func (e *Engine) Subscribe(fn func(core.Record)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// FeeAccount returns the account credited with trade fees
func (e *Engine) FeeAccount() common.Address {
	return e.cfg.FeeAccount
}

// FeePercent returns the whole-percent fee rate
func (e *Engine) FeePercent() uint64 {
	return e.cfg.FeePercent
}

// BalanceOf returns the custody balance of account in asset
func (e *Engine) BalanceOf(asset, account common.Address) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.custody.BalanceOf(asset, account)
}

// Order returns the order with the given id
func (e *Engine) Order(id uint64) (core.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.book.Get(id)
	if !ok {
		return core.Order{}, fmt.Errorf("order %d: %w", id, core.ErrInvalidOrderID)
	}
	return o, nil
}

func (e *Engine) IsFilled(id uint64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.IsFilled(id)
}

func (e *Engine) IsCancelled(id uint64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.IsCancelled(id)
}

// OrderCount returns how many orders were ever created
func (e *Engine) OrderCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.LastID()
}

// OpenOrders returns the account's open orders ordered by id
func (e *Engine) OpenOrders(account common.Address) []core.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.OpenOrders(account)
}

// Orders returns every order the account created
func (e *Engine) Orders(account common.Address) []core.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Orders(account)
}

// Events returns committed records starting at seq from
func (e *Engine) Events(from uint64, limit int) []core.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.events.Range(from, limit)
}

// EventCount returns the sequence number of the last committed record
func (e *Engine) EventCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(e.events.Len())
}

// EventDigest returns the running hash over all committed records
func (e *Engine) EventDigest() common.Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return common.Hash(e.events.Digest())
}

// Audit checks that the asset ledger holds at least as many units of
// every asset as custody owes to accounts. It is a no-op unless the
// asset ledger implements HoldingsReporter.
func (e *Engine) Audit(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	reporter, ok := e.assets.(HoldingsReporter)
	if !ok {
		return nil
	}
	for _, asset := range e.custody.Assets() {
		owed, err := e.custody.Total(asset)
		if err != nil {
			return err
		}
		held, err := reporter.Holdings(ctx, asset)
		if err != nil {
			return fmt.Errorf("holdings of %s: %w", asset.Hex(), err)
		}
		if held.Lt(owed) {
			return fmt.Errorf("asset %s: custody owes %s but holds %s", asset.Hex(), owed.Dec(), held.Dec())
		}
	}
	return nil
}

// Fault returns the error that halted the engine, nil while healthy
func (e *Engine) Fault() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fault
}

// halt latches err and rejects every later mutation. Caller holds the
// write lock.
func (e *Engine) halt(err error) {
	if e.fault == nil {
		e.fault = err
	}
	e.log().Errorw("engine_halted", "err", err)
}

func (e *Engine) checkHalted() error {
	if e.fault != nil {
		return fmt.Errorf("%w: %w", core.ErrHalted, e.fault)
	}
	return nil
}

// persist writes cs durably. Callers apply in-memory state only after it
// succeeds, then publish the records.
func (e *Engine) persist(cs core.ChangeSet) error {
	if e.Store == nil || cs.IsEmpty() {
		return nil
	}
	if err := e.Store.Commit(cs); err != nil {
		return fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}
	return nil
}

func (e *Engine) publish(recs ...core.Record) {
	if err := e.events.Append(recs...); err != nil {
		// records are built from NextSeq under the lock, so this is a bug
		panic(err)
	}
	for _, r := range recs {
		for _, fn := range e.subscribers {
			fn(r)
		}
	}
}

func (e *Engine) record(ev core.Event) (core.Record, error) {
	return core.NewRecord(e.events.NextSeq(), ev)
}

func checkAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("amount must be positive: %w", core.ErrInvalidAmount)
	}
	return nil
}
