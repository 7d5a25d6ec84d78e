package orderbook

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// Book stores orders by id and owns their lifecycle.
// Ids are assigned sequentially from 1; there is no matching, orders are
// only filled directly by id.
// Not thread-safe: the engine serializes all access.
type Book struct {
	orders map[uint64]*core.Order // id -> order
	lastID uint64                 // highest id issued so far
}

func NewBook() *Book {
	return &Book{
		orders: make(map[uint64]*core.Order),
	}
}

// Prepare validates a new order and assigns it the next id without
// storing it. Solvency is not checked here; the creator's custody
// balance is only required at fill time.
func (b *Book) Prepare(creator, tokenGet common.Address, amountGet *uint256.Int, tokenGive common.Address, amountGive *uint256.Int, createdAt int64) (core.Order, error) {
	if amountGet == nil || amountGet.IsZero() {
		return core.Order{}, fmt.Errorf("amount get must be positive: %w", core.ErrInvalidAmount)
	}
	if amountGive == nil || amountGive.IsZero() {
		return core.Order{}, fmt.Errorf("amount give must be positive: %w", core.ErrInvalidAmount)
	}

	return core.Order{
		ID:         b.lastID + 1,
		Creator:    creator,
		TokenGet:   tokenGet,
		AmountGet:  amountGet.Clone(),
		TokenGive:  tokenGive,
		AmountGive: amountGive.Clone(),
		CreatedAt:  createdAt,
		Status:     core.OrderOpen,
	}, nil
}

// Insert stores a prepared order and advances the id counter
func (b *Book) Insert(o core.Order) error {
	if o.ID != b.lastID+1 {
		return fmt.Errorf("order id %d out of sequence (last %d)", o.ID, b.lastID)
	}
	cp := o.Clone()
	b.orders[o.ID] = &cp
	b.lastID = o.ID
	return nil
}

// LastID returns the highest id issued, equal to the number of orders created
func (b *Book) LastID() uint64 {
	return b.lastID
}

// Count returns the number of orders ever created
func (b *Book) Count() int {
	return len(b.orders)
}

// Get returns a copy of the order with the given id
func (b *Book) Get(id uint64) (core.Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return core.Order{}, false
	}
	return o.Clone(), true
}

// IsFilled reports whether the order is in the filled set
func (b *Book) IsFilled(id uint64) bool {
	o, ok := b.orders[id]
	return ok && o.Status == core.OrderFilled
}

// IsCancelled reports whether the order is in the cancelled set
func (b *Book) IsCancelled(id uint64) bool {
	o, ok := b.orders[id]
	return ok && o.Status == core.OrderCancelled
}

func (b *Book) lookup(id uint64) (*core.Order, error) {
	if id == 0 || id > b.lastID {
		return nil, fmt.Errorf("order %d: %w", id, core.ErrInvalidOrderID)
	}
	o, ok := b.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d missing: %w", id, core.ErrInvalidOrderID)
	}
	return o, nil
}

// CheckFillable runs the fill preconditions in order:
// existing id, not filled, not cancelled
func (b *Book) CheckFillable(id uint64) (core.Order, error) {
	o, err := b.lookup(id)
	if err != nil {
		return core.Order{}, err
	}
	if o.Status == core.OrderFilled {
		return core.Order{}, fmt.Errorf("order %d: %w", id, core.ErrAlreadyFilled)
	}
	if o.Status == core.OrderCancelled {
		return core.Order{}, fmt.Errorf("order %d: %w", id, core.ErrOrderCancelled)
	}
	return o.Clone(), nil
}

// CheckCancelable runs the cancel preconditions in order:
// existing id, caller is the creator, order still open
func (b *Book) CheckCancelable(caller common.Address, id uint64) (core.Order, error) {
	o, err := b.lookup(id)
	if err != nil {
		return core.Order{}, err
	}
	if o.Creator != caller {
		return core.Order{}, fmt.Errorf("order %d owned by %s, caller %s: %w", id, o.Creator.Hex(), caller.Hex(), core.ErrNotOrderOwner)
	}
	if o.Status != core.OrderOpen {
		return core.Order{}, fmt.Errorf("order %d is %s: %w", id, o.Status, core.ErrInvalidState)
	}
	return o.Clone(), nil
}

// MarkFilled moves an open order to filled
func (b *Book) MarkFilled(id uint64) error {
	return b.transition(id, core.OrderFilled)
}

// MarkCancelled moves an open order to cancelled
func (b *Book) MarkCancelled(id uint64) error {
	return b.transition(id, core.OrderCancelled)
}

// transition only allows Open -> terminal; terminal states never change
func (b *Book) transition(id uint64, to core.OrderStatus) error {
	o, err := b.lookup(id)
	if err != nil {
		return err
	}
	if o.Status != core.OrderOpen {
		return fmt.Errorf("order %d: %s -> %s: %w", id, o.Status, to, core.ErrInvalidState)
	}
	o.Status = to
	return nil
}

// OpenOrders returns the account's open orders ordered by id
func (b *Book) OpenOrders(account common.Address) []core.Order {
	var out []core.Order
	for _, o := range b.orders {
		if o.Creator == account && o.Status == core.OrderOpen {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Orders returns every order created by the account ordered by id
func (b *Book) Orders(account common.Address) []core.Order {
	var out []core.Order
	for _, o := range b.orders {
		if o.Creator == account {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore replaces the book with persisted orders.
// lastID must cover every restored id.
func (b *Book) Restore(orders []core.Order, lastID uint64) error {
	restored := make(map[uint64]*core.Order, len(orders))
	for _, o := range orders {
		if o.ID == 0 || o.ID > lastID {
			return fmt.Errorf("restored order %d outside id range 1..%d", o.ID, lastID)
		}
		cp := o.Clone()
		restored[o.ID] = &cp
	}
	b.orders = restored
	b.lastID = lastID
	return nil
}
