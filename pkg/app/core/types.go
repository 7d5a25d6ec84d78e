package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OrderStatus represents the lifecycle state of an order.
// Transitions only move forward: Open -> Filled or Open -> Cancelled.
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name so stored orders stay readable
func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText
func (s *OrderStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "open":
		*s = OrderOpen
	case "filled":
		*s = OrderFilled
	case "cancelled":
		*s = OrderCancelled
	default:
		return fmt.Errorf("unknown order status %q", string(b))
	}
	return nil
}

// Order is a bilateral offer: the creator gives AmountGive of TokenGive
// in exchange for AmountGet of TokenGet.
// Orders are immutable except for Status.
type Order struct {
	ID         uint64         `json:"id"` // 1-based, 0 is never assigned
	Creator    common.Address `json:"creator"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	CreatedAt  int64          `json:"createdAt"` // Unix seconds
	Status     OrderStatus    `json:"status"`
}

// IsClosed returns true if the order reached a terminal status
func (o *Order) IsClosed() bool {
	return o.Status == OrderFilled || o.Status == OrderCancelled
}

// Clone returns a deep copy (amounts are pointers)
func (o Order) Clone() Order {
	cp := o
	if o.AmountGet != nil {
		cp.AmountGet = o.AmountGet.Clone()
	}
	if o.AmountGive != nil {
		cp.AmountGive = o.AmountGive.Clone()
	}
	return cp
}

// BalanceKey addresses one custody balance
type BalanceKey struct {
	Asset   common.Address
	Account common.Address
}

func (k BalanceKey) String() string {
	return k.Asset.Hex() + "/" + k.Account.Hex()
}

// Balance is a custody balance entry as persisted and restored
type Balance struct {
	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
	Amount  *uint256.Int   `json:"amount"`
}

// Key returns the ledger key for this entry
func (b Balance) Key() BalanceKey {
	return BalanceKey{Asset: b.Asset, Account: b.Account}
}

// ChangeSet is everything one state-changing operation writes.
// Stores must apply a ChangeSet atomically.
type ChangeSet struct {
	Balances    []Balance // absolute post-operation values
	Orders      []Order   // created or status-changed orders
	LastOrderID uint64    // highest order id issued after the operation (0 = unchanged)
	Records     []Record  // events emitted by the operation

	// DeleteRecords lists record sequence numbers to remove. Only used to
	// compensate a withdraw whose external transfer failed.
	DeleteRecords []uint64
}

// IsEmpty returns true if the change set writes nothing
func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.Balances) == 0 && len(cs.Orders) == 0 && cs.LastOrderID == 0 &&
		len(cs.Records) == 0 && len(cs.DeleteRecords) == 0
}

// Snapshot is the full engine state loaded from a store at start-up
type Snapshot struct {
	Balances    []Balance
	Orders      []Order
	LastOrderID uint64
	Records     []Record
}
