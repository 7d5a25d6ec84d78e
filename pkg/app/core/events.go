package core

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names an event type on the wire and in storage
type EventKind string

const (
	KindDeposit        EventKind = "Deposit"
	KindWithdraw       EventKind = "Withdraw"
	KindOrderCreated   EventKind = "Order"
	KindOrderCancelled EventKind = "Cancel"
	KindTrade          EventKind = "Trade"
)

// Event is emitted once per successful state-changing operation
type Event interface {
	Kind() EventKind
}

// DepositEvent is emitted after custody is credited from the asset ledger
type DepositEvent struct {
	Asset   common.Address `json:"token"`
	Account common.Address `json:"user"`
	Amount  *uint256.Int   `json:"amount"`
	Balance *uint256.Int   `json:"balance"` // custody balance after the deposit
}

// WithdrawEvent is emitted after units leave custody
type WithdrawEvent struct {
	Asset   common.Address `json:"token"`
	Account common.Address `json:"user"`
	Amount  *uint256.Int   `json:"amount"`
	Balance *uint256.Int   `json:"balance"`
}

// OrderCreatedEvent carries the full order tuple
type OrderCreatedEvent struct {
	ID         uint64         `json:"id"`
	Creator    common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	CreatedAt  int64          `json:"timestamp"`
}

// OrderCancelledEvent repeats the cancelled order's tuple
type OrderCancelledEvent struct {
	ID         uint64         `json:"id"`
	Creator    common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	CreatedAt  int64          `json:"timestamp"`
}

// TradeEvent is emitted when an order is filled.
// CreatedAt is the fill time, not the order's creation time.
type TradeEvent struct {
	ID         uint64         `json:"id"`
	Filler     common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	Creator    common.Address `json:"creator"`
	Fee        *uint256.Int   `json:"fee"`
	CreatedAt  int64          `json:"timestamp"`
}

func (DepositEvent) Kind() EventKind        { return KindDeposit }
func (WithdrawEvent) Kind() EventKind       { return KindWithdraw }
func (OrderCreatedEvent) Kind() EventKind   { return KindOrderCreated }
func (OrderCancelledEvent) Kind() EventKind { return KindOrderCancelled }
func (TradeEvent) Kind() EventKind          { return KindTrade }

// NewOrderCreatedEvent builds the creation event for an order
func NewOrderCreatedEvent(o Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		ID:         o.ID,
		Creator:    o.Creator,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet.Clone(),
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive.Clone(),
		CreatedAt:  o.CreatedAt,
	}
}

// NewOrderCancelledEvent builds the cancel event for an order
func NewOrderCancelledEvent(o Order) OrderCancelledEvent {
	return OrderCancelledEvent(NewOrderCreatedEvent(o))
}

// Record is the append-only envelope around an event.
// Seq starts at 1 and has no gaps.
type Record struct {
	Seq     uint64          `json:"seq"`
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NewRecord wraps an event at the given sequence number
func NewRecord(seq uint64, ev Event) (Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal %s event: %w", ev.Kind(), err)
	}
	return Record{Seq: seq, Kind: ev.Kind(), Payload: payload}, nil
}

// Decode unmarshals the payload into its concrete event type
func (r Record) Decode() (Event, error) {
	var (
		ev  Event
		err error
	)
	switch r.Kind {
	case KindDeposit:
		var e DepositEvent
		err = json.Unmarshal(r.Payload, &e)
		ev = e
	case KindWithdraw:
		var e WithdrawEvent
		err = json.Unmarshal(r.Payload, &e)
		ev = e
	case KindOrderCreated:
		var e OrderCreatedEvent
		err = json.Unmarshal(r.Payload, &e)
		ev = e
	case KindOrderCancelled:
		var e OrderCancelledEvent
		err = json.Unmarshal(r.Payload, &e)
		ev = e
	case KindTrade:
		var e TradeEvent
		err = json.Unmarshal(r.Payload, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event kind %q", r.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", r.Kind, err)
	}
	return ev, nil
}
