package exchange

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// MakeOrder records an offer to give amountGive of tokenGive for
// amountGet of tokenGet. The creator's custody balance is not checked
// until the order is filled.
func (e *Engine) MakeOrder(ctx context.Context, creator, tokenGet common.Address, amountGet *uint256.Int, tokenGive common.Address, amountGive *uint256.Int) (core.Order, error) {
	if err := ctx.Err(); err != nil {
		return core.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkHalted(); err != nil {
		return core.Order{}, err
	}

	order, err := e.book.Prepare(creator, tokenGet, amountGet, tokenGive, amountGive, e.now())
	if err != nil {
		return core.Order{}, err
	}
	rec, err := e.record(core.NewOrderCreatedEvent(order))
	if err != nil {
		return core.Order{}, err
	}

	cs := core.ChangeSet{
		Orders:      []core.Order{order},
		LastOrderID: order.ID,
		Records:     []core.Record{rec},
	}
	if err := e.persist(cs); err != nil {
		return core.Order{}, err
	}

	if err := e.book.Insert(order); err != nil {
		panic(err) // id came from Prepare under the same lock
	}
	e.publish(rec)

	e.log().Infow("order_created",
		"id", order.ID,
		"creator", creator.Hex(),
		"token_get", tokenGet.Hex(),
		"amount_get", order.AmountGet.Dec(),
		"token_give", tokenGive.Hex(),
		"amount_give", order.AmountGive.Dec(),
	)
	return order, nil
}

// CancelOrder closes an open order. Only the creator may cancel.
func (e *Engine) CancelOrder(ctx context.Context, caller common.Address, id uint64) (core.Order, error) {
	if err := ctx.Err(); err != nil {
		return core.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkHalted(); err != nil {
		return core.Order{}, err
	}

	order, err := e.book.CheckCancelable(caller, id)
	if err != nil {
		e.log().Debugw("cancel_rejected", "id", id, "caller", caller.Hex(), "err", err)
		return core.Order{}, err
	}
	order.Status = core.OrderCancelled

	rec, err := e.record(core.NewOrderCancelledEvent(order))
	if err != nil {
		return core.Order{}, err
	}
	if err := e.persist(core.ChangeSet{Orders: []core.Order{order}, Records: []core.Record{rec}}); err != nil {
		return core.Order{}, err
	}

	if err := e.book.MarkCancelled(id); err != nil {
		panic(err)
	}
	e.publish(rec)

	e.log().Infow("order_cancelled", "id", id, "creator", caller.Hex())
	return order, nil
}
