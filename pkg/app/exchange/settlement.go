package exchange

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
	"github.com/uhyunpark/hyperswap/pkg/app/core/custody"
)

// Fee returns floor(amountGet * feePercent / 100)
func Fee(amountGet *uint256.Int, feePercent uint64) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulOverflow(amountGet, uint256.NewInt(feePercent))
	if overflow {
		return nil, fmt.Errorf("fee on %s at %d%%: %w", amountGet.Dec(), feePercent, core.ErrAmountOverflow)
	}
	return fee.Div(fee, uint256.NewInt(100)), nil
}

// FillOrder settles order id in full against filler.
//
// The filler pays amountGet plus the fee in tokenGet and receives
// amountGive of tokenGive from the creator. All five balance changes,
// the status change and the Trade record commit together or not at all.
func (e *Engine) FillOrder(ctx context.Context, filler common.Address, id uint64) (core.TradeEvent, error) {
	if err := ctx.Err(); err != nil {
		return core.TradeEvent{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkHalted(); err != nil {
		return core.TradeEvent{}, err
	}

	order, err := e.book.CheckFillable(id)
	if err != nil {
		e.log().Debugw("fill_rejected", "id", id, "filler", filler.Hex(), "err", err)
		return core.TradeEvent{}, err
	}

	fee, err := Fee(order.AmountGet, e.cfg.FeePercent)
	if err != nil {
		return core.TradeEvent{}, err
	}
	tx, err := e.stageTrade(order, filler, fee)
	if err != nil {
		e.log().Debugw("fill_rejected", "id", id, "filler", filler.Hex(), "err", err)
		return core.TradeEvent{}, err
	}

	trade := core.TradeEvent{
		ID:         order.ID,
		Filler:     filler,
		TokenGet:   order.TokenGet,
		AmountGet:  order.AmountGet.Clone(),
		TokenGive:  order.TokenGive,
		AmountGive: order.AmountGive.Clone(),
		Creator:    order.Creator,
		Fee:        fee,
		CreatedAt:  e.now(),
	}
	rec, err := e.record(trade)
	if err != nil {
		return core.TradeEvent{}, err
	}

	filled := order
	filled.Status = core.OrderFilled
	cs := core.ChangeSet{
		Balances: tx.Changes(),
		Orders:   []core.Order{filled},
		Records:  []core.Record{rec},
	}
	if err := e.persist(cs); err != nil {
		return core.TradeEvent{}, err
	}

	tx.Commit()
	if err := e.book.MarkFilled(id); err != nil {
		panic(err) // checked fillable under the same lock
	}
	e.publish(rec)

	e.log().Infow("order_filled",
		"id", id,
		"creator", order.Creator.Hex(),
		"filler", filler.Hex(),
		"amount_get", order.AmountGet.Dec(),
		"amount_give", order.AmountGive.Dec(),
		"fee", fee.Dec(),
	)
	return trade, nil
}

// stageTrade stages the settlement transfers. Credits and debits are
// applied in order on one overlay, so a self-fill nets out correctly.
func (e *Engine) stageTrade(o core.Order, filler common.Address, fee *uint256.Int) (*custody.Tx, error) {
	total, overflow := new(uint256.Int).AddOverflow(o.AmountGet, fee)
	if overflow {
		return nil, fmt.Errorf("amount get plus fee: %w", core.ErrAmountOverflow)
	}

	tx := e.custody.Begin()
	steps := []struct {
		credit bool
		key    core.BalanceKey
		amount *uint256.Int
	}{
		{false, core.BalanceKey{Asset: o.TokenGet, Account: filler}, total},
		{true, core.BalanceKey{Asset: o.TokenGet, Account: o.Creator}, o.AmountGet},
		{true, core.BalanceKey{Asset: o.TokenGet, Account: e.cfg.FeeAccount}, fee},
		{false, core.BalanceKey{Asset: o.TokenGive, Account: o.Creator}, o.AmountGive},
		{true, core.BalanceKey{Asset: o.TokenGive, Account: filler}, o.AmountGive},
	}
	for _, s := range steps {
		if s.amount.IsZero() {
			continue
		}
		var err error
		if s.credit {
			err = tx.Credit(s.key, s.amount)
		} else {
			err = tx.Debit(s.key, s.amount)
		}
		if err != nil {
			return nil, err
		}
	}
	return tx, nil
}
