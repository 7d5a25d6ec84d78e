package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// Deposit pulls amount of asset from account's wallet into custody and
// returns the new custody balance. The account must have approved the
// custodian on the asset ledger beforehand.
func (e *Engine) Deposit(ctx context.Context, asset, account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkHalted(); err != nil {
		return nil, err
	}

	key := core.BalanceKey{Asset: asset, Account: account}
	tx := e.custody.Begin()
	if err := tx.Credit(key, amount); err != nil {
		return nil, err
	}
	balance := tx.BalanceOf(key)

	rec, err := e.record(core.DepositEvent{
		Asset:   asset,
		Account: account,
		Amount:  amount.Clone(),
		Balance: balance.Clone(),
	})
	if err != nil {
		return nil, err
	}

	if err := e.assets.TransferIn(ctx, asset, account, amount); err != nil {
		e.log().Warnw("deposit_rejected", "asset", asset.Hex(), "account", account.Hex(), "amount", amount.Dec(), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrTransferFailed, err)
	}

	cs := core.ChangeSet{Balances: tx.Changes(), Records: []core.Record{rec}}
	if err := e.persist(cs); err != nil {
		// units already left the wallet; hand them back
		if rerr := e.assets.TransferOut(context.WithoutCancel(ctx), asset, account, amount); rerr != nil {
			e.log().Errorw("deposit_refund_failed", "asset", asset.Hex(), "account", account.Hex(), "amount", amount.Dec(), "err", rerr)
			return nil, fmt.Errorf("%w (refund failed: %v)", err, rerr)
		}
		e.log().Warnw("deposit_refunded", "asset", asset.Hex(), "account", account.Hex(), "amount", amount.Dec(), "err", err)
		return nil, err
	}

	tx.Commit()
	e.publish(rec)

	e.log().Infow("deposit_applied", "asset", asset.Hex(), "account", account.Hex(), "amount", amount.Dec(), "balance", balance.Dec())
	return balance, nil
}

// Withdraw moves amount of asset out of custody back to account's wallet
// and returns the remaining custody balance.
//
// The debit is made durable before the external transfer. If the
// transfer fails, a compensating commit restores the balance and drops
// the withdraw record. If that commit fails too the engine halts.
func (e *Engine) Withdraw(ctx context.Context, asset, account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkHalted(); err != nil {
		return nil, err
	}

	key := core.BalanceKey{Asset: asset, Account: account}
	before := e.custody.BalanceOf(asset, account)
	tx := e.custody.Begin()
	if err := tx.Debit(key, amount); err != nil {
		return nil, err
	}
	balance := tx.BalanceOf(key)

	rec, err := e.record(core.WithdrawEvent{
		Asset:   asset,
		Account: account,
		Amount:  amount.Clone(),
		Balance: balance.Clone(),
	})
	if err != nil {
		return nil, err
	}

	if err := e.persist(core.ChangeSet{Balances: tx.Changes(), Records: []core.Record{rec}}); err != nil {
		return nil, err
	}

	if err := e.assets.TransferOut(ctx, asset, account, amount); err != nil {
		undo := core.ChangeSet{
			Balances:      []core.Balance{{Asset: asset, Account: account, Amount: before}},
			DeleteRecords: []uint64{rec.Seq},
		}
		if perr := e.persist(undo); perr != nil {
			// store now holds a debit that never left custody
			e.log().Errorw("withdraw_compensation_failed", "asset", asset.Hex(), "account", account.Hex(), "amount", amount.Dec(), "seq", rec.Seq, "err", perr)
			fault := errors.Join(fmt.Errorf("%w: %w", core.ErrTransferFailed, err), perr)
			e.halt(fault)
			return nil, fmt.Errorf("%w: %w", core.ErrHalted, fault)
		}
		e.log().Warnw("withdraw_rejected", "asset", asset.Hex(), "account", account.Hex(), "amount", amount.Dec(), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrTransferFailed, err)
	}

	tx.Commit()
	e.publish(rec)

	e.log().Infow("withdraw_applied", "asset", asset.Hex(), "account", account.Hex(), "amount", amount.Dec(), "balance", balance.Dec())
	return balance, nil
}
