package custody

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// Tx is an overlay of pending balance changes.
// A failed Credit or Debit leaves the Tx exactly as it was, so callers
// may simply drop a Tx after any error.
type Tx struct {
	ledger *Ledger
	staged map[core.BalanceKey]*uint256.Int // key -> absolute pending balance
	done   bool
}

// BalanceOf returns the balance as seen through the pending changes
func (tx *Tx) BalanceOf(key core.BalanceKey) *uint256.Int {
	if bal, ok := tx.staged[key]; ok {
		return bal.Clone()
	}
	return tx.ledger.get(key)
}

// Credit stages an increase of key's balance by amount
func (tx *Tx) Credit(key core.BalanceKey, amount *uint256.Int) error {
	cur := tx.BalanceOf(key)
	next, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("credit %s by %s: %w", key, amount.Dec(), core.ErrAmountOverflow)
	}
	tx.staged[key] = next
	return nil
}

// Debit stages a decrease of key's balance by amount.
// Returns ErrInsufficientBalance instead of wrapping below zero.
func (tx *Tx) Debit(key core.BalanceKey, amount *uint256.Int) error {
	cur := tx.BalanceOf(key)
	next, underflow := new(uint256.Int).SubOverflow(cur, amount)
	if underflow {
		return fmt.Errorf("debit %s: have %s, need %s: %w", key, cur.Dec(), amount.Dec(), core.ErrInsufficientBalance)
	}
	tx.staged[key] = next
	return nil
}

// Changes returns the absolute post-commit value of every touched key,
// sorted by (asset, account)
func (tx *Tx) Changes() []core.Balance {
	out := make([]core.Balance, 0, len(tx.staged))
	for key, bal := range tx.staged {
		out = append(out, core.Balance{Asset: key.Asset, Account: key.Account, Amount: bal.Clone()})
	}
	sortBalances(out)
	return out
}

// Commit applies all staged changes to the ledger.
// A Tx can be committed once.
func (tx *Tx) Commit() {
	if tx.done {
		panic("custody: tx already committed")
	}
	tx.done = true
	for key, bal := range tx.staged {
		if bal.IsZero() {
			delete(tx.ledger.balances, key)
			continue
		}
		tx.ledger.balances[key] = bal
	}
}
