package custody

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// Ledger tracks units the exchange holds on behalf of each account,
// keyed by (asset, account).
// Not thread-safe: all access goes through the engine's lock.
type Ledger struct {
	balances map[core.BalanceKey]*uint256.Int
}

// NewLedger creates an empty custody ledger
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[core.BalanceKey]*uint256.Int),
	}
}

// BalanceOf returns the custody balance, zero if the entry doesn't exist.
// The returned value is a copy.
func (l *Ledger) BalanceOf(asset, account common.Address) *uint256.Int {
	return l.get(core.BalanceKey{Asset: asset, Account: account})
}

func (l *Ledger) get(key core.BalanceKey) *uint256.Int {
	if bal, ok := l.balances[key]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

// Total returns the sum of all custody balances for an asset.
// Used by conservation audits.
func (l *Ledger) Total(asset common.Address) (*uint256.Int, error) {
	total := new(uint256.Int)
	for key, bal := range l.balances {
		if key.Asset != asset {
			continue
		}
		if _, overflow := total.AddOverflow(total, bal); overflow {
			return nil, fmt.Errorf("total of %s: %w", asset.Hex(), core.ErrAmountOverflow)
		}
	}
	return total, nil
}

// Assets returns every asset that has at least one entry, sorted by address
func (l *Ledger) Assets() []common.Address {
	seen := make(map[common.Address]struct{})
	for key := range l.balances {
		seen[key.Asset] = struct{}{}
	}
	assets := make([]common.Address, 0, len(seen))
	for a := range seen {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool {
		return bytes.Compare(assets[i][:], assets[j][:]) < 0
	})
	return assets
}

// Snapshot returns every non-zero entry in deterministic order
func (l *Ledger) Snapshot() []core.Balance {
	out := make([]core.Balance, 0, len(l.balances))
	for key, bal := range l.balances {
		if bal.IsZero() {
			continue
		}
		out = append(out, core.Balance{Asset: key.Asset, Account: key.Account, Amount: bal.Clone()})
	}
	sortBalances(out)
	return out
}

// Restore replaces the ledger contents with a persisted snapshot
func (l *Ledger) Restore(entries []core.Balance) {
	l.balances = make(map[core.BalanceKey]*uint256.Int, len(entries))
	for _, e := range entries {
		if e.Amount == nil || e.Amount.IsZero() {
			continue
		}
		l.balances[e.Key()] = e.Amount.Clone()
	}
}

// Begin starts a staged set of mutations against the ledger.
// Nothing is visible in the ledger until Commit.
func (l *Ledger) Begin() *Tx {
	return &Tx{
		ledger: l,
		staged: make(map[core.BalanceKey]*uint256.Int),
	}
}

func sortBalances(entries []core.Balance) {
	sort.Slice(entries, func(i, j int) bool {
		if c := bytes.Compare(entries[i].Asset[:], entries[j].Asset[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(entries[i].Account[:], entries[j].Account[:]) < 0
	})
}
