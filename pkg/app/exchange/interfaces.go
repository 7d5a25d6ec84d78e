package exchange

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// AssetLedger is the external token ledger the engine pulls units from
// and pushes units to. Calls cross a trust boundary and may fail.
type AssetLedger interface {
	// TransferIn moves previously approved units from `from` into custody
	TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error
	// TransferOut moves units from custody to `to`
	TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error
}

// HoldingsReporter is optionally implemented by an AssetLedger that can
// report how many units of an asset sit in the custody account.
// Audit uses it to check conservation.
type HoldingsReporter interface {
	Holdings(ctx context.Context, asset common.Address) (*uint256.Int, error)
}

// Store persists engine state. Commit must apply the whole ChangeSet or
// nothing.
type Store interface {
	Commit(cs core.ChangeSet) error
	Load() (core.Snapshot, error)
}
