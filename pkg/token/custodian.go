package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Custodian is the exchange's account on the registry. It pulls approved
// deposits into itself and pays withdrawals out of itself.
type Custodian struct {
	Registry *Registry
	Address  common.Address
}

func NewCustodian(reg *Registry, addr common.Address) *Custodian {
	return &Custodian{Registry: reg, Address: addr}
}

// TransferIn pulls amount from `from` using the allowance granted to the custodian
func (c *Custodian) TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Registry.TransferFrom(asset, c.Address, from, c.Address, amount)
}

// TransferOut pays amount from the custodian to `to`
func (c *Custodian) TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Registry.Transfer(asset, c.Address, to, amount)
}

// Holdings returns how much of asset the custodian holds
func (c *Custodian) Holdings(_ context.Context, asset common.Address) (*uint256.Int, error) {
	return c.Registry.BalanceOf(asset, c.Address)
}
