package token

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
)

var (
	deployer = common.HexToAddress("0xD000000000000000000000000000000000000001")
	receiver = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	spender  = common.HexToAddress("0xE000000000000000000000000000000000000002")
)

var (
	_ exchange.AssetLedger      = (*Custodian)(nil)
	_ exchange.HoldingsReporter = (*Custodian)(nil)
)

// tokens scales whole tokens to 18-decimal base units
func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func deployTKX(t *testing.T) (*Registry, Token) {
	t.Helper()
	reg := NewRegistry()
	tok, err := reg.Deploy(deployer, "TokenX", "TKX", 18, 1_000_000)
	require.NoError(t, err)
	return reg, tok
}

func TestDeployment(t *testing.T) {
	reg, tok := deployTKX(t)
	assert.Equal(t, "TokenX", tok.Name)
	assert.Equal(t, "TKX", tok.Symbol)
	assert.Equal(t, uint8(18), tok.Decimals)
	assert.Equal(t, tokens(1_000_000), tok.TotalSupply)

	bal, err := reg.BalanceOf(tok.Address, deployer)
	require.NoError(t, err)
	assert.Equal(t, tokens(1_000_000), bal)

	// second deployment from the same account gets a new address
	other, err := reg.Deploy(deployer, "mini ETH", "mETH", 18, 1_000_000)
	require.NoError(t, err)
	assert.NotEqual(t, tok.Address, other.Address)
	assert.Len(t, reg.Tokens(), 2)

	found, ok := reg.BySymbol("mETH")
	require.True(t, ok)
	assert.Equal(t, other.Address, found.Address)
}

func TestTransfer(t *testing.T) {
	reg, tok := deployTKX(t)

	require.NoError(t, reg.Transfer(tok.Address, deployer, receiver, tokens(900)))

	bal, _ := reg.BalanceOf(tok.Address, deployer)
	assert.Equal(t, tokens(999_100), bal)
	bal, _ = reg.BalanceOf(tok.Address, receiver)
	assert.Equal(t, tokens(900), bal)

	logs := reg.Transfers()
	last := logs[len(logs)-1]
	assert.Equal(t, deployer, last.From)
	assert.Equal(t, receiver, last.To)
	assert.Equal(t, tokens(900), last.Value)
}

func TestTransferRejections(t *testing.T) {
	reg, tok := deployTKX(t)

	err := reg.Transfer(tok.Address, deployer, receiver, tokens(1_000_000_000_000))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)
	assert.Equal(t, "ERC20: transfer amount exceeds balance", err.Error())

	err = reg.Transfer(tok.Address, deployer, common.Address{}, tokens(1))
	assert.ErrorIs(t, err, ErrZeroAddress)

	err = reg.Transfer(common.HexToAddress("0x01"), deployer, receiver, tokens(1))
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestApprove(t *testing.T) {
	reg, tok := deployTKX(t)

	require.NoError(t, reg.Approve(tok.Address, deployer, spender, tokens(100)))
	allowed, err := reg.Allowance(tok.Address, deployer, spender)
	require.NoError(t, err)
	assert.Equal(t, tokens(100), allowed)

	approvals := reg.Approvals()
	require.Len(t, approvals, 1)
	assert.Equal(t, deployer, approvals[0].Owner)
	assert.Equal(t, spender, approvals[0].Spender)

	err = reg.Approve(tok.Address, deployer, common.Address{}, tokens(100))
	assert.ErrorIs(t, err, ErrApproveZeroAddress)
	assert.Equal(t, "ERC20: cannot approve to the zero address", err.Error())
}

func TestTransferFrom(t *testing.T) {
	reg, tok := deployTKX(t)
	require.NoError(t, reg.Approve(tok.Address, deployer, spender, tokens(100)))

	require.NoError(t, reg.TransferFrom(tok.Address, spender, deployer, receiver, tokens(100)))

	bal, _ := reg.BalanceOf(tok.Address, deployer)
	assert.Equal(t, tokens(999_900), bal)
	bal, _ = reg.BalanceOf(tok.Address, receiver)
	assert.Equal(t, tokens(100), bal)
	allowed, _ := reg.Allowance(tok.Address, deployer, spender)
	assert.True(t, allowed.IsZero())

	err := reg.TransferFrom(tok.Address, spender, deployer, receiver, tokens(100_000_000))
	require.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.ErrorIs(t, err, core.ErrInsufficientAllowance)
	assert.Equal(t, "ERC20: insufficient allowance", err.Error())
}

func TestTransferFromKeepsAllowanceOnFailure(t *testing.T) {
	reg, tok := deployTKX(t)
	// receiver owns nothing but approves anyway
	require.NoError(t, reg.Approve(tok.Address, receiver, spender, tokens(5)))

	err := reg.TransferFrom(tok.Address, spender, receiver, deployer, tokens(5))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	allowed, _ := reg.Allowance(tok.Address, receiver, spender)
	assert.Equal(t, tokens(5), allowed)
}

func TestCustodian(t *testing.T) {
	reg, tok := deployTKX(t)
	custody := NewCustodian(reg, spender)
	ctx := context.Background()

	// no approval yet
	err := custody.TransferIn(ctx, tok.Address, deployer, tokens(10))
	assert.True(t, errors.Is(err, core.ErrInsufficientAllowance))

	require.NoError(t, reg.Approve(tok.Address, deployer, spender, tokens(10)))
	require.NoError(t, custody.TransferIn(ctx, tok.Address, deployer, tokens(10)))

	held, err := custody.Holdings(ctx, tok.Address)
	require.NoError(t, err)
	assert.Equal(t, tokens(10), held)

	require.NoError(t, custody.TransferOut(ctx, tok.Address, receiver, tokens(4)))
	held, _ = custody.Holdings(ctx, tok.Address)
	assert.Equal(t, tokens(6), held)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, custody.TransferOut(cancelled, tok.Address, receiver, tokens(1)), context.Canceled)
}
