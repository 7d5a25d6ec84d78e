package token

import (
	"errors"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// ledgerError keeps the ERC-20 revert text while matching the engine's
// taxonomy through errors.Is
type ledgerError struct {
	msg  string
	kind error
}

func (e *ledgerError) Error() string { return e.msg }
func (e *ledgerError) Unwrap() error { return e.kind }

var (
	ErrInsufficientBalance   error = &ledgerError{"ERC20: transfer amount exceeds balance", core.ErrInsufficientBalance}
	ErrInsufficientAllowance error = &ledgerError{"ERC20: insufficient allowance", core.ErrInsufficientAllowance}
	ErrInvalidAmount         error = &ledgerError{"ERC20: invalid amount", core.ErrInvalidAmount}

	ErrZeroAddress        = errors.New("ERC20: transfer to the zero address")
	ErrApproveZeroAddress = errors.New("ERC20: cannot approve to the zero address")
	ErrUnknownToken       = errors.New("unknown token")
	ErrTokenExists        = errors.New("token already deployed")
)
