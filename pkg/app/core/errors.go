package core

import "errors"

// Engine error taxonomy. Every rejected operation wraps exactly one of
// these so callers can branch with errors.Is.
var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrAmountOverflow        = errors.New("amount overflow")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInvalidOrderID        = errors.New("invalid order id")
	ErrAlreadyFilled         = errors.New("order already filled")
	ErrOrderCancelled        = errors.New("cannot fill cancelled order")
	ErrNotOrderOwner         = errors.New("not order owner")
	ErrInvalidState          = errors.New("invalid order state")

	// ErrTransferFailed wraps a failure reported by the asset ledger.
	// The ledger's own error is joined alongside it.
	ErrTransferFailed = errors.New("asset transfer failed")

	// ErrPersistence is returned when the durable commit of an operation
	// fails. The operation has no in-memory effect.
	ErrPersistence = errors.New("persistence failed")

	// ErrHalted is returned by every mutation once the store and memory
	// may disagree. Only a restart from the store clears it.
	ErrHalted = errors.New("engine halted")
)
