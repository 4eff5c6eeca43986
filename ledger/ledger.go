// Package ledger defines the token ledger capability the forwarder consumes,
// and a datastore-backed reference ledger with ERC20 semantics.
package ledger

import (
	"context"
	"errors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

//go:generate go run github.com/golang/mock/mockgen -destination=mocks/mock_ledger.go -package=mocks . TokenLedger

// TokenLedger is the narrow view of an external multi-token ledger.
//
// Implementations are untrusted: a transfer may report success without moving
// funds, report failure by returning false instead of an error, or call back
// into the caller while the transfer is in flight. Callers that guard funds
// must verify movements through BalanceOf.
type TokenLedger interface {
	BalanceOf(ctx context.Context, token, holder address.Address) (abi.TokenAmount, error)

	// TransferFrom moves amount from `from` to `to`, spending the allowance
	// `from` granted to operator.
	TransferFrom(ctx context.Context, token, operator, from, to address.Address, amount abi.TokenAmount) (bool, error)

	// Transfer moves amount out of from's own balance.
	Transfer(ctx context.Context, token, from, to address.Address, amount abi.TokenAmount) (bool, error)
}

// TransferHook is invoked after a transfer has been applied. Returning an
// error reverts the transfer.
type TransferHook func(ctx context.Context, token, from, to address.Address, amount abi.TokenAmount) error

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidAddress        = errors.New("invalid address")
)
