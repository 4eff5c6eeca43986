package forwarder

import "errors"

var (
	// ErrUnauthorized signals that the caller lacks the privilege the operation requires.
	ErrUnauthorized = errors.New("caller is not the owner")
	// ErrInvalidAddress signals an undefined address, or the forwarder's own
	// address, where a live counterparty address is required.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidAmount signals a non-positive distribution amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrTransferRejected signals that the token ledger refused, or failed to
	// fully carry out, a pull or a push.
	ErrTransferRejected = errors.New("transfer rejected")
	// ErrReentrancyBlocked signals that another distribute or sweep is in
	// flight on the same forwarder.
	ErrReentrancyBlocked = errors.New("operation already in flight")

	ErrAlreadyInitialized = errors.New("forwarder state already initialized")
	ErrNotInitialized     = errors.New("forwarder state not initialized")

	// a refund left custody but the recipient's balance rose by less
	errCreditedShort = errors.New("recipient credited short")
)
