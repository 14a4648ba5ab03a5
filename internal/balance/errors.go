package balance

import "errors"

var (
	// ErrInsufficientFunds is returned when the wallet total is below the
	// requested amount
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoFundedAddress is returned when no single address holds the
	// requested amount, or a funded address cannot be resolved
	ErrNoFundedAddress = errors.New("no funded address")
)
