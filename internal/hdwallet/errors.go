package hdwallet

import (
	"errors"
	"fmt"
)

var (
	// ErrDerivation is the root of every derivation failure
	ErrDerivation = errors.New("derivation error")
	// ErrNullDerivationPath is returned when the path is empty
	ErrNullDerivationPath = fmt.Errorf("%w: path must not be null", ErrDerivation)
	// ErrMalformedDerivationPath is returned when the path is not in the
	// form m/<purpose>'/<coin>'/<account>'/<change>/<index>
	ErrMalformedDerivationPath = fmt.Errorf("%w: path is malformed", ErrDerivation)
	// ErrInvalidMnemonic is returned when the mnemonic fails the bip39 checksum
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	// ErrCursorExhausted is returned when an account type has no index left
	ErrCursorExhausted = fmt.Errorf("%w: no index left for account type", ErrDerivation)
)
