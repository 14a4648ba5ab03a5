package wallet

import "errors"

var (
	// ErrUnknownAsset is returned for an asset name that was never registered
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrNoBaseAsset is returned when no registered asset pays the fees
	ErrNoBaseAsset = errors.New("no base asset registered")
)
