package models

import (
	"strings"

	"github.com/thanhnp/wallet-ledger/internal/currency"
)

// Direction of a transaction relative to the wallet address it was found for
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// TransactionEntry is a normalized transaction stored in a ledger namespace
type TransactionEntry struct {
	TxID      string          `json:"txid"`
	From      string          `json:"from_address"`
	To        string          `json:"to_address"`
	Amount    currency.Amount `json:"amount"`
	Height    int64           `json:"height"`
	Direction Direction       `json:"direction"`
	Fee       currency.Amount `json:"fee"`
	FeeRate   currency.Amount `json:"fee_rate"`
	Currency  string          `json:"currency"`
}

// Touches reports whether addr is the sender or the receiver
func (e TransactionEntry) Touches(addr string) bool {
	return strings.EqualFold(e.From, addr) || strings.EqualFold(e.To, addr)
}

// WithUnit reattaches the denominations lost by the JSON encoding
func (e TransactionEntry) WithUnit(unit, feeUnit currency.Unit) TransactionEntry {
	e.Amount = e.Amount.WithUnit(unit)
	e.Fee = e.Fee.WithUnit(feeUnit)
	e.FeeRate = e.FeeRate.WithUnit(feeUnit)
	return e
}

// SyncRange is the span of heights that hold at least one entry
type SyncRange struct {
	Earliest int64 `json:"earliest"`
	Latest   int64 `json:"latest"`
}

// Extend returns the range widened to include height
func (r SyncRange) Extend(height int64) SyncRange {
	if height < r.Earliest {
		r.Earliest = height
	}
	if height > r.Latest {
		r.Latest = height
	}
	return r
}

// Contains reports whether height lies within the range
func (r SyncRange) Contains(height int64) bool {
	return height >= r.Earliest && height <= r.Latest
}

// BalanceEntry is the confirmed balance of one address
type BalanceEntry struct {
	Address string          `json:"address"`
	Balance currency.Amount `json:"balance"`
}

// Bucket groups the entries stored at one height
type Bucket struct {
	Height  int64              `json:"height"`
	Entries []TransactionEntry `json:"entries"`
}
