package sync

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/thanhnp/wallet-ledger/internal/balance"
	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/hdwallet"
	"github.com/thanhnp/wallet-ledger/internal/models"
	"github.com/thanhnp/wallet-ledger/internal/storage"
)

// ChainClient is the part of the indexer client used by sync passes
type ChainClient interface {
	GetTransactionsByAddress(ctx context.Context, q models.TxQuery) ([]models.ChainTx, error)
	BlockNumber(ctx context.Context) (int64, error)
}

// Wallet is the HD wallet collaborator of one asset
type Wallet interface {
	EachAccount(ctx context.Context, visit hdwallet.Visit) (halted bool, err error)
	ResetSyncState() error
	AddAddress(address string) error
	IsInUse(address string) (bool, error)
	ActiveAddresses() ([]string, error)
}

// Asset is one ledger namespace: the base asset or a token sub-ledger
type Asset struct {
	Name     string
	Contract string // empty for the base asset
	Unit     currency.Unit
	FeeUnit  currency.Unit

	Ledger   *storage.LedgerStore
	Sync     *storage.SyncStore
	Wallet   Wallet
	Balances *balance.Aggregator
}

// IsBase reports whether the asset is the one fees are paid in
func (a *Asset) IsBase() bool {
	return a.Contract == ""
}

// Normalize converts an indexer transaction into a ledger entry seen from
// address
func (a *Asset) Normalize(address string, tx models.ChainTx) (models.TransactionEntry, error) {
	amount, err := currency.NewFromBase(a.Unit, tx.Value)
	if err != nil {
		return models.TransactionEntry{}, fmt.Errorf("tx %s value: %w", tx.Hash, err)
	}
	if amount.Sign() < 0 {
		return models.TransactionEntry{}, fmt.Errorf("tx %s value: %w: negative %s", tx.Hash, currency.ErrInvalidAmount, tx.Value)
	}

	feeRate := currency.Zero(a.FeeUnit)
	fee := currency.Zero(a.FeeUnit)
	if tx.GasPrice != "" {
		if feeRate, err = currency.NewFromBase(a.FeeUnit, tx.GasPrice); err != nil {
			return models.TransactionEntry{}, fmt.Errorf("tx %s gas price: %w", tx.Hash, err)
		}
		if tx.Gas != "" {
			gas, err := currency.NewFromBase(a.FeeUnit, tx.Gas)
			if err != nil {
				return models.TransactionEntry{}, fmt.Errorf("tx %s gas: %w", tx.Hash, err)
			}
			if gas.Sign() < 0 || feeRate.Sign() < 0 {
				return models.TransactionEntry{}, fmt.Errorf("tx %s fee: %w: negative gas or gas price", tx.Hash, currency.ErrInvalidAmount)
			}
			fee = currency.NewFromBigInt(a.FeeUnit, new(big.Int).Mul(gas.BigInt(), feeRate.BigInt()))
		}
	}

	from := strings.ToLower(tx.From)
	to := strings.ToLower(tx.To)
	direction := models.DirectionIn
	if from == strings.ToLower(address) {
		direction = models.DirectionOut
	}

	return models.TransactionEntry{
		TxID:      strings.ToLower(tx.Hash),
		From:      from,
		To:        to,
		Amount:    amount,
		Height:    tx.BlockNumber,
		Direction: direction,
		Fee:       fee,
		FeeRate:   feeRate,
		Currency:  a.Unit.Name,
	}, nil
}
