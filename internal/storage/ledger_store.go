package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/models"
)

// Record names within a ledger namespace
const (
	KeyBalances     = "current_balance"
	KeyTxIndex      = "tx_index"
	KeySyncedHeight = "synced_height"
	KeyPendingPass  = "pending_pass"
	PrefixHeight    = "height:"
)

func heightKey(height int64) string {
	return PrefixHeight + strconv.FormatInt(height, 10)
}

// LedgerStore persists the transaction log, the sync range index and the
// balance snapshot of one asset namespace
type LedgerStore struct {
	store   Store
	unit    currency.Unit
	feeUnit currency.Unit

	// resetMu is held shared by writers and exclusively by Reset
	resetMu sync.RWMutex
	heights KeyLocks
	indexMu sync.Mutex
	balMu   sync.Mutex
}

// NewLedgerStore creates a LedgerStore. unit denominates amounts, feeUnit
// denominates fees.
func NewLedgerStore(store Store, unit, feeUnit currency.Unit) *LedgerStore {
	return &LedgerStore{store: store, unit: unit, feeUnit: feeUnit}
}

// Unit returns the denomination of the namespace
func (l *LedgerStore) Unit() currency.Unit {
	return l.unit
}

// StoreTransaction appends entry to its height bucket unless the txid is
// already present there. It reports whether the entry was written. The
// bucket and the range index are committed together.
func (l *LedgerStore) StoreTransaction(entry models.TransactionEntry) (bool, error) {
	if entry.Height < 0 {
		return false, fmt.Errorf("invalid height %d for tx %s", entry.Height, entry.TxID)
	}

	l.resetMu.RLock()
	defer l.resetMu.RUnlock()

	unlock := l.heights.Lock(heightKey(entry.Height))
	defer unlock()

	bucket, err := l.getBucket(entry.Height)
	if err != nil {
		return false, err
	}
	for _, e := range bucket {
		if strings.EqualFold(e.TxID, entry.TxID) {
			return false, nil
		}
	}
	bucket = append(bucket, entry)

	bucketData, err := json.Marshal(bucket)
	if err != nil {
		return false, fmt.Errorf("failed to marshal bucket: %w", err)
	}

	l.indexMu.Lock()
	defer l.indexMu.Unlock()

	rng, ok, err := l.GetRange()
	if err != nil {
		return false, err
	}
	if ok {
		rng = rng.Extend(entry.Height)
	} else {
		rng = models.SyncRange{Earliest: entry.Height, Latest: entry.Height}
	}
	rangeData, err := json.Marshal(rng)
	if err != nil {
		return false, fmt.Errorf("failed to marshal range: %w", err)
	}

	err = l.store.Update(func(b Batch) error {
		if err := b.Put(heightKey(entry.Height), bucketData); err != nil {
			return err
		}
		return b.Put(KeyTxIndex, rangeData)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *LedgerStore) getBucket(height int64) ([]models.TransactionEntry, error) {
	data, err := l.store.Get(heightKey(height))
	if err != nil || data == nil {
		return nil, err
	}

	var bucket []models.TransactionEntry
	if err := json.Unmarshal(data, &bucket); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bucket %d: %w", height, err)
	}
	for i := range bucket {
		bucket[i] = bucket[i].WithUnit(l.unit, l.feeUnit)
	}
	return bucket, nil
}

// GetBucket returns the entries stored at height
func (l *LedgerStore) GetBucket(height int64) ([]models.TransactionEntry, error) {
	return l.getBucket(height)
}

// GetRange returns the sync range index. ok is false when no transaction
// was ever stored.
func (l *LedgerStore) GetRange() (rng models.SyncRange, ok bool, err error) {
	data, err := l.store.Get(KeyTxIndex)
	if err != nil || data == nil {
		return rng, false, err
	}
	if err := json.Unmarshal(data, &rng); err != nil {
		return rng, false, fmt.Errorf("failed to unmarshal tx index: %w", err)
	}
	return rng, true, nil
}

// EachBucket calls fn with every non-empty bucket whose height lies in
// [low, high] and within the range index, in ascending height order.
// Buckets are read one at a time. A negative bound means unbounded.
func (l *LedgerStore) EachBucket(low, high int64, fn func(models.Bucket) error) error {
	rng, ok, err := l.GetRange()
	if err != nil || !ok {
		return err
	}
	if low < 0 || low < rng.Earliest {
		low = rng.Earliest
	}
	if high < 0 || high > rng.Latest {
		high = rng.Latest
	}
	if low > high {
		return nil
	}

	var heights []int64
	err = l.store.Iterate(PrefixHeight, func(key string, _ []byte) error {
		h, err := strconv.ParseInt(strings.TrimPrefix(key, PrefixHeight), 10, 64)
		if err != nil {
			return nil
		}
		if h >= low && h <= high {
			heights = append(heights, h)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	for _, h := range heights {
		entries, err := l.getBucket(h)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}
		if err := fn(models.Bucket{Height: h, Entries: entries}); err != nil {
			return err
		}
	}
	return nil
}

// GetBalances returns the balance snapshot in insertion order
func (l *LedgerStore) GetBalances() ([]models.BalanceEntry, error) {
	data, err := l.store.Get(KeyBalances)
	if err != nil || data == nil {
		return nil, err
	}

	var balances []models.BalanceEntry
	if err := json.Unmarshal(data, &balances); err != nil {
		return nil, fmt.Errorf("failed to unmarshal balances: %w", err)
	}
	for i := range balances {
		balances[i].Balance = balances[i].Balance.WithUnit(l.unit)
	}
	return balances, nil
}

// SetAddressBalance replaces the confirmed balance of address and persists
// the snapshot before returning
func (l *LedgerStore) SetAddressBalance(address string, amount currency.Amount) error {
	address = strings.ToLower(address)

	l.resetMu.RLock()
	defer l.resetMu.RUnlock()
	l.balMu.Lock()
	defer l.balMu.Unlock()

	balances, err := l.GetBalances()
	if err != nil {
		return err
	}

	found := false
	for i := range balances {
		if balances[i].Address == address {
			balances[i].Balance = amount
			found = true
			break
		}
	}
	if !found {
		balances = append(balances, models.BalanceEntry{Address: address, Balance: amount})
	}

	data, err := json.Marshal(balances)
	if err != nil {
		return fmt.Errorf("failed to marshal balances: %w", err)
	}
	return l.store.Put(KeyBalances, data)
}

// Reset removes the balances, the range index and the checkpoint before the
// transaction buckets so an interrupted reset never leaves a balance
// pointing at missing history
func (l *LedgerStore) Reset() error {
	l.resetMu.Lock()
	defer l.resetMu.Unlock()

	err := l.store.Update(func(b Batch) error {
		for _, key := range []string{KeyBalances, KeyTxIndex, KeySyncedHeight, KeyPendingPass} {
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return l.store.Clear()
}
