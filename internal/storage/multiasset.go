package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/thanhnp/wallet-ledger/internal/currency"
)

// ErrAssetNotRegistered is returned for an asset without stores
var ErrAssetNotRegistered = errors.New("asset not registered")

// AssetStores holds all stores for a single asset
type AssetStores struct {
	Ledger    *LedgerStore
	Sync      *SyncStore
	Addresses *AddressStore
}

// NewAssetStores creates the stores of an asset on backend. The ledger and
// the checkpoint share the "state-<asset>" namespace so a reset clears both.
func NewAssetStores(backend Backend, asset string, unit, feeUnit currency.Unit) (*AssetStores, error) {
	state := backend.Namespace("state-" + asset)
	wallet := backend.Namespace("hdwallet-" + asset)
	for _, s := range []Store{state, wallet} {
		if err := s.Init(); err != nil {
			return nil, err
		}
	}

	return &AssetStores{
		Ledger:    NewLedgerStore(state, unit, feeUnit),
		Sync:      NewSyncStore(state),
		Addresses: NewAddressStore(wallet),
	}, nil
}

// MultiAssetStore maps asset names to their stores
type MultiAssetStore struct {
	mu     sync.RWMutex
	stores map[string]*AssetStores
}

// NewMultiAssetStore creates an empty registry
func NewMultiAssetStore() *MultiAssetStore {
	return &MultiAssetStore{
		stores: make(map[string]*AssetStores),
	}
}

// RegisterAsset registers the stores of an asset
func (m *MultiAssetStore) RegisterAsset(asset string, stores *AssetStores) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[asset] = stores
}

// Get returns the stores of an asset
func (m *MultiAssetStore) Get(asset string) (*AssetStores, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stores, ok := m.stores[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotRegistered, asset)
	}
	return stores, nil
}

// Assets returns the registered asset names in sorted order
func (m *MultiAssetStore) Assets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.stores))
	for name := range m.stores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
