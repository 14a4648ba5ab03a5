package hdwallet

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/thanhnp/wallet-ledger/internal/models"
	"github.com/thanhnp/wallet-ledger/internal/storage"
)

// Signal tells the traversal what to do after visiting an address
type Signal int

const (
	// ContinueScan derives and visits the next address of the account type
	ContinueScan Signal = iota
	// StopScan ends the scan of the account type
	StopScan
	// HaltAll stops every account type scan
	HaltAll
)

func (s Signal) String() string {
	switch s {
	case ContinueScan:
		return "continue"
	case StopScan:
		return "stop"
	case HaltAll:
		return "halt"
	default:
		return "unknown"
	}
}

// Visit is called once per address during EachAccount
type Visit func(ctx context.Context, addr models.AddressRecord) (Signal, error)

// HDWallet tracks the addresses derived for one asset. Keys come from a
// shared Deriver, the address cache and cursors live in an AddressStore.
type HDWallet struct {
	keys   Deriver
	cursor *Cursor
	store  *storage.AddressStore
}

// New creates an HDWallet and seeds its cursor from the persisted state
func New(keys Deriver, cfg PathConfig, store *storage.AddressStore) (*HDWallet, error) {
	w := &HDWallet{keys: keys, cursor: NewCursor(cfg), store: store}
	for _, t := range models.AccountTypes {
		c, err := store.GetCursor(t)
		if err != nil {
			return nil, err
		}
		w.cursor.Seed(t, c.Issued)
	}
	return w, nil
}

// AddressFromPath derives the address at path
func (w *HDWallet) AddressFromPath(path string) (models.AddressRecord, error) {
	return w.keys.AddressFromPath(path)
}

// GetAddress resolves a known wallet address, re-deriving its keys. It
// returns nil when the address was never issued by this wallet.
func (w *HDWallet) GetAddress(address string) (*models.AddressRecord, error) {
	cached, err := w.store.Get(address)
	if err != nil || cached == nil {
		return nil, err
	}
	rec, err := w.keys.AddressFromPath(cached.Path)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AddAddress marks an address as in use
func (w *HDWallet) AddAddress(address string) error {
	return w.store.MarkInUse(address)
}

// IsInUse reports whether address has ever had activity
func (w *HDWallet) IsInUse(address string) (bool, error) {
	return w.store.IsInUse(address)
}

// ActiveAddresses returns the addresses marked in use
func (w *HDWallet) ActiveAddresses() ([]string, error) {
	return w.store.InUse()
}

// ResetSyncState rewinds every account type to index 0. Issued indices are
// kept so the same paths are reused.
func (w *HDWallet) ResetSyncState() error {
	for _, t := range models.AccountTypes {
		c, err := w.store.GetCursor(t)
		if err != nil {
			return err
		}
		c.Position = 0
		c.Done = false
		if err := w.store.SetCursor(t, c); err != nil {
			return err
		}
	}
	return nil
}

// EachAccount walks every account type concurrently, calling visit for each
// address until it returns StopScan. A cancelled ctx is checked before each
// address and stops every walk; halted is then true. Progress is persisted
// so a later call resumes where the previous one stopped.
func (w *HDWallet) EachAccount(ctx context.Context, visit Visit) (halted bool, err error) {
	var haltFlag atomic.Bool
	g, gctx := errgroup.WithContext(ctx)

	for _, t := range models.AccountTypes {
		t := t
		g.Go(func() error {
			h, err := w.walk(gctx, t, visit)
			if h {
				haltFlag.Store(true)
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return haltFlag.Load(), err
	}
	return haltFlag.Load() || ctx.Err() != nil, nil
}

func (w *HDWallet) walk(ctx context.Context, t models.AccountType, visit Visit) (bool, error) {
	c, err := w.store.GetCursor(t)
	if err != nil {
		return false, err
	}

	for !c.Done {
		if ctx.Err() != nil {
			return true, nil
		}

		addr, err := w.addressAt(t, &c)
		if err != nil {
			return false, err
		}

		sig, err := visit(ctx, addr)
		if err != nil {
			return false, err
		}

		switch sig {
		case ContinueScan:
			c.Position++
		case StopScan:
			c.Done = true
		case HaltAll:
			return true, nil
		default:
			return false, fmt.Errorf("unknown scan signal %d", sig)
		}
		if err := w.store.SetCursor(t, c); err != nil {
			return false, err
		}
	}
	return false, nil
}

// addressAt reuses the issued address at the cursor position, or derives a
// new one once the position reaches the issued count
func (w *HDWallet) addressAt(t models.AccountType, c *storage.CursorState) (models.AddressRecord, error) {
	if c.Position < c.Issued {
		return w.keys.AddressFromPath(w.cursor.PathAt(t, c.Position))
	}

	path, err := w.cursor.DerivePath(t)
	if err != nil {
		return models.AddressRecord{}, err
	}
	addr, err := w.keys.AddressFromPath(path)
	if err != nil {
		return models.AddressRecord{}, err
	}

	c.Position = addr.Index
	c.Issued = addr.Index + 1
	if err := w.store.SaveIssued(addr, *c); err != nil {
		return models.AddressRecord{}, err
	}
	return addr, nil
}
