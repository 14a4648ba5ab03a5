package hdwallet

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/thanhnp/wallet-ledger/internal/models"
)

// Cursor hands out derivation paths with a strictly increasing index per
// account type
type Cursor struct {
	cfg PathConfig

	mu   sync.Mutex
	next map[models.AccountType]uint32
}

// NewCursor creates a cursor starting at index 0 for every account type
func NewCursor(cfg PathConfig) *Cursor {
	return &Cursor{cfg: cfg, next: make(map[models.AccountType]uint32)}
}

// Seed moves the next index of t forward to next. It never moves it back.
func (c *Cursor) Seed(t models.AccountType, next uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next > c.next[t] {
		c.next[t] = next
	}
}

// Next returns the index the following DerivePath call will issue
func (c *Cursor) Next(t models.AccountType) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next[t]
}

// DerivePath issues the next path of t
func (c *Cursor) DerivePath(t models.AccountType) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.next[t]
	if index >= hdkeychain.HardenedKeyStart {
		return "", ErrCursorExhausted
	}
	c.next[t] = index + 1
	return c.cfg.AddressPath(t, index).String(), nil
}

// PathAt returns the path of an already issued index
func (c *Cursor) PathAt(t models.AccountType, index uint32) string {
	return c.cfg.AddressPath(t, index).String()
}
