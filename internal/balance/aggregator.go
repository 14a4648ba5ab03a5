package balance

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/models"
	"github.com/thanhnp/wallet-ledger/internal/storage"
)

// Resolver maps wallet addresses back to their records
type Resolver interface {
	GetAddress(address string) (*models.AddressRecord, error)
	ActiveAddresses() ([]string, error)
}

// Aggregator keeps the per-address and wallet balances of one asset. Reads
// are served from a snapshot that is reloaded from the ledger after every
// write.
type Aggregator struct {
	name       string
	ledger     *storage.LedgerStore
	wallet     Resolver
	chargeFees bool

	locks storage.KeyLocks

	mu       sync.RWMutex
	snapshot []models.BalanceEntry
	loaded   bool
}

// NewAggregator creates an Aggregator. chargeFees deducts the fee of
// outgoing entries, which only holds for the asset fees are paid in.
func NewAggregator(name string, ledger *storage.LedgerStore, wallet Resolver, chargeFees bool) *Aggregator {
	return &Aggregator{
		name:       name,
		ledger:     ledger,
		wallet:     wallet,
		chargeFees: chargeFees,
	}
}

func (a *Aggregator) balances() ([]models.BalanceEntry, error) {
	a.mu.RLock()
	if a.loaded {
		defer a.mu.RUnlock()
		return a.snapshot, nil
	}
	a.mu.RUnlock()
	return a.reload()
}

// reload reads the ledger under the write lock so a slower reload never
// replaces a newer snapshot
func (a *Aggregator) reload() ([]models.BalanceEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	balances, err := a.ledger.GetBalances()
	if err != nil {
		return nil, err
	}
	a.snapshot = balances
	a.loaded = true
	return balances, nil
}

// Invalidate drops the snapshot so the next read hits the ledger
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = nil
	a.loaded = false
}

// Balances returns a copy of the snapshot in insertion order
func (a *Aggregator) Balances() ([]models.BalanceEntry, error) {
	balances, err := a.balances()
	if err != nil {
		return nil, err
	}
	out := make([]models.BalanceEntry, len(balances))
	copy(out, balances)
	return out, nil
}

// GetTotal sums every address balance
func (a *Aggregator) GetTotal() (currency.Amount, error) {
	balances, err := a.balances()
	if err != nil {
		return currency.Amount{}, err
	}

	total := currency.Zero(a.ledger.Unit())
	for _, b := range balances {
		total = total.Add(b.Balance)
	}
	return total, nil
}

// GetAddressBalance returns the confirmed balance of address, zero when the
// address has none recorded
func (a *Aggregator) GetAddressBalance(address string) (currency.Amount, error) {
	balances, err := a.balances()
	if err != nil {
		return currency.Amount{}, err
	}

	address = strings.ToLower(address)
	for _, b := range balances {
		if b.Address == address {
			return b.Balance, nil
		}
	}
	return currency.Zero(a.ledger.Unit()), nil
}

// SetBalance replaces the balance of address
func (a *Aggregator) SetBalance(address string, amount currency.Amount) error {
	if err := a.ledger.SetAddressBalance(address, amount); err != nil {
		return err
	}
	_, err := a.reload()
	return err
}

// Add applies delta to the balance of address
func (a *Aggregator) Add(address string, delta currency.Amount) error {
	unlock := a.locks.Lock(strings.ToLower(address))
	defer unlock()

	current, err := a.GetAddressBalance(address)
	if err != nil {
		return err
	}
	return a.SetBalance(address, current.Add(delta))
}

// Reconcile recomputes the balance of address from the transaction log and
// stores it. The log must be written before calling it.
func (a *Aggregator) Reconcile(address string) (currency.Amount, error) {
	address = strings.ToLower(address)
	unlock := a.locks.Lock(address)
	defer unlock()

	net, err := a.net(address)
	if err != nil {
		return currency.Amount{}, err
	}
	if err := a.SetBalance(address, net); err != nil {
		return currency.Amount{}, err
	}
	return net, nil
}

func (a *Aggregator) net(address string) (currency.Amount, error) {
	net := currency.Zero(a.ledger.Unit())
	err := a.ledger.EachBucket(-1, -1, func(b models.Bucket) error {
		for _, e := range b.Entries {
			if strings.EqualFold(e.To, address) {
				net = net.Add(e.Amount)
			}
			if strings.EqualFold(e.From, address) {
				net = net.Sub(e.Amount)
				if a.chargeFees {
					net = net.Sub(e.Fee)
				}
			}
		}
		return nil
	})
	return net, err
}

// Rebuild replays the transaction log into the balance of every address in
// the snapshot or marked in use
func (a *Aggregator) Rebuild() error {
	balances, err := a.balances()
	if err != nil {
		return err
	}
	active, err := a.wallet.ActiveAddresses()
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var addresses []string
	for _, b := range balances {
		if !seen[b.Address] {
			seen[b.Address] = true
			addresses = append(addresses, b.Address)
		}
	}
	for _, addr := range active {
		addr = strings.ToLower(addr)
		if !seen[addr] {
			seen[addr] = true
			addresses = append(addresses, addr)
		}
	}

	for _, addr := range addresses {
		bal, err := a.Reconcile(addr)
		if err != nil {
			return err
		}
		log.Debugf("[%s] rebuilt balance of %s: %s", a.name, addr, bal)
	}
	return nil
}

// GetAddressWithAtLeast returns the first address, in insertion order,
// whose balance is at least amount
func (a *Aggregator) GetAddressWithAtLeast(amount currency.Amount) (*models.AddressRecord, error) {
	balances, err := a.balances()
	if err != nil {
		return nil, err
	}

	for _, b := range balances {
		if !b.Balance.Gte(amount) {
			continue
		}
		rec, err := a.wallet.GetAddress(b.Address)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: address %s is missing from the wallet", ErrNoFundedAddress, b.Address)
		}
		return rec, nil
	}
	return nil, fmt.Errorf("%w: no address holds %s", ErrNoFundedAddress, amount)
}

// SelectSender picks the address a spend of amount is sourced from. An
// explicit sender must belong to the wallet and hold amount.
func (a *Aggregator) SelectSender(amount currency.Amount, sender string) (*models.AddressRecord, error) {
	if sender != "" {
		rec, err := a.wallet.GetAddress(sender)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: %s is not a wallet address", ErrNoFundedAddress, sender)
		}
		bal, err := a.GetAddressBalance(sender)
		if err != nil {
			return nil, err
		}
		if !bal.Gte(amount) {
			return nil, fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientFunds, sender, bal, amount)
		}
		return rec, nil
	}

	total, err := a.GetTotal()
	if err != nil {
		return nil, err
	}
	if !total.Gte(amount) {
		return nil, fmt.Errorf("%w: wallet holds %s, need %s", ErrInsufficientFunds, total, amount)
	}
	return a.GetAddressWithAtLeast(amount)
}
