package wallet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/metrics"
	"github.com/thanhnp/wallet-ledger/internal/models"
	ledgersync "github.com/thanhnp/wallet-ledger/internal/sync"
)

// ChainClient is the indexer client used by the wallet
type ChainClient interface {
	ledgersync.ChainClient
	GetBalance(ctx context.Context, address, token string) (string, error)
}

// Subscriber registers accounts with the push feed
type Subscriber interface {
	SubscribeToAccount(address string, tokens []string) error
}

// Status describes the sync state of an asset
type Status struct {
	Asset        string            `json:"asset"`
	SyncedHeight int64             `json:"synced_height"`
	Range        *models.SyncRange `json:"range,omitempty"`
	Running      bool              `json:"running"`
	PendingPass  bool              `json:"pending_pass"`
}

// Wallet ties the base asset and its token sub-ledgers to one chain client
// and push feed
type Wallet struct {
	base    *ledgersync.Asset
	assets  map[string]*ledgersync.Asset
	chain   ChainClient
	feed    Subscriber
	engine  *ledgersync.Engine
	emitter *ledgersync.Emitter

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates a Wallet over assets. Exactly one asset must be the base
// asset. feed may be nil when no push feed is configured.
func New(chain ChainClient, feed Subscriber, emitter *ledgersync.Emitter, collector *metrics.Collector, assets ...*ledgersync.Asset) (*Wallet, error) {
	w := &Wallet{
		assets:  make(map[string]*ledgersync.Asset, len(assets)),
		chain:   chain,
		feed:    feed,
		engine:  ledgersync.NewEngine(chain, emitter, collector),
		emitter: emitter,
		cancels: make(map[string]context.CancelFunc),
	}

	for _, a := range assets {
		name := strings.ToLower(a.Name)
		if _, ok := w.assets[name]; ok {
			return nil, fmt.Errorf("asset %s registered twice", a.Name)
		}
		if a.IsBase() {
			if w.base != nil {
				return nil, fmt.Errorf("assets %s and %s both have no contract", w.base.Name, a.Name)
			}
			w.base = a
		}
		w.assets[name] = a
	}
	if w.base == nil {
		return nil, ErrNoBaseAsset
	}
	return w, nil
}

// Asset returns the named asset. An empty name selects the base asset.
func (w *Wallet) Asset(name string) (*ledgersync.Asset, error) {
	if name == "" {
		return w.base, nil
	}
	a, ok := w.assets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, name)
	}
	return a, nil
}

// Assets returns the registered asset names, sorted
func (w *Wallet) Assets() []string {
	names := make([]string, 0, len(w.assets))
	for name := range w.assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered asset, base first
func (w *Wallet) All() []*ledgersync.Asset {
	all := []*ledgersync.Asset{w.base}
	for _, name := range w.Assets() {
		if a := w.assets[name]; a != w.base {
			all = append(all, a)
		}
	}
	return all
}

// Events subscribes to wallet events
func (w *Wallet) Events() (<-chan ledgersync.Event, func()) {
	return w.emitter.Subscribe()
}

// SyncTransactions runs a sync pass on the asset. It blocks until the pass
// completes, fails or is halted with HaltSync or ctx.
func (w *Wallet) SyncTransactions(ctx context.Context, name string, reset bool) (*ledgersync.PassResult, error) {
	a, err := w.Asset(name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	if _, running := w.cancels[a.Name]; running {
		w.mu.Unlock()
		return nil, ledgersync.ErrSyncInProgress
	}
	w.cancels[a.Name] = cancel
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.cancels, a.Name)
		w.mu.Unlock()
	}()

	res, err := w.engine.Sync(ctx, a, reset)
	if err != nil {
		return nil, err
	}
	if !res.Halted {
		if err := w.subscribe(a); err != nil {
			log.Warnf("[%s] Subscribing active addresses: %v", a.Name, err)
		}
	}
	return res, nil
}

// HaltSync stops the running pass of the asset before its next address. It
// reports whether a pass was running.
func (w *Wallet) HaltSync(name string) (bool, error) {
	a, err := w.Asset(name)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	cancel, ok := w.cancels[a.Name]
	if ok {
		log.Infof("[%s] Halting sync", a.Name)
		cancel()
	}
	return ok, nil
}

// Status returns the sync state of the asset
func (w *Wallet) Status(name string) (*Status, error) {
	a, err := w.Asset(name)
	if err != nil {
		return nil, err
	}

	height, err := a.Sync.GetSyncedHeight()
	if err != nil {
		return nil, err
	}
	pending, err := a.Sync.GetPendingPass()
	if err != nil {
		return nil, err
	}
	st := &Status{
		Asset:        a.Name,
		SyncedHeight: height,
		Running:      w.engine.IsRunning(a.Name),
		PendingPass:  pending != nil,
	}

	rng, ok, err := a.Ledger.GetRange()
	if err != nil {
		return nil, err
	}
	if ok {
		st.Range = &rng
	}
	return st, nil
}

// GetTransactions visits the stored buckets of the asset in ascending height
// order. Negative bounds are open.
func (w *Wallet) GetTransactions(name string, low, high int64, visit func(models.Bucket) error) error {
	a, err := w.Asset(name)
	if err != nil {
		return err
	}
	return a.Ledger.EachBucket(low, high, visit)
}

// GetBalance returns the balance of address, or the asset total when
// address is empty
func (w *Wallet) GetBalance(name, address string) (currency.Amount, error) {
	a, err := w.Asset(name)
	if err != nil {
		return currency.Amount{}, err
	}
	if address == "" {
		return a.Balances.GetTotal()
	}
	return a.Balances.GetAddressBalance(address)
}

// Balances returns the per-address balance snapshot of the asset
func (w *Wallet) Balances(name string) ([]models.BalanceEntry, error) {
	a, err := w.Asset(name)
	if err != nil {
		return nil, err
	}
	return a.Balances.Balances()
}

// GetActiveAddresses returns the addresses of the asset that had activity
func (w *Wallet) GetActiveAddresses(name string) ([]string, error) {
	a, err := w.Asset(name)
	if err != nil {
		return nil, err
	}
	return a.Wallet.ActiveAddresses()
}

// SelectSender picks the address a spend of amount is sourced from. It
// never touches the network.
func (w *Wallet) SelectSender(name string, amount currency.Amount, sender string) (*models.AddressRecord, error) {
	a, err := w.Asset(name)
	if err != nil {
		return nil, err
	}
	return a.Balances.SelectSender(amount.WithUnit(a.Unit), sender)
}

// RebuildBalances replays the transaction log of the asset into its balance
// snapshot
func (w *Wallet) RebuildBalances(name string) error {
	a, err := w.Asset(name)
	if err != nil {
		return err
	}
	log.Infof("[%s] Rebuilding balances", a.Name)
	return a.Balances.Rebuild()
}

// GetOnchainBalance asks the indexer for the current balance of address
func (w *Wallet) GetOnchainBalance(ctx context.Context, name, address string) (currency.Amount, error) {
	a, err := w.Asset(name)
	if err != nil {
		return currency.Amount{}, err
	}
	raw, err := w.chain.GetBalance(ctx, address, a.Contract)
	if err != nil {
		return currency.Amount{}, err
	}
	return currency.NewFromBase(a.Unit, raw)
}

// SubscribeAccounts registers the active addresses of every asset with the
// push feed
func (w *Wallet) SubscribeAccounts() error {
	for _, a := range w.All() {
		if err := w.subscribe(a); err != nil {
			return err
		}
	}
	return nil
}

func (w *Wallet) subscribe(a *ledgersync.Asset) error {
	if w.feed == nil {
		return nil
	}

	addresses, err := a.Wallet.ActiveAddresses()
	if err != nil {
		return err
	}
	tokens := w.tokenContracts()
	for _, addr := range addresses {
		if err := w.feed.SubscribeToAccount(addr, tokens); err != nil {
			return fmt.Errorf("subscribe %s: %w", addr, err)
		}
	}
	log.Debugf("[%s] Subscribed %d addresses", a.Name, len(addresses))
	return nil
}

func (w *Wallet) tokenContracts() []string {
	var tokens []string
	for _, a := range w.All() {
		if !a.IsBase() {
			tokens = append(tokens, strings.ToLower(a.Contract))
		}
	}
	return tokens
}
