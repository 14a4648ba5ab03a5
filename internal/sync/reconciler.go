package sync

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/wallet-ledger/internal/metrics"
	"github.com/thanhnp/wallet-ledger/internal/models"
	"github.com/thanhnp/wallet-ledger/internal/storage"
)

// Feed is the push side of the indexer
type Feed interface {
	Notifications() <-chan models.TxNotification
	Errors() <-chan error
}

// Reconciler applies pushed transactions through the same ledger write path
// as sync passes. Delivery may be duplicated or out of order.
type Reconciler struct {
	feed    Feed
	emitter *Emitter
	metrics *metrics.Collector

	// lowercased contract -> asset, "" for the base asset
	assets map[string]*Asset
}

// NewReconciler routes notifications of feed to assets by contract
func NewReconciler(feed Feed, emitter *Emitter, collector *metrics.Collector, assets ...*Asset) *Reconciler {
	r := &Reconciler{
		feed:    feed,
		emitter: emitter,
		metrics: collector,
		assets:  make(map[string]*Asset, len(assets)),
	}
	for _, a := range assets {
		r.assets[strings.ToLower(a.Contract)] = a
	}
	return r
}

// Run consumes the feed until ctx is done or the feed is closed. It returns
// only on a storage failure, which would otherwise corrupt the ledger.
func (r *Reconciler) Run(ctx context.Context) error {
	notifications := r.feed.Notifications()
	errs := r.feed.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case note, ok := <-notifications:
			if !ok {
				return nil
			}
			if _, err := r.Apply(note); err != nil {
				if errors.Is(err, storage.ErrStoreIO) {
					r.metrics.RecordPushEvent("failed")
					return err
				}
				log.Warnf("Dropping notification for %s: %v", note.Address, err)
				r.metrics.RecordPushEvent("failed")
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warnf("Indexer feed error: %v", err)
			r.metrics.RecordPushEvent("provider-error")
			r.emitter.Emit(ProviderErrorEvent{Err: err})
		}
	}
}

// Apply stores a pushed transaction and refreshes the balances of the wallet
// addresses it touches. It reports false when the notification was dropped.
func (r *Reconciler) Apply(note models.TxNotification) (bool, error) {
	a, ok := r.assets[strings.ToLower(note.Token)]
	if !ok {
		log.Warnf("Dropping notification for %s: unknown token %q", note.Address, note.Token)
		r.metrics.RecordPushEvent("dropped")
		return false, nil
	}
	// height 0 is what indexers report for a tx still in the mempool
	if note.Address == "" || note.Tx.Hash == "" || note.Tx.BlockNumber <= 0 {
		log.Warnf("[%s] Dropping incomplete notification for %q (tx %q, height %d)",
			a.Name, note.Address, note.Tx.Hash, note.Tx.BlockNumber)
		r.metrics.RecordPushEvent("dropped")
		return false, nil
	}

	entry, err := a.Normalize(note.Address, note.Tx)
	if err != nil {
		return false, err
	}
	if !entry.Touches(note.Address) {
		log.Warnf("[%s] Dropping tx %s pushed for %s: address is neither sender nor recipient",
			a.Name, entry.TxID, note.Address)
		r.metrics.RecordPushEvent("dropped")
		return false, nil
	}

	stored, err := a.Ledger.StoreTransaction(entry)
	if err != nil {
		return false, err
	}
	r.metrics.RecordStored(a.Name, stored)

	// the log is written first so a crash here is repaired by a rebuild
	sides, err := r.walletSides(a, note.Address, entry)
	if err != nil {
		return false, err
	}
	for _, addr := range sides {
		if _, err := a.Balances.Reconcile(addr); err != nil {
			return false, err
		}
	}
	if err := a.Wallet.AddAddress(note.Address); err != nil {
		return false, err
	}

	log.Debugf("[%s] Applied pushed tx %s at height %d (new: %v)", a.Name, entry.TxID, entry.Height, stored)
	r.metrics.RecordPushEvent("applied")
	r.emitter.Emit(NewTxEvent{Asset: a.Name, Address: strings.ToLower(note.Address), Entry: entry})
	return true, nil
}

// walletSides returns the subscribed address plus the counterparty when the
// wallet already tracks it
func (r *Reconciler) walletSides(a *Asset, address string, entry models.TransactionEntry) ([]string, error) {
	address = strings.ToLower(address)
	sides := []string{address}

	other := entry.From
	if other == address {
		other = entry.To
	}
	if other == "" || other == address {
		return sides, nil
	}
	inUse, err := a.Wallet.IsInUse(other)
	if err != nil {
		return nil, err
	}
	if inUse {
		sides = append(sides, other)
	}
	return sides, nil
}
