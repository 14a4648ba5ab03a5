package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/wallet-ledger/internal/hdwallet"
	"github.com/thanhnp/wallet-ledger/internal/metrics"
	"github.com/thanhnp/wallet-ledger/internal/models"
	"github.com/thanhnp/wallet-ledger/internal/storage"
)

// PassResult describes a finished or halted pass
type PassResult struct {
	Asset     string `json:"asset"`
	FromBlock int64  `json:"from_block"`
	Tip       int64  `json:"tip"`
	Halted    bool   `json:"halted"`
	Resumed   bool   `json:"resumed"`
}

// Engine runs sync passes. At most one pass runs per asset at a time.
type Engine struct {
	chain   ChainClient
	emitter *Emitter
	metrics *metrics.Collector

	mu      sync.Mutex
	running map[string]bool
}

// NewEngine creates an Engine. emitter and collector may be nil.
func NewEngine(chain ChainClient, emitter *Emitter, collector *metrics.Collector) *Engine {
	return &Engine{
		chain:   chain,
		emitter: emitter,
		metrics: collector,
		running: make(map[string]bool),
	}
}

func (e *Engine) acquire(asset string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[asset] {
		return false
	}
	e.running[asset] = true
	return true
}

func (e *Engine) release(asset string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, asset)
}

// IsRunning reports whether a pass runs on asset
func (e *Engine) IsRunning(asset string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[asset]
}

// Sync runs a pass over every account type of the asset. Cancelling ctx
// halts the pass before the next address; the address in flight is
// completed. A halted pass is resumed by the next call with the same block
// window. With reset the asset ledger and cursors are cleared first.
func (e *Engine) Sync(ctx context.Context, a *Asset, reset bool) (*PassResult, error) {
	if !e.acquire(a.Name) {
		return nil, ErrSyncInProgress
	}
	defer e.release(a.Name)

	start := time.Now()
	res, err := e.pass(ctx, a, reset)

	outcome := "completed"
	end := SyncEndEvent{Asset: a.Name, Err: err}
	switch {
	case err != nil:
		outcome = "failed"
		log.Errorf("[%s] Sync pass failed: %v", a.Name, err)
	case res.Halted:
		outcome = "halted"
		end.Halted = true
		end.Tip = res.Tip
		log.Infof("[%s] Sync pass halted", a.Name)
	default:
		end.Tip = res.Tip
		log.Infof("[%s] Sync pass completed at height %d", a.Name, res.Tip)
	}
	e.metrics.RecordPass(a.Name, outcome, time.Since(start).Seconds())
	e.emitter.Emit(end)

	return res, err
}

func (e *Engine) pass(ctx context.Context, a *Asset, reset bool) (*PassResult, error) {
	if reset {
		log.Infof("[%s] Resetting ledger", a.Name)
		if err := a.Wallet.ResetSyncState(); err != nil {
			return nil, err
		}
		if err := a.Ledger.Reset(); err != nil {
			return nil, err
		}
		a.Balances.Invalidate()
	}

	pending, err := a.Sync.GetPendingPass()
	if err != nil {
		return nil, err
	}

	res := &PassResult{Asset: a.Name}
	if pending != nil {
		res.Resumed = true
		log.Infof("[%s] Resuming pass from height %d to %d", a.Name, pending.FromBlock, pending.Tip)
	} else {
		tip, err := e.chain.BlockNumber(ctx)
		if err != nil {
			return nil, &SyncError{Asset: a.Name, Err: err}
		}

		lastSynced, err := a.Sync.GetSyncedHeight()
		if err != nil {
			return nil, err
		}
		fromBlock := int64(0)
		if lastSynced > 0 {
			fromBlock = lastSynced
		}

		if err := a.Wallet.ResetSyncState(); err != nil {
			return nil, err
		}
		pending = &storage.PendingPass{FromBlock: fromBlock, Tip: tip}
		if err := a.Sync.BeginPass(*pending); err != nil {
			return nil, err
		}
		log.Infof("[%s] Syncing from height %d to %d", a.Name, fromBlock, tip)
	}
	res.FromBlock = pending.FromBlock
	res.Tip = pending.Tip

	halted, err := a.Wallet.EachAccount(ctx, func(vctx context.Context, addr models.AddressRecord) (hdwallet.Signal, error) {
		// the address in flight completes even if the pass is halted
		return e.syncPath(context.WithoutCancel(vctx), a, addr, pending.FromBlock)
	})
	if err != nil {
		var syncErr *SyncError
		if errors.As(err, &syncErr) {
			return nil, err
		}
		return nil, &SyncError{Asset: a.Name, Err: err}
	}
	if halted {
		res.Halted = true
		return res, nil
	}

	if err := a.Sync.CompletePass(pending.Tip); err != nil {
		return nil, err
	}
	return res, nil
}

// syncPath queries one address and applies its transactions
func (e *Engine) syncPath(ctx context.Context, a *Asset, addr models.AddressRecord, fromBlock int64) (hdwallet.Signal, error) {
	txs, err := e.chain.GetTransactionsByAddress(ctx, models.TxQuery{
		Address:   addr.Address,
		FromBlock: fromBlock,
		Token:     a.Contract,
	})
	if err != nil {
		return hdwallet.HaltAll, &SyncError{Asset: a.Name, Path: addr.Path, Err: err}
	}

	if len(txs) == 0 {
		inUse, err := a.Wallet.IsInUse(addr.Address)
		if err != nil {
			return hdwallet.HaltAll, err
		}
		log.Debugf("[%s] %s %s has no new transactions (in use: %v)", a.Name, addr.Path, addr.Address, inUse)
		e.metrics.RecordAddress(a.Name, false)
		e.emitter.Emit(SyncedPathEvent{
			Asset:       a.Name,
			AccountType: addr.AccountType,
			Path:        addr.Path,
			Address:     addr.Address,
		})
		// only never-used addresses count towards the gap limit
		if inUse {
			return hdwallet.ContinueScan, nil
		}
		return hdwallet.StopScan, nil
	}

	for _, tx := range txs {
		entry, err := a.Normalize(addr.Address, tx)
		if err != nil {
			return hdwallet.HaltAll, &SyncError{Asset: a.Name, Path: addr.Path, Err: err}
		}
		stored, err := a.Ledger.StoreTransaction(entry)
		if err != nil {
			return hdwallet.HaltAll, err
		}
		e.metrics.RecordStored(a.Name, stored)
	}

	if err := a.Wallet.AddAddress(addr.Address); err != nil {
		return hdwallet.HaltAll, err
	}
	bal, err := a.Balances.Reconcile(addr.Address)
	if err != nil {
		return hdwallet.HaltAll, err
	}

	log.Debugf("[%s] %s %s: %d transactions, balance %s", a.Name, addr.Path, addr.Address, len(txs), bal)
	e.metrics.RecordAddress(a.Name, true)
	e.emitter.Emit(SyncedPathEvent{
		Asset:       a.Name,
		AccountType: addr.AccountType,
		Path:        addr.Path,
		Address:     addr.Address,
		HasTx:       true,
	})
	return hdwallet.ContinueScan, nil
}
