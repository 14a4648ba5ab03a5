package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/wallet-ledger/internal/api"
	"github.com/thanhnp/wallet-ledger/internal/balance"
	"github.com/thanhnp/wallet-ledger/internal/config"
	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/hdwallet"
	"github.com/thanhnp/wallet-ledger/internal/metrics"
	"github.com/thanhnp/wallet-ledger/internal/notifier"
	"github.com/thanhnp/wallet-ledger/internal/rpc"
	"github.com/thanhnp/wallet-ledger/internal/storage"
	ledgersync "github.com/thanhnp/wallet-ledger/internal/sync"
	"github.com/thanhnp/wallet-ledger/internal/wallet"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	syncOnStart := flag.Bool("sync", true, "Run a sync pass for every asset at startup")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", cfg.Log.Level, err)
	}
	log.SetLevel(level)

	log.Info("Starting wallet ledger server...")

	log.Infof("Opening %s store at %q", cfg.Store.Backend, cfg.Store.Path)
	backend, err := storage.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	keys, err := hdwallet.NewKeyring(cfg.Wallet.Mnemonic, cfg.Wallet.Passphrase)
	if err != nil {
		log.Fatalf("Failed to load wallet seed: %v", err)
	}

	collector := metrics.NewCollector()
	assets, err := buildAssets(cfg, backend, keys)
	if err != nil {
		log.Fatalf("Failed to initialize assets: %v", err)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := rpc.NewClient(cfg.Chain.IndexerRPC, rpc.Options{
		RequestsPerSecond: cfg.Chain.RequestsPerSecond,
		MaxRetries:        cfg.Chain.MaxRetries,
		Timeout:           time.Duration(cfg.Chain.TimeoutSecs) * time.Second,
	})
	if ver, err := client.CheckVersion(ctx); err != nil {
		if errors.Is(err, rpc.ErrIncompatibleAPI) {
			log.Fatalf("Indexer at %s: %v", cfg.Chain.IndexerRPC, err)
		}
		log.Warnf("Unable to check indexer version: %v", err)
	} else {
		log.Infof("Connected to indexer, API version: %s", ver)
	}

	emitter := ledgersync.NewEmitter(64)

	var feed *notifier.WSNotifier
	var subscriber wallet.Subscriber
	if cfg.Chain.IndexerWS != "" {
		feed = notifier.NewWSNotifier(cfg.Chain.IndexerWS)
		subscriber = feed
	}

	w, err := wallet.New(client, subscriber, emitter, collector, assets...)
	if err != nil {
		log.Fatalf("Failed to create wallet: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logEvents(ctx, w)
	}()

	if feed != nil {
		if err := feed.Start(); err != nil {
			log.Warnf("Failed to connect to indexer feed: %v", err)
		}
		if err := w.SubscribeAccounts(); err != nil {
			log.Warnf("Failed to subscribe accounts: %v", err)
		}

		reconciler := ledgersync.NewReconciler(feed, emitter, collector, w.All()...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reconciler.Run(ctx); err != nil {
				log.Errorf("Reconciler stopped: %v", err)
				cancel()
			}
		}()
	}

	if *syncOnStart {
		for _, name := range w.Assets() {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				if _, err := w.SyncTransactions(ctx, name, false); err != nil {
					log.Errorf("[%s] Initial sync failed: %v", name, err)
				}
			}(name)
		}
	}

	router := api.NewRouter(w, collector)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Engine(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Start HTTP server in goroutine
	go func() {
		log.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down...")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}

	// Halt running passes, they stop before their next address
	for _, name := range w.Assets() {
		if _, err := w.HaltSync(name); err != nil {
			log.Errorf("[%s] Halting sync: %v", name, err)
		}
	}
	cancel()

	if feed != nil {
		if err := feed.Stop(); err != nil {
			log.Errorf("Error stopping indexer feed: %v", err)
		}
	}
	wg.Wait()

	if err := backend.Close(); err != nil {
		log.Errorf("Error closing store: %v", err)
	}

	log.Info("Server stopped")
}

// buildAssets creates the base asset and one sub-ledger per token. Every
// asset derives from the same keys but keeps its own address cache.
func buildAssets(cfg *config.Config, backend storage.Backend, keys hdwallet.Deriver) ([]*ledgersync.Asset, error) {
	paths := hdwallet.PathConfig{
		Purpose:  cfg.Wallet.Purpose,
		CoinType: cfg.Wallet.CoinType,
		Account:  cfg.Wallet.Account,
	}
	baseUnit := cfg.Assets.Base

	newAsset := func(unit currency.Unit, contract string) (*ledgersync.Asset, error) {
		name := strings.ToLower(unit.Name)
		stores, err := storage.NewAssetStores(backend, name, unit, baseUnit)
		if err != nil {
			return nil, err
		}
		hd, err := hdwallet.New(keys, paths, stores.Addresses)
		if err != nil {
			return nil, err
		}
		log.Infof("[%s] Registered asset (contract %q)", name, contract)
		return &ledgersync.Asset{
			Name:     name,
			Contract: contract,
			Unit:     unit,
			FeeUnit:  baseUnit,
			Ledger:   stores.Ledger,
			Sync:     stores.Sync,
			Wallet:   hd,
			Balances: balance.NewAggregator(name, stores.Ledger, hd, contract == ""),
		}, nil
	}

	base, err := newAsset(baseUnit, "")
	if err != nil {
		return nil, err
	}
	assets := []*ledgersync.Asset{base}
	for _, t := range cfg.Assets.Tokens {
		a, err := newAsset(t.Unit, t.Contract)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// logEvents logs wallet events until ctx is done
func logEvents(ctx context.Context, w *wallet.Wallet) {
	events, unsubscribe := w.Events()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch e := ev.(type) {
			case ledgersync.SyncedPathEvent:
				log.Debugf("[%s] %s: %s %s (active: %v)", e.Asset, e.Type(), e.Path, e.Address, e.HasTx)
			case ledgersync.NewTxEvent:
				log.Infof("[%s] %s: %s %s %s at height %d", e.Asset, e.Type(), e.Entry.Direction, e.Entry.Amount, e.Entry.TxID, e.Entry.Height)
			case ledgersync.SyncEndEvent:
				switch {
				case e.Err != nil:
					log.Warnf("[%s] %s: %v", e.Asset, e.Type(), e.Err)
				case e.Halted:
					log.Infof("[%s] %s: halted", e.Asset, e.Type())
				default:
					log.Infof("[%s] %s: synced to %d", e.Asset, e.Type(), e.Tip)
				}
			case ledgersync.ProviderErrorEvent:
				log.Warnf("%s: %v", e.Type(), e.Err)
			}
		}
	}
}
