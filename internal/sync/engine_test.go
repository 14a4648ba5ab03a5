package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thanhnp/wallet-ledger/internal/balance"
	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/hdwallet"
	"github.com/thanhnp/wallet-ledger/internal/models"
	"github.com/thanhnp/wallet-ledger/internal/storage"
)

const testMnemonic = "test test test test test test test test test test test junk"

var (
	eth  = currency.Unit{Name: "ETH", BaseName: "WEI", Decimals: 18}
	usdt = currency.Unit{Name: "USDT", BaseName: "USDT-BASE", Decimals: 6}
)

type mockChain struct {
	mock.Mock
}

func (m *mockChain) GetTransactionsByAddress(ctx context.Context, q models.TxQuery) ([]models.ChainTx, error) {
	args := m.Called(ctx, q)
	var res []models.ChainTx
	if a := args.Get(0); a != nil {
		res = a.([]models.ChainTx)
	}
	return res, args.Error(1)
}

func (m *mockChain) BlockNumber(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// queried returns the addresses passed to GetTransactionsByAddress, in call
// order
func (m *mockChain) queried() []models.TxQuery {
	var out []models.TxQuery
	for _, c := range m.Calls {
		if c.Method == "GetTransactionsByAddress" {
			out = append(out, c.Arguments.Get(1).(models.TxQuery))
		}
	}
	return out
}

func countQueries(queries []models.TxQuery, address string) int {
	n := 0
	for _, q := range queries {
		if q.Address == address {
			n++
		}
	}
	return n
}

func forAddress(address string) interface{} {
	return mock.MatchedBy(func(q models.TxQuery) bool { return q.Address == address })
}

type testEnv struct {
	db   *storage.PebbleDB
	keys *hdwallet.Keyring
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.NewInMemoryPebbleDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	keys, err := hdwallet.NewKeyring(testMnemonic, "")
	require.NoError(t, err)
	return &testEnv{db: db, keys: keys}
}

func (e *testEnv) asset(t *testing.T, name, contract string, unit currency.Unit) *Asset {
	t.Helper()
	stores, err := storage.NewAssetStores(e.db, name, unit, eth)
	require.NoError(t, err)

	w, err := hdwallet.New(e.keys, hdwallet.DefaultPathConfig, stores.Addresses)
	require.NoError(t, err)

	return &Asset{
		Name:     name,
		Contract: contract,
		Unit:     unit,
		FeeUnit:  eth,
		Ledger:   stores.Ledger,
		Sync:     stores.Sync,
		Wallet:   w,
		Balances: balance.NewAggregator(name, stores.Ledger, w, contract == ""),
	}
}

func (e *testEnv) address(t *testing.T, accountType models.AccountType, index uint32) string {
	t.Helper()
	rec, err := e.keys.AddressFromPath(hdwallet.DefaultPathConfig.AddressPath(accountType, index).String())
	require.NoError(t, err)
	return rec.Address
}

func incoming(to string, n int) []models.ChainTx {
	return []models.ChainTx{{
		Hash:        fmt.Sprintf("0xtx%02d", n),
		From:        "0xfunder",
		To:          to,
		Value:       "1000",
		BlockNumber: int64(100 + n),
		Gas:         "21000",
		GasPrice:    "1",
	}}
}

// collect gathers events until the first SyncEndEvent
func collect(em *Emitter) (func() []Event, func()) {
	ch, unsubscribe := em.Subscribe()
	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			events = append(events, ev)
			if _, ok := ev.(SyncEndEvent); ok {
				return
			}
		}
	}()

	wait := func() []Event {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
		return events
	}
	return wait, unsubscribe
}

func TestSyncEmptyWalletStopsAfterFirstAddress(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "eth", "", eth)

	chain := &mockChain{}
	chain.On("BlockNumber", mock.Anything).Return(int64(500), nil)
	chain.On("GetTransactionsByAddress", mock.Anything, mock.Anything).Return(nil, nil)

	em := NewEmitter(16)
	events, stop := collect(em)
	defer stop()

	res, err := NewEngine(chain, em, nil).Sync(context.Background(), a, false)
	require.NoError(t, err)
	assert.False(t, res.Halted)
	assert.Equal(t, int64(500), res.Tip)

	queries := chain.queried()
	require.Len(t, queries, 2)
	assert.Equal(t, 1, countQueries(queries, env.address(t, models.External, 0)))
	assert.Equal(t, 1, countQueries(queries, env.address(t, models.Internal, 0)))

	height, err := a.Sync.GetSyncedHeight()
	require.NoError(t, err)
	assert.Equal(t, int64(500), height)

	pending, err := a.Sync.GetPendingPass()
	require.NoError(t, err)
	assert.Nil(t, pending)

	got := events()
	require.Len(t, got, 3)
	for _, ev := range got[:2] {
		require.Equal(t, SyncedPath, ev.Type())
		assert.False(t, ev.(SyncedPathEvent).HasTx)
	}
	end := got[2].(SyncEndEvent)
	assert.False(t, end.Halted)
	assert.NoError(t, end.Err)
}

func TestSyncGapLimit(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "eth", "", eth)

	chain := &mockChain{}
	chain.On("BlockNumber", mock.Anything).Return(int64(500), nil)
	for i := uint32(0); i < 3; i++ {
		addr := env.address(t, models.External, i)
		chain.On("GetTransactionsByAddress", mock.Anything, forAddress(addr)).Return(incoming(addr, int(i)), nil)
	}
	chain.On("GetTransactionsByAddress", mock.Anything, mock.Anything).Return(nil, nil)

	_, err := NewEngine(chain, nil, nil).Sync(context.Background(), a, false)
	require.NoError(t, err)

	queries := chain.queried()
	for i := uint32(0); i < 4; i++ {
		assert.Equal(t, 1, countQueries(queries, env.address(t, models.External, i)), "external %d", i)
	}
	assert.Zero(t, countQueries(queries, env.address(t, models.External, 4)))
	assert.Len(t, queries, 5)
	for _, q := range queries {
		assert.Equal(t, int64(0), q.FromBlock)
		assert.Empty(t, q.Token)
	}

	total, err := a.Balances.GetTotal()
	require.NoError(t, err)
	assert.Equal(t, "3000", total.String())

	active, err := a.Wallet.ActiveAddresses()
	require.NoError(t, err)
	assert.Len(t, active, 3)

	rng, ok, err := a.Ledger.GetRange()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.SyncRange{Earliest: 100, Latest: 102}, rng)
}

func TestSyncResumeAfterHalt(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "eth", "", eth)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain := &mockChain{}
	chain.On("BlockNumber", mock.Anything).Return(int64(500), nil).Once()
	for i := uint32(0); i < 3; i++ {
		addr := env.address(t, models.External, i)
		call := chain.On("GetTransactionsByAddress", mock.Anything, forAddress(addr)).Return(incoming(addr, int(i)), nil)
		if i == 1 {
			call.Run(func(mock.Arguments) { cancel() })
		}
	}
	chain.On("GetTransactionsByAddress", mock.Anything, mock.Anything).Return(nil, nil)

	engine := NewEngine(chain, nil, nil)
	res, err := engine.Sync(ctx, a, false)
	require.NoError(t, err)
	assert.True(t, res.Halted)

	// the address in flight was completed
	bal, err := a.Balances.GetAddressBalance(env.address(t, models.External, 1))
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())

	height, err := a.Sync.GetSyncedHeight()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), height)
	pending, err := a.Sync.GetPendingPass()
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, storage.PendingPass{FromBlock: 0, Tip: 500}, *pending)

	res, err = engine.Sync(context.Background(), a, false)
	require.NoError(t, err)
	assert.False(t, res.Halted)
	assert.True(t, res.Resumed)
	assert.Equal(t, int64(500), res.Tip)

	queries := chain.queried()
	for i := uint32(0); i < 4; i++ {
		assert.Equal(t, 1, countQueries(queries, env.address(t, models.External, i)), "external %d", i)
	}
	assert.Zero(t, countQueries(queries, env.address(t, models.External, 4)))
	chain.AssertNumberOfCalls(t, "BlockNumber", 1)

	height, err = a.Sync.GetSyncedHeight()
	require.NoError(t, err)
	assert.Equal(t, int64(500), height)

	total, err := a.Balances.GetTotal()
	require.NoError(t, err)
	assert.Equal(t, "3000", total.String())
}

func TestSyncIncrementalKeepsInUseAddresses(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "eth", "", eth)
	ext0 := env.address(t, models.External, 0)
	ext1 := env.address(t, models.External, 1)

	chain := &mockChain{}
	chain.On("BlockNumber", mock.Anything).Return(int64(500), nil).Once()
	chain.On("BlockNumber", mock.Anything).Return(int64(600), nil)
	chain.On("GetTransactionsByAddress", mock.Anything, mock.MatchedBy(func(q models.TxQuery) bool {
		return q.Address == ext0 && q.FromBlock == 0
	})).Return(incoming(ext0, 0), nil)
	chain.On("GetTransactionsByAddress", mock.Anything, mock.Anything).Return(nil, nil)

	engine := NewEngine(chain, nil, nil)
	_, err := engine.Sync(context.Background(), a, false)
	require.NoError(t, err)

	first := len(chain.queried())
	_, err = engine.Sync(context.Background(), a, false)
	require.NoError(t, err)

	second := chain.queried()[first:]
	assert.Equal(t, 1, countQueries(second, ext0))
	assert.Equal(t, 1, countQueries(second, ext1))
	assert.Len(t, second, 3)
	for _, q := range second {
		assert.Equal(t, int64(500), q.FromBlock)
	}

	height, err := a.Sync.GetSyncedHeight()
	require.NoError(t, err)
	assert.Equal(t, int64(600), height)

	bal, err := a.Balances.GetAddressBalance(ext0)
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())
}

func TestSyncResetClearsLedger(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "eth", "", eth)
	ext0 := env.address(t, models.External, 0)

	chain := &mockChain{}
	chain.On("BlockNumber", mock.Anything).Return(int64(500), nil)
	chain.On("GetTransactionsByAddress", mock.Anything, forAddress(ext0)).Return(incoming(ext0, 0), nil).Once()
	chain.On("GetTransactionsByAddress", mock.Anything, mock.Anything).Return(nil, nil)

	engine := NewEngine(chain, nil, nil)
	_, err := engine.Sync(context.Background(), a, false)
	require.NoError(t, err)

	_, err = engine.Sync(context.Background(), a, true)
	require.NoError(t, err)

	visits := 0
	require.NoError(t, a.Ledger.EachBucket(-1, -1, func(models.Bucket) error {
		visits++
		return nil
	}))
	assert.Zero(t, visits)

	_, ok, err := a.Ledger.GetRange()
	require.NoError(t, err)
	assert.False(t, ok)

	balances, err := a.Balances.Balances()
	require.NoError(t, err)
	assert.Empty(t, balances)

	// a reset pass rescans from height 0
	for _, q := range chain.queried() {
		assert.Equal(t, int64(0), q.FromBlock)
	}
}

func TestSyncChainFailure(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "eth", "", eth)
	ext0 := env.address(t, models.External, 0)
	failure := errors.New("retries exhausted")

	chain := &mockChain{}
	chain.On("BlockNumber", mock.Anything).Return(int64(500), nil)
	chain.On("GetTransactionsByAddress", mock.Anything, forAddress(ext0)).Return(nil, failure)
	chain.On("GetTransactionsByAddress", mock.Anything, mock.Anything).Return(nil, nil)

	em := NewEmitter(16)
	events, stop := collect(em)
	defer stop()

	res, err := NewEngine(chain, em, nil).Sync(context.Background(), a, false)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrSync)
	assert.ErrorIs(t, err, failure)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "eth", syncErr.Asset)
	assert.Equal(t, "m/44'/60'/0'/0/0", syncErr.Path)

	height, err := a.Sync.GetSyncedHeight()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), height)

	got := events()
	require.NotEmpty(t, got)
	end, ok := got[len(got)-1].(SyncEndEvent)
	require.True(t, ok)
	assert.ErrorIs(t, end.Err, ErrSync)
}

func TestSyncTipFailure(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "eth", "", eth)

	chain := &mockChain{}
	chain.On("BlockNumber", mock.Anything).Return(int64(0), errors.New("down"))

	_, err := NewEngine(chain, nil, nil).Sync(context.Background(), a, false)
	assert.ErrorIs(t, err, ErrSync)
	chain.AssertNotCalled(t, "GetTransactionsByAddress", mock.Anything, mock.Anything)

	pending, err := a.Sync.GetPendingPass()
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestSyncInProgress(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "eth", "", eth)

	entered := make(chan struct{})
	release := make(chan struct{})

	chain := &mockChain{}
	chain.On("BlockNumber", mock.Anything).Return(int64(500), nil).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Once()
	chain.On("GetTransactionsByAddress", mock.Anything, mock.Anything).Return(nil, nil)

	engine := NewEngine(chain, nil, nil)
	done := make(chan error, 1)
	go func() {
		_, err := engine.Sync(context.Background(), a, false)
		done <- err
	}()

	<-entered
	assert.True(t, engine.IsRunning("eth"))
	_, err := engine.Sync(context.Background(), a, true)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, engine.IsRunning("eth"))
}

func TestSyncTokenUsesContractFilter(t *testing.T) {
	env := newTestEnv(t)
	token := env.asset(t, "usdt", "0xDAC17F958D2EE523A2206206994597C13D831EC7", usdt)
	ext0 := env.address(t, models.External, 0)

	chain := &mockChain{}
	chain.On("BlockNumber", mock.Anything).Return(int64(500), nil)
	chain.On("GetTransactionsByAddress", mock.Anything, forAddress(ext0)).Return([]models.ChainTx{{
		Hash:        "0xt1",
		From:        ext0,
		To:          "0xpayee",
		Value:       "250",
		BlockNumber: 120,
		Gas:         "50000",
		GasPrice:    "10",
	}, {
		Hash:        "0xt0",
		From:        "0xfunder",
		To:          ext0,
		Value:       "1000",
		BlockNumber: 110,
	}}, nil)
	chain.On("GetTransactionsByAddress", mock.Anything, mock.Anything).Return(nil, nil)

	_, err := NewEngine(chain, nil, nil).Sync(context.Background(), token, false)
	require.NoError(t, err)

	for _, q := range chain.queried() {
		assert.Equal(t, token.Contract, q.Token)
	}

	// token ledgers do not pay fees
	bal, err := token.Balances.GetAddressBalance(ext0)
	require.NoError(t, err)
	assert.Equal(t, "750", bal.String())

	entries, err := token.Ledger.GetBucket(120)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.DirectionOut, entries[0].Direction)
	assert.Equal(t, "500000", entries[0].Fee.String())
	assert.Equal(t, "USDT", entries[0].Currency)
}
