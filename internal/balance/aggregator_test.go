package balance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/models"
	"github.com/thanhnp/wallet-ledger/internal/storage"
)

var eth = currency.Unit{Name: "ETH", BaseName: "WEI", Decimals: 18}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) GetAddress(address string) (*models.AddressRecord, error) {
	args := m.Called(address)
	var res *models.AddressRecord
	if a := args.Get(0); a != nil {
		res = a.(*models.AddressRecord)
	}
	return res, args.Error(1)
}

func (m *mockResolver) ActiveAddresses() ([]string, error) {
	args := m.Called()
	var res []string
	if a := args.Get(0); a != nil {
		res = a.([]string)
	}
	return res, args.Error(1)
}

func newTestAggregator(t *testing.T, chargeFees bool) (*Aggregator, *storage.LedgerStore, *mockResolver) {
	t.Helper()
	db, err := storage.NewInMemoryPebbleDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ledger := storage.NewLedgerStore(db.Namespace("state-eth"), eth, eth)
	resolver := &mockResolver{}
	return NewAggregator("eth", ledger, resolver, chargeFees), ledger, resolver
}

func amount(v int64) currency.Amount {
	return currency.NewFromInt64(eth, v)
}

func tx(txid, from, to string, height, value, fee int64) models.TransactionEntry {
	return models.TransactionEntry{
		TxID:     txid,
		From:     from,
		To:       to,
		Amount:   amount(value),
		Height:   height,
		Fee:      amount(fee),
		FeeRate:  currency.Zero(eth),
		Currency: eth.Name,
	}
}

func TestReconcileScenario(t *testing.T) {
	agg, ledger, _ := newTestAggregator(t, true)

	e := tx("0x01", "0xbb", "0xaa", 100, 1000000, 21000)
	_, err := ledger.StoreTransaction(e)
	require.NoError(t, err)
	_, err = agg.Reconcile("0xAA")
	require.NoError(t, err)

	bal, err := agg.GetAddressBalance("0xaa")
	require.NoError(t, err)
	assert.Equal(t, "1000000", bal.String())

	// redelivery is absorbed
	_, err = ledger.StoreTransaction(e)
	require.NoError(t, err)
	_, err = agg.Reconcile("0xaa")
	require.NoError(t, err)

	bal, err = agg.GetAddressBalance("0xaa")
	require.NoError(t, err)
	assert.Equal(t, "1000000", bal.String())
}

func TestReconcileOrderIndependent(t *testing.T) {
	entries := []models.TransactionEntry{
		tx("0x01", "0xbb", "0xaa", 10, 500, 1),
		tx("0x02", "0xaa", "0xcc", 12, 200, 3),
		tx("0x03", "0xdd", "0xaa", 11, 50, 1),
	}
	const want = "347" // 500 + 50 - 200 - 3

	orders := map[string][]int{
		"forward": {0, 1, 2},
		"reverse": {2, 1, 0},
		"mixed":   {1, 0, 2},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			agg, ledger, _ := newTestAggregator(t, true)
			for _, i := range order {
				_, err := ledger.StoreTransaction(entries[i])
				require.NoError(t, err)
				_, err = agg.Reconcile("0xaa")
				require.NoError(t, err)
			}

			total, err := agg.GetTotal()
			require.NoError(t, err)
			assert.Equal(t, want, total.String())
		})
	}
}

func TestReconcileTokenIgnoresFee(t *testing.T) {
	agg, ledger, _ := newTestAggregator(t, false)

	_, err := ledger.StoreTransaction(tx("0x01", "0xbb", "0xaa", 1, 100, 0))
	require.NoError(t, err)
	_, err = ledger.StoreTransaction(tx("0x02", "0xaa", "0xbb", 2, 40, 99))
	require.NoError(t, err)

	bal, err := agg.Reconcile("0xaa")
	require.NoError(t, err)
	assert.Equal(t, "60", bal.String())
}

func TestGetTotalAndAdd(t *testing.T) {
	agg, _, _ := newTestAggregator(t, true)

	total, err := agg.GetTotal()
	require.NoError(t, err)
	assert.True(t, total.IsZero())
	assert.Equal(t, eth, total.Unit())

	require.NoError(t, agg.SetBalance("0xaa", amount(10)))
	require.NoError(t, agg.Add("0xbb", amount(5)))
	require.NoError(t, agg.Add("0xaa", amount(-3)))

	total, err = agg.GetTotal()
	require.NoError(t, err)
	assert.Equal(t, "12", total.String())

	balances, err := agg.Balances()
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "0xaa", balances[0].Address)
}

func TestSnapshotReloadedFromLedger(t *testing.T) {
	agg, ledger, _ := newTestAggregator(t, true)
	require.NoError(t, agg.SetBalance("0xaa", amount(1)))

	require.NoError(t, ledger.Reset())
	agg.Invalidate()

	total, err := agg.GetTotal()
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestSelectSender(t *testing.T) {
	agg, _, resolver := newTestAggregator(t, true)

	recA := &models.AddressRecord{Address: "0xaa", Path: "m/44'/60'/0'/0/0"}
	recB := &models.AddressRecord{Address: "0xbb", Path: "m/44'/60'/0'/0/1"}
	resolver.On("GetAddress", "0xaa").Return(recA, nil)
	resolver.On("GetAddress", "0xbb").Return(recB, nil)
	resolver.On("GetAddress", "0xee").Return(nil, nil)

	require.NoError(t, agg.SetBalance("0xaa", amount(10)))
	require.NoError(t, agg.SetBalance("0xbb", amount(30)))

	tests := []struct {
		name    string
		amount  int64
		sender  string
		want    string
		wantErr error
	}{
		{"first funded", 5, "", "0xaa", nil},
		{"skips small", 20, "", "0xbb", nil},
		{"split across addresses", 35, "", "", ErrNoFundedAddress},
		{"above total", 41, "", "", ErrInsufficientFunds},
		{"explicit sender", 10, "0xaa", "0xaa", nil},
		{"explicit sender short", 11, "0xaa", "", ErrInsufficientFunds},
		{"foreign sender", 1, "0xee", "", ErrNoFundedAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := agg.SelectSender(amount(tt.amount), tt.sender)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Address)
		})
	}
}

func TestGetAddressWithAtLeastMissingRecord(t *testing.T) {
	agg, _, resolver := newTestAggregator(t, true)
	resolver.On("GetAddress", "0xaa").Return(nil, nil)

	require.NoError(t, agg.SetBalance("0xaa", amount(10)))

	_, err := agg.GetAddressWithAtLeast(amount(1))
	require.ErrorIs(t, err, ErrNoFundedAddress)
	assert.True(t, strings.Contains(err.Error(), "missing"))
}

func TestRebuild(t *testing.T) {
	agg, ledger, resolver := newTestAggregator(t, true)
	resolver.On("ActiveAddresses").Return([]string{"0xAA", "0xcc"}, nil)

	require.NoError(t, agg.SetBalance("0xaa", amount(999)))
	_, err := ledger.StoreTransaction(tx("0x01", "0xbb", "0xaa", 1, 70, 0))
	require.NoError(t, err)
	_, err = ledger.StoreTransaction(tx("0x02", "0xaa", "0xcc", 2, 20, 5))
	require.NoError(t, err)

	require.NoError(t, agg.Rebuild())

	a, err := agg.GetAddressBalance("0xaa")
	require.NoError(t, err)
	assert.Equal(t, "45", a.String())

	c, err := agg.GetAddressBalance("0xcc")
	require.NoError(t, err)
	assert.Equal(t, "20", c.String())
	resolver.AssertExpectations(t)
}
