package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/models"
)

func TestAddressStore(t *testing.T) {
	db, err := NewBadgerDB("")
	require.NoError(t, err)
	defer db.Close()

	s := NewAddressStore(db.Namespace("hdwallet-eth"))

	rec := models.AddressRecord{
		Path:        "m/44'/60'/0'/0/0",
		Address:     "0xAbC",
		PublicKey:   []byte{1, 2},
		PrivateKey:  []byte{9, 9},
		AccountType: models.External,
	}
	require.NoError(t, s.SaveIssued(rec, CursorState{Issued: 1}))

	got, err := s.Get("0xabc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Path, got.Path)
	assert.Nil(t, got.PrivateKey)

	c, err := s.GetCursor(models.External)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), c.Issued)

	inUse, err := s.IsInUse("0xABC")
	require.NoError(t, err)
	assert.False(t, inUse)

	require.NoError(t, s.MarkInUse("0xABC"))
	inUse, err = s.IsInUse("0xabc")
	require.NoError(t, err)
	assert.True(t, inUse)

	active, err := s.InUse()
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabc"}, active)

	missing, err := s.Get("0xdead")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMultiAssetStore(t *testing.T) {
	db, err := NewInMemoryPebbleDB()
	require.NoError(t, err)
	defer db.Close()

	m := NewMultiAssetStore()
	unit := currency.Unit{Name: "USDT", Decimals: 6}
	stores, err := NewAssetStores(db, "usdt", unit, unit)
	require.NoError(t, err)
	m.RegisterAsset("usdt", stores)

	got, err := m.Get("usdt")
	require.NoError(t, err)
	assert.Same(t, stores, got)

	_, err = m.Get("dai")
	require.ErrorIs(t, err, ErrAssetNotRegistered)
	assert.Equal(t, []string{"usdt"}, m.Assets())
}
