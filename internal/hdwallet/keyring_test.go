package hdwallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "test test test test test test test test test test test junk"

func TestKeyringAddressFromPath(t *testing.T) {
	k, err := NewKeyring(testMnemonic, "")
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{"m/44'/60'/0'/0/0", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"},
		{"m/44'/60'/0'/0/1", "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"},
	}

	for _, tt := range tests {
		rec, err := k.AddressFromPath(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, rec.Address)
		assert.Equal(t, tt.path, rec.Path)
		assert.Len(t, rec.PublicKey, 65)
		assert.Len(t, rec.PrivateKey, 32)

		addr, err := AddressFromPublicKey(rec.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, tt.want, addr)
	}
}

func TestKeyringErrors(t *testing.T) {
	_, err := NewKeyring("not a mnemonic", "")
	require.ErrorIs(t, err, ErrInvalidMnemonic)

	k, err := NewKeyring(testMnemonic, "")
	require.NoError(t, err)

	_, err = k.AddressFromPath("m/44'/60'")
	require.ErrorIs(t, err, ErrDerivation)

	_, err = k.AddressFromPath("m/44'/60'/0'/5/0")
	require.ErrorIs(t, err, ErrMalformedDerivationPath)

	_, err = AddressFromPublicKey([]byte{0x04, 0x01})
	require.ErrorIs(t, err, ErrDerivation)
}
