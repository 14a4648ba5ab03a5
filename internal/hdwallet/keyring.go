package hdwallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"

	"github.com/thanhnp/wallet-ledger/internal/models"
)

// Deriver maps a derivation path to an address record
type Deriver interface {
	AddressFromPath(path string) (models.AddressRecord, error)
}

// Keyring derives EVM account keys from a bip39 mnemonic
type Keyring struct {
	master *hdkeychain.ExtendedKey
}

// NewKeyring builds the master key of mnemonic
func NewKeyring(mnemonic, passphrase string) (*Keyring, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	return &Keyring{master: master}, nil
}

// AddressFromPath derives the account at path
func (k *Keyring) AddressFromPath(strPath string) (models.AddressRecord, error) {
	path, err := ParseDerivationPath(strPath)
	if err != nil {
		return models.AddressRecord{}, err
	}
	accountType, err := path.AccountType()
	if err != nil {
		return models.AddressRecord{}, err
	}

	key := k.master
	for _, i := range path {
		key, err = key.Derive(i)
		if err != nil {
			return models.AddressRecord{}, fmt.Errorf("%w: %s: %v", ErrDerivation, strPath, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return models.AddressRecord{}, fmt.Errorf("%w: %s: %v", ErrDerivation, strPath, err)
	}

	return models.AddressRecord{
		Path:        path.String(),
		Address:     PubKeyToAddress(priv.PubKey()),
		PublicKey:   priv.PubKey().SerializeUncompressed(),
		PrivateKey:  priv.Serialize(),
		AccountType: accountType,
		Index:       path.Index(),
	}, nil
}

// PubKeyToAddress returns the lowercase 0x address of a secp256k1 public key
func PubKeyToAddress(pub *btcec.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.SerializeUncompressed()[1:])
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}

// AddressFromPublicKey returns the address of a serialized public key,
// compressed or not
func AddressFromPublicKey(raw []byte) (string, error) {
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return "", fmt.Errorf("%w: public key: %v", ErrDerivation, err)
	}
	return PubKeyToAddress(pub), nil
}
