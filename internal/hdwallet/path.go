package hdwallet

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/thanhnp/wallet-ledger/internal/models"
)

// DerivationPath is the binary form of a bip32 path
type DerivationPath []uint32

// PathConfig holds the hardened prefix shared by every derived address
type PathConfig struct {
	Purpose  uint32
	CoinType uint32
	Account  uint32
}

// DefaultPathConfig is m/44'/60'/0'
var DefaultPathConfig = PathConfig{Purpose: 44, CoinType: 60, Account: 0}

// AddressPath returns m/purpose'/coin'/account'/change/index
func (c PathConfig) AddressPath(t models.AccountType, index uint32) DerivationPath {
	return DerivationPath{
		hdkeychain.HardenedKeyStart + c.Purpose,
		hdkeychain.HardenedKeyStart + c.CoinType,
		hdkeychain.HardenedKeyStart + c.Account,
		uint32(t),
		index,
	}
}

// ParseDerivationPath converts a derivation path string to the
// internal binary representation
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	if strings.TrimSpace(strPath) == "" {
		return nil, ErrNullDerivationPath
	}

	elems := strings.Split(strPath, "/")
	if len(elems) < 2 || strings.TrimSpace(elems[0]) != "m" {
		return nil, ErrMalformedDerivationPath
	}
	elems = elems[1:]

	path := make(DerivationPath, 0, len(elems))
	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			return nil, ErrMalformedDerivationPath
		}

		var value uint32
		if strings.HasSuffix(elem, "'") {
			value = hdkeychain.HardenedKeyStart
			elem = strings.TrimSpace(strings.TrimSuffix(elem, "'"))
		}

		// use big int for convertion
		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("%w: invalid elem '%s'", ErrMalformedDerivationPath, elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			return nil, fmt.Errorf("%w: elem %v must be in range [0, %d]", ErrMalformedDerivationPath, bigval, max)
		}
		path = append(path, value+uint32(bigval.Uint64()))
	}

	return path, nil
}

// AccountType returns the branch of a full address path
func (path DerivationPath) AccountType() (models.AccountType, error) {
	if len(path) != 5 {
		return 0, ErrMalformedDerivationPath
	}
	switch path[3] {
	case uint32(models.External):
		return models.External, nil
	case uint32(models.Internal):
		return models.Internal, nil
	default:
		return 0, fmt.Errorf("%w: unknown change branch %d", ErrMalformedDerivationPath, path[3])
	}
}

// Index returns the last element of the path
func (path DerivationPath) Index() uint32 {
	if len(path) == 0 {
		return 0
	}
	return path[len(path)-1]
}

// String converts a binary derivation path to its canonical representation
func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("m")
	for _, component := range path {
		hardened := component >= hdkeychain.HardenedKeyStart
		if hardened {
			component -= hdkeychain.HardenedKeyStart
		}
		fmt.Fprintf(&sb, "/%d", component)
		if hardened {
			sb.WriteString("'")
		}
	}
	return sb.String()
}
