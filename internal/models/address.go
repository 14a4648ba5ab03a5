package models

import "fmt"

// AccountType identifies a branch of the derivation tree
type AccountType int

const (
	// External is the receiving branch (change = 0)
	External AccountType = iota
	// Internal is the change branch (change = 1)
	Internal
)

// AccountTypes lists every branch walked during a sync pass
var AccountTypes = []AccountType{External, Internal}

func (t AccountType) String() string {
	switch t {
	case External:
		return "external"
	case Internal:
		return "internal"
	default:
		return fmt.Sprintf("account_type(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler
func (t AccountType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *AccountType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "external":
		*t = External
	case "internal":
		*t = Internal
	default:
		return fmt.Errorf("unknown account type %q", string(b))
	}
	return nil
}

// AddressRecord is a derived wallet address. PrivateKey is re-derived on
// demand and never serialized.
type AddressRecord struct {
	Path        string      `json:"path"`
	Address     string      `json:"address"`
	PublicKey   []byte      `json:"public_key"`
	PrivateKey  []byte      `json:"-"`
	AccountType AccountType `json:"account_type"`
	Index       uint32      `json:"index"`
}

// Public returns a copy of the record without key material
func (a AddressRecord) Public() AddressRecord {
	a.PrivateKey = nil
	return a
}
