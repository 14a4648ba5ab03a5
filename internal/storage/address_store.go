package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thanhnp/wallet-ledger/internal/models"
)

// Key prefixes of the HD wallet cache
const (
	PrefixAddress = "adr:"
	PrefixInUse   = "use:"
	PrefixCursor  = "cur:"
)

// CursorState is the traversal state of one account type. Issued counts the
// indices ever derived, Position is the next index visited by the current
// pass.
type CursorState struct {
	Issued   uint32 `json:"issued"`
	Position uint32 `json:"position"`
	Done     bool   `json:"done"`
}

// AddressStore caches derived addresses, their in-use flags and the
// per-account-type cursors of one asset
type AddressStore struct {
	db Store
}

// NewAddressStore creates a new AddressStore
func NewAddressStore(db Store) *AddressStore {
	return &AddressStore{db: db}
}

func addressKey(address string) string {
	return PrefixAddress + strings.ToLower(address)
}

func inUseKey(address string) string {
	return PrefixInUse + strings.ToLower(address)
}

func cursorKey(t models.AccountType) string {
	return PrefixCursor + t.String()
}

// Save stores an address record. Key material is never written.
func (s *AddressStore) Save(addr models.AddressRecord) error {
	data, err := json.Marshal(addr.Public())
	if err != nil {
		return fmt.Errorf("failed to marshal address: %w", err)
	}

	return s.db.Put(addressKey(addr.Address), data)
}

// Get retrieves an address record, or nil when it is unknown
func (s *AddressStore) Get(address string) (*models.AddressRecord, error) {
	data, err := s.db.Get(addressKey(address))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var addr models.AddressRecord
	if err := json.Unmarshal(data, &addr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal address: %w", err)
	}
	return &addr, nil
}

// List returns every cached address record
func (s *AddressStore) List() ([]models.AddressRecord, error) {
	var out []models.AddressRecord
	err := s.db.Iterate(PrefixAddress, func(_ string, value []byte) error {
		var addr models.AddressRecord
		if err := json.Unmarshal(value, &addr); err != nil {
			return fmt.Errorf("failed to unmarshal address: %w", err)
		}
		out = append(out, addr)
		return nil
	})
	return out, err
}

// MarkInUse flags address as having on-chain activity
func (s *AddressStore) MarkInUse(address string) error {
	return s.db.Put(inUseKey(address), []byte{1})
}

// IsInUse reports whether address was ever flagged in use
func (s *AddressStore) IsInUse(address string) (bool, error) {
	data, err := s.db.Get(inUseKey(address))
	if err != nil {
		return false, err
	}
	return data != nil, nil
}

// InUse returns the lowercase addresses flagged in use
func (s *AddressStore) InUse() ([]string, error) {
	var out []string
	err := s.db.Iterate(PrefixInUse, func(key string, _ []byte) error {
		out = append(out, strings.TrimPrefix(key, PrefixInUse))
		return nil
	})
	return out, err
}

// GetCursor returns the cursor of an account type, zero valued when absent
func (s *AddressStore) GetCursor(t models.AccountType) (CursorState, error) {
	var c CursorState
	data, err := s.db.Get(cursorKey(t))
	if err != nil || data == nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to unmarshal cursor: %w", err)
	}
	return c, nil
}

// SetCursor persists the cursor of an account type
func (s *AddressStore) SetCursor(t models.AccountType, c CursorState) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return s.db.Put(cursorKey(t), data)
}

// SaveIssued stores a newly derived address together with the advanced
// cursor so an index is never issued twice
func (s *AddressStore) SaveIssued(addr models.AddressRecord, c CursorState) error {
	addrData, err := json.Marshal(addr.Public())
	if err != nil {
		return fmt.Errorf("failed to marshal address: %w", err)
	}
	cursorData, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return s.db.Update(func(b Batch) error {
		if err := b.Put(addressKey(addr.Address), addrData); err != nil {
			return err
		}
		return b.Put(cursorKey(addr.AccountType), cursorData)
	})
}
