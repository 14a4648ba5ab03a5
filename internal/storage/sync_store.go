package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PendingPass is the window of a pass that has started but not completed
type PendingPass struct {
	FromBlock int64 `json:"from_block"`
	Tip       int64 `json:"tip"`
}

// SyncStore handles the sync checkpoint of one asset namespace
type SyncStore struct {
	db Store
}

// NewSyncStore creates a new SyncStore
func NewSyncStore(db Store) *SyncStore {
	return &SyncStore{db: db}
}

// GetSyncedHeight retrieves the height the last completed pass synced to
func (s *SyncStore) GetSyncedHeight() (int64, error) {
	data, err := s.db.Get(KeySyncedHeight)
	if err != nil {
		return 0, err
	}
	if data == nil {
		return -1, nil // -1 indicates no sync state exists
	}

	height, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sync height: %w", err)
	}

	return height, nil
}

// SetSyncedHeight sets the synced height
func (s *SyncStore) SetSyncedHeight(height int64) error {
	return s.db.Put(KeySyncedHeight, []byte(strconv.FormatInt(height, 10)))
}

// GetPendingPass returns the in-flight pass, or nil when none is recorded
func (s *SyncStore) GetPendingPass() (*PendingPass, error) {
	data, err := s.db.Get(KeyPendingPass)
	if err != nil || data == nil {
		return nil, err
	}

	var p PendingPass
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending pass: %w", err)
	}
	return &p, nil
}

// BeginPass records the window of a new pass
func (s *SyncStore) BeginPass(p PendingPass) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pending pass: %w", err)
	}
	return s.db.Put(KeyPendingPass, data)
}

// CompletePass moves the checkpoint to the pass tip and drops the pending
// record in one write
func (s *SyncStore) CompletePass(tip int64) error {
	return s.db.Update(func(b Batch) error {
		if err := b.Put(KeySyncedHeight, []byte(strconv.FormatInt(tip, 10))); err != nil {
			return err
		}
		return b.Delete(KeyPendingPass)
	})
}
