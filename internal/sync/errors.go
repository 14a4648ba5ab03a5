package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrSync is the root of every pass failure
	ErrSync = errors.New("sync failed")
	// ErrSyncInProgress is returned when a pass already runs on the asset
	ErrSyncInProgress = errors.New("sync already in progress")
)

// SyncError is a fatal failure of a pass. Addresses committed before the
// failure stay committed.
type SyncError struct {
	Asset string
	Path  string
	Err   error
}

func (e *SyncError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", ErrSync, e.Asset, e.Err)
	}
	return fmt.Sprintf("%s: %s at %s: %v", ErrSync, e.Asset, e.Path, e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{ErrSync, e.Err}
}
