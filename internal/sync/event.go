package sync

import (
	"sync"

	"github.com/thanhnp/wallet-ledger/internal/models"
)

const (
	SyncedPath EventType = iota
	NewTx
	SyncEnd
	ProviderError
)

type EventType int

func (et EventType) String() string {
	switch et {
	case SyncedPath:
		return "synced-path"
	case NewTx:
		return "new-tx"
	case SyncEnd:
		return "sync-end"
	case ProviderError:
		return "provider-error"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers of an Emitter
type Event interface {
	Type() EventType
}

// SyncedPathEvent is emitted after an address was queried during a pass
type SyncedPathEvent struct {
	Asset       string
	AccountType models.AccountType
	Path        string
	Address     string
	HasTx       bool
}

func (e SyncedPathEvent) Type() EventType { return SyncedPath }

// NewTxEvent is emitted when a pushed transaction was applied
type NewTxEvent struct {
	Asset   string
	Address string
	Entry   models.TransactionEntry
}

func (e NewTxEvent) Type() EventType { return NewTx }

// SyncEndEvent is emitted when a pass finishes, halts or fails
type SyncEndEvent struct {
	Asset  string
	Halted bool
	Tip    int64
	Err    error
}

func (e SyncEndEvent) Type() EventType { return SyncEnd }

// ProviderErrorEvent is emitted when the push feed reports a failure
type ProviderErrorEvent struct {
	Err error
}

func (e ProviderErrorEvent) Type() EventType { return ProviderError }

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

// Emitter fans events out to subscribers. Each subscriber gets every event
// emitted while it is subscribed; a subscriber that stops draining its
// channel blocks emitters until it unsubscribes.
type Emitter struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	bufSize int
}

// NewEmitter creates an Emitter whose subscriber channels hold bufSize events
func NewEmitter(bufSize int) *Emitter {
	return &Emitter{subs: make(map[*subscriber]struct{}), bufSize: bufSize}
}

// Subscribe returns an event channel and the func that ends the
// subscription
func (e *Emitter) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, e.bufSize), done: make(chan struct{})}

	e.mu.Lock()
	e.subs[s] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			close(s.done)
			e.mu.Lock()
			delete(e.subs, s)
			e.mu.Unlock()
		})
	}
}

// Emit delivers ev to every subscriber
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}

	e.mu.RLock()
	subs := make([]*subscriber, 0, len(e.subs))
	for s := range e.subs {
		subs = append(subs, s)
	}
	e.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
}
