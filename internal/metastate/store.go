package metastate

import (
	"sync"

	"github.com/cellprobehq/agent/pkg/types"
)

// Store holds the latest modem status and the location trail for one run.
// The metadata collector is its only writer; every read returns a copy.
type Store struct {
	mu        sync.RWMutex
	modem     Modem
	locations []types.LocationFix

	updates chan struct{}
}

func New() *Store {
	return &Store{
		modem:   make(Modem),
		updates: make(chan struct{}, 1),
	}
}

// MergeModem applies every field of a modem message under a single lock so
// readers never observe half of an update. Existing fields not present in
// the message are kept.
func (s *Store) MergeModem(fields map[string]any) {
	if len(fields) == 0 {
		return
	}
	s.mu.Lock()
	for k, v := range fields {
		s.modem[k] = v
	}
	s.mu.Unlock()
	s.notify()
}

// AppendLocation adds a fix to the trail and returns the new trail length.
func (s *Store) AppendLocation(fix types.LocationFix) int {
	s.mu.Lock()
	s.locations = append(s.locations, fix.Clone())
	n := len(s.locations)
	s.mu.Unlock()
	s.notify()
	return n
}

func (s *Store) Modem() Modem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Modem, len(s.modem))
	for k, v := range s.modem {
		out[k] = v
	}
	return out
}

// InterfaceName returns the interface the operator's modem is currently bound to.
func (s *Store) InterfaceName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modem.String(FieldInterface)
}

func (s *Store) LocationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.locations)
}

func (s *Store) Locations() []types.LocationFix {
	return s.LocationsFrom(0)
}

// LocationsFrom returns a copy of the trail starting at index start.
func (s *Store) LocationsFrom(start int) []types.LocationFix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if start < 0 {
		start = 0
	}
	if start >= len(s.locations) {
		return []types.LocationFix{}
	}
	out := make([]types.LocationFix, len(s.locations)-start)
	copy(out, s.locations[start:])
	return out
}

// Snapshot is a consistent view of both halves of the store.
type Snapshot struct {
	Modem         Modem
	LocationCount int
	LastLocation  types.LocationFix
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Modem:         make(Modem, len(s.modem)),
		LocationCount: len(s.locations),
	}
	for k, v := range s.modem {
		snap.Modem[k] = v
	}
	if n := len(s.locations); n > 0 {
		snap.LastLocation = s.locations[n-1].Clone()
	}
	return snap
}

// Updates signals (coalesced) that the store changed. It is meant for a
// single consumer waiting for metadata to arrive.
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

func (s *Store) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
