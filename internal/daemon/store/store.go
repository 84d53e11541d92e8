package store

import (
	"sync"

	"github.com/grovetools/cellkernel/pkg/outcome"
)

const subscriberBuffer = 100

// Store is the in-memory state store for the kernel.
// It is thread-safe and supports pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	state       *State
	subscribers map[chan Update]struct{}
}

// New creates a new Store instance.
func New() *Store {
	return &Store{
		state:       &State{Phase: PhaseIdle},
		subscribers: make(map[chan Update]struct{}),
	}
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.state
}

// ApplyUpdate modifies the state and notifies subscribers.
// Payloads of the wrong type are ignored but still broadcast.
func (s *Store) ApplyUpdate(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Type {
	case UpdatePhase:
		if p, ok := u.Payload.(Phase); ok {
			s.state.Phase = p
		}
	case UpdateCells:
		if n, ok := u.Payload.(int); ok {
			s.state.CellCount = n
		}
	case UpdateOutcome:
		if o, ok := u.Payload.(*outcome.Outcome); ok && o != nil {
			s.state.LastOutcome = o
			s.state.Phase = PhaseFor(o.Kind)
			s.state.Runs++
		}
	case UpdateSessionReset:
		if info, ok := u.Payload.(SessionInfo); ok {
			s.state.Filename = info.Filename
			s.state.Workspace = info.Workspace
			s.state.ArtifactDir = info.ArtifactDir
			s.state.SessionAt = info.StartedAt
			s.state.CellCount = 0
			s.state.LastOutcome = nil
		}
	}

	s.broadcast(u)
}

// broadcast must be called with the lock held.
func (s *Store) broadcast(u Update) {
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// Non-blocking send to prevent slow clients from stalling the kernel
		}
	}
}

// Subscribe creates a new subscription channel for state updates.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, subscriberBuffer)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// BroadcastConfigReload sends a config reload notification to all subscribers.
func (s *Store) BroadcastConfigReload(file string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.broadcast(Update{
		Type:    UpdateConfigReload,
		Source:  "config",
		Payload: file,
	})
}
