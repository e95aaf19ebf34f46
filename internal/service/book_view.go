package service

import (
	"sort"
	"sync"

	"orderbook_go/internal/domain"
)

// BookView holds the latest published view per pair for readers outside the
// session (dashboard, HTTP API).
type BookView struct {
	mu      sync.RWMutex
	views   map[string]domain.ViewState
	version uint64
	reverse bool
	updates chan struct{}
}

// NewBookView creates an empty BookView
func NewBookView() *BookView {
	return &BookView{
		views:   make(map[string]domain.ViewState),
		updates: make(chan struct{}, 1), // 알림은 합쳐서 전달
	}
}

// Publish stores v and signals Updates without blocking.
// Sessions call this while holding their own lock.
func (s *BookView) Publish(v domain.ViewState) {
	s.mu.Lock()
	s.views[v.Pair.String()] = v
	s.version++
	s.mu.Unlock()

	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Get returns the latest view for a pair.
func (s *BookView) Get(pair domain.Pair) (domain.ViewState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.views[pair.String()]
	return v, ok
}

// All returns every view sorted by pair
func (s *BookView) All() []domain.ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ViewState, 0, len(s.views))
	for _, v := range s.views {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Pair.String() < result[j].Pair.String()
	})
	return result
}

// Remove drops a pair's view.
func (s *BookView) Remove(pair domain.Pair) {
	s.mu.Lock()
	delete(s.views, pair.String())
	s.version++
	s.mu.Unlock()
}

// Version increments on every change.
func (s *BookView) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Updates fires at least once after any number of publishes.
func (s *BookView) Updates() <-chan struct{} {
	return s.updates
}

// SetReverse sets the bid column order preference.
func (s *BookView) SetReverse(reverse bool) {
	s.mu.Lock()
	s.reverse = reverse
	s.version++
	s.mu.Unlock()

	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Reverse returns the bid column order preference.
func (s *BookView) Reverse() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reverse
}
