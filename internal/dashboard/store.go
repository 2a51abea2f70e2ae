package dashboard

import (
	"sort"
	"sync"

	"taifexflow/internal/model"
	"taifexflow/internal/sdk"
)

// Store is the read-model the pipeline thread publishes into and the
// dashboard handlers read from. It decouples HTTP traffic from the
// single-threaded SDK state.
type Store struct {
	mu    sync.RWMutex
	stats sdk.Stats
	books map[string]model.TopOfBook
}

func NewStore() *Store {
	return &Store{books: make(map[string]model.TopOfBook)}
}

// SetStats replaces the pipeline counters.
func (s *Store) SetStats(st sdk.Stats) {
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
}

// Stats returns the latest pipeline counters.
func (s *Store) Stats() sdk.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// UpdateBook stores the latest top-of-book for one product.
func (s *Store) UpdateBook(tob model.TopOfBook) {
	s.mu.Lock()
	s.books[tob.Product] = tob
	s.mu.Unlock()
}

// BookList returns all known books ordered by product id.
func (s *Store) BookList() []model.TopOfBook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TopOfBook, 0, len(s.books))
	for _, tob := range s.books {
		out = append(out, tob)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product < out[j].Product })
	return out
}
