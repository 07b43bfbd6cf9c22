// Package memory provides an in-memory document store for local
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mnbossa/agridocs/internal/docs"
)

// Store keeps documents in a map guarded by a RWMutex: reads never block
// on writes to other URLs longer than the map operation itself.
type Store struct {
	mu    sync.RWMutex
	byURL map[string]docs.Document
	order map[string]int
	seq   int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		byURL: make(map[string]docs.Document),
		order: make(map[string]int),
	}
}

// Upsert inserts or replaces the document for its URL.
func (s *Store) Upsert(_ context.Context, doc docs.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[doc.URL]; !ok {
		s.order[doc.URL] = s.seq
	}
	s.seq++
	s.byURL[doc.URL] = doc
	return nil
}

// ListAll returns all documents ordered by IndexedAt descending. Ties fall
// back to insertion order so output stays stable within one crawl run.
func (s *Store) ListAll(_ context.Context) ([]docs.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]docs.Document, 0, len(s.byURL))
	for _, d := range s.byURL {
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].IndexedAt.Equal(out[j].IndexedAt) {
			return out[i].IndexedAt.After(out[j].IndexedAt)
		}
		return s.order[out[i].URL] < s.order[out[j].URL]
	})
	return out, nil
}

// Len reports the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL)
}
