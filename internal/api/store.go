package api

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/gmkit/pkg/gm"
)

type libraryRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Parent    string // library a merge result was derived from
	Library   *gm.Library
}

// LibraryStore keeps decoded libraries in memory. Stored libraries are never
// mutated; merges work on clones and store the result as a new record.
type LibraryStore struct {
	mu   sync.RWMutex
	libs map[string]*libraryRecord
}

func NewLibraryStore() *LibraryStore {
	return &LibraryStore{
		libs: make(map[string]*libraryRecord),
	}
}

func (s *LibraryStore) Put(lib *gm.Library, name, parent string, now time.Time) *libraryRecord {
	rec := &libraryRecord{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		Parent:    parent,
		Library:   lib,
	}
	s.mu.Lock()
	s.libs[rec.ID] = rec
	s.mu.Unlock()
	return rec
}

func (s *LibraryStore) Get(id string) (*libraryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.libs[id]
	return rec, ok
}

func (s *LibraryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.libs[id]; !ok {
		return false
	}
	delete(s.libs, id)
	return true
}

// List returns every record, oldest first.
func (s *LibraryStore) List() []*libraryRecord {
	s.mu.RLock()
	out := make([]*libraryRecord, 0, len(s.libs))
	for _, rec := range s.libs {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *libraryRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
