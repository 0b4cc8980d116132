package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/waypointgames/waypoint/pkg/page"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	pages map[string][]page.Page
	newID func() string
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages: make(map[string][]page.Page),
		newID: uuid.NewString,
	}
}

// Pages returns a game's pages in sort order.
func (s *MemoryStore) Pages(_ context.Context, gameID, chapterID string) ([]page.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]page.Page, 0, len(s.pages[gameID]))
	for _, p := range s.pages[gameID] {
		if chapterID != "" && p.ChapterID != chapterID {
			continue
		}
		out = append(out, p.Clone())
	}
	page.SortPages(out)
	return out, nil
}

// CreatePages inserts a batch of pages, assigning server ids.
func (s *MemoryStore) CreatePages(_ context.Context, gameID string, pages []page.Page) ([]page.Page, map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make([]string, 0, len(s.pages[gameID]))
	for _, p := range s.pages[gameID] {
		existing = append(existing, p.ID)
	}
	created, idMap, err := PrepareBatch(gameID, pages, existing, s.newID)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range created {
		s.pages[gameID] = append(s.pages[gameID], p.Clone())
	}
	return created, idMap, nil
}

// Put stores pages as they are, keeping their ids. It seeds fixtures and
// demo games.
func (s *MemoryStore) Put(pages ...page.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range pages {
		s.pages[p.GameID] = append(s.pages[p.GameID], p.Clone())
	}
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
