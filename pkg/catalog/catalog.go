// Package catalog stores the pages games are built from. The flow engine
// only reads from it; editors write whole batches of pages at once.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/waypointgames/waypoint/pkg/page"
)

// ErrDanglingReference is returned when a page in a batch points at a page
// that is neither in the batch nor already in the game.
var ErrDanglingReference = errors.New("page reference does not resolve")

// ErrInvalidBatch wraps every error PrepareBatch returns: the batch itself
// is wrong, as opposed to the store failing.
var ErrInvalidBatch = errors.New("invalid page batch")

// Store defines the interface for page persistence.
type Store interface {
	// Pages returns a game's pages in sort order. A non-empty chapterID
	// restricts the result to that chapter.
	Pages(ctx context.Context, gameID, chapterID string) ([]page.Page, error)

	// CreatePages inserts a batch of pages carrying client-side ids. Every
	// page gets a server id, and references between pages of the batch are
	// rewritten. The returned map goes from client id to server id.
	CreatePages(ctx context.Context, gameID string, pages []page.Page) ([]page.Page, map[string]string, error)
}

// PrepareBatch assigns server ids to a batch and rewrites its references.
// existing holds the ids of pages the game already has; references may
// point at those or at pages of the batch. The input pages are not
// modified.
func PrepareBatch(gameID string, pages []page.Page, existing []string, newID func() string) ([]page.Page, map[string]string, error) {
	out, idMap, err := prepareBatch(gameID, pages, existing, newID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}
	return out, idMap, nil
}

func prepareBatch(gameID string, pages []page.Page, existing []string, newID func() string) ([]page.Page, map[string]string, error) {
	idMap := make(map[string]string, len(pages))
	for i, p := range pages {
		if p.ID == "" {
			return nil, nil, fmt.Errorf("page %d: client id is required", i)
		}
		if _, dup := idMap[p.ID]; dup {
			return nil, nil, fmt.Errorf("page %d: duplicate client id %q", i, p.ID)
		}
		if p.GameID != "" && p.GameID != gameID {
			return nil, nil, fmt.Errorf("page %s belongs to game %s", p.ID, p.GameID)
		}
		if err := page.ValidateConfig(p); err != nil {
			return nil, nil, err
		}
		idMap[p.ID] = newID()
	}

	for _, p := range pages {
		refs, err := page.References(p)
		if err != nil {
			return nil, nil, err
		}
		for _, ref := range refs {
			if _, inBatch := idMap[ref]; inBatch || slices.Contains(existing, ref) {
				continue
			}
			return nil, nil, fmt.Errorf("%w: page %s points at %s", ErrDanglingReference, p.ID, ref)
		}
	}

	out, err := page.RemapReferences(pages, idMap)
	if err != nil {
		return nil, nil, err
	}
	for i := range out {
		out[i].GameID = gameID
	}
	return out, idMap, nil
}
