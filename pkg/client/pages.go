package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/waypointgames/waypoint/pkg/catalog"
	"github.com/waypointgames/waypoint/pkg/engine"
	"github.com/waypointgames/waypoint/pkg/page"
)

type pagesResponse struct {
	Pages []page.Page `json:"pages"`
}

type batchRequest struct {
	Pages []page.Page `json:"pages"`
}

type batchResponse struct {
	Pages []page.Page       `json:"pages"`
	IDMap map[string]string `json:"idMap"`
}

// Pages returns a game's pages in sort order, optionally limited to one
// chapter.
func (c *Client) Pages(ctx context.Context, gameID, chapterID string) ([]page.Page, error) {
	path, err := expand(pagesTemplate, map[string]string{"gameID": gameID, "chapterId": chapterID})
	if err != nil {
		return nil, err
	}
	var resp pagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	return resp.Pages, nil
}

// CreatePages creates pages carrying client-side temporary ids. It returns
// the created pages and the map from temporary to server ids; references
// between the new pages are already rewritten.
func (c *Client) CreatePages(ctx context.Context, gameID string, pages []page.Page) ([]page.Page, map[string]string, error) {
	path, err := expand(batchTemplate, map[string]string{"gameID": gameID})
	if err != nil {
		return nil, nil, err
	}
	var resp batchResponse
	if err := c.do(ctx, http.MethodPost, path, batchRequest{Pages: pages}, &resp); err != nil {
		return nil, nil, fmt.Errorf("creating pages: %w", err)
	}
	return resp.Pages, resp.IDMap, nil
}

var (
	_ engine.Catalog = (*Client)(nil)
	_ catalog.Store  = (*Client)(nil)
)
