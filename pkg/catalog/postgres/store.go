// Package postgres provides PostgreSQL storage for the page catalog.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/waypointgames/waypoint/pkg/catalog"
	"github.com/waypointgames/waypoint/pkg/page"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// pageColumns lists columns returned by page SELECT queries.
var pageColumns = []string{"id", "game_id", "chapter_id", "page_type", "sort_order", "config"}

// Store implements catalog.Store using PostgreSQL.
type Store struct {
	db    *sql.DB
	newID func() string
}

// New creates a new PostgreSQL catalog store.
func New(db *sql.DB) *Store {
	return &Store{db: db, newID: uuid.NewString}
}

// Pages returns a game's pages in sort order.
func (s *Store) Pages(ctx context.Context, gameID, chapterID string) ([]page.Page, error) {
	qb := psq.Select(pageColumns...).
		From("pages").
		Where(sq.Eq{"game_id": gameID}).
		OrderBy("sort_order", "id")
	if chapterID != "" {
		qb = qb.Where(sq.Eq{"chapter_id": chapterID})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building pages query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	pages := make([]page.Page, 0)
	for rows.Next() {
		var p page.Page
		var pageType string
		var config []byte
		if err := rows.Scan(&p.ID, &p.GameID, &p.ChapterID, &pageType, &p.SortOrder, &config); err != nil {
			return nil, fmt.Errorf("scanning page row: %w", err)
		}
		p.Type = page.Type(pageType)
		p.Config = config
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating page rows: %w", err)
	}
	return pages, nil
}

// CreatePages inserts a batch of pages in one transaction.
func (s *Store) CreatePages(ctx context.Context, gameID string, pages []page.Page) ([]page.Page, map[string]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := existingIDs(ctx, tx, gameID)
	if err != nil {
		return nil, nil, err
	}

	created, idMap, err := catalog.PrepareBatch(gameID, pages, existing, s.newID)
	if err != nil {
		return nil, nil, err
	}
	if len(created) == 0 {
		return created, idMap, nil
	}

	ib := psq.Insert("pages").Columns(pageColumns...)
	for _, p := range created {
		config := []byte(p.Config)
		if len(config) == 0 {
			config = []byte("{}")
		}
		ib = ib.Values(p.ID, p.GameID, p.ChapterID, string(p.Type), p.SortOrder, config)
	}
	query, args, err := ib.ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("building page insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, nil, fmt.Errorf("inserting pages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing pages: %w", err)
	}
	return created, idMap, nil
}

func existingIDs(ctx context.Context, tx *sql.Tx, gameID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM pages WHERE game_id = $1`, gameID)
	if err != nil {
		return nil, fmt.Errorf("querying existing page ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning page id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating page ids: %w", err)
	}
	return ids, nil
}

// Verify interface compliance.
var _ catalog.Store = (*Store)(nil)
