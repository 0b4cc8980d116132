// Package postgres provides PostgreSQL storage for game sessions.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/waypointgames/waypoint/pkg/session"
)

const (
	// maxCreateAttempts bounds retries when a concurrent create wins the
	// race for the current-session slot.
	maxCreateAttempts = 3

	// uniqueViolation is the PostgreSQL error code for unique_violation.
	uniqueViolation = "23505"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{
	"id", "user_id", "game_id", "chapter_id", "status", "score",
	"inventory", "variables", "current_page_id",
	"created_at", "updated_at", "completed_at",
}

var currentStatuses = []string{string(session.StatusActive), string(session.StatusCompleted)}

// Store implements session.Store using PostgreSQL. A partial unique index on
// (user_id, game_id, chapter_id) over current statuses backs the
// one-current-session rule.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	newID  func() string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func selectCurrent(key session.Key) sq.SelectBuilder {
	return psq.Select(sessionColumns...).
		From("game_sessions").
		Where(sq.Eq{"user_id": key.UserID, "game_id": key.GameID, "chapter_id": key.ChapterID}).
		Where(sq.Eq{"status": currentStatuses}).
		Limit(1)
}

// GetCurrent returns the active or completed session for key.
func (s *Store) GetCurrent(ctx context.Context, key session.Key) (*session.Session, error) {
	return s.getCurrent(ctx, s.db, selectCurrent(key))
}

func (*Store) getCurrent(ctx context.Context, q queryer, qb sq.SelectBuilder) (*session.Session, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building current session query: %w", err)
	}
	return scanSession(q.QueryRowContext(ctx, query, args...))
}

// Get retrieves a session by ID. Returns nil, nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("game_sessions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	return scanSession(s.db.QueryRowContext(ctx, query, args...))
}

// Create starts a session for p.Key. Concurrent creators that lose the race
// on the unique index retry and observe the winner's session.
func (s *Store) Create(ctx context.Context, p session.CreateParams) (session.CreateResult, error) {
	var lastErr error
	for range maxCreateAttempts {
		res, err := s.createOnce(ctx, p)
		if err == nil {
			return res, nil
		}
		if !isUniqueViolation(err) {
			return session.CreateResult{}, err
		}
		lastErr = err
		slog.Debug("session create raced, retrying", "game_id", p.GameID, "error", err)
	}
	return session.CreateResult{}, fmt.Errorf("creating session after %d attempts: %w", maxCreateAttempts, lastErr)
}

func (s *Store) createOnce(ctx context.Context, p session.CreateParams) (session.CreateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.CreateResult{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := s.getCurrent(ctx, tx, selectCurrent(p.Key).Suffix("FOR UPDATE"))
	if err != nil {
		return session.CreateResult{}, err
	}

	var result session.CreateResult
	now := s.now().UTC()
	if cur != nil {
		if !p.ForceNew {
			return session.CreateResult{Session: cur}, nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE game_sessions SET status = $2, updated_at = $3 WHERE id = $1`,
			cur.ID, session.StatusSuperseded, now,
		)
		if err != nil {
			return session.CreateResult{}, fmt.Errorf("superseding session: %w", err)
		}
		cur.Status = session.StatusSuperseded
		cur.UpdatedAt = now
		result.Superseded = cur
	}

	sess := &session.Session{
		ID:            s.newID(),
		UserID:        p.UserID,
		GameID:        p.GameID,
		ChapterID:     p.ChapterID,
		Status:        session.StatusActive,
		Inventory:     []string{},
		Variables:     map[string]any{},
		CurrentPageID: p.FirstPageID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO game_sessions
		(id, user_id, game_id, chapter_id, status, score, inventory, variables, current_page_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sess.ID, sess.UserID, sess.GameID, sess.ChapterID, sess.Status, sess.Score,
		[]byte("[]"), []byte("{}"), sess.CurrentPageID, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return session.CreateResult{}, fmt.Errorf("inserting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return session.CreateResult{}, fmt.Errorf("committing session: %w", err)
	}
	result.Session = sess
	result.Created = true
	return result, nil
}

// UpdateProgress replaces the session's progress under a row lock.
func (s *Store) UpdateProgress(ctx context.Context, id, userID string, p session.Progress) (*session.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psq.Select(sessionColumns...).
		From("game_sessions").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	sess, err := scanSession(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if err := session.CheckWritable(sess, userID); err != nil {
		return nil, err
	}

	session.ApplyProgress(sess, p, s.now().UTC())
	inventory, err := json.Marshal(sess.Inventory)
	if err != nil {
		return nil, fmt.Errorf("marshaling inventory: %w", err)
	}
	variables, err := json.Marshal(sess.Variables)
	if err != nil {
		return nil, fmt.Errorf("marshaling variables: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE game_sessions
		SET status = $2, score = $3, inventory = $4, variables = $5,
		    current_page_id = $6, updated_at = $7, completed_at = $8
		WHERE id = $1`,
		sess.ID, sess.Status, sess.Score, inventory, variables,
		sess.CurrentPageID, sess.UpdatedAt, sess.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("updating session progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing session progress: %w", err)
	}
	return sess, nil
}

// PurgeSuperseded deletes superseded sessions last updated before the cutoff.
func (s *Store) PurgeSuperseded(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM game_sessions WHERE status = $1 AND updated_at < $2`,
		session.StatusSuperseded, before,
	)
	if err != nil {
		return 0, fmt.Errorf("purging superseded sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged sessions: %w", err)
	}
	return int(n), nil
}

// StartCleanupRoutine starts a background goroutine that periodically purges
// superseded sessions older than retention. The goroutine is stopped when
// Close is called.
func (s *Store) StartCleanupRoutine(interval, retention time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.PurgeSuperseded(ctx, s.now().Add(-retention)); err != nil {
					slog.Warn("session cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// scanSession scans a single row into a Session.
func scanSession(row *sql.Row) (*session.Session, error) {
	var (
		sess        session.Session
		status      string
		inventory   []byte
		variables   []byte
		completedAt sql.NullTime
	)
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.GameID, &sess.ChapterID, &status, &sess.Score,
		&inventory, &variables, &sess.CurrentPageID,
		&sess.CreatedAt, &sess.UpdatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.Status = session.Status(status)
	sess.Inventory = []string{}
	if len(inventory) > 0 {
		_ = json.Unmarshal(inventory, &sess.Inventory)
	}
	sess.Variables = make(map[string]any)
	if len(variables) > 0 {
		_ = json.Unmarshal(variables, &sess.Variables)
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return &sess, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
