//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/waypointgames/waypoint/pkg/session"
	sessionpg "github.com/waypointgames/waypoint/pkg/session/postgres"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)
	`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16",
		postgres.WithDatabase("waypoint"),
		postgres.WithUsername("waypoint"),
		postgres.WithPassword("waypoint"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	t.Run("Run applies migrations", func(t *testing.T) {
		require.NoError(t, Run(db))
		for _, table := range []string{"game_sessions", "pages", "session_events"} {
			assert.True(t, tableExists(t, db, table), "%s table should exist", table)
		}

		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(3), version)
	})

	t.Run("Run is idempotent", func(t *testing.T) {
		require.NoError(t, Run(db))
		version, _, err := Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(3), version)
	})

	t.Run("one current session per key", func(t *testing.T) {
		store := sessionpg.New(db)
		key := session.Key{UserID: "u1", GameID: "g1"}

		first, err := store.Create(ctx, session.CreateParams{Key: key, FirstPageID: "p1"})
		require.NoError(t, err)
		require.True(t, first.Created)

		_, err = db.ExecContext(ctx,
			`INSERT INTO game_sessions (id, user_id, game_id, chapter_id, status) VALUES ('dup', 'u1', 'g1', '', 'active')`)
		require.Error(t, err, "the partial unique index rejects a second current session")

		replay, err := store.Create(ctx, session.CreateParams{Key: key, FirstPageID: "p1", ForceNew: true})
		require.NoError(t, err)
		require.NotNil(t, replay.Superseded)
		assert.Equal(t, first.Session.ID, replay.Superseded.ID)
	})

	t.Run("Down rolls back migrations", func(t *testing.T) {
		require.NoError(t, Down(db))
		assert.False(t, tableExists(t, db, "game_sessions"))
		assert.False(t, tableExists(t, db, "session_events"))
	})

	t.Run("Steps applies n migrations", func(t *testing.T) {
		require.NoError(t, Steps(db, 1))
		version, _, err := Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(1), version)
		assert.True(t, tableExists(t, db, "game_sessions"))
		assert.False(t, tableExists(t, db, "pages"))

		require.NoError(t, Steps(db, 2))
		version, _, err = Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(3), version)
	})
}
