package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointgames/waypoint/pkg/audit"
	auditpg "github.com/waypointgames/waypoint/pkg/audit/postgres"
	"github.com/waypointgames/waypoint/pkg/auth"
	"github.com/waypointgames/waypoint/pkg/catalog"
	catalogpg "github.com/waypointgames/waypoint/pkg/catalog/postgres"
	"github.com/waypointgames/waypoint/pkg/client"
	"github.com/waypointgames/waypoint/pkg/config"
	"github.com/waypointgames/waypoint/pkg/session"
	sessionpg "github.com/waypointgames/waypoint/pkg/session/postgres"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
auth:
  signing_key: test-signing-key
  api_keys:
    - key: kiosk-key
      name: kiosk
      roles: [staff]
audit:
  enabled: true
notify:
  enabled: true
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New()
	assert.EqualError(t, err, "config is required")
}

func TestNew_RequiresAuthenticator(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.SigningKey = ""
	cfg.Auth.APIKeys = nil

	_, err := New(WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no authenticator configured")
}

func TestNew_MemoryBackends(t *testing.T) {
	p, err := New(WithConfig(testConfig(t)))
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.IsType(t, &session.MemoryStore{}, p.Sessions())
	assert.IsType(t, &catalog.MemoryStore{}, p.Catalog())
	assert.IsType(t, &audit.MemoryLogger{}, p.Events())
	assert.NotNil(t, p.TokenIssuer())
}

func TestNew_PostgresBackends(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	p, err := New(WithConfig(testConfig(t)), WithDB(db))
	require.NoError(t, err)

	assert.IsType(t, &sessionpg.Store{}, p.Sessions())
	assert.IsType(t, &catalogpg.Store{}, p.Catalog())
	assert.IsType(t, &auditpg.Store{}, p.Events())
	require.NoError(t, p.Close(), "a provided connection is left open")
	require.NoError(t, db.Ping())
}

func TestNew_AuditDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = false

	p, err := New(WithConfig(cfg))
	require.NoError(t, err)
	assert.Nil(t, p.Events())
}

func TestPlatform_Lifecycle(t *testing.T) {
	p, err := New(WithConfig(testConfig(t)))
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	readyz := func() int {
		resp, err := http.Get(srv.URL + "/readyz") //nolint:noctx // test
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusServiceUnavailable, readyz())
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, http.StatusOK, readyz())

	token, err := p.TokenIssuer().Issue("alice", nil, time.Hour)
	require.NoError(t, err)
	c := client.New(srv.URL, client.WithToken(token))
	s, err := c.CreateSession(context.Background(), session.CreateParams{Key: session.Key{GameID: "g1"}})
	require.NoError(t, err)

	events, err := p.Events().Query(context.Background(), audit.QueryFilter{SessionID: s.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeCreated, events[0].Type)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/api/v1/games/g1/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "kiosk-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "api keys carry roles")

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, http.StatusServiceUnavailable, readyz())
}

func TestPlatform_CustomAuthenticator(t *testing.T) {
	cfg := testConfig(t)
	keys := auth.NewAPIKeyAuthenticator([]auth.APIKey{{Key: "only-key", Name: "only"}})

	p, err := New(WithConfig(cfg), WithAuthenticator(keys))
	require.NoError(t, err)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	token, err := p.TokenIssuer().Issue("alice", nil, time.Hour)
	require.NoError(t, err)
	_, err = client.New(srv.URL, client.WithToken(token)).Pages(context.Background(), "g1", "")
	require.Error(t, err)
	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestPlatform_ServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second

	p, err := New(WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.False(t, p.Health().IsReady())
}
