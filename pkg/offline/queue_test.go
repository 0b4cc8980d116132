package offline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointgames/waypoint/pkg/session"
)

var queueTestEpoch = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return queueTestEpoch.Add(time.Duration(seconds) * time.Second)
}

func update(sessionID string, seconds int) Update {
	return Update{SessionID: sessionID, PageID: fmt.Sprintf("page-%d", seconds), Score: seconds, Timestamp: at(seconds)}
}

// backends runs fn against every Backend implementation in this package.
func backends(t *testing.T, fn func(t *testing.T, q *Queue)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewQueue(NewMemoryBackend()))
	})
	t.Run("file", func(t *testing.T) {
		fn(t, NewQueue(NewFileBackend(filepath.Join(t.TempDir(), "pending.json"))))
	})
}

type recordingApplier struct {
	mu      sync.Mutex
	applied []string
	failOn  map[string]error
}

func (r *recordingApplier) ApplyUpdate(_ context.Context, u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, u.SessionID)
	if err, ok := r.failOn[u.SessionID]; ok {
		return err
	}
	return nil
}

func sessionIDs(updates []Update) []string {
	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.SessionID
	}
	return ids
}

func TestQueue_OverwriteBySessionAndOrder(t *testing.T) {
	backends(t, func(t *testing.T, q *Queue) {
		ctx := context.Background()
		require.NoError(t, q.Enqueue(ctx, update("S1", 1)))
		require.NoError(t, q.Enqueue(ctx, update("S2", 2)))
		require.NoError(t, q.Enqueue(ctx, update("S1", 3)))

		got, err := q.PeekAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"S2", "S1"}, sessionIDs(got))
		assert.True(t, got[0].Timestamp.Equal(at(2)))
		assert.True(t, got[1].Timestamp.Equal(at(3)))
		assert.Equal(t, "page-3", got[1].PageID, "latest state wins")
		assert.Equal(t, "S1", got[1].ID, "id is the session id")
	})
}

func TestQueue_PeekAllTieBreaksBySession(t *testing.T) {
	q := NewQueue(NewMemoryBackend())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, update("b", 5)))
	require.NoError(t, q.Enqueue(ctx, update("a", 5)))

	got, err := q.PeekAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sessionIDs(got))
}

func TestQueue_DrainStopsOnFirstFailure(t *testing.T) {
	backends(t, func(t *testing.T, q *Queue) {
		ctx := context.Background()
		require.NoError(t, q.Enqueue(ctx, update("S1", 1)))
		require.NoError(t, q.Enqueue(ctx, update("S2", 2)))
		require.NoError(t, q.Enqueue(ctx, update("S3", 3)))

		applier := &recordingApplier{failOn: map[string]error{"S2": errors.New("connection reset")}}
		n, err := q.Drain(ctx, applier)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session S2")
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"S1", "S2"}, applier.applied, "S3 is never attempted")

		left, err := q.PeekAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"S2", "S3"}, sessionIDs(left))
	})
}

func TestQueue_DrainAll(t *testing.T) {
	backends(t, func(t *testing.T, q *Queue) {
		ctx := context.Background()
		require.NoError(t, q.Enqueue(ctx, update("S2", 2)))
		require.NoError(t, q.Enqueue(ctx, update("S1", 1)))

		applier := &recordingApplier{}
		n, err := q.Drain(ctx, applier)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"S1", "S2"}, applier.applied)

		size, err := q.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, size)
	})
}

func TestQueue_DrainDiscardsRejected(t *testing.T) {
	q := NewQueue(NewMemoryBackend())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, update("gone", 1)))
	require.NoError(t, q.Enqueue(ctx, update("live", 2)))

	applier := &recordingApplier{failOn: map[string]error{
		"gone": fmt.Errorf("status 409: %w", ErrRejected),
	}}
	n, err := q.Drain(ctx, applier)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	size, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestQueue_DrainKeepsUpdateReplacedMidFlight(t *testing.T) {
	q := NewQueue(NewMemoryBackend())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, update("S1", 1)))

	applier := ApplierFunc(func(ctx context.Context, u Update) error {
		return q.Enqueue(ctx, update("S1", 9))
	})
	n, err := q.Drain(ctx, applier)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err := q.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "page-9", left[0].PageID)
}

func TestQueue_DrainHonoursCancellation(t *testing.T) {
	q := NewQueue(NewMemoryBackend())
	require.NoError(t, q.Enqueue(context.Background(), update("S1", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := q.Drain(ctx, &recordingApplier{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestQueue_QueueProgressUpdate(t *testing.T) {
	clock := at(100)
	q := NewQueue(NewMemoryBackend(), WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	p := session.Progress{PageID: "p4", Score: 12, Inventory: []string{"key"}, Variables: map[string]any{"x": 1}}
	require.NoError(t, q.QueueProgressUpdate(ctx, "S1", p))
	require.NoError(t, q.QueueProgressUpdate(ctx, "S2", p))

	got, err := q.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"S1", "S2"}, sessionIDs(got), "same clock reading still orders by enqueue")
	assert.True(t, got[0].Timestamp.Equal(at(100)))
	assert.True(t, got[1].Timestamp.After(got[0].Timestamp))
	assert.Equal(t, p, got[0].Progress())

	p.Inventory[0] = "mutated"
	again, err := q.PeekAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key", again[0].Inventory[0])
}

func TestQueue_EnqueueRequiresSession(t *testing.T) {
	q := NewQueue(NewMemoryBackend())
	err := q.Enqueue(context.Background(), Update{PageID: "p"})
	assert.Error(t, err)
}

func TestQueue_Pending(t *testing.T) {
	backends(t, func(t *testing.T, q *Queue) {
		ctx := context.Background()
		ok, err := q.Pending(ctx, "S1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, q.Enqueue(ctx, update("S1", 1)))
		ok, err = q.Pending(ctx, "S1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
