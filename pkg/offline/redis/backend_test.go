package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointgames/waypoint/pkg/offline"
)

const testKey = "test:pending"

// fakeClient is an in-memory hash behind the Client interface.
type fakeClient struct {
	hashes map[string]map[string]string
	err    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{hashes: make(map[string]map[string]string)}
}

func (f *fakeClient) HSet(_ context.Context, key string, values ...any) *goredis.IntCmd {
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		field := fmt.Sprint(values[i])
		switch v := values[i+1].(type) {
		case []byte:
			h[field] = string(v)
		default:
			h[field] = fmt.Sprint(v)
		}
	}
	return goredis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeClient) HGet(_ context.Context, key, field string) *goredis.StringCmd {
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	v, ok := f.hashes[key][field]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeClient) HGetAll(_ context.Context, key string) *goredis.MapStringStringCmd {
	if f.err != nil {
		return goredis.NewMapStringStringResult(nil, f.err)
	}
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return goredis.NewMapStringStringResult(out, nil)
}

func (f *fakeClient) HDel(_ context.Context, key string, fields ...string) *goredis.IntCmd {
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	var n int64
	for _, field := range fields {
		if _, ok := f.hashes[key][field]; ok {
			delete(f.hashes[key], field)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func TestBackend_QueueSemantics(t *testing.T) {
	client := newFakeClient()
	q := offline.NewQueue(New(client, testKey))
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(ctx, offline.Update{SessionID: "S1", PageID: "a", Timestamp: base.Add(1 * time.Second)}))
	require.NoError(t, q.Enqueue(ctx, offline.Update{SessionID: "S2", PageID: "b", Timestamp: base.Add(2 * time.Second)}))
	require.NoError(t, q.Enqueue(ctx, offline.Update{SessionID: "S1", PageID: "c", Timestamp: base.Add(3 * time.Second)}))

	assert.Len(t, client.hashes[testKey], 2, "one field per session")

	got, err := q.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "S2", got[0].SessionID)
	assert.Equal(t, "c", got[1].PageID)

	n, err := q.Drain(ctx, offline.ApplierFunc(func(context.Context, offline.Update) error { return nil }))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, client.hashes[testKey])
}

func TestBackend_GetMissing(t *testing.T) {
	b := New(newFakeClient(), "")
	assert.Equal(t, DefaultKey, b.key)

	_, ok, err := b.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackend_Errors(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("connection refused")
	b := New(client, testKey)
	ctx := context.Background()

	err := b.Put(ctx, offline.Update{SessionID: "S1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing update for session S1")

	_, _, err = b.Get(ctx, "S1")
	assert.Error(t, err)

	_, err = b.All(ctx)
	assert.Error(t, err)

	assert.Error(t, b.Delete(ctx, "S1"))
}

func TestBackend_CorruptField(t *testing.T) {
	client := newFakeClient()
	client.hashes[testKey] = map[string]string{"S1": "{broken"}
	b := New(client, testKey)

	_, err := b.All(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding update for session S1")
}
