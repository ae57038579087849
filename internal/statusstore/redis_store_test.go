// Package statusstore_test tests the Redis-backed progress snapshot store.
package statusstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/statusstore"
)

func newTestStore(t *testing.T) (*statusstore.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return statusstore.New(client), server
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	written := core.ProgressSnapshot{Progress: 0.65, Success: true, Message: "Audio file processed"}

	err := store.Set(ctx, "job-1", written, 30*time.Minute)
	require.NoError(t, err)

	read, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, written, read)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "never-written")
	require.ErrorIs(t, err, core.ErrStatusNotFound)
}

func TestSetOverwritesPreviousSnapshot(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	steps := []core.ProgressSnapshot{
		{Progress: 0.1, Success: true, Message: "Generating audio for Entry"},
		{Progress: 0.5, Success: true, Message: "Processing the audio file"},
		{Progress: 1, Success: true, Message: "✅ Audio file: Entry - entry-audio-20260901-120000.mp3"},
	}

	for _, step := range steps {
		require.NoError(t, store.Set(ctx, "job-2", step, 30*time.Minute))
	}

	read, err := store.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, steps[len(steps)-1], read)

	// Terminal reads are idempotent until expiry.
	again, err := store.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, read, again)
}

func TestEntriesExpire(t *testing.T) {
	t.Parallel()

	store, server := newTestStore(t)
	ctx := context.Background()

	snapshot := core.ProgressSnapshot{Progress: 1, Success: false, Message: "failed"}
	require.NoError(t, store.Set(ctx, "job-3", snapshot, time.Minute))

	server.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "job-3")
	require.ErrorIs(t, err, core.ErrStatusNotFound)
}
