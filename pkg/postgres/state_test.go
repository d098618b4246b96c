package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB connects to the database named by VOLUNTEER_TEST_POSTGRES_DSN,
// skipping the test when it is unset.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("VOLUNTEER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOLUNTEER_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	d, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	require.NoError(t, d.RunMigrations(ctx))
	return d
}

func TestDB_StateRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	key := "test." + d.Origin()
	t.Cleanup(func() { d.Delete(context.Background(), key) })

	require.NoError(t, d.Set(ctx, key, "one"))
	require.NoError(t, d.Set(ctx, key, "two"))

	v, ok, err := d.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	require.NoError(t, d.Delete(ctx, key))
	_, ok, err = d.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDB_WatchSeesOtherHandles(t *testing.T) {
	mine := newTestDB(t)
	other := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	key := "test." + mine.Origin()
	t.Cleanup(func() { other.Delete(context.Background(), key) })

	changes, err := mine.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, mine.Set(ctx, key, "own"))
	require.NoError(t, other.Set(ctx, key, "theirs"))

	select {
	case c := <-changes:
		assert.Equal(t, key, c.Key)
		assert.Equal(t, "theirs", c.Value)
		assert.Equal(t, other.Origin(), c.Origin)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestDB_RunMigrationsIsIdempotent(t *testing.T) {
	d := newTestDB(t)

	assert.NoError(t, d.RunMigrations(context.Background()))
}
