// Package directorytest holds a conformance suite for sessions.Directory
// implementations.
package directorytest

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/transcripter-mcp/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty Directory.
type Factory func(t *testing.T) sessions.Directory

// Options tune the suite for a given implementation.
type Options struct {
	// Advance moves the implementation's clock forward. When nil, expiry is
	// exercised with real sleeps.
	Advance func(d time.Duration)
}

// Run exercises the Directory contract.
func Run(t *testing.T, newDir Factory, opts Options) {
	advance := opts.Advance
	if advance == nil {
		advance = time.Sleep
	}
	ctx := context.Background()
	entry := sessions.Entry{
		ID:        "s-1",
		Transport: "sse",
		Instance:  "node-a",
		UserID:    "u-1",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("Register then lookup returns the entry", func(t *testing.T) {
		d := newDir(t)
		require.NoError(t, d.Register(ctx, entry, time.Minute))

		got, err := d.Lookup(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, got.ID)
		assert.Equal(t, entry.Instance, got.Instance)
		assert.Equal(t, entry.UserID, got.UserID)
		assert.True(t, entry.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("Lookup of a missing id is not found", func(t *testing.T) {
		d := newDir(t)
		_, err := d.Lookup(ctx, "missing")
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)
	})

	t.Run("Unregister removes and is idempotent", func(t *testing.T) {
		d := newDir(t)
		require.NoError(t, d.Register(ctx, entry, time.Minute))
		require.NoError(t, d.Unregister(ctx, entry.ID))
		require.NoError(t, d.Unregister(ctx, entry.ID))
		_, err := d.Lookup(ctx, entry.ID)
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)
	})

	t.Run("Count reflects live entries", func(t *testing.T) {
		d := newDir(t)
		n, err := d.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		for _, id := range []string{"a", "b", "c"} {
			e := entry
			e.ID = id
			require.NoError(t, d.Register(ctx, e, time.Minute))
		}
		require.NoError(t, d.Unregister(ctx, "b"))

		n, err = d.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Entries expire and touch extends them", func(t *testing.T) {
		d := newDir(t)
		short := entry
		short.ID = "short"
		kept := entry
		kept.ID = "kept"
		require.NoError(t, d.Register(ctx, short, 2*time.Second))
		require.NoError(t, d.Register(ctx, kept, 2*time.Second))

		advance(time.Second)
		require.NoError(t, d.Touch(ctx, kept.ID, 5*time.Second))
		advance(1500 * time.Millisecond)

		_, err := d.Lookup(ctx, short.ID)
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)
		_, err = d.Lookup(ctx, kept.ID)
		require.NoError(t, err)

		require.ErrorIs(t, d.Touch(ctx, short.ID, time.Minute), sessions.ErrSessionNotFound)
	})
}
