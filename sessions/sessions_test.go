package sessions_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/transcripter-mcp/sessions"
	"github.com/ggoodman/transcripter-mcp/sessions/directorytest"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	id string
}

func (s stubSession) ID() string           { return s.id }
func (s stubSession) Transport() string    { return "stub" }
func (s stubSession) CreatedAt() time.Time { return time.Time{} }
func (s stubSession) Deliver(context.Context, jsonrpc.Message) error {
	return nil
}

func TestRegistry(t *testing.T) {
	t.Run("Insert, lookup and remove", func(t *testing.T) {
		r := sessions.NewRegistry()
		require.NoError(t, r.Insert(stubSession{id: "a"}))
		require.NoError(t, r.Insert(stubSession{id: "b"}))

		s, err := r.Lookup("a")
		require.NoError(t, err)
		assert.Equal(t, "a", s.ID())
		assert.Equal(t, 2, r.Len())
		assert.Equal(t, []string{"a", "b"}, r.IDs())

		assert.True(t, r.Remove("a"))
		assert.False(t, r.Remove("a"))
		_, err = r.Lookup("a")
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)
	})

	t.Run("Duplicate ids are rejected", func(t *testing.T) {
		r := sessions.NewRegistry()
		require.NoError(t, r.Insert(stubSession{id: "a"}))
		require.ErrorIs(t, r.Insert(stubSession{id: "a"}), sessions.ErrDuplicateSession)
	})

	t.Run("Concurrent inserts and removes are safe", func(t *testing.T) {
		r := sessions.NewRegistry()
		var wg sync.WaitGroup
		for i := range 64 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("s-%d", i)
				_ = r.Insert(stubSession{id: id})
				_, _ = r.Lookup(id)
				if i%2 == 0 {
					r.Remove(id)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 32, r.Len())
	})
}

func TestMemoryDirectory(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	directorytest.Run(t, func(t *testing.T) sessions.Directory {
		return sessions.NewMemoryDirectory(sessions.WithClock(clock))
	}, directorytest.Options{
		Advance: func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		},
	})
}
