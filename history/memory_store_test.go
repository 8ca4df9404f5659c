package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("returns lines oldest first", func(t *testing.T) {
		s := NewMemoryStore(10, time.Minute)

		require.NoError(t, s.Append(ctx, "devs", "first"))
		require.NoError(t, s.Append(ctx, "devs", "second"))

		lines, err := s.Recent(ctx, "devs")
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, lines)
	})

	t.Run("trims to depth", func(t *testing.T) {
		s := NewMemoryStore(2, time.Minute)

		require.NoError(t, s.Append(ctx, "devs", "one"))
		require.NoError(t, s.Append(ctx, "devs", "two"))
		require.NoError(t, s.Append(ctx, "devs", "three"))

		lines, err := s.Recent(ctx, "devs")
		require.NoError(t, err)
		assert.Equal(t, []string{"two", "three"}, lines)
	})

	t.Run("groups are isolated", func(t *testing.T) {
		s := NewMemoryStore(10, time.Minute)

		require.NoError(t, s.Append(ctx, "devs", "standup"))

		lines, err := s.Recent(ctx, "ops")
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		s := NewMemoryStore(10, time.Minute)
		require.NoError(t, s.Append(ctx, "devs", "original"))

		lines, err := s.Recent(ctx, "devs")
		require.NoError(t, err)
		lines[0] = "mutated"

		again, err := s.Recent(ctx, "devs")
		require.NoError(t, err)
		assert.Equal(t, []string{"original"}, again)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		s := NewMemoryStore(10, time.Minute)
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Error(t, s.Append(cancelled, "devs", "late"))
		_, err := s.Recent(cancelled, "devs")
		assert.Error(t, err)
	})
}
