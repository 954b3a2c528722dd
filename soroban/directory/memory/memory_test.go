package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheusHen/soroban/soroban/directory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStoreAddListRemove(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Add(ctx, "room", "a", directory.ModeShort))
	require.NoError(t, s.Add(ctx, "room", "b", directory.ModeShort))
	require.NoError(t, s.Add(ctx, "room", "a", directory.ModeLong))

	got, err := s.List(ctx, "room")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, s.Remove(ctx, "room", "a"))
	require.NoError(t, s.Remove(ctx, "room", "missing"))
	got, err = s.List(ctx, "room")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, got)

	got, err = s.List(ctx, "other")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStoreExpiry(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	s := New(WithClock(c.Now))

	require.NoError(t, s.Add(ctx, "n", "fast", directory.ModeFast))
	require.NoError(t, s.Add(ctx, "n", "long", directory.ModeLong))

	c.Advance(20 * time.Second)
	got, err := s.List(ctx, "n")
	require.NoError(t, err)
	require.Equal(t, []string{"long"}, got)

	// Re-adding refreshes the expiry.
	c.Advance(4 * time.Minute)
	require.NoError(t, s.Add(ctx, "n", "long", directory.ModeLong))
	c.Advance(4 * time.Minute)
	got, err = s.List(ctx, "n")
	require.NoError(t, err)
	require.Equal(t, []string{"long"}, got)

	c.Advance(2 * time.Minute)
	require.NoError(t, s.Add(ctx, "m", "x", directory.ModeShort))
	require.Equal(t, 1, s.Vacuum())
	names, entries := s.Stats()
	require.Equal(t, 1, names)
	require.Equal(t, 1, entries)
}

func TestStoreCapacityEvictsLeastRecent(t *testing.T) {
	ctx := context.Background()
	s := New(WithCapacity(2))
	require.NoError(t, s.Add(ctx, "a", "1", directory.ModeDefault))
	require.NoError(t, s.Add(ctx, "b", "1", directory.ModeDefault))
	_, _ = s.List(ctx, "a")
	require.NoError(t, s.Add(ctx, "c", "1", directory.ModeDefault))

	got, _ := s.List(ctx, "b")
	require.Empty(t, got)
	got, _ = s.List(ctx, "a")
	require.Equal(t, []string{"1"}, got)
}

func TestStoreConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("n%d", i%4)
			_ = s.Add(ctx, name, fmt.Sprint(i), directory.ModeShort)
			_, _ = s.List(ctx, name)
			_ = s.Remove(ctx, name, fmt.Sprint(i))
		}(i)
	}
	wg.Wait()
	_, entries := s.Stats()
	require.Zero(t, entries)
}
