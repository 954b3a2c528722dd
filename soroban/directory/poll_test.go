package directory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/directory/memory"
)

// countingDir wraps a store and counts calls.
type countingDir struct {
	directory.Directory
	mu        sync.Mutex
	lists     int
	listErr   error
	removeErr error
}

func (c *countingDir) List(ctx context.Context, name string) ([]string, error) {
	c.mu.Lock()
	c.lists++
	err := c.listErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Directory.List(ctx, name)
}

func (c *countingDir) Remove(ctx context.Context, name, entry string) error {
	if c.removeErr != nil {
		return c.removeErr
	}
	return c.Directory.Remove(ctx, name, entry)
}

func fastBudget(n int) directory.Budget {
	return directory.Budget{Attempts: n, Interval: time.Millisecond}
}

func TestClaimTakesLastAndRemoves(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Add(ctx, "name", "first", directory.ModeShort))
	require.NoError(t, store.Add(ctx, "name", "second", directory.ModeShort))

	p := &directory.Poller{Directory: store}
	got, err := p.Claim(ctx, "name", fastBudget(3))
	require.NoError(t, err)
	require.Equal(t, "second", got)

	left, err := store.List(ctx, "name")
	require.NoError(t, err)
	require.Equal(t, []string{"first"}, left)
}

func TestClaimTimeoutMakesExactlyAttemptsCalls(t *testing.T) {
	for _, attempts := range []int{1, 2, 5} {
		dir := &countingDir{Directory: memory.New()}
		p := &directory.Poller{Directory: dir}
		_, err := p.Claim(context.Background(), "0123456789abcdef", fastBudget(attempts))
		require.ErrorIs(t, err, directory.ErrTimeout)

		var te *directory.TimeoutError
		require.ErrorAs(t, err, &te)
		require.Equal(t, "01234567", te.Name)
		require.Equal(t, attempts, dir.lists)
	}
}

func TestClaimWaitsForLateEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := &directory.Poller{Directory: store}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = store.Add(ctx, "late", "entry", directory.ModeShort)
	}()
	got, err := p.Claim(ctx, "late", directory.Budget{Attempts: 100, Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, "entry", got)
}

func TestClaimListFailureIsNotEmpty(t *testing.T) {
	boom := &directory.CallError{Method: "directory.List", Err: errors.New("connection refused")}
	dir := &countingDir{Directory: memory.New(), listErr: boom}
	p := &directory.Poller{Directory: dir}

	_, err := p.Claim(context.Background(), "name", fastBudget(10))
	require.ErrorIs(t, err, directory.ErrRPCFailure)
	require.NotErrorIs(t, err, directory.ErrTimeout)
	require.Equal(t, 1, dir.lists)
}

func TestClaimRemoveFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Add(ctx, "name", "entry", directory.ModeShort))
	dir := &countingDir{Directory: store, removeErr: errors.New("gone")}

	got, err := (&directory.Poller{Directory: dir}).Claim(ctx, "name", fastBudget(1))
	require.NoError(t, err)
	require.Equal(t, "entry", got)
}

func TestClaimSingleClaimer(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Add(ctx, "name", "only", directory.ModeShort))
	p := &directory.Poller{Directory: store}

	got, err := p.Claim(ctx, "name", fastBudget(1))
	require.NoError(t, err)
	require.Equal(t, "only", got)

	_, err = p.Claim(ctx, "name", fastBudget(2))
	require.ErrorIs(t, err, directory.ErrTimeout)
}

func TestClaimContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &directory.Poller{Directory: memory.New()}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := p.Claim(ctx, "name", directory.Budget{Attempts: 1000, Interval: 5 * time.Millisecond})
	require.ErrorIs(t, err, context.Canceled)
}

func TestModeTTL(t *testing.T) {
	require.Equal(t, 15*time.Second, directory.ModeFast.TTL())
	require.Equal(t, time.Minute, directory.ModeShort.TTL())
	require.Equal(t, 5*time.Minute, directory.ModeLong.TTL())
	require.Equal(t, 3*time.Minute, directory.ModeDefault.TTL())
	require.Equal(t, 3*time.Minute, directory.ModeNormal.TTL())
	require.Equal(t, 3*time.Minute, directory.Mode("bogus").TTL())
	require.Equal(t, time.Minute, directory.Mode("SHORT").TTL())
}
