package bolt

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

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

func openTemp(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.db")
	s, err := Open(path, 0, opts...)
	require.NoError(t, err)
	return s, path
}

func TestStoreAddListRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	require.NoError(t, s.Add(ctx, "room", "a", directory.ModeShort))
	require.NoError(t, s.Add(ctx, "room", "b", directory.ModeShort))
	require.NoError(t, s.Add(ctx, "room", "a", directory.ModeLong))

	got, err := s.List(ctx, "room")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, s.Remove(ctx, "room", "a"))
	require.NoError(t, s.Remove(ctx, "nowhere", "a"))
	got, err = s.List(ctx, "room")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, got)

	require.NoError(t, s.Remove(ctx, "room", "b"))
	names, entries := s.Stats()
	require.Zero(t, names)
	require.Zero(t, entries)
}

func TestStorePersists(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	require.NoError(t, s.Add(ctx, "n", "kept", directory.ModeLong))
	require.NoError(t, s.Close())

	s, err := Open(path, 0)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.List(ctx, "n")
	require.NoError(t, err)
	require.Equal(t, []string{"kept"}, got)
}

func TestStoreRejectsOtherVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.db")
	db, err := bbolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(versionKey), []byte{StorageVersion + 1})
	}))
	require.NoError(t, db.Close())

	_, err = Open(path, 0)
	require.Error(t, err)
}

func TestStoreExpiryAndVacuum(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	s, _ := openTemp(t, WithClock(c.Now))
	defer s.Close()

	require.NoError(t, s.Add(ctx, "n", "fast", directory.ModeFast))
	require.NoError(t, s.Add(ctx, "n", "slow", directory.ModeLong))
	require.NoError(t, s.Add(ctx, "m", "fast", directory.ModeFast))

	c.Advance(30 * time.Second)
	got, err := s.List(ctx, "n")
	require.NoError(t, err)
	require.Equal(t, []string{"slow"}, got)

	n, err := s.Vacuum()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	names, entries := s.Stats()
	require.Equal(t, 1, names)
	require.Equal(t, 1, entries)
}

func TestStoreVacuumWorker(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	path := filepath.Join(t.TempDir(), "directory.db")
	s, err := Open(path, 5*time.Millisecond, WithClock(c.Now))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, "n", "x", directory.ModeFast))
	c.Advance(time.Minute)
	require.Eventually(t, func() bool {
		names, _ := s.Stats()
		return names == 0
	}, time.Second, 5*time.Millisecond)
}
