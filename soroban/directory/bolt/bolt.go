// Package bolt is a persistent directory backend on a bbolt file.
// Each name maps to a CBOR-encoded list of entries with their expiry.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/logging"
)

const (
	// StorageVersion is the version of the on disk format.
	StorageVersion = 0

	metadataBucket = "metadata"
	versionKey     = "version"
	entriesBucket  = "entries"
)

// DefaultVacuumInterval is how often expired entries are purged.
const DefaultVacuumInterval = 30 * time.Second

type record struct {
	Value   string `cbor:"1,keyasint"`
	Expires int64  `cbor:"2,keyasint"`
}

// Store is a directory.Directory persisted with bbolt.
type Store struct {
	db  *bolt.DB
	log *log.Logger
	now func() time.Time

	haltOnce sync.Once
	haltCh   chan struct{}
	wg       sync.WaitGroup
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.log = l }
}

var _ directory.Directory = (*Store)(nil)

// Open opens or creates the store at path and starts a vacuum worker
// running every interval. A non-positive interval disables the worker.
func Open(path string, interval time.Duration, opts ...Option) (*Store, error) {
	s := &Store{now: time.Now, haltCh: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrDiscard(s.log)

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	s.db = db
	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(entriesBucket)); err != nil {
			return err
		}
		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != StorageVersion {
				return fmt.Errorf("bolt directory: incompatible version: %d", uint(b[0]))
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{StorageVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}

	if interval > 0 {
		s.wg.Add(1)
		go s.worker(interval)
	}
	return s, nil
}

func (s *Store) worker(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.haltCh:
			return
		case <-ticker.C:
		}
		n, err := s.Vacuum()
		if err != nil {
			s.log.Error("vacuum failed", "err", err)
			continue
		}
		if n > 0 {
			s.log.Debug("vacuumed expired entries", "count", n)
		}
	}
}

// Close stops the vacuum worker and closes the database.
func (s *Store) Close() error {
	s.haltOnce.Do(func() { close(s.haltCh) })
	s.wg.Wait()
	return s.db.Close()
}

// Add stores entry under name. Adding an entry already present refreshes
// its expiry without moving it.
func (s *Store) Add(_ context.Context, name, entry string, mode directory.Mode) error {
	now := s.now()
	expires := now.Add(mode.TTL()).UnixNano()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		recs, err := load(b, name)
		if err != nil {
			return err
		}
		recs = live(recs, now)
		found := false
		for i := range recs {
			if recs[i].Value == entry {
				recs[i].Expires = expires
				found = true
				break
			}
		}
		if !found {
			recs = append(recs, record{Value: entry, Expires: expires})
		}
		return put(b, name, recs)
	})
}

// List returns the live entries under name, oldest first.
func (s *Store) List(_ context.Context, name string) ([]string, error) {
	var out []string
	now := s.now()
	err := s.db.View(func(tx *bolt.Tx) error {
		recs, err := load(tx.Bucket([]byte(entriesBucket)), name)
		if err != nil {
			return err
		}
		for _, r := range live(recs, now) {
			out = append(out, r.Value)
		}
		return nil
	})
	return out, err
}

// Remove deletes entry from name. Removing a missing entry is not an error.
func (s *Store) Remove(_ context.Context, name, entry string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		recs, err := load(b, name)
		if err != nil {
			return err
		}
		kept := recs[:0]
		for _, r := range recs {
			if r.Value != entry {
				kept = append(kept, r)
			}
		}
		return put(b, name, kept)
	})
}

// Vacuum drops every expired entry and returns the number removed.
func (s *Store) Vacuum() (int, error) {
	removed := 0
	now := s.now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		type update struct {
			name string
			recs []record
		}
		var updates []update
		err := b.ForEach(func(k, v []byte) error {
			var recs []record
			if err := cbor.Unmarshal(v, &recs); err != nil {
				return err
			}
			kept := live(recs, now)
			if len(kept) != len(recs) {
				removed += len(recs) - len(kept)
				updates = append(updates, update{name: string(k), recs: kept})
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, u := range updates {
			if err := put(b, u.name, u.recs); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// Stats returns the number of names and entries held, expired ones included.
func (s *Store) Stats() (names, entries int) {
	_ = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).ForEach(func(_, v []byte) error {
			var recs []record
			if err := cbor.Unmarshal(v, &recs); err != nil {
				return nil
			}
			names++
			entries += len(recs)
			return nil
		})
	})
	return names, entries
}

func load(b *bolt.Bucket, name string) ([]record, error) {
	if b == nil {
		return nil, errors.New("bolt directory: entries bucket does not exist")
	}
	raw := b.Get([]byte(name))
	if raw == nil {
		return nil, nil
	}
	var recs []record
	if err := cbor.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("bolt directory: decoding %s: %w", logging.Short(name), err)
	}
	return recs, nil
}

func put(b *bolt.Bucket, name string, recs []record) error {
	if len(recs) == 0 {
		return b.Delete([]byte(name))
	}
	raw, err := cbor.Marshal(recs)
	if err != nil {
		return err
	}
	return b.Put([]byte(name), raw)
}

func live(recs []record, now time.Time) []record {
	out := make([]record, 0, len(recs))
	for _, r := range recs {
		if now.UnixNano() < r.Expires {
			out = append(out, r)
		}
	}
	return out
}
