// Package memory is an in-process directory backend.
// It is useful for tests, examples and embedding in a directory server.
package memory

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/TheusHen/soroban/soroban/directory"
)

// DefaultCapacity is the number of names kept before the least recently
// used one is evicted.
const DefaultCapacity = 1 << 16

type record struct {
	value   string
	expires time.Time
}

// Store keeps entries in insertion order per name, each with its own
// expiry.
type Store struct {
	mu    sync.Mutex
	names *lru.Cache[string, []record]
	now   func() time.Time
}

type Option func(*options)

type options struct {
	capacity int
	now      func() time.Time
}

// WithCapacity bounds the number of distinct names held.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New(opts ...Option) *Store {
	o := options{capacity: DefaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity <= 0 {
		o.capacity = DefaultCapacity
	}
	names, err := lru.New[string, []record](o.capacity)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &Store{names: names, now: o.now}
}

var _ directory.Directory = (*Store)(nil)

// Add stores entry under name. Adding an entry already present refreshes
// its expiry without moving it.
func (s *Store) Add(_ context.Context, name, entry string, mode directory.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	expires := now.Add(mode.TTL())

	recs := live(s.peek(name), now)
	for i := range recs {
		if recs[i].value == entry {
			recs[i].expires = expires
			s.names.Add(name, recs)
			return nil
		}
	}
	s.names.Add(name, append(recs, record{value: entry, expires: expires}))
	return nil
}

// List returns the live entries under name, oldest first.
func (s *Store) List(_ context.Context, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := live(s.peek(name), s.now())
	s.store(name, recs)
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.value
	}
	return out, nil
}

// Remove deletes entry from name. Removing a missing entry is not an error.
func (s *Store) Remove(_ context.Context, name, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.peek(name)
	out := recs[:0]
	for _, r := range recs {
		if r.value != entry {
			out = append(out, r)
		}
	}
	s.store(name, out)
	return nil
}

// Vacuum drops every expired entry and returns the number removed.
func (s *Store) Vacuum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for _, name := range s.names.Keys() {
		recs, ok := s.names.Peek(name)
		if !ok {
			continue
		}
		kept := live(recs, now)
		removed += len(recs) - len(kept)
		s.store(name, kept)
	}
	return removed
}

// Stats returns the number of names and entries held, expired ones included.
func (s *Store) Stats() (names, entries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, recs := range s.names.Values() {
		entries += len(recs)
	}
	return s.names.Len(), entries
}

func (s *Store) peek(name string) []record {
	recs, _ := s.names.Get(name)
	return recs
}

func (s *Store) store(name string, recs []record) {
	if len(recs) == 0 {
		s.names.Remove(name)
		return
	}
	s.names.Add(name, recs)
}

func live(recs []record, now time.Time) []record {
	out := make([]record, 0, len(recs))
	for _, r := range recs {
		if now.Before(r.expires) {
			out = append(out, r)
		}
	}
	return out
}
