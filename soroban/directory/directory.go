// Package directory defines the untrusted add/list/remove store two peers
// rendezvous through, and the poll loop that claims entries from it.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTimeout    = errors.New("directory: poll budget exhausted")
	ErrRPCFailure = errors.New("directory: rpc failure")
)

// Directory is a publicly readable multimap of names to opaque entries.
// Implementations must be safe for concurrent use. Entries expire on their
// own according to the Mode they were added with.
type Directory interface {
	Add(ctx context.Context, name, entry string, mode Mode) error
	List(ctx context.Context, name string) ([]string, error)
	Remove(ctx context.Context, name, entry string) error
}

// Mode is the retention hint of an entry.
type Mode string

const (
	ModeFast    Mode = "fast"
	ModeShort   Mode = "short"
	ModeDefault Mode = "default"
	ModeNormal  Mode = "normal"
	ModeLong    Mode = "long"
)

// TTL returns how long an entry added with m is kept. Unknown modes get
// the default retention.
func (m Mode) TTL() time.Duration {
	switch Mode(strings.ToLower(string(m))) {
	case ModeFast:
		return 15 * time.Second
	case ModeShort:
		return time.Minute
	case ModeLong:
		return 5 * time.Minute
	default:
		return 3 * time.Minute
	}
}

// TimeoutError reports a poll that saw no entry within its budget.
type TimeoutError struct {
	// Name is the short prefix of the polled channel name.
	Name     string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("directory: no entry under %s after %d attempts", e.Name, e.Attempts)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// CallError reports a failed directory call.
type CallError struct {
	Method string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("directory: %s: %v", e.Method, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return target == ErrRPCFailure }
