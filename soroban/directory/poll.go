package directory

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/TheusHen/soroban/soroban/logging"
	"github.com/TheusHen/soroban/soroban/metrics"
)

// DefaultInterval is the pause between two list calls of a poll.
const DefaultInterval = 200 * time.Millisecond

// Budget bounds a poll: at most Attempts list calls, Interval apart.
type Budget struct {
	Attempts int
	Interval time.Duration
}

// NewBudget returns a budget of attempts at the default interval.
func NewBudget(attempts int) Budget {
	return Budget{Attempts: attempts, Interval: DefaultInterval}
}

// Poller claims entries from a Directory.
type Poller struct {
	Directory Directory
	Log       *log.Logger
	Metrics   *metrics.Metrics
}

// Claim polls name until an entry appears or the budget runs out, then
// removes and returns the most recently listed entry.
//
// A list failure ends the poll with that error; it is never read as an
// empty result. The removal is best effort: a failure is logged and the
// entry is still returned.
func (p *Poller) Claim(ctx context.Context, name string, b Budget) (string, error) {
	l := logging.OrDiscard(p.Log)
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	interval := b.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	var entries []string
	for count := 0; ; count++ {
		var err error
		p.Metrics.PollAttempt()
		entries, err = p.Directory.List(ctx, name)
		if err != nil {
			return "", err
		}
		if len(entries) > 0 {
			break
		}
		if count+1 >= attempts {
			p.Metrics.PollTimeout()
			l.Debug("poll timed out", "name", logging.Short(name), "attempts", attempts)
			return "", &TimeoutError{Name: logging.Short(name), Attempts: attempts}
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	entry := entries[len(entries)-1]
	if extra := len(entries) - 1; extra > 0 {
		l.Warn("claiming last of several entries", "name", logging.Short(name), "extra", extra)
	}
	p.Metrics.Claimed(len(entries) - 1)

	if err := p.Directory.Remove(ctx, name, entry); err != nil {
		p.Metrics.RemoveFailed()
		l.Warn("remove after claim failed", "name", logging.Short(name), "err", err)
	}
	return entry, nil
}
