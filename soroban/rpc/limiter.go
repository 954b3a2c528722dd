package rpc

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxLimiterKeys bounds the number of clients tracked at once; the least
// recently seen client loses its bucket first.
const maxLimiterKeys = 4096

// limiter applies a token bucket per client key.
type limiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	byKey *lru.Cache[string, *rate.Limiter]
}

// newLimiter returns nil, meaning unlimited, when rps or burst is not
// positive.
func newLimiter(rps float64, burst int) *limiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	byKey, err := lru.New[string, *rate.Limiter](maxLimiterKeys)
	if err != nil {
		return nil
	}
	return &limiter{limit: rate.Limit(rps), burst: burst, byKey: byKey}
}

// allow reports whether key may make one more request at now.
func (l *limiter) allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.byKey.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byKey.Add(key, lim)
	}
	return lim.AllowN(now, 1)
}
