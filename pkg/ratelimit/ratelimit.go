// Package ratelimit provides per-endpoint admission control for
// outbound REST calls. Each rule owns a windowed token bucket: the
// bucket refills to full capacity when its window elapses, matching
// how the upstream APIs account their limits. An optional global QPS
// smoother sits in front of the buckets to spread bursts out.
package ratelimit

import (
	"context"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule matches requests by host and optional path prefix. A rule with
// an empty PathPrefix is a host-level fallback. Window is fixed per
// rule; upstream documents all of them as 10 seconds.
type Rule struct {
	Host       string
	PathPrefix string
	Capacity   int
	Window     time.Duration
}

func (r Rule) key() string {
	return r.Host + r.PathPrefix
}

type bucket struct {
	tokens  int
	resetAt time.Time
}

// Limiter is shared by every outbound REST caller. Construct one and
// inject it; there is deliberately no package-level instance.
type Limiter struct {
	mu      sync.Mutex
	rules   []Rule
	buckets map[string]*bucket

	smoother *rate.Limiter

	// now is swapped out in tests.
	now func() time.Time
}

// New builds a Limiter over the given rule table. qps > 0 enables the
// global smoother with the given burst.
func New(rules []Rule, qps float64, burst int) *Limiter {
	l := &Limiter{
		rules:   rules,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	if qps > 0 {
		if burst < 1 {
			burst = 1
		}
		l.smoother = rate.NewLimiter(rate.Limit(qps), burst)
	}
	return l
}

// Resolve picks the rule applicable to rawURL: the longest matching
// path prefix on the same host wins, then a host-level rule, then
// none (the call proceeds unthrottled).
func (l *Limiter) Resolve(rawURL string) (Rule, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Rule{}, false
	}
	host := u.Hostname()

	var best Rule
	found := false
	for _, r := range l.rules {
		if r.Host != host {
			continue
		}
		if r.PathPrefix != "" && !strings.HasPrefix(u.Path, r.PathPrefix) {
			continue
		}
		if !found || len(r.PathPrefix) > len(best.PathPrefix) {
			best = r
			found = true
		}
	}
	return best, found
}

// Acquire blocks until the call to rawURL is admitted or ctx is
// cancelled. It never admits more than Capacity calls per Window per
// rule key, and always eventually admits absent cancellation.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) error {
	if l.smoother != nil {
		if err := l.smoother.Wait(ctx); err != nil {
			return err
		}
	}

	r, ok := l.Resolve(rawURL)
	if !ok {
		return nil
	}

	// The bucket may have been drained again by the time a wait
	// elapses, so this must re-check in a loop rather than wait once
	// and proceed.
	for {
		wait := l.take(r)
		if wait <= 0 {
			return nil
		}
		wait += jitter(20*time.Millisecond, 120*time.Millisecond)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes one token for the rule if available, returning 0, or
// returns how long until the bucket refills. The lock is held only
// for the check, never across a wait.
func (l *Limiter) take(r Rule) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[r.key()]
	if b == nil {
		b = &bucket{}
		l.buckets[r.key()] = b
	}

	now := l.now()
	if !now.Before(b.resetAt) {
		b.tokens = r.Capacity
		b.resetAt = now.Add(r.Window)
	}
	if b.tokens > 0 {
		b.tokens--
		return 0
	}
	return b.resetAt.Sub(now)
}

func jitter(min, max time.Duration) time.Duration {
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
