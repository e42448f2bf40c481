// Package tracker glues the acquisition pieces together: it resolves
// the markets to follow, keeps the websocket subscription aligned
// with them, pumps feed events into the store and refreshes REST
// snapshots on an interval.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gtmarket/polyscope/pkg/feed"
	"github.com/gtmarket/polyscope/pkg/polymarket"
	"github.com/gtmarket/polyscope/pkg/store"
)

type Tracker struct {
	client   *polymarket.Client
	store    *store.Store
	feed     *feed.Feed
	interval time.Duration
	logger   *logrus.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(client *polymarket.Client, st *store.Store, f *feed.Feed, interval time.Duration, logger *logrus.Logger) *Tracker {
	return &Tracker{
		client:   client,
		store:    st,
		feed:     f,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Track resolves each slug through the discovery API, installs the
// market and widens the feed subscription. Slugs that fail to
// resolve are reported but do not abort the rest.
func (t *Tracker) Track(ctx context.Context, slugs ...string) error {
	var firstErr error
	for _, slug := range slugs {
		m, err := t.client.MarketBySlug(ctx, slug)
		if err != nil {
			t.logger.WithError(err).WithField("slug", slug).Error("failed to resolve market")
			if firstErr == nil {
				firstErr = fmt.Errorf("track %q: %w", slug, err)
			}
			continue
		}
		t.store.Upsert(m)
		t.feed.Subscribe(m.TokenIDs...)
		t.logger.WithFields(logrus.Fields{
			"slug":         slug,
			"condition_id": m.ConditionID,
		}).Info("tracking market")
	}
	return firstErr
}

// Start launches the feed, the event pump and the periodic REST
// refresh loop.
func (t *Tracker) Start(ctx context.Context) {
	t.feed.Start(ctx)

	t.wg.Add(2)
	go t.pumpEvents(ctx)
	go t.refreshLoop(ctx)
}

// Stop halts the loops and tears the feed down. Safe to call more
// than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.feed.Close()
	t.wg.Wait()
}

func (t *Tracker) pumpEvents(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case ev, ok := <-t.feed.Events():
			if !ok {
				return
			}
			t.store.ApplyEvent(ev)
		}
	}
}

func (t *Tracker) refreshLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.refreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.refreshAll(ctx)
		}
	}
}

// refreshAll walks tracked markets sequentially; the rate limiter
// paces the calls, so fanning out per market would only queue.
func (t *Tracker) refreshAll(ctx context.Context) {
	for _, conditionID := range t.store.ConditionIDs() {
		if ctx.Err() != nil {
			return
		}
		if err := t.store.Refresh(ctx, conditionID); err != nil {
			t.logger.WithError(err).WithField("condition_id", conditionID).Error("refresh failed, keeping stale data")
		}
	}
}
