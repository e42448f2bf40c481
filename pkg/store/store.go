// Package store holds the canonical in-memory view of tracked
// markets, merged from REST snapshots and websocket deltas. Entries
// live for the process lifetime; callers judge trustworthiness
// through IsStale rather than entries ever being evicted.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gtmarket/polyscope/pkg/models"
	"github.com/gtmarket/polyscope/pkg/polymarket"
)

// ErrUnknownMarket is returned by Refresh for a condition id the
// store has never seen. Entries are created by Upsert (discovery),
// never implicitly by Refresh.
var ErrUnknownMarket = errors.New("unknown market")

// Entry is a point-in-time copy of one market's state. REST and WS
// writes race by design; the two timestamps record which source
// touched the entry last.
type Entry struct {
	Market         models.Market
	Book           models.Orderbook
	LastRESTUpdate time.Time
	LastWSUpdate   time.Time
}

type entry struct {
	market models.Market
	book   models.Orderbook
	rest   time.Time
	ws     time.Time
}

type Store struct {
	client *polymarket.Client
	logger *logrus.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	byAsset map[string]string // token id -> condition id

	// now is swapped out in tests.
	now func() time.Time
}

func New(client *polymarket.Client, logger *logrus.Logger) *Store {
	return &Store{
		client:  client,
		logger:  logger,
		entries: make(map[string]*entry),
		byAsset: make(map[string]string),
		now:     time.Now,
	}
}

// Upsert installs or replaces a market from a discovery fetch and
// stamps the REST clock. The existing book survives: discovery
// payloads carry no depth.
func (s *Store) Upsert(m models.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[m.ConditionID]
	if e == nil {
		e = &entry{}
		s.entries[m.ConditionID] = e
	}
	e.market = m
	e.rest = s.now()
	for _, tokenID := range m.TokenIDs {
		s.byAsset[tokenID] = m.ConditionID
	}
}

// Get returns a copy of the entry, if present.
func (s *Store) Get(conditionID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[conditionID]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// List returns copies of all entries, ordered by condition id for
// stable output.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Market.ConditionID < out[j].Market.ConditionID
	})
	return out
}

// ConditionIDs lists the tracked markets.
func (s *Store) ConditionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AssetIDs lists every outcome token across tracked markets; this is
// what the websocket subscription is built from.
func (s *Store) AssetIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byAsset))
	for id := range s.byAsset {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Refresh pulls a fresh book and touch prices for the market's
// primary token and overwrites the corresponding fields. On failure
// existing data is left untouched and the error is surfaced; there
// is no partial or silent overwrite of the book.
func (s *Store) Refresh(ctx context.Context, conditionID string) error {
	s.mu.RLock()
	e, ok := s.entries[conditionID]
	var tokenID string
	if ok {
		tokenID, ok = e.market.PrimaryToken()
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("refresh %s: %w", conditionID, ErrUnknownMarket)
	}

	book, err := s.client.Book(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", conditionID, err)
	}
	if book.Crossed() {
		s.logger.WithField("condition_id", conditionID).Warn("upstream published a crossed book")
	}

	// Touch quotes are best-effort: a failed side is skipped, not
	// fatal, since the book itself already carries the market.
	var bid, ask *float64
	if p, err := s.client.Price(ctx, tokenID, polymarket.SideBuy); err == nil {
		bid = &p
	} else {
		s.logger.WithError(err).WithField("condition_id", conditionID).Debug("buy quote unavailable")
	}
	if p, err := s.client.Price(ctx, tokenID, polymarket.SideSell); err == nil {
		ask = &p
	} else {
		s.logger.WithError(err).WithField("condition_id", conditionID).Debug("sell quote unavailable")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok = s.entries[conditionID]
	if !ok {
		return fmt.Errorf("refresh %s: %w", conditionID, ErrUnknownMarket)
	}
	e.book = book
	if bid != nil {
		e.market.BestBid = bid
	} else if top, ok := book.BestBid(); ok {
		p := top.Price
		e.market.BestBid = &p
	}
	if ask != nil {
		e.market.BestAsk = ask
	} else if top, ok := book.BestAsk(); ok {
		p := top.Price
		e.market.BestAsk = &p
	}
	e.rest = s.now()
	return nil
}

// ApplyEvent merges one feed event into the matching entry and stamps
// the WS clock. Events for unknown asset ids are ignored; the
// subscription set and tracked markets drift out of sync briefly
// during startup and that is not an error.
func (s *Store) ApplyEvent(ev models.PriceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conditionID, ok := s.byAsset[ev.AssetID]
	if !ok {
		return
	}
	e, ok := s.entries[conditionID]
	if !ok {
		return
	}

	switch ev.Type {
	case models.EventBook:
		if ev.Book != nil {
			e.book = *ev.Book
			if ev.Book.Crossed() {
				s.logger.WithField("condition_id", conditionID).Warn("upstream published a crossed book")
			}
		}
	case models.EventPriceChange:
		if ev.Change != nil {
			s.applyChange(e, ev.AssetID, ev.Change)
		}
	case models.EventTrade, models.EventLastTradePrice:
		if ev.LastTrade != nil {
			e.market.LastTrade = ev.LastTrade
		}
	case models.EventTickSizeChange:
		if ev.TickSize != nil {
			e.book.TickSize = *ev.TickSize
		}
	default:
		return
	}
	e.ws = s.now()
}

// applyChange patches one price level and the touch. Level updates
// only apply to the primary token's book; the touch applies whenever
// the event names any of the market's tokens.
func (s *Store) applyChange(e *entry, assetID string, ch *models.LevelChange) {
	if ch.BestBid != nil {
		e.market.BestBid = ch.BestBid
	}
	if ch.BestAsk != nil {
		e.market.BestAsk = ch.BestAsk
	}

	primary, ok := e.market.PrimaryToken()
	if !ok || primary != assetID || ch.Price <= 0 {
		return
	}
	switch ch.Side {
	case "BUY":
		e.book.Bids = patchLevel(e.book.Bids, ch.Price, ch.Size, true)
	case "SELL":
		e.book.Asks = patchLevel(e.book.Asks, ch.Price, ch.Size, false)
	}
}

// patchLevel sets the size at a price, removing the level when size
// is zero, keeping the side sorted.
func patchLevel(side []models.OrderbookLevel, price, size float64, descending bool) []models.OrderbookLevel {
	for i, lvl := range side {
		if lvl.Price == price {
			if size <= 0 {
				return append(side[:i], side[i+1:]...)
			}
			side[i].Size = size
			return side
		}
	}
	if size <= 0 {
		return side
	}
	side = append(side, models.OrderbookLevel{Price: price, Size: size})
	sort.Slice(side, func(i, j int) bool {
		if descending {
			return side[i].Price > side[j].Price
		}
		return side[i].Price < side[j].Price
	})
	return side
}

// IsStale reports whether the entry can no longer be trusted: fresh
// data from either source keeps it alive. A missing entry is stale.
func (s *Store) IsStale(conditionID string, maxAgeREST, maxAgeWS time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[conditionID]
	if !ok {
		return true
	}
	now := s.now()
	restFresh := !e.rest.IsZero() && now.Sub(e.rest) <= maxAgeREST
	wsFresh := !e.ws.IsZero() && now.Sub(e.ws) <= maxAgeWS
	return !restFresh && !wsFresh
}

func (e *entry) snapshot() Entry {
	book := models.Orderbook{
		Bids:         append([]models.OrderbookLevel(nil), e.book.Bids...),
		Asks:         append([]models.OrderbookLevel(nil), e.book.Asks...),
		TickSize:     e.book.TickSize,
		MinOrderSize: e.book.MinOrderSize,
	}
	return Entry{
		Market:         e.market,
		Book:           book,
		LastRESTUpdate: e.rest,
		LastWSUpdate:   e.ws,
	}
}
