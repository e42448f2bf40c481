package models

import (
	"time"
)

// Market is the canonical view of one prediction market after
// normalization. ConditionID is the identity; everything else is
// best-effort and may be absent depending on which upstream API the
// data came from.
type Market struct {
	ConditionID   string
	MarketID      string
	Slug          string
	Question      string
	Outcomes      []string
	TokenIDs      []string
	OutcomePrices []float64
	BestBid       *float64
	BestAsk       *float64
	LastTrade     *float64
	Volume24h     *float64
}

// PrimaryToken returns the first outcome token id, which is the asset
// the book and price endpoints are keyed by.
func (m *Market) PrimaryToken() (string, bool) {
	if len(m.TokenIDs) == 0 {
		return "", false
	}
	return m.TokenIDs[0], true
}

type OrderbookLevel struct {
	Price float64
	Size  float64
}

// Orderbook holds one side-sorted book snapshot: bids descending,
// asks ascending. TickSize and MinOrderSize are zero when unknown.
type Orderbook struct {
	Bids         []OrderbookLevel
	Asks         []OrderbookLevel
	TickSize     float64
	MinOrderSize float64
}

// BestBid returns the highest bid, if any.
func (b *Orderbook) BestBid() (OrderbookLevel, bool) {
	if len(b.Bids) == 0 {
		return OrderbookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (b *Orderbook) BestAsk() (OrderbookLevel, bool) {
	if len(b.Asks) == 0 {
		return OrderbookLevel{}, false
	}
	return b.Asks[0], true
}

// Crossed reports whether the top of book is crossed (best bid at or
// above best ask). Upstream occasionally publishes such books; they
// are logged by consumers, never rejected.
func (b *Orderbook) Crossed() bool {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	return okB && okA && bid.Price >= ask.Price
}

// PricePoint is one sample from the prices-history endpoint.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// Holder is one entry from the holders endpoint.
type Holder struct {
	Wallet  string
	Name    string
	Amount  float64
	Outcome string
}
