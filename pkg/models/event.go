package models

import "time"

// EventType tags a websocket market event. Values mirror the wire
// "event_type" field.
type EventType string

const (
	EventBook           EventType = "book"
	EventPriceChange    EventType = "price_change"
	EventTrade          EventType = "trade"
	EventLastTradePrice EventType = "last_trade_price"
	EventTickSizeChange EventType = "tick_size_change"
)

// LevelChange is one price_change entry for a single asset.
type LevelChange struct {
	Price   float64
	Size    float64
	Side    string // "BUY" or "SELL"
	BestBid *float64
	BestAsk *float64
}

// PriceUpdate is one parsed feed event for one asset. Exactly the
// fields relevant to Type are populated; the rest stay zero.
type PriceUpdate struct {
	AssetID    string
	Type       EventType
	Book       *Orderbook   // EventBook
	Change     *LevelChange // EventPriceChange
	LastTrade  *float64     // EventTrade, EventLastTradePrice
	TickSize   *float64     // EventTickSizeChange
	ReceivedAt time.Time
}
