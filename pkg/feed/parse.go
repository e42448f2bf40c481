package feed

import (
	"encoding/json"
	"time"

	"github.com/gtmarket/polyscope/pkg/models"
	"github.com/gtmarket/polyscope/pkg/normalize"
)

// parseMessage turns one inbound frame into zero or more events. The
// feed pushes both single objects and arrays of objects down the same
// socket, and a price_change frame fans out into one event per
// asset. Unknown event types and undecodable frames yield nothing;
// one bad message never tears the connection down.
func parseMessage(data []byte, now time.Time) []models.PriceUpdate {
	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	switch v := payload.(type) {
	case []interface{}:
		var out []models.PriceUpdate
		for _, item := range v {
			if obj, ok := item.(map[string]interface{}); ok {
				out = append(out, parseEvent(normalize.Raw(obj), now)...)
			}
		}
		return out
	case map[string]interface{}:
		return parseEvent(normalize.Raw(v), now)
	default:
		return nil
	}
}

var (
	assetIDAliases   = []string{"asset_id", "assetId", "token_id"}
	eventTypeAliases = []string{"event_type", "eventType", "type"}
)

func parseEvent(raw normalize.Raw, now time.Time) []models.PriceUpdate {
	eventType, ok := normalize.StringField(raw, eventTypeAliases)
	if !ok {
		return nil
	}

	switch models.EventType(eventType) {
	case models.EventBook:
		return parseBook(raw, now)
	case models.EventPriceChange:
		return parsePriceChange(raw, now)
	case models.EventTrade, models.EventLastTradePrice:
		return parseTrade(raw, models.EventType(eventType), now)
	case models.EventTickSizeChange:
		return parseTickSizeChange(raw, now)
	default:
		return nil
	}
}

func parseBook(raw normalize.Raw, now time.Time) []models.PriceUpdate {
	assetID, ok := normalize.StringField(raw, assetIDAliases)
	if !ok {
		return nil
	}
	book, ok := normalize.Book(raw)
	if !ok {
		return nil
	}
	return []models.PriceUpdate{{
		AssetID:    assetID,
		Type:       models.EventBook,
		Book:       &book,
		ReceivedAt: now,
	}}
}

// parsePriceChange handles both the flat single-change shape and the
// batched {price_changes: [...]} shape, emitting one event per entry.
func parsePriceChange(raw normalize.Raw, now time.Time) []models.PriceUpdate {
	entries, ok := raw["price_changes"].([]interface{})
	if !ok {
		return priceChangeEntry(raw, now)
	}
	var out []models.PriceUpdate
	for _, item := range entries {
		if obj, isMap := item.(map[string]interface{}); isMap {
			out = append(out, priceChangeEntry(normalize.Raw(obj), now)...)
		}
	}
	return out
}

func priceChangeEntry(raw normalize.Raw, now time.Time) []models.PriceUpdate {
	assetID, ok := normalize.StringField(raw, assetIDAliases)
	if !ok {
		return nil
	}
	price, okP := normalize.FloatField(raw, []string{"price", "p"})
	size, okS := normalize.FloatField(raw, []string{"size", "s"})
	if !okP && !okS {
		// Some entries only move the touch.
		price, size = 0, 0
	}
	change := models.LevelChange{
		Price:   price,
		Size:    size,
		BestBid: normalize.FloatPtr(raw, []string{"best_bid", "bestBid"}),
		BestAsk: normalize.FloatPtr(raw, []string{"best_ask", "bestAsk"}),
	}
	change.Side, _ = normalize.StringField(raw, []string{"side"})
	if change.BestBid == nil && change.BestAsk == nil && !okP {
		return nil
	}
	return []models.PriceUpdate{{
		AssetID:    assetID,
		Type:       models.EventPriceChange,
		Change:     &change,
		ReceivedAt: now,
	}}
}

func parseTrade(raw normalize.Raw, eventType models.EventType, now time.Time) []models.PriceUpdate {
	assetID, ok := normalize.StringField(raw, assetIDAliases)
	if !ok {
		return nil
	}
	price, ok := normalize.FloatField(raw, []string{"price", "p"})
	if !ok {
		return nil
	}
	return []models.PriceUpdate{{
		AssetID:    assetID,
		Type:       eventType,
		LastTrade:  &price,
		ReceivedAt: now,
	}}
}

func parseTickSizeChange(raw normalize.Raw, now time.Time) []models.PriceUpdate {
	assetID, ok := normalize.StringField(raw, assetIDAliases)
	if !ok {
		return nil
	}
	tick, ok := normalize.FloatField(raw, []string{"new_tick_size", "newTickSize", "tick_size"})
	if !ok {
		return nil
	}
	return []models.PriceUpdate{{
		AssetID:    assetID,
		Type:       models.EventTickSizeChange,
		TickSize:   &tick,
		ReceivedAt: now,
	}}
}
