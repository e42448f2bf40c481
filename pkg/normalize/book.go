package normalize

import (
	"sort"

	"github.com/gtmarket/polyscope/pkg/models"
)

var (
	bidsAliases = []string{"bids", "buys"}
	asksAliases = []string{"asks", "sells"}

	levelPriceAliases = []string{"price", "p", "rate"}
	levelSizeAliases  = []string{"size", "s", "amount"}

	tickSizeAliases     = []string{"tick_size", "tickSize", "minimum_tick_size", "orderPriceMinTickSize"}
	minOrderSizeAliases = []string{"min_order_size", "minOrderSize", "minimum_order_size"}
)

// Book converts one raw orderbook payload. A book with no decodable
// levels on either side is rejected. Sides are re-sorted locally:
// bids descending, asks ascending, whatever order upstream sent.
func Book(raw Raw) (models.Orderbook, bool) {
	bids := levels(raw, bidsAliases)
	asks := levels(raw, asksAliases)
	if len(bids) == 0 && len(asks) == 0 {
		return models.Orderbook{}, false
	}

	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	book := models.Orderbook{Bids: bids, Asks: asks}
	book.TickSize, _ = FloatField(raw, tickSizeAliases)
	book.MinOrderSize, _ = FloatField(raw, minOrderSizeAliases)
	return book, true
}

func levels(raw Raw, aliases []string) []models.OrderbookLevel {
	v, ok := firstPresent(raw, aliases)
	if !ok {
		return nil
	}
	items, ok := coerceList(v)
	if !ok {
		return nil
	}
	out := make([]models.OrderbookLevel, 0, len(items))
	for _, item := range items {
		if lvl, ok := level(item); ok {
			out = append(out, lvl)
		}
	}
	return out
}

// level decodes one raw level, which arrives either as a two-element
// [price, size] array or as an object with aliased keys. Levels with
// a zero or unparsable price or size are dropped rather than
// defaulted: a missing level is safer than a fabricated one.
func level(v interface{}) (models.OrderbookLevel, bool) {
	var price, size float64
	var okP, okS bool

	switch item := v.(type) {
	case []interface{}:
		if len(item) < 2 {
			return models.OrderbookLevel{}, false
		}
		price, okP = coerceFloat(item[0])
		size, okS = coerceFloat(item[1])
	case map[string]interface{}:
		price, okP = FloatField(Raw(item), levelPriceAliases)
		size, okS = FloatField(Raw(item), levelSizeAliases)
	default:
		return models.OrderbookLevel{}, false
	}

	if !okP || !okS || price <= 0 || size <= 0 {
		return models.OrderbookLevel{}, false
	}
	return models.OrderbookLevel{Price: price, Size: size}, true
}

var (
	priceAliases = []string{"price", "mid", "p", "value"}
)

// Price extracts a single price from the price/midpoint endpoints,
// which answer either a bare value or a one-field object.
func Price(v interface{}) (float64, bool) {
	switch payload := v.(type) {
	case map[string]interface{}:
		return FloatField(Raw(payload), priceAliases)
	default:
		return coerceFloat(v)
	}
}
