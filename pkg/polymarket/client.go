// Package polymarket exposes a typed client over the three public
// upstream APIs: the discovery (gamma) API for market metadata, the
// CLOB API for books and prices, and the data API for holders. All
// responses go through the normalizer, so callers only ever see
// canonical values.
package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/gtmarket/polyscope/pkg/httpclient"
	"github.com/gtmarket/polyscope/pkg/models"
	"github.com/gtmarket/polyscope/pkg/normalize"
)

// ErrNotFound is returned when an endpoint answered but the payload
// held no usable entity.
var ErrNotFound = errors.New("not found")

// Side selects which side of the book a price quote is for.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Endpoints are the three API bases. The websocket URL is not here;
// the feed takes it directly.
type Endpoints struct {
	GammaBase   string
	ClobBase    string
	DataAPIBase string
}

type Client struct {
	endpoints Endpoints
	http      *httpclient.Client
	logger    *logrus.Logger
}

func NewClient(endpoints Endpoints, http *httpclient.Client, logger *logrus.Logger) *Client {
	return &Client{endpoints: endpoints, http: http, logger: logger}
}

func (c *Client) get(ctx context.Context, rawURL string, out interface{}) error {
	return c.http.FetchJSON(ctx, httpclient.Request{URL: rawURL}, out)
}

// ListMarkets pages through active, open markets on the discovery
// API. limit bounds the page size, offset skips ahead.
func (c *Client) ListMarkets(ctx context.Context, limit, offset int) ([]models.Market, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("closed", "false")
	q.Set("active", "true")

	var payload interface{}
	if err := c.get(ctx, c.endpoints.GammaBase+"/markets?"+q.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return normalize.MarketList(payload), nil
}

// CursorEnd is the cursor value the CLOB API returns on the last
// page.
const CursorEnd = "LTE="

// ClobMarkets pages the CLOB market list with its cursor scheme. An
// empty cursor starts from the beginning; the returned cursor equals
// CursorEnd once there are no further pages.
func (c *Client) ClobMarkets(ctx context.Context, cursor string) ([]models.Market, string, error) {
	u := c.endpoints.ClobBase + "/markets"
	if cursor != "" {
		u += "?next_cursor=" + url.QueryEscape(cursor)
	}

	var payload interface{}
	if err := c.get(ctx, u, &payload); err != nil {
		return nil, "", fmt.Errorf("clob markets: %w", err)
	}

	next := CursorEnd
	if obj, ok := payload.(map[string]interface{}); ok {
		if s, ok := obj["next_cursor"].(string); ok && s != "" {
			next = s
		}
	}
	return normalize.MarketList(payload), next, nil
}

// MarketBySlug resolves one market by its URL slug. The endpoint
// answers either a bare market object or a {market: {...}} wrapper.
func (c *Client) MarketBySlug(ctx context.Context, slug string) (models.Market, error) {
	u := c.endpoints.GammaBase + "/markets/slug/" + url.PathEscape(slug)

	var payload interface{}
	if err := c.get(ctx, u, &payload); err != nil {
		return models.Market{}, fmt.Errorf("market by slug %q: %w", slug, err)
	}

	if m, ok := normalize.SingleMarket(payload); ok {
		return m, nil
	}
	// Some deployments answer the slug lookup with a one-element list.
	if markets := normalize.MarketList(payload); len(markets) > 0 {
		return markets[0], nil
	}
	return models.Market{}, fmt.Errorf("market by slug %q: %w", slug, ErrNotFound)
}

// Book fetches the order book snapshot for one outcome token.
func (c *Client) Book(ctx context.Context, tokenID string) (models.Orderbook, error) {
	u := c.endpoints.ClobBase + "/book?token_id=" + url.QueryEscape(tokenID)

	var payload normalize.Raw
	if err := c.get(ctx, u, &payload); err != nil {
		return models.Orderbook{}, fmt.Errorf("book for %s: %w", tokenID, err)
	}
	book, ok := normalize.Book(payload)
	if !ok {
		return models.Orderbook{}, fmt.Errorf("book for %s: %w", tokenID, ErrNotFound)
	}
	return book, nil
}

// Price quotes one side of the book for a token.
func (c *Client) Price(ctx context.Context, tokenID string, side Side) (float64, error) {
	q := url.Values{}
	q.Set("token_id", tokenID)
	q.Set("side", string(side))

	var payload interface{}
	if err := c.get(ctx, c.endpoints.ClobBase+"/price?"+q.Encode(), &payload); err != nil {
		return 0, fmt.Errorf("price for %s %s: %w", tokenID, side, err)
	}
	price, ok := normalize.Price(payload)
	if !ok {
		return 0, fmt.Errorf("price for %s %s: %w", tokenID, side, ErrNotFound)
	}
	return price, nil
}

// Midpoint returns the book midpoint for a token.
func (c *Client) Midpoint(ctx context.Context, tokenID string) (float64, error) {
	u := c.endpoints.ClobBase + "/midpoint?token_id=" + url.QueryEscape(tokenID)

	var payload interface{}
	if err := c.get(ctx, u, &payload); err != nil {
		return 0, fmt.Errorf("midpoint for %s: %w", tokenID, err)
	}
	price, ok := normalize.Price(payload)
	if !ok {
		return 0, fmt.Errorf("midpoint for %s: %w", tokenID, ErrNotFound)
	}
	return price, nil
}

// PricesHistory fetches sampled price history for a market. The
// fidelity-qualified path 404s for some markets; those fall back to
// the interval-only form before giving up.
func (c *Client) PricesHistory(ctx context.Context, marketID, interval string, fidelity int) ([]models.PricePoint, error) {
	q := url.Values{}
	q.Set("market", marketID)
	q.Set("interval", interval)
	if fidelity > 0 {
		q.Set("fidelity", strconv.Itoa(fidelity))
	}

	var payload interface{}
	err := c.get(ctx, c.endpoints.ClobBase+"/prices-history?"+q.Encode(), &payload)
	if err != nil && fidelity > 0 && httpclient.StatusOf(err) == http.StatusNotFound {
		c.logger.WithField("market", marketID).Debug("prices-history with fidelity 404ed, retrying without")
		q.Del("fidelity")
		err = c.get(ctx, c.endpoints.ClobBase+"/prices-history?"+q.Encode(), &payload)
	}
	if err != nil {
		return nil, fmt.Errorf("prices history for %s: %w", marketID, err)
	}
	return normalize.History(payload), nil
}

// Holders lists the largest position holders for a market.
func (c *Client) Holders(ctx context.Context, conditionID string, limit int) ([]models.Holder, error) {
	q := url.Values{}
	q.Set("market", conditionID)
	q.Set("limit", strconv.Itoa(limit))

	var payload interface{}
	if err := c.get(ctx, c.endpoints.DataAPIBase+"/holders?"+q.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("holders for %s: %w", conditionID, err)
	}
	return normalize.Holders(payload), nil
}
