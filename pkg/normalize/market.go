package normalize

import (
	"github.com/gtmarket/polyscope/pkg/models"
)

// Alias tables, first match wins. These are the spellings actually
// observed across the discovery API, the CLOB API and the data API.
var (
	conditionIDAliases = []string{"conditionId", "condition_id", "conditionID"}
	marketIDAliases    = []string{"id", "marketId", "market_id", "questionID", "question_id"}
	slugAliases        = []string{"slug", "market_slug", "marketSlug"}
	questionAliases    = []string{"question", "title"}
	outcomesAliases    = []string{"outcomes", "outcomeNames", "outcome_names"}
	tokenIDsAliases    = []string{"clobTokenIds", "clob_token_ids", "tokenIds", "token_ids"}

	outcomePricesAliases = []string{"outcomePrices", "outcome_prices"}
	bestBidAliases       = []string{"bestBid", "best_bid"}
	bestAskAliases       = []string{"bestAsk", "best_ask"}
	lastTradeAliases     = []string{"lastTradePrice", "last_trade_price"}
	volume24hAliases     = []string{"volume24hr", "volume_24hr", "volume24h", "volumeNum", "volume"}

	tokenOutcomeAliases = []string{"outcome", "name"}
	tokenIDAliases      = []string{"token_id", "tokenId", "id"}
)

// defaultOutcomes is synthesized only for binary markets whose
// payload resolves token ids but no outcome labels.
var defaultOutcomes = []string{"YES", "NO"}

// Market converts one raw market object into the canonical form.
// Markets lacking a condition id or with zero resolvable token ids
// are rejected wholesale: ok is false and nothing is produced.
func Market(raw Raw) (models.Market, bool) {
	conditionID, ok := StringField(raw, conditionIDAliases)
	if !ok {
		return models.Market{}, false
	}

	outcomes, haveOutcomes := stringListField(raw, outcomesAliases)
	tokenIDs, haveTokens := stringListField(raw, tokenIDsAliases)

	// The CLOB flavor nests both under a tokens array instead of
	// carrying top-level fields; project the pair out in parallel so
	// outcome[i] keeps matching tokenIDs[i].
	if !haveTokens {
		var nested []string
		tokenIDs, nested, haveTokens = projectTokens(raw)
		if !haveOutcomes && len(nested) > 0 {
			outcomes = nested
			haveOutcomes = true
		}
	}
	if !haveTokens || len(tokenIDs) == 0 {
		return models.Market{}, false
	}

	// A label list of the wrong length is worse than none.
	if haveOutcomes && len(outcomes) != len(tokenIDs) {
		outcomes = nil
		haveOutcomes = false
	}
	if !haveOutcomes && len(tokenIDs) == len(defaultOutcomes) {
		outcomes = append([]string(nil), defaultOutcomes...)
	}

	m := models.Market{
		ConditionID: conditionID,
		Outcomes:    outcomes,
		TokenIDs:    tokenIDs,
		BestBid:     FloatPtr(raw, bestBidAliases),
		BestAsk:     FloatPtr(raw, bestAskAliases),
		LastTrade:   FloatPtr(raw, lastTradeAliases),
		Volume24h:   FloatPtr(raw, volume24hAliases),
	}
	m.MarketID, _ = StringField(raw, marketIDAliases)
	m.Slug, _ = StringField(raw, slugAliases)
	m.Question, _ = StringField(raw, questionAliases)
	if prices, ok := floatListField(raw, outcomePricesAliases); ok && len(prices) == len(tokenIDs) {
		m.OutcomePrices = prices
	}
	return m, true
}

// projectTokens pulls token ids and outcome labels from a nested
// tokens array of {outcome, token_id|id} objects, preserving order.
func projectTokens(raw Raw) (tokenIDs, outcomes []string, ok bool) {
	v, present := firstPresent(raw, []string{"tokens"})
	if !present {
		return nil, nil, false
	}
	items, isList := coerceList(v)
	if !isList {
		return nil, nil, false
	}
	for _, item := range items {
		obj, isMap := item.(map[string]interface{})
		if !isMap {
			continue
		}
		id, hasID := StringField(Raw(obj), tokenIDAliases)
		if !hasID {
			continue
		}
		label, _ := StringField(Raw(obj), tokenOutcomeAliases)
		tokenIDs = append(tokenIDs, id)
		outcomes = append(outcomes, label)
	}
	if len(tokenIDs) == 0 {
		return nil, nil, false
	}
	for _, label := range outcomes {
		if label == "" {
			// Partial labels break the parallel-order guarantee.
			return tokenIDs, nil, true
		}
	}
	return tokenIDs, outcomes, true
}

// Markets normalizes a batch, silently dropping rejects.
func Markets(raws []Raw) []models.Market {
	out := make([]models.Market, 0, len(raws))
	for _, raw := range raws {
		if m, ok := Market(raw); ok {
			out = append(out, m)
		}
	}
	return out
}

// MarketList accepts the payload shapes the list endpoints return: a
// bare array, or an object wrapping the array under data/markets.
func MarketList(v interface{}) []models.Market {
	switch payload := v.(type) {
	case []interface{}:
		return Markets(rawSlice(payload))
	case map[string]interface{}:
		for _, key := range []string{"data", "markets"} {
			if inner, ok := payload[key].([]interface{}); ok {
				return Markets(rawSlice(inner))
			}
		}
	}
	return nil
}

// SingleMarket accepts a bare market object or a {market: {...}}
// wrapper, as returned by the slug lookup.
func SingleMarket(v interface{}) (models.Market, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return models.Market{}, false
	}
	if inner, ok := obj["market"].(map[string]interface{}); ok {
		obj = inner
	}
	return Market(Raw(obj))
}

func rawSlice(items []interface{}) []Raw {
	out := make([]Raw, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			out = append(out, Raw(obj))
		}
	}
	return out
}
