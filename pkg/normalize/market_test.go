package normalize

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) Raw {
	t.Helper()
	var raw Raw
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestMarketTokenIDsFromJSONEncodedString(t *testing.T) {
	raw := decode(t, `{"condition_id":"C1","clobTokenIds":"[\"A\",\"B\"]"}`)

	m, ok := Market(raw)
	require.True(t, ok)
	assert.Equal(t, "C1", m.ConditionID)
	assert.Equal(t, []string{"A", "B"}, m.TokenIDs)
	assert.Equal(t, []string{"YES", "NO"}, m.Outcomes)
}

func TestMarketConditionIDAliases(t *testing.T) {
	for _, key := range []string{"conditionId", "condition_id", "conditionID"} {
		t.Run(key, func(t *testing.T) {
			raw := Raw{key: "0xabc", "tokenIds": []interface{}{"1", "2"}}
			m, ok := Market(raw)
			require.True(t, ok)
			assert.Equal(t, "0xabc", m.ConditionID)
		})
	}
}

func TestMarketTokenIDAliases(t *testing.T) {
	for _, key := range []string{"clobTokenIds", "clob_token_ids", "tokenIds", "token_ids"} {
		t.Run(key, func(t *testing.T) {
			raw := Raw{"conditionId": "C", key: []interface{}{"7", "8"}}
			m, ok := Market(raw)
			require.True(t, ok)
			assert.Equal(t, []string{"7", "8"}, m.TokenIDs)
		})
	}
}

func TestMarketRejectsWithoutConditionID(t *testing.T) {
	raw := Raw{
		"question": "Will it rain?",
		"tokenIds": []interface{}{"1", "2"},
	}
	_, ok := Market(raw)
	assert.False(t, ok)
}

func TestMarketRejectsWithoutTokenIDs(t *testing.T) {
	cases := []Raw{
		{"conditionId": "C"},
		{"conditionId": "C", "clobTokenIds": "[]"},
		{"conditionId": "C", "clobTokenIds": "not json"},
		{"conditionId": "C", "tokens": []interface{}{}},
		{"conditionId": "C", "tokens": []interface{}{map[string]interface{}{"outcome": "Yes"}}},
	}
	for i, raw := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			_, ok := Market(raw)
			assert.False(t, ok, "half-populated market must be dropped")
		})
	}
}

func TestMarketNestedTokensFallback(t *testing.T) {
	raw := decode(t, `{
		"condition_id": "C2",
		"question": "Who wins?",
		"tokens": [
			{"outcome": "Alice", "token_id": "111"},
			{"outcome": "Bob", "id": "222"}
		]
	}`)

	m, ok := Market(raw)
	require.True(t, ok)
	assert.Equal(t, []string{"111", "222"}, m.TokenIDs)
	assert.Equal(t, []string{"Alice", "Bob"}, m.Outcomes)
	assert.Equal(t, "Who wins?", m.Question)
}

func TestMarketOutcomeLengthMismatchDropsLabels(t *testing.T) {
	raw := Raw{
		"conditionId": "C",
		"outcomes":    []interface{}{"Yes"},
		"tokenIds":    []interface{}{"1", "2"},
	}
	m, ok := Market(raw)
	require.True(t, ok)
	assert.Equal(t, []string{"YES", "NO"}, m.Outcomes, "mismatched labels fall back to the binary default")
}

func TestMarketNoDefaultOutcomesForNonBinary(t *testing.T) {
	raw := Raw{
		"conditionId": "C",
		"tokenIds":    []interface{}{"1", "2", "3"},
	}
	m, ok := Market(raw)
	require.True(t, ok)
	assert.Nil(t, m.Outcomes)
}

func TestMarketOptionalNumericCoercion(t *testing.T) {
	raw := decode(t, `{
		"conditionId": "C3",
		"clobTokenIds": ["1","2"],
		"bestBid": "0.63",
		"bestAsk": 0.65,
		"volume24hr": "12345.5",
		"outcomePrices": "[\"0.63\", \"0.37\"]"
	}`)

	m, ok := Market(raw)
	require.True(t, ok)
	require.NotNil(t, m.BestBid)
	assert.InDelta(t, 0.63, *m.BestBid, 1e-9)
	require.NotNil(t, m.BestAsk)
	assert.InDelta(t, 0.65, *m.BestAsk, 1e-9)
	require.NotNil(t, m.Volume24h)
	assert.InDelta(t, 12345.5, *m.Volume24h, 1e-9)
	assert.Equal(t, []float64{0.63, 0.37}, m.OutcomePrices)
}

func TestMarketNonNumericStringIsAbsent(t *testing.T) {
	raw := Raw{
		"conditionId": "C",
		"tokenIds":    []interface{}{"1", "2"},
		"bestBid":     "n/a",
	}
	m, ok := Market(raw)
	require.True(t, ok)
	assert.Nil(t, m.BestBid)
}

func TestMarketIdempotent(t *testing.T) {
	raw := decode(t, `{
		"condition_id": "C1",
		"clobTokenIds": "[\"A\",\"B\"]",
		"question": "?",
		"bestBid": "0.5"
	}`)

	first, ok1 := Market(raw)
	second, ok2 := Market(raw)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
}

func TestMarketListShapes(t *testing.T) {
	bare := []interface{}{
		map[string]interface{}{"conditionId": "C1", "tokenIds": []interface{}{"1", "2"}},
		map[string]interface{}{"question": "dropped"},
	}
	assert.Len(t, MarketList(bare), 1)

	wrapped := map[string]interface{}{"data": bare}
	assert.Len(t, MarketList(wrapped), 1)

	assert.Nil(t, MarketList("bogus"))
}

func TestSingleMarketUnwraps(t *testing.T) {
	var payload interface{}
	require.NoError(t, json.Unmarshal([]byte(
		`{"market":{"conditionId":"C9","clobTokenIds":"[\"5\",\"6\"]"}}`), &payload))

	m, ok := SingleMarket(payload)
	require.True(t, ok)
	assert.Equal(t, "C9", m.ConditionID)
}
