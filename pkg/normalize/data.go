package normalize

import (
	"time"

	"github.com/gtmarket/polyscope/pkg/models"
)

var (
	holderWalletAliases = []string{"proxyWallet", "proxy_wallet", "wallet", "address"}
	holderNameAliases   = []string{"name", "pseudonym", "displayUsernamePublic"}
	holderAmountAliases = []string{"amount", "balance", "size"}

	historyPointTimeAliases  = []string{"t", "timestamp", "time"}
	historyPointPriceAliases = []string{"p", "price"}
)

// Holders flattens the holders payload. The data API answers either a
// bare holder array or per-token groups of {token, holders: [...]}.
func Holders(v interface{}) []models.Holder {
	items, ok := coerceList(v)
	if !ok {
		if obj, isMap := v.(map[string]interface{}); isMap {
			if inner, present := obj["holders"]; present {
				return Holders(inner)
			}
		}
		return nil
	}

	var out []models.Holder
	for _, item := range items {
		obj, isMap := item.(map[string]interface{})
		if !isMap {
			continue
		}
		if inner, present := obj["holders"]; present {
			outcome, _ := StringField(Raw(obj), []string{"token", "outcome"})
			for _, h := range Holders(inner) {
				if h.Outcome == "" {
					h.Outcome = outcome
				}
				out = append(out, h)
			}
			continue
		}
		if h, ok := holder(Raw(obj)); ok {
			out = append(out, h)
		}
	}
	return out
}

func holder(raw Raw) (models.Holder, bool) {
	wallet, ok := StringField(raw, holderWalletAliases)
	if !ok {
		return models.Holder{}, false
	}
	amount, ok := FloatField(raw, holderAmountAliases)
	if !ok || amount <= 0 {
		return models.Holder{}, false
	}
	h := models.Holder{Wallet: wallet, Amount: amount}
	h.Name, _ = StringField(raw, holderNameAliases)
	h.Outcome, _ = StringField(raw, []string{"outcome", "outcomeIndex"})
	return h, true
}

// History decodes a prices-history payload: {history: [{t, p}, ...]}
// or a bare point array. Points with unparsable fields are dropped.
func History(v interface{}) []models.PricePoint {
	if obj, isMap := v.(map[string]interface{}); isMap {
		if inner, present := obj["history"]; present {
			v = inner
		}
	}
	items, ok := coerceList(v)
	if !ok {
		return nil
	}

	out := make([]models.PricePoint, 0, len(items))
	for _, item := range items {
		obj, isMap := item.(map[string]interface{})
		if !isMap {
			continue
		}
		ts, okT := FloatField(Raw(obj), historyPointTimeAliases)
		price, okP := FloatField(Raw(obj), historyPointPriceAliases)
		if !okT || !okP {
			continue
		}
		out = append(out, models.PricePoint{
			Timestamp: time.Unix(int64(ts), 0).UTC(),
			Price:     price,
		})
	}
	return out
}
