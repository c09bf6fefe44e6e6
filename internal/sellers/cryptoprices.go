package sellers

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"ciphermarket/internal/domain"
)

var tokenOrder = []string{"BTC", "ETH", "SOL", "AVAX", "LINK", "DOT"}

var tokenMarkets = map[string]struct {
	base       float64
	volatility float64
	mcap       string
}{
	"BTC":  {97500, 2000, "1.92T"},
	"ETH":  {3400, 150, "410B"},
	"SOL":  {178, 12, "82B"},
	"AVAX": {38, 3, "15B"},
	"LINK": {19, 2, "12B"},
	"DOT":  {7.5, 0.8, "10B"},
}

// CryptoPrices returns the crypto price feed seller.
func CryptoPrices() domain.Seller {
	return domain.Seller{
		ID:          "crypto-prices",
		Name:        "Crypto Price Feed",
		Description: "Real-time cryptocurrency prices with 24h change, volume, and market cap. Supports BTC, ETH, SOL, and more.",
		Category:    domain.CategoryCrypto,
		PriceUSD:    "$0.001",
		Params: map[string]domain.ParamField{
			"tokens": {
				Type:        "string[]",
				Required:    true,
				Options:     tokenOrder,
				Description: "Token symbols to get prices for",
			},
			"currency": {
				Type:        "string",
				Default:     "USD",
				Description: "Quote currency",
			},
		},
		SampleResponse: map[string]any{
			"BTC": map[string]any{"price": 97542.12, "change24h": 2.3, "volume24h": "32.1B"},
			"ETH": map[string]any{"price": 3421.56, "change24h": -1.1, "volume24h": "15.7B"},
			"SOL": map[string]any{"price": 178.34, "change24h": 5.7, "volume24h": "4.2B"},
		},
		Handler: cryptoPricesHandler,
	}
}

func cryptoPricesHandler(_ context.Context, params map[string]any) (any, error) {
	tokens := requestedTokens(params["tokens"])

	currency, _ := params["currency"].(string)
	if currency == "" {
		currency = "USD"
	}

	result := make(map[string]any, len(tokens))
	for _, token := range tokens {
		m := tokenMarkets[token]
		result[token] = map[string]any{
			"price":     round2(m.base + (rand.Float64()-0.5)*m.volatility),
			"change24h": round2((rand.Float64() - 0.5) * 10),
			"volume24h": fmt.Sprintf("$%.1fB", rand.Float64()*30+1),
			"marketCap": m.mcap,
		}
	}

	return map[string]any{
		"tokens":    result,
		"currency":  currency,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    "Ciphermarket Crypto Feed",
	}, nil
}

// requestedTokens filters the caller's list down to known symbols,
// falling back to the full list when nothing usable remains.
func requestedTokens(raw any) []string {
	var requested []string
	switch v := raw.(type) {
	case []string:
		requested = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				requested = append(requested, s)
			}
		}
	}

	var tokens []string
	for _, t := range requested {
		if _, ok := tokenMarkets[t]; ok {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		tokens = append(tokens, tokenOrder...)
	}
	return tokens
}
