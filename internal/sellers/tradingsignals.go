package sellers

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"ciphermarket/internal/domain"
)

// TradingSignals returns the trading signals seller.
func TradingSignals() domain.Seller {
	return domain.Seller{
		ID:          "trading-signals",
		Name:        "Alpha Trading Signals",
		Description: "AI-generated trading signals with confidence scores, entry/exit points, and risk analysis. Premium alpha for agents.",
		Category:    domain.CategorySignals,
		PriceUSD:    "$0.01",
		Params: map[string]domain.ParamField{
			"asset": {
				Type:        "string",
				Required:    true,
				Options:     []string{"BTC", "ETH", "SOL"},
				Description: "Asset to get trading signals for",
			},
			"timeframe": {
				Type:        "string",
				Default:     "4H",
				Options:     []string{"1H", "4H", "1D", "1W"},
				Description: "Signal timeframe",
			},
		},
		SampleResponse: map[string]any{
			"signal":     "BUY",
			"asset":      "SOL",
			"confidence": 0.87,
			"entry":      175.5,
			"target":     195.0,
			"stopLoss":   168.0,
		},
		Handler: tradingSignalsHandler,
	}
}

func tradingSignalsHandler(_ context.Context, params map[string]any) (any, error) {
	asset, _ := params["asset"].(string)
	if asset == "" {
		asset = "SOL"
	}
	timeframe, _ := params["timeframe"].(string)
	if timeframe == "" {
		timeframe = "4H"
	}

	bases := map[string]float64{"BTC": 97500, "ETH": 3400, "SOL": 178}
	base, ok := bases[asset]
	if !ok {
		base = 178
	}

	signal := "SELL"
	multiplier := -1.0
	momentum, volume, level := "bearish", "decreasing", "resistance"
	rsi := 65 + rand.Intn(16)
	if rand.Float64() > 0.5 {
		signal = "BUY"
		multiplier = 1.0
		momentum, volume, level = "bullish", "increasing", "support"
		rsi = 35 + rand.Intn(16)
	}

	entry := round2(base * (1 + (rand.Float64()-0.5)*0.02))

	return map[string]any{
		"signal":          signal,
		"asset":           asset,
		"confidence":      round2(0.6 + rand.Float64()*0.35),
		"timeframe":       timeframe,
		"entry":           entry,
		"target":          round2(entry * (1 + multiplier*0.08)),
		"stopLoss":        round2(entry * (1 - multiplier*0.04)),
		"riskRewardRatio": "1:2",
		"reasoning": []string{
			fmt.Sprintf("%s showing %s momentum on %s chart", asset, momentum, timeframe),
			fmt.Sprintf("RSI at %d", rsi),
			fmt.Sprintf("Volume %s over last 8 candles", volume),
			fmt.Sprintf("Key %s level at %d", level, int(math.Round(entry*(1-multiplier*0.03)))),
		},
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
		"source":      "Ciphermarket Alpha Signals",
	}, nil
}
