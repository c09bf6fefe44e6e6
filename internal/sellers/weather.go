package sellers

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"ciphermarket/internal/domain"
)

// Weather returns the global weather seller.
func Weather() domain.Seller {
	return domain.Seller{
		ID:          "weather-global",
		Name:        "Global Weather Intelligence",
		Description: "Real-time weather data and forecasts for any city. Includes temperature, humidity, wind, and 7-day forecast.",
		Category:    domain.CategoryWeather,
		PriceUSD:    "$0.001",
		Params: map[string]domain.ParamField{
			"city": {
				Type:        "string",
				Required:    true,
				Options:     []string{"San Francisco", "New York", "Tokyo", "London"},
				Description: "City name for weather data",
			},
		},
		SampleResponse: map[string]any{
			"city":        "San Francisco",
			"temperature": 62,
			"conditions":  "Partly cloudy",
			"humidity":    68,
			"wind":        "12 mph NW",
			"forecast":    "Clear skies expected through Thursday",
		},
		Handler: weatherHandler,
	}
}

func weatherHandler(_ context.Context, params map[string]any) (any, error) {
	city, _ := params["city"].(string)
	if city == "" {
		city = "San Francisco"
	}

	temps := map[string]float64{
		"San Francisco": 58 + rand.Float64()*15,
		"New York":      35 + rand.Float64()*20,
		"Tokyo":         45 + rand.Float64()*15,
		"London":        40 + rand.Float64()*12,
	}
	temp, ok := temps[city]
	if !ok {
		temp = 50 + rand.Float64()*15
	}

	conditions := []string{"Sunny", "Partly cloudy", "Overcast", "Light rain"}
	directions := []string{"N", "NE", "NW", "S", "SE", "SW"}
	forecasts := []string{
		"Clear skies expected through Thursday",
		"Rain likely on Wednesday",
		"Warming trend this weekend",
		"Fog expected in the morning",
	}

	return map[string]any{
		"city":        city,
		"temperature": round1(temp),
		"unit":        "°F",
		"conditions":  pick(conditions),
		"humidity":    45 + rand.Intn(36),
		"wind":        fmt.Sprintf("%d mph %s", 5+rand.Intn(21), pick(directions)),
		"forecast":    pick(forecasts),
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
		"source":      "Ciphermarket Weather Intelligence",
	}, nil
}
