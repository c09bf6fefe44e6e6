// Package sellers holds the built-in data providers registered at
// startup. Each returns synthetic but realistically shaped data; swapping
// a handler for a real upstream feed changes nothing else in the system.
package sellers

import (
	"math"
	"math/rand"

	"ciphermarket/internal/registry"
)

// RegisterAll installs every built-in seller.
func RegisterAll(reg *registry.Registry) {
	reg.MustRegister(Weather())
	reg.MustRegister(CryptoPrices())
	reg.MustRegister(TradingSignals())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func pick(options []string) string {
	return options[rand.Intn(len(options))]
}
