// Package greeks prices European options with Black-Scholes and aggregates dealer gamma exposure.
package greeks

import (
	"errors"
	"math"
)

// ErrInvalidInput is returned for non-positive spot, strike, expiry or volatility.
var ErrInvalidInput = errors.New("invalid black-scholes input")

// OptionType selects call or put.
type OptionType uint8

const (
	Call OptionType = iota
	Put
)

// Greeks holds per-contract sensitivities. Theta is per calendar day and vega per vol point.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	IV    float64
}

// NormCDF is the standard normal cumulative distribution.
func NormCDF(x float64) float64 { return 0.5 * math.Erfc(-x/math.Sqrt2) }

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 { return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi) }

// D1D2 returns the Black-Scholes d1 and d2 terms.
func D1D2(s, k, t, r, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// Calculate returns the greeks for spot s, strike k, years t, rate r and volatility sigma.
func Calculate(s, k, t, r, sigma float64, typ OptionType) (Greeks, error) {
	if s <= 0 || k <= 0 || t <= 0 || sigma <= 0 || math.IsNaN(s+k+t+sigma) {
		return Greeks{}, ErrInvalidInput
	}
	d1, d2 := D1D2(s, k, t, r, sigma)
	sqrtT := math.Sqrt(t)
	pdf := NormPDF(d1)
	discount := r * k * math.Exp(-r*t)
	decay := -s * pdf * sigma / (2 * sqrtT)

	g := Greeks{
		Gamma: pdf / (s * sigma * sqrtT),
		Vega:  s * pdf * sqrtT / 100,
		IV:    sigma,
	}
	switch typ {
	case Put:
		g.Delta = NormCDF(d1) - 1
		g.Theta = (decay + discount*NormCDF(-d2)) / 365
	default:
		g.Delta = NormCDF(d1)
		g.Theta = (decay - discount*NormCDF(d2)) / 365
	}
	return g, nil
}
