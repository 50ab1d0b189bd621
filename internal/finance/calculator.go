// Package finance implements the deterministic calculator behind the
// FINANCIAL_CALCULATION intent. Everything here is pure and synchronous:
// inputs are validated, never defaulted, and results are rounded once at
// the boundary (2 decimals for money, 5 for rate-like diagnostics).
package finance

import (
	"fmt"
	"math"
)

// LoanResult is one amortization computation.
type LoanResult struct {
	Principal      float64
	AnnualRatePct  float64
	Years          int
	MonthlyRate    float64 // diagnostic, 5 decimals
	MonthlyPayment float64
	TotalPayment   float64
	TotalInterest  float64
}

// VariationResult classifies a change between two values.
type VariationResult struct {
	From          float64
	To            float64
	Change        float64
	ChangePercent float64
	Direction     string // "up" | "down" | "flat"
}

// RatioResult is a numeric ratio plus its categorical reading.
type RatioResult struct {
	Value          float64
	Interpretation string
}

// Loan computes the monthly payment for a fixed-rate amortized loan.
// A zero rate degenerates to straight-line division of the principal.
func Loan(principal, annualRatePct float64, years int) (*LoanResult, error) {
	if principal <= 0 {
		return nil, fmt.Errorf("loan: principal must be > 0, got %.2f", principal)
	}
	if annualRatePct < 0 || math.IsNaN(annualRatePct) {
		return nil, fmt.Errorf("loan: rate must be >= 0, got %v", annualRatePct)
	}
	if years <= 0 {
		return nil, fmt.Errorf("loan: duration must be > 0 years, got %d", years)
	}

	months := float64(years * 12)
	monthlyRate := annualRatePct / 100 / 12

	var payment float64
	if monthlyRate == 0 {
		payment = principal / months
	} else {
		factor := math.Pow(1+monthlyRate, months)
		payment = principal * monthlyRate * factor / (factor - 1)
	}

	payment = round2(payment)
	total := round2(payment * months)

	return &LoanResult{
		Principal:      principal,
		AnnualRatePct:  annualRatePct,
		Years:          years,
		MonthlyRate:    round5(monthlyRate),
		MonthlyPayment: payment,
		TotalPayment:   total,
		TotalInterest:  round2(total - principal),
	}, nil
}

// Variation computes the absolute and percentage change between two values.
// Direction is a strict sign comparison, not a tolerance band.
func Variation(from, to float64) (*VariationResult, error) {
	if from == 0 {
		return nil, fmt.Errorf("variation: initial value must not be zero")
	}

	change := to - from
	direction := "flat"
	switch {
	case change > 0:
		direction = "up"
	case change < 0:
		direction = "down"
	}

	return &VariationResult{
		From:          from,
		To:            to,
		Change:        round2(change),
		ChangePercent: round2(change / from * 100),
		Direction:     direction,
	}, nil
}

// PE computes price/earnings with band edges at 15, 25 and 40.
func PE(price, earningsPerShare float64) (*RatioResult, error) {
	if price <= 0 {
		return nil, fmt.Errorf("pe: price must be > 0, got %.2f", price)
	}
	if earningsPerShare == 0 {
		return nil, fmt.Errorf("pe: earnings per share must not be zero")
	}

	pe := round2(price / earningsPerShare)
	var interp string
	switch {
	case pe < 0:
		interp = "négatif (pertes)"
	case pe < 15:
		interp = "faible (value)"
	case pe < 25:
		interp = "raisonnable"
	case pe < 40:
		interp = "élevé (growth)"
	default:
		interp = "très élevé (spéculatif)"
	}
	return &RatioResult{Value: pe, Interpretation: interp}, nil
}

// ROI computes return on investment in percent with band edges at 0, 10 and 25.
func ROI(costBasis, currentValue float64) (*RatioResult, error) {
	if costBasis <= 0 {
		return nil, fmt.Errorf("roi: cost basis must be > 0, got %.2f", costBasis)
	}

	roi := round2((currentValue - costBasis) / costBasis * 100)
	var interp string
	switch {
	case roi < 0:
		interp = "perte"
	case roi < 10:
		interp = "modeste"
	case roi < 25:
		interp = "bon"
	default:
		interp = "excellent"
	}
	return &RatioResult{Value: roi, Interpretation: interp}, nil
}

// DividendYield computes annual dividend / price in percent with band edges
// at 2, 4 and 6.
func DividendYield(annualDividend, price float64) (*RatioResult, error) {
	if price <= 0 {
		return nil, fmt.Errorf("dividend yield: price must be > 0, got %.2f", price)
	}
	if annualDividend < 0 {
		return nil, fmt.Errorf("dividend yield: dividend must be >= 0, got %.2f", annualDividend)
	}

	y := round2(annualDividend / price * 100)
	var interp string
	switch {
	case y < 2:
		interp = "faible"
	case y < 4:
		interp = "modéré"
	case y < 6:
		interp = "élevé"
	default:
		interp = "très élevé (vérifier la soutenabilité)"
	}
	return &RatioResult{Value: y, Interpretation: interp}, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round5(v float64) float64 { return math.Round(v*100000) / 100000 }
