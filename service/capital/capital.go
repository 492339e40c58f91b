// Package capital holds the compounding arithmetic behind the signal ledger:
// one signal's effect on a balance, forward simulation over many signals and the
// backward inference of a starting balance.
package capital

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	DefaultInvestmentPercentage = 0.01
	DefaultProfitPercentage     = 0.88
)

var ErrInvalidParams = errors.New("invalid capital parameters")

// Params are the per-deployment percentages. They stay constant for a whole
// computation run.
type Params struct {
	InvestmentPercentage float64 `json:"investmentPercentage"`
	ProfitPercentage     float64 `json:"profitPercentage"`
}

// DefaultParams returns 1% investment per signal with an 88% profit on the investment.
func DefaultParams() Params {
	return Params{
		InvestmentPercentage: DefaultInvestmentPercentage,
		ProfitPercentage:     DefaultProfitPercentage,
	}
}

func (p Params) Validate() error {
	if !finite(p.InvestmentPercentage) || p.InvestmentPercentage <= 0 || p.InvestmentPercentage > 1 {
		return fmt.Errorf("%w: investment percentage %v must be in (0, 1]", ErrInvalidParams, p.InvestmentPercentage)
	}
	if !finite(p.ProfitPercentage) || p.ProfitPercentage <= 0 {
		return fmt.Errorf("%w: profit percentage %v must be positive", ErrInvalidParams, p.ProfitPercentage)
	}
	return nil
}

// growth is the factor one resolved signal multiplies capital by.
func (p Params) growth() float64 {
	return 1 + p.InvestmentPercentage*p.ProfitPercentage
}

// Step is the full-precision breakdown of a single signal.
type Step struct {
	SignalNumber           int     `json:"signalNumber,omitempty"`
	Capital                float64 `json:"capital"`
	Investment             float64 `json:"investment"`
	CapitalAfterInvestment float64 `json:"capitalAfterInvestment"`
	Profit                 float64 `json:"profit"`
	TotalReturn            float64 `json:"totalReturn"`
	NewCapital             float64 `json:"newCapital"`
}

// StepReport is a Step rounded to cents for display.
type StepReport struct {
	SignalNumber           int    `json:"signalNumber,omitempty"`
	Capital                string `json:"capital"`
	Investment             string `json:"investment"`
	CapitalAfterInvestment string `json:"capitalAfterInvestment"`
	Profit                 string `json:"profit"`
	TotalReturn            string `json:"totalReturn"`
	FinalCapital           string `json:"finalCapital"`
}

func (s Step) Report() StepReport {
	return StepReport{
		SignalNumber:           s.SignalNumber,
		Capital:                FormatAmount(s.Capital),
		Investment:             FormatAmount(s.Investment),
		CapitalAfterInvestment: FormatAmount(s.CapitalAfterInvestment),
		Profit:                 FormatAmount(s.Profit),
		TotalReturn:            FormatAmount(s.TotalReturn),
		FinalCapital:           FormatAmount(s.NewCapital),
	}
}

// ApplyForward computes the effect of one received signal on capital.
func (p Params) ApplyForward(capital float64) Step {
	investment := capital * p.InvestmentPercentage
	afterInvestment := capital - investment
	profit := investment * p.ProfitPercentage
	totalReturn := investment + profit

	return Step{
		Capital:                capital,
		Investment:             investment,
		CapitalAfterInvestment: afterInvestment,
		Profit:                 profit,
		TotalReturn:            totalReturn,
		NewCapital:             afterInvestment + totalReturn,
	}
}

// ApplyBackward returns the capital that ApplyForward turns into newCapital.
func (p Params) ApplyBackward(newCapital float64) float64 {
	return newCapital / p.growth()
}

// Round2 rounds an amount to cents. Only use it on values leaving the package;
// chained values must stay at full precision.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
