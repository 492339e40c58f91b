package capital

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyForward_Example(t *testing.T) {
	p := DefaultParams()

	step := p.ApplyForward(100)

	assert.InDelta(t, 1.00, step.Investment, 1e-9)
	assert.InDelta(t, 99.00, step.CapitalAfterInvestment, 1e-9)
	assert.InDelta(t, 0.88, step.Profit, 1e-9)
	assert.InDelta(t, 1.88, step.TotalReturn, 1e-9)
	assert.InDelta(t, 100.88, step.NewCapital, 1e-9)

	report := step.Report()
	assert.Equal(t, "100.00", report.Capital)
	assert.Equal(t, "1.00", report.Investment)
	assert.Equal(t, "99.00", report.CapitalAfterInvestment)
	assert.Equal(t, "0.88", report.Profit)
	assert.Equal(t, "1.88", report.TotalReturn)
	assert.Equal(t, "100.88", report.FinalCapital)
}

func TestApplyBackward_RoundTrip(t *testing.T) {
	params := []Params{
		DefaultParams(),
		{InvestmentPercentage: 0.01, ProfitPercentage: 0.89},
		{InvestmentPercentage: 0.05, ProfitPercentage: 0.8},
	}
	capitals := []float64{0.01, 1, 100, 115.44, 12345.678, 1e9}

	for _, p := range params {
		for _, c := range capitals {
			got := p.ApplyBackward(p.ApplyForward(c).NewCapital)
			assert.InDelta(t, c, got, 1e-9*c, "params %+v capital %v", p, c)
		}
	}
}

func TestApplyForward_StrictlyGrows(t *testing.T) {
	p := DefaultParams()
	for _, c := range []float64{0.5, 1, 99.99, 100, 5000, 1e7} {
		assert.Greater(t, p.ApplyForward(c).NewCapital, c)
	}
}

func TestSolveBackward_Example(t *testing.T) {
	p := DefaultParams()

	prior, err := p.SolveBackward(115.44, 1)
	require.NoError(t, err)
	assert.InDelta(t, 115.44/1.0088, prior, 1e-9)
	assert.Equal(t, 114.43, Round2(prior))
}

func TestSolveBackward_ZeroElapsedReturnsInput(t *testing.T) {
	prior, err := DefaultParams().SolveBackward(250.5, 0)
	require.NoError(t, err)
	assert.Equal(t, 250.5, prior)
}

func TestSolveBackward_MatchesRepeatedSteps(t *testing.T) {
	p := DefaultParams()

	want := 5000.0
	for i := 0; i < MaxSignals; i++ {
		want = p.ApplyBackward(want)
	}
	got, err := p.SolveBackward(5000, MaxSignals)
	require.NoError(t, err)
	assert.InEpsilon(t, want, got, 1e-9)
}

func TestSimulateForward(t *testing.T) {
	p := DefaultParams()

	t.Run("zero count", func(t *testing.T) {
		sim, err := p.SimulateForward(100, 0)
		require.NoError(t, err)
		assert.Equal(t, 100.0, sim.FinalCapital)
		assert.Empty(t, sim.Steps)
	})

	t.Run("steps chain", func(t *testing.T) {
		sim, err := p.SimulateForward(100, 3)
		require.NoError(t, err)
		require.Len(t, sim.Steps, 3)

		for i, step := range sim.Steps {
			assert.Equal(t, i+1, step.SignalNumber)
			if i > 0 {
				assert.Equal(t, sim.Steps[i-1].NewCapital, step.Capital)
			}
		}
		assert.Equal(t, sim.Steps[2].NewCapital, sim.FinalCapital)
		assert.InDelta(t, 100*1.0088*1.0088*1.0088, sim.FinalCapital, 1e-9)
		assert.Equal(t, "101.77", sim.Reports()[1].FinalCapital)
	})

	t.Run("inverse of solve backward", func(t *testing.T) {
		prior, err := p.SolveBackward(1000, 7)
		require.NoError(t, err)
		sim, err := p.SimulateForward(prior, 7)
		require.NoError(t, err)
		assert.InDelta(t, 1000, sim.FinalCapital, 1e-9)
	})
}

func TestInvalidInput(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		name    string
		capital float64
		count   int
	}{
		{name: "negative capital", capital: -1, count: 1},
		{name: "negative count", capital: 10, count: -2},
		{name: "count above limit", capital: 10, count: MaxSignals + 1},
		{name: "huge count", capital: 100, count: math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.SimulateForward(tt.capital, tt.count)
			assert.ErrorIs(t, err, ErrInvalidInput)

			_, err = p.SolveBackward(tt.capital, tt.count)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestReconcile(t *testing.T) {
	p := DefaultParams()

	rec, err := p.Reconcile(115.44, 1, 2)
	require.NoError(t, err)

	assert.InDelta(t, 115.44/1.0088, rec.PreviousCapital, 1e-9)
	require.Len(t, rec.Breakdown, 2)
	assert.InDelta(t, 115.44, rec.Breakdown[0].NewCapital, 1e-9)
	assert.Equal(t, rec.PreviousCapital, rec.Breakdown[0].Capital)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.ErrorIs(t, Params{InvestmentPercentage: 0, ProfitPercentage: 0.88}.Validate(), ErrInvalidParams)
	assert.ErrorIs(t, Params{InvestmentPercentage: 0.01, ProfitPercentage: -1}.Validate(), ErrInvalidParams)
	assert.ErrorIs(t, Params{InvestmentPercentage: 2, ProfitPercentage: 0.88}.Validate(), ErrInvalidParams)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "0.00", FormatAmount(0))
	assert.Equal(t, "100.88", FormatAmount(100.88000000000001))
	assert.Equal(t, 1.01, Round2(1.005000001))
}
