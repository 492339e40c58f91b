package capital

import (
	"errors"
	"fmt"
	"math"
)

// MaxSignals bounds every signal count the package accepts.
const MaxSignals = 10000

var ErrInvalidInput = errors.New("invalid capital input")

// Simulation is the outcome of compounding over a run of signals.
type Simulation struct {
	StartingCapital float64 `json:"startingCapital"`
	FinalCapital    float64 `json:"finalCapital"`
	Steps           []Step  `json:"steps"`
}

// Reports returns the display form of every step.
func (s Simulation) Reports() []StepReport {
	out := make([]StepReport, len(s.Steps))
	for i, step := range s.Steps {
		out[i] = step.Report()
	}
	return out
}

// SimulateForward applies count received signals to startingCapital, each step
// feeding the next.
func (p Params) SimulateForward(startingCapital float64, count int) (Simulation, error) {
	if err := checkInput(startingCapital, count); err != nil {
		return Simulation{}, err
	}

	sim := Simulation{
		StartingCapital: startingCapital,
		FinalCapital:    startingCapital,
		Steps:           make([]Step, 0, count),
	}
	current := startingCapital
	for i := 0; i < count; i++ {
		step := p.ApplyForward(current)
		step.SignalNumber = i + 1
		sim.Steps = append(sim.Steps, step)
		current = step.NewCapital
	}
	sim.FinalCapital = current
	return sim, nil
}

// SolveBackward recovers the capital that elapsed received signals would have
// grown into knownRecentCapital.
func (p Params) SolveBackward(knownRecentCapital float64, elapsed int) (float64, error) {
	if err := checkInput(knownRecentCapital, elapsed); err != nil {
		return 0, err
	}

	if elapsed == 0 {
		return knownRecentCapital, nil
	}
	return knownRecentCapital / math.Pow(p.growth(), float64(elapsed)), nil
}

// Reconciliation ties a user-supplied recent balance back to the balance the
// schedule logically started from, with the forward breakdown from there.
type Reconciliation struct {
	RecentCapital   float64 `json:"recentCapital"`
	ElapsedSignals  int     `json:"elapsedSignals"`
	PreviousCapital float64 `json:"previousCapital"`
	Breakdown       []Step  `json:"breakdown"`
}

// Reconcile solves backward over elapsed signals, then simulates total signals
// forward from the result.
func (p Params) Reconcile(recentCapital float64, elapsed, total int) (Reconciliation, error) {
	previous, err := p.SolveBackward(recentCapital, elapsed)
	if err != nil {
		return Reconciliation{}, err
	}
	sim, err := p.SimulateForward(previous, total)
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconciliation{
		RecentCapital:   recentCapital,
		ElapsedSignals:  elapsed,
		PreviousCapital: previous,
		Breakdown:       sim.Steps,
	}, nil
}

func checkInput(capital float64, count int) error {
	if !finite(capital) || capital < 0 {
		return fmt.Errorf("%w: capital %v must be a non-negative number", ErrInvalidInput, capital)
	}
	if count < 0 || count > MaxSignals {
		return fmt.Errorf("%w: signal count %d must be between 0 and %d", ErrInvalidInput, count, MaxSignals)
	}
	return nil
}
