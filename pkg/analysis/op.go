package analysis

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/solver"
)

// OperatingPoint finds the equilibrium state of a junction and brings it
// to the first illuminated bias point.
type OperatingPoint struct{ BaseAnalysis }

func NewOP(p *equation.Problem, opts Options) *OperatingPoint {
	return &OperatingPoint{BaseAnalysis: *NewBaseAnalysis(p, opts)}
}

// Execute solves the equilibrium Poisson problem. If Newton fails from
// charge neutrality, doping is stepped up from a nearly intrinsic device,
// each step seeding the next.
func (op *OperatingPoint) Execute() (*solver.DeviceState, error) {
	s, err := op.newSolver(op.Problem)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	st, err := s.Equilibrium()
	if err == nil {
		return st, nil
	}
	if overflow(err) {
		return nil, err
	}
	op.log.Debug("equilibrium failed, stepping doping", zap.Error(err))

	numSteps := 8
	scale := math.Pow(10, -float64(numSteps))
	st = nil
	for i := 0; i <= numSteps; i++ {
		p := op.Problem
		if i < numSteps {
			p = op.Problem.WithMaterial(op.Problem.Mat.ScaleDoping(scale))
		}
		st, err = op.stepDoping(p, st)
		if err != nil {
			return nil, fmt.Errorf("doping stepping failed at %g: %w", scale, err)
		}
		scale *= 10
	}
	return st, nil
}

func (op *OperatingPoint) stepDoping(p *equation.Problem, seed *solver.DeviceState) (*solver.DeviceState, error) {
	s, err := op.newSolver(p)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if seed == nil {
		seed = s.InitialGuess()
	}
	return s.Solve(seed, equation.Conditions{Equilibrium: true})
}

// Illuminate solves bias v under gen starting from a dark state. When the
// full generation fails, light is ramped up in decades.
func (op *OperatingPoint) Illuminate(s *solver.Solver, dark *solver.DeviceState, v float64, gen equation.GenerationProfile) (*solver.DeviceState, error) {
	st, err := s.Solve(dark, equation.Conditions{Voltage: v, Gen: gen})
	if err == nil || overflow(err) || gen == nil {
		return st, err
	}
	op.log.Debug("illumination failed, ramping light", zap.Float64("bias", v), zap.Error(err))

	st = dark
	for _, f := range []float64{1e-4, 1e-3, 1e-2, 1e-1, 1} {
		st, err = s.Solve(st, equation.Conditions{Voltage: v, Gen: scaleGeneration(gen, f)})
		if err != nil {
			return nil, fmt.Errorf("light ramp failed at %g: %w", f, err)
		}
	}
	return st, nil
}

func scaleGeneration(gen equation.GenerationProfile, f float64) equation.GenerationProfile {
	if f == 1 {
		return gen
	}
	out := make(equation.GenerationProfile, len(gen))
	for i, g := range gen {
		out[i] = f * g
	}
	return out
}

func overflow(err error) bool {
	var oerr *equation.NumericalOverflowError
	return errors.As(err, &oerr)
}
