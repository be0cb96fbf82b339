package analysis

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/solver"
)

const (
	OP int = iota
	IV
	QE
)

type Options struct {
	Solver     solver.Options
	MaxRetries int // bias bisections per point
	Workers    int
	Log        *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		Solver:     solver.DefaultOptions(),
		MaxRetries: 6,
		Workers:    1,
	}
}

// Point is one converged operating point. X is the bias (V) of an I-V
// sweep or the wavelength (m) of a QE sweep.
type Point struct {
	X       float64
	State   *solver.DeviceState
	Current float64 // A/m^2
}

// FailedPoint is a gap in a sweep.
type FailedPoint struct {
	X   float64
	Err error
}

// SweepResult holds the points of one sweep in request order. Points are
// only appended.
type SweepResult struct {
	Points []Point
	Failed []FailedPoint
}

func (r *SweepResult) X() []float64 {
	x := make([]float64, len(r.Points))
	for i, p := range r.Points {
		x[i] = p.X
	}
	return x
}

func (r *SweepResult) Currents() []float64 {
	j := make([]float64, len(r.Points))
	for i, p := range r.Points {
		j[i] = p.Current
	}
	return j
}

// Err combines the errors of all failed points, or nil.
func (r *SweepResult) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, f.Err)
	}
	return err
}

type BaseAnalysis struct {
	Problem *equation.Problem
	opts    Options
	log     *zap.Logger
}

func NewBaseAnalysis(p *equation.Problem, opts Options) *BaseAnalysis {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &BaseAnalysis{Problem: p, opts: opts, log: log}
}

func (a *BaseAnalysis) newSolver(p *equation.Problem) (*solver.Solver, error) {
	s, err := solver.New(p, a.opts.Solver, a.log)
	if err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}
	return s, nil
}
