package solver

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/matrix"
)

type Phase int

const (
	Initialized Phase = iota
	Iterating
	Converged
	Diverged
)

func (p Phase) String() string {
	switch p {
	case Initialized:
		return "initialized"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ConvergenceError is returned when Newton iteration diverges or runs out
// of iterations at one operating point.
type ConvergenceError struct {
	Bias       float64
	Iterations int
	Residual   float64
	Update     float64
	Err        error
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("failed to converge at %g V after %d iterations (residual %.3g, update %.3g)",
		e.Bias, e.Iterations, e.Residual, e.Update)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConvergenceError) Unwrap() error { return e.Err }

type Options struct {
	MaxIterations    int
	ResidualTol      float64 // scaled residual, V
	UpdateTol        float64 // V
	MaxUpdate        float64 // per-unknown step limit, V
	Damping          float64 // (0, 1]
	DivergenceFactor float64
	Backend          string
}

func DefaultOptions() Options {
	return Options{
		MaxIterations:    200,
		ResidualTol:      1e-10,
		UpdateTol:        1e-9,
		MaxUpdate:        0.2,
		Damping:          1,
		DivergenceFactor: 1e8,
		Backend:          matrix.BackendSparse,
	}
}

// Solver runs damped Newton iterations on one junction. A Solver owns its
// linear system and scratch space; use one per goroutine.
type Solver struct {
	opts  Options
	asm   *equation.Assembler
	sys   *equation.System
	lin   matrix.LinearSystem
	phase Phase
	log   *zap.Logger
}

func New(p *equation.Problem, opts Options, log *zap.Logger) (*Solver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxIterations <= 0 || opts.MaxUpdate <= 0 || opts.Damping <= 0 || opts.Damping > 1 {
		return nil, fmt.Errorf("invalid solver options %+v", opts)
	}
	size := p.Mesh.Len()
	lin, err := matrix.New(opts.Backend, equation.Vars*size, equation.Band, equation.Band)
	if err != nil {
		return nil, err
	}
	return &Solver{
		opts: opts,
		asm:  equation.NewAssembler(p),
		sys:  equation.NewSystem(size),
		lin:  lin,
		log:  log,
	}, nil
}

func (s *Solver) Close() {
	if s.lin != nil {
		s.lin.Destroy()
		s.lin = nil
	}
}

func (s *Solver) Phase() Phase { return s.phase }

func (s *Solver) Problem() *equation.Problem { return s.asm.Problem() }

func (s *Solver) Assembler() *equation.Assembler { return s.asm }

// InitialGuess returns the charge-neutral state with flat quasi-Fermi
// levels.
func (s *Solver) InitialGuess() *DeviceState {
	p := s.asm.Problem()
	st := &DeviceState{X: make([]float64, equation.Vars*p.Mesh.Len())}
	for i := range p.Mesh.X {
		st.X[equation.Vars*i+equation.Psi] = p.Mat.NeutralPotential(i)
	}
	return st
}

// Equilibrium solves the Poisson equation with both quasi-Fermi levels
// held at zero, starting from local charge neutrality.
func (s *Solver) Equilibrium() (*DeviceState, error) {
	return s.Solve(s.InitialGuess(), equation.Conditions{Equilibrium: true})
}

// Solve iterates from x0 to a converged state under cond. x0 is not
// modified. A NumericalOverflowError is returned unwrapped.
func (s *Solver) Solve(x0 *DeviceState, cond equation.Conditions) (*DeviceState, error) {
	if x0.Len() != s.sys.N {
		return nil, fmt.Errorf("initial state has %d nodes, mesh has %d", x0.Len(), s.sys.N)
	}
	s.phase = Initialized

	x := append([]float64(nil), x0.X...)
	rnorm0 := math.NaN()
	rnorm, dnorm := math.Inf(1), math.Inf(1)

	s.phase = Iterating
	for iter := 1; iter <= s.opts.MaxIterations; iter++ {
		err := s.asm.Assemble(x, cond, s.sys)
		var overflow *equation.NumericalOverflowError
		if errors.As(err, &overflow) {
			s.phase = Diverged
			return nil, err
		}
		if err != nil {
			return nil, s.diverged(cond, iter, rnorm, dnorm, err)
		}

		s.sys.Equilibrate()
		rnorm = s.sys.ResidualNorm()
		if math.IsNaN(rnorm0) {
			rnorm0 = math.Max(rnorm, s.opts.ResidualTol)
		}
		if math.IsNaN(rnorm) || math.IsInf(rnorm, 0) || rnorm > s.opts.DivergenceFactor*rnorm0 {
			return nil, s.diverged(cond, iter, rnorm, dnorm, nil)
		}

		s.lin.Clear()
		s.sys.Stamp(s.lin)
		if err := s.lin.Solve(); err != nil {
			return nil, s.diverged(cond, iter, rnorm, dnorm, err)
		}
		dx := s.lin.Solution()[1 : len(x)+1]
		dnorm = floats.Norm(dx, math.Inf(1))
		if math.IsNaN(dnorm) {
			return nil, s.diverged(cond, iter, rnorm, dnorm, nil)
		}

		// Each unknown is limited separately, like junction voltage
		// limiting in circuit simulation.
		for i, d := range dx {
			x[i] += s.opts.Damping * math.Max(-s.opts.MaxUpdate, math.Min(s.opts.MaxUpdate, d))
		}

		if rnorm < s.opts.ResidualTol && dnorm < s.opts.UpdateTol {
			return s.converged(x, cond, iter, rnorm, dnorm)
		}
	}

	return nil, s.diverged(cond, s.opts.MaxIterations, rnorm, dnorm, nil)
}

func (s *Solver) converged(x []float64, cond equation.Conditions, iter int, rnorm, dnorm float64) (*DeviceState, error) {
	current := 0.0
	var err error
	if !cond.Equilibrium {
		current, err = s.asm.TerminalCurrent(x)
		if err != nil {
			s.phase = Diverged
			return nil, err
		}
	} else if _, _, err = s.asm.Densities(x); err != nil {
		s.phase = Diverged
		return nil, err
	}
	if clamp := s.asm.Clamped(); clamp != nil {
		s.phase = Diverged
		return nil, clamp
	}

	s.phase = Converged
	s.log.Debug("converged",
		zap.Float64("bias", cond.Voltage),
		zap.Int("iterations", iter),
		zap.Float64("residual", rnorm),
		zap.Float64("update", dnorm),
		zap.Float64("current", current),
	)
	return &DeviceState{
		X:          x,
		Bias:       cond.Voltage,
		Current:    current,
		Iterations: iter,
		Residual:   rnorm,
		Update:     dnorm,
	}, nil
}

func (s *Solver) diverged(cond equation.Conditions, iter int, rnorm, dnorm float64, cause error) error {
	s.phase = Diverged
	s.log.Debug("diverged",
		zap.Float64("bias", cond.Voltage),
		zap.Int("iterations", iter),
		zap.Float64("residual", rnorm),
		zap.Float64("update", dnorm),
		zap.Error(cause),
	)
	return &ConvergenceError{Bias: cond.Voltage, Iterations: iter, Residual: rnorm, Update: dnorm, Err: cause}
}
