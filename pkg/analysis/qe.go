package analysis

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/solver"
)

// ProbeFunc returns the generation profile of a monochromatic probe at
// wavelength (m), already attenuated by everything above the junction.
type ProbeFunc func(wavelength float64) (equation.GenerationProfile, error)

// QESweep solves a junction at short circuit under one monochromatic probe
// per wavelength. Each point's Current is the probe photocurrent, the short
// circuit current minus the dark one.
type QESweep struct {
	BaseAnalysis
	op          *OperatingPoint
	wavelengths []float64
	probe       ProbeFunc
}

func NewQESweep(p *equation.Problem, opts Options, wavelengths []float64, probe ProbeFunc) *QESweep {
	return &QESweep{
		BaseAnalysis: *NewBaseAnalysis(p, opts),
		op:           NewOP(p, opts),
		wavelengths:  append([]float64(nil), wavelengths...),
		probe:        probe,
	}
}

// Execute runs in two passes: the shared dark short circuit state, then the
// independent wavelength points on a pool of Workers goroutines. Every
// worker owns its solver and a clone of the dark state.
func (qe *QESweep) Execute(ctx context.Context) (*SweepResult, error) {
	if len(qe.wavelengths) == 0 {
		return nil, fmt.Errorf("no wavelength points")
	}
	if qe.probe == nil {
		return nil, fmt.Errorf("no probe")
	}

	eq, err := qe.op.Execute()
	if err != nil {
		return nil, fmt.Errorf("operating point analysis error: %w", err)
	}
	dark, err := qe.darkShortCircuit(eq)
	if err != nil {
		return nil, err
	}

	points := make([]*Point, len(qe.wavelengths))
	failed := make([]error, len(qe.wavelengths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(qe.opts.Workers)
	for i, wl := range qe.wavelengths {
		seed := dark.Clone()
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, err := qe.solvePoint(seed, wl)
			switch {
			case err == nil:
				points[i] = &Point{X: wl, State: st, Current: st.Current - dark.Current}
			case overflow(err):
				return fmt.Errorf("wavelength %g m: %w", wl, err)
			default:
				failed[i] = err
				qe.log.Warn("wavelength point failed", zap.Float64("wavelength", wl), zap.Error(err))
			}
			return nil
		})
	}
	sweepErr := g.Wait()

	res := &SweepResult{}
	for i, wl := range qe.wavelengths {
		switch {
		case points[i] != nil:
			res.Points = append(res.Points, *points[i])
		case failed[i] != nil:
			res.Failed = append(res.Failed, FailedPoint{X: wl, Err: failed[i]})
		}
	}
	return res, sweepErr
}

func (qe *QESweep) darkShortCircuit(eq *solver.DeviceState) (*solver.DeviceState, error) {
	s, err := qe.newSolver(qe.Problem)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	dark, err := s.Solve(eq, equation.Conditions{Voltage: 0})
	if err != nil {
		return nil, fmt.Errorf("dark short circuit: %w", err)
	}
	return dark, nil
}

func (qe *QESweep) solvePoint(seed *solver.DeviceState, wl float64) (*solver.DeviceState, error) {
	if wl <= 0 || math.IsNaN(wl) || math.IsInf(wl, 0) {
		return nil, fmt.Errorf("invalid wavelength %g", wl)
	}
	gen, err := qe.probe(wl)
	if err != nil {
		return nil, err
	}
	s, err := qe.newSolver(qe.Problem)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return qe.op.Illuminate(s, seed, 0, gen)
}
