package cell

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pdd/pkg/analysis"
	"github.com/edp1096/toy-pdd/pkg/config"
	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/metrics"
	"github.com/edp1096/toy-pdd/pkg/optics"
	"github.com/edp1096/toy-pdd/pkg/solver"
)

// JunctionIV is the internal I-V sweep of one junction.
type JunctionIV struct {
	Name    string
	Problem *equation.Problem
	Gen     equation.GenerationProfile
	Sweep   *analysis.SweepResult
}

// Bands returns the band diagram of point k of the sweep.
func (j *JunctionIV) Bands(k int) (*solver.Bands, error) {
	if k < 0 || k >= len(j.Sweep.Points) {
		return nil, fmt.Errorf("point %d out of range", k)
	}
	s, err := solver.New(j.Problem, solver.DefaultOptions(), nil)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Bands(j.Sweep.Points[k].State)
}

// Recombination integrates recombination and generation at point k.
func (j *JunctionIV) Recombination(k int) (metrics.Currents, error) {
	if k < 0 || k >= len(j.Sweep.Points) {
		return metrics.Currents{}, fmt.Errorf("point %d out of range", k)
	}
	return metrics.RecombinationCurrents(equation.NewAssembler(j.Problem), j.Sweep.Points[k].State.X, j.Gen)
}

type IVResult struct {
	Junctions []*JunctionIV
	Stack     *analysis.SeriesResult
	Curve     *metrics.Curve
	Incident  float64 // W/m^2, 0 in the dark

	// Summary is set when the maximum power point was requested under
	// illumination.
	Summary *metrics.Summary
}

// SolveIV sweeps every junction over Options.InternalVoltages and couples
// them in series at Options.Voltages. A metrics.InsufficientDataError from
// the figures of merit is returned together with the result.
func (c *SolarCell) SolveIV(ctx context.Context, opts *config.Options) (*IVResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	stages, err := c.setup(opts)
	if err != nil {
		return nil, err
	}
	aopts, log := c.analysisOptions(opts)

	res := &IVResult{}
	var lines []optics.Line
	if opts.LightIV {
		lines = opts.Light.Lines()
		res.Incident = opts.Light.Power()
	}

	curves := make([]analysis.Curve, len(stages))
	for k, st := range stages {
		var gen equation.GenerationProfile
		if opts.LightIV {
			gen, lines, err = optics.Generation(st.mesh, st.junction.Layers, lines)
			if err != nil {
				return nil, fmt.Errorf("junction %s: %w", st.junction.Name, err)
			}
		}

		log.Info("solving junction", zap.String("junction", st.junction.Name), zap.Int("nodes", st.mesh.Len()))
		sweep, err := analysis.NewIVSweep(st.problem, aopts, opts.InternalVoltages, gen).Execute(ctx)
		if err != nil {
			return nil, fmt.Errorf("junction %s: %w", st.junction.Name, err)
		}
		if len(sweep.Failed) > 0 {
			log.Warn("junction sweep has gaps",
				zap.String("junction", st.junction.Name),
				zap.Int("failed", len(sweep.Failed)),
				zap.Error(sweep.Err()),
			)
		}
		res.Junctions = append(res.Junctions, &JunctionIV{
			Name:    st.junction.Name,
			Problem: st.problem,
			Gen:     gen,
			Sweep:   sweep,
		})
		curves[k] = analysis.CurveOf(sweep)
	}

	res.Stack, err = analysis.Series(curves, opts.Voltages, opts.RSeries+c.RSeries, opts.CouplingTol)
	if err != nil {
		return nil, fmt.Errorf("series coupling: %w", err)
	}
	if res.Curve, err = metrics.NewCurve(res.Stack.V, res.Stack.J); err != nil {
		return nil, err
	}

	if opts.MPP && opts.LightIV {
		s, err := metrics.Summarize(res.Curve, res.Incident)
		if err != nil {
			return res, err
		}
		res.Summary = &s
	}
	return res, nil
}
