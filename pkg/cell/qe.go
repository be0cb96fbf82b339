package cell

import (
	"context"
	"fmt"

	"github.com/edp1096/toy-pdd/pkg/analysis"
	"github.com/edp1096/toy-pdd/pkg/config"
	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/metrics"
	"github.com/edp1096/toy-pdd/pkg/optics"
)

type JunctionQE struct {
	Name  string
	Sweep *analysis.SweepResult
	EQE   *metrics.EQE
}

type QEResult struct {
	Junctions []*JunctionQE
}

// At is the EQE of junction k at a wavelength.
func (r *QEResult) At(k int, wavelength float64) float64 {
	return r.Junctions[k].EQE.At(wavelength)
}

// Total sums the EQE of all junctions.
func (r *QEResult) Total(wavelength float64) float64 {
	sum := 0.0
	for _, j := range r.Junctions {
		sum += j.EQE.At(wavelength)
	}
	return sum
}

// SolveQE computes the EQE of every junction at Options.Wavelengths. The
// probe of junction k is attenuated by the junctions above it.
func (c *SolarCell) SolveQE(ctx context.Context, opts *config.Options) (*QEResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Wavelengths) == 0 {
		return nil, fmt.Errorf("no wavelengths requested")
	}
	stages, err := c.setup(opts)
	if err != nil {
		return nil, err
	}
	aopts, _ := c.analysisOptions(opts)

	res := &QEResult{}
	for k, st := range stages {
		above := stages[:k]
		probe := func(wl float64) (equation.GenerationProfile, error) {
			var err error
			lines := optics.Probe(wl, opts.ProbeFlux)
			for _, a := range above {
				if _, lines, err = optics.Generation(a.mesh, a.junction.Layers, lines); err != nil {
					return nil, err
				}
			}
			gen, _, err := optics.Generation(st.mesh, st.junction.Layers, lines)
			return gen, err
		}

		sweep, err := analysis.NewQESweep(st.problem, aopts, opts.Wavelengths, probe).Execute(ctx)
		if err != nil {
			return nil, fmt.Errorf("junction %s: %w", st.junction.Name, err)
		}
		eqe, err := metrics.FromPhotocurrent(sweep.X(), sweep.Currents(), opts.ProbeFlux)
		if err != nil {
			return nil, err
		}
		res.Junctions = append(res.Junctions, &JunctionQE{Name: st.junction.Name, Sweep: sweep, EQE: eqe})
	}
	return res, nil
}
