package cell

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pdd/internal/consts"
	"github.com/edp1096/toy-pdd/pkg/analysis"
	"github.com/edp1096/toy-pdd/pkg/config"
	"github.com/edp1096/toy-pdd/pkg/device"
	"github.com/edp1096/toy-pdd/pkg/diag"
	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/mesh"
	"github.com/edp1096/toy-pdd/pkg/material"
)

// SolarCell is a stack of series connected junctions, front junction
// first.
type SolarCell struct {
	name      string
	junctions []*device.Junction
	RSeries   float64 // ohm m^2, added to Options.RSeries
	Sampler   material.Sampler
}

func New(name string, junctions ...*device.Junction) *SolarCell {
	return &SolarCell{
		name:      name,
		junctions: junctions,
	}
}

func (c *SolarCell) Name() string { return c.name }

func (c *SolarCell) Junctions() []*device.Junction { return c.junctions }

func (c *SolarCell) AddJunction(j *device.Junction) {
	c.junctions = append(c.junctions, j)
}

// stage is one junction prepared for solving.
type stage struct {
	junction *device.Junction
	mesh     *mesh.Mesh
	problem  *equation.Problem
}

func (c *SolarCell) setup(opts *config.Options) ([]*stage, error) {
	if len(c.junctions) == 0 {
		return nil, fmt.Errorf("cell %s: no junctions", c.name)
	}
	stats, err := opts.Statistics()
	if err != nil {
		return nil, err
	}

	stages := make([]*stage, len(c.junctions))
	for k, j := range c.junctions {
		if j.Kind != device.KindPDD {
			return nil, fmt.Errorf("junction %s: %w: %s", j.Name, device.ErrUnsupportedKind, j.Kind)
		}
		temp := opts.T
		if j.T > 0 {
			temp = j.T
		}
		jj := *j
		jj.T = temp
		if err := jj.Validate(); err != nil {
			return nil, err
		}

		b := opts.MeshBuilder()
		b.Boundaries = append(b.Boundaries, j.Boundaries...)
		if w, ok := depletionWindow(&jj, opts.Mesh.DepletionSpacing); ok {
			b.Windows = append(b.Windows, w)
		}
		widths := make([]float64, len(j.Layers))
		for i, l := range j.Layers {
			widths[i] = l.Width
		}
		m, err := b.Build(widths)
		if err != nil {
			return nil, fmt.Errorf("junction %s: %w", j.Name, err)
		}

		snap, err := material.Snap(m, j.Layers, temp, stats, c.Sampler)
		if err != nil {
			return nil, fmt.Errorf("junction %s: %w", j.Name, err)
		}
		stages[k] = &stage{
			junction: j,
			mesh:     m,
			problem:  equation.NewProblem(m, snap, j.Front, j.Back, j.PSideFront()),
		}
	}
	return stages, nil
}

// depletionWindow estimates the space charge region around the first
// change of doping type, widened by the abrupt junction depletion width
// at a built-in voltage of one band gap.
func depletionWindow(j *device.Junction, spacing float64) (mesh.Window, bool) {
	if spacing <= 0 {
		return mesh.Window{}, false
	}
	x := 0.0
	last, lastEnd := -1, 0.0
	for k, l := range j.Layers {
		net := l.NetDoping()
		if net != 0 {
			if last >= 0 && math.Signbit(net) != math.Signbit(j.Layers[last].NetDoping()) {
				a, b := j.Layers[last], l
				na, nd := math.Abs(a.NetDoping()), math.Abs(b.NetDoping())
				eps := math.Max(a.Material.EpsR, b.Material.EpsR) * consts.EPSILON0
				eg := math.Max(a.Material.Eg, b.Material.Eg)
				w := math.Sqrt(2 * eps * eg / consts.CHARGE * (1/na + 1/nd))
				return mesh.Window{
					Lo:         math.Max(0, lastEnd-w),
					Hi:         math.Min(j.Width(), x+w),
					MaxSpacing: spacing,
				}, true
			}
			last = k
			lastEnd = x + l.Width
		}
		x += l.Width
	}
	return mesh.Window{}, false
}

func (c *SolarCell) analysisOptions(opts *config.Options) (analysis.Options, *zap.Logger) {
	log := diag.New(opts.Log).With(zap.String("cell", c.name))
	return analysis.Options{
		Solver:     opts.SolverOptions(),
		MaxRetries: opts.MaxRetries,
		Workers:    opts.WorkerCount(),
		Log:        log,
	}, log
}
