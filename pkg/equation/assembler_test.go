package equation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pdd/pkg/device"
	"github.com/edp1096/toy-pdd/pkg/material"
	"github.com/edp1096/toy-pdd/pkg/mesh"
)

func gaasProblem(t *testing.T, stats material.Statistics, front, back device.Surface) *Problem {
	t.Helper()
	gaas, err := device.NewMaterial(device.ModelParam{Name: "GaAs", Params: map[string]float64{
		"nt": 1e20, "cn": 1e-42, "cp": 1e-42,
	}})
	require.NoError(t, err)

	layers := []*device.Layer{
		device.NewLayer("emitter", device.RoleEmitter, 100e-9, gaas, 1e24, 0),
		device.NewLayer("base", device.RoleBase, 300e-9, gaas, 0, 1e23),
	}
	b := mesh.NewBuilder()
	b.MinSpacing, b.MaxSpacing = 2e-9, 40e-9
	m, err := b.Build([]float64{100e-9, 300e-9})
	require.NoError(t, err)

	snap, err := material.Snap(m, layers, 300, stats, nil)
	require.NoError(t, err)

	return NewProblem(m, snap, front, back, true)
}

// biasedState is a smooth non-equilibrium state near neutrality.
func biasedState(p *Problem) []float64 {
	m := p.Mesh
	x := make([]float64, Vars*m.Len())
	for i := range m.X {
		s := m.X[i] / m.Width()
		x[Vars*i+Psi] = p.Mat.NeutralPotential(i) + 0.2*(1-s)
		x[Vars*i+PhiN] = 0.05 + 0.3*s*s
		x[Vars*i+PhiP] = 0.35 - 0.1*s
	}
	return x
}

func uniformGeneration(n int, g float64) GenerationProfile {
	gen := make(GenerationProfile, n)
	for i := range gen {
		gen[i] = g
	}
	return gen
}

func TestJacobianMatchesFiniteDifference(t *testing.T) {
	finiteS := device.Surface{Sn: 1e3, Sp: 50}
	cases := []struct {
		name  string
		stats material.Statistics
		front device.Surface
		back  device.Surface
	}{
		{"boltzmann ohmic", material.Boltzmann, device.Ohmic(), device.Ohmic()},
		{"boltzmann surfaces", material.Boltzmann, finiteS, finiteS},
		{"fermi-dirac mixed", material.FermiDirac, device.Ohmic(), finiteS},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := gaasProblem(t, tc.stats, tc.front, tc.back)
			a := NewAssembler(p)
			cond := Conditions{Voltage: 0.3, Gen: uniformGeneration(p.Mesh.Len(), 1e23)}
			x := biasedState(p)

			sys := NewSystem(p.Mesh.Len())
			require.NoError(t, a.Assemble(x, cond, sys))

			plus, minus := NewSystem(p.Mesh.Len()), NewSystem(p.Mesh.Len())
			const h = 1e-6
			for col := range x {
				xp := append([]float64(nil), x...)
				xm := append([]float64(nil), x...)
				xp[col] += h
				xm[col] -= h
				require.NoError(t, a.Assemble(xp, cond, plus))
				require.NoError(t, a.Assemble(xm, cond, minus))

				j, vj := col/Vars, col%Vars
				for row := max(0, Vars*(j-1)); row < min(len(x), Vars*(j+2)); row++ {
					i, vi := row/Vars, row%Vars
					fd := (plus.F[row] - minus.F[row]) / (2 * h)
					scale := 0.0
					for _, v := range sys.J.row(i, vi) {
						scale = math.Max(scale, math.Abs(v))
					}
					assert.InDeltaf(t, fd, sys.J.At(i, vi, j, vj), 1e-5*scale,
						"d F[%d,%d] / d x[%d,%d]", i, vi, j, vj)
				}
			}
		})
	}
}

func TestEquilibriumHasNoCurrent(t *testing.T) {
	p := gaasProblem(t, material.Boltzmann, device.Ohmic(), device.Ohmic())
	a := NewAssembler(p)

	// Flat quasi-Fermi levels carry no current whatever the potential.
	x := make([]float64, Vars*p.Mesh.Len())
	for i := range p.Mesh.X {
		x[Vars*i+Psi] = p.Mat.NeutralPotential(i)
	}
	jn, jp, err := a.FaceCurrents(x)
	require.NoError(t, err)
	for i := range jn {
		assert.Zero(t, jn[i])
		assert.Zero(t, jp[i])
	}

	sys := NewSystem(p.Mesh.Len())
	require.NoError(t, a.Assemble(x, Conditions{Equilibrium: true}, sys))
	for i := 0; i < p.Mesh.Len(); i++ {
		assert.Equal(t, 0.0, sys.F[Vars*i+PhiN])
		assert.Equal(t, 0.0, sys.F[Vars*i+PhiP])
		assert.Equal(t, 1.0, sys.J.At(i, PhiN, i, PhiN))
	}
}

func TestTerminalCurrentSign(t *testing.T) {
	p := gaasProblem(t, material.Boltzmann, device.Ohmic(), device.Ohmic())
	a := NewAssembler(p)

	// Holes pushed from the p side toward the n side: forward current.
	x := make([]float64, Vars*p.Mesh.Len())
	for i := range p.Mesh.X {
		x[Vars*i+Psi] = p.Mat.NeutralPotential(i)
		x[Vars*i+PhiP] = 0.1 * (1 - p.Mesh.X[i]/p.Mesh.Width())
	}
	j, err := a.TerminalCurrent(x)
	require.NoError(t, err)
	assert.Greater(t, j, 0.0)

	p.PSideFront = false
	j, err = a.TerminalCurrent(x)
	require.NoError(t, err)
	assert.Less(t, j, 0.0)
}

func TestDriftFluxLimits(t *testing.T) {
	const vt, c = 0.025, 1.0

	// Pure diffusion: c (n1 - n0).
	j, _ := electronFlux(c, vt, 1e20, 3e20, 1e20, 3e20, 0, -vt*math.Log(3))
	assert.InDelta(t, 2e20, j, 1e9)

	// Pure diffusion for holes: c (p0 - p1).
	j, _ = holeFlux(c, vt, 3e20, 1e20, 3e20, 1e20, 0, -vt*math.Log(3))
	assert.InDelta(t, 2e20, j, 1e9)

	// Uniform density in a field: drift current -c n dpsi/vt.
	j, _ = electronFlux(c, vt, 1e20, 1e20, 1e20, 1e20, 0, 0.1)
	assert.InDelta(t, -1e20*0.1/vt, j, 1e10)
}

func TestOverflowIsReported(t *testing.T) {
	p := gaasProblem(t, material.Boltzmann, device.Ohmic(), device.Ohmic())
	x := biasedState(p)
	p.Mat.Nodes[3].Nc = math.Inf(1)
	a := NewAssembler(p)

	err := a.Assemble(x, Conditions{Voltage: 0.1}, NewSystem(p.Mesh.Len()))
	var oerr *NumericalOverflowError
	require.True(t, errors.As(err, &oerr), "got %v", err)
	assert.Equal(t, 3, oerr.Node)
	assert.Equal(t, "electron", oerr.Carrier)
}

func TestRecombinationRates(t *testing.T) {
	p := gaasProblem(t, material.Boltzmann, device.Ohmic(), device.Ohmic())
	a := NewAssembler(p)

	x := make([]float64, Vars*p.Mesh.Len())
	for i := range p.Mesh.X {
		x[Vars*i+Psi] = p.Mat.NeutralPotential(i)
	}
	r, err := a.Recombination(x)
	require.NoError(t, err)
	assert.InDelta(t, 0, r.Total(), 1e-3)

	// Split quasi-Fermi levels: net recombination in every channel.
	for i := range p.Mesh.X {
		x[Vars*i+PhiP] = 0.5
	}
	r, err = a.Recombination(x)
	require.NoError(t, err)
	assert.Greater(t, r.SRH, 0.0)
	assert.Greater(t, r.Rad, 0.0)
	assert.Greater(t, r.Auger, 0.0)
}
