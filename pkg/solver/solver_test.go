package solver

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pdd/pkg/device"
	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/material"
	"github.com/edp1096/toy-pdd/pkg/matrix"
	"github.com/edp1096/toy-pdd/pkg/mesh"
)

func gaasDiode(t *testing.T) *equation.Problem {
	t.Helper()
	gaas, err := device.NewMaterial(device.ModelParam{Name: "GaAs"})
	require.NoError(t, err)

	widths := []float64{200e-9, 1000e-9}
	layers := []*device.Layer{
		device.NewLayer("emitter", device.RoleEmitter, widths[0], gaas, 1e24, 0),
		device.NewLayer("base", device.RoleBase, widths[1], gaas, 0, 1e23),
	}
	b := mesh.NewBuilder()
	b.MinSpacing, b.MaxSpacing = 0.5e-9, 20e-9
	m, err := b.Build(widths)
	require.NoError(t, err)

	snap, err := material.Snap(m, layers, 300, material.Boltzmann, nil)
	require.NoError(t, err)
	return equation.NewProblem(m, snap, device.Ohmic(), device.Ohmic(), true)
}

func newSolver(t *testing.T, p *equation.Problem, backend string) *Solver {
	t.Helper()
	opts := DefaultOptions()
	opts.Backend = backend
	s, err := New(p, opts, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestEquilibrium(t *testing.T) {
	p := gaasDiode(t)
	s := newSolver(t, p, matrix.BackendBanded)
	assert.Equal(t, Initialized, s.Phase())

	eq, err := s.Equilibrium()
	require.NoError(t, err)
	assert.Equal(t, Converged, s.Phase())
	assert.Zero(t, eq.Current)

	last := eq.Len() - 1
	assert.InDelta(t, p.Front.Psi, eq.Psi(0), 1e-12)
	assert.InDelta(t, p.Back.Psi, eq.Psi(last), 1e-12)

	// Potential rises monotonically from the p side to the n side.
	for i := 1; i < eq.Len(); i++ {
		assert.GreaterOrEqual(t, eq.Psi(i), eq.Psi(i-1)-1e-9, "node %d", i)
		assert.InDelta(t, 0, eq.PhiN(i), 1e-12)
		assert.InDelta(t, 0, eq.PhiP(i), 1e-12)
	}

	// Built-in potential of a GaAs p+n junction.
	vbi := eq.Psi(last) - eq.Psi(0)
	assert.Greater(t, vbi, 1.1)
	assert.Less(t, vbi, 1.42)
}

func TestSolveIsIdempotent(t *testing.T) {
	p := gaasDiode(t)
	s := newSolver(t, p, matrix.BackendBanded)
	eq, err := s.Equilibrium()
	require.NoError(t, err)

	cond := equation.Conditions{Voltage: 0.5}
	first, err := s.Solve(eq, cond)
	require.NoError(t, err)

	again, err := s.Solve(first, cond)
	require.NoError(t, err)
	assert.LessOrEqual(t, again.Iterations, 2)
	assert.InDeltaSlice(t, first.X, again.X, 1e-8)
	assert.InEpsilon(t, first.Current, again.Current, 1e-6)
}

func TestZeroBiasDarkCurrent(t *testing.T) {
	p := gaasDiode(t)
	s := newSolver(t, p, matrix.BackendBanded)
	eq, err := s.Equilibrium()
	require.NoError(t, err)

	st, err := s.Solve(eq, equation.Conditions{Voltage: 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, st.Current, 1e-8)
}

func TestForwardCurrentIncreases(t *testing.T) {
	p := gaasDiode(t)
	s := newSolver(t, p, matrix.BackendBanded)
	st, err := s.Equilibrium()
	require.NoError(t, err)

	prev := 0.0
	for _, v := range []float64{0.2, 0.4, 0.6, 0.8, 0.9, 1.0} {
		st, err = s.Solve(st, equation.Conditions{Voltage: v})
		require.NoError(t, err, "bias %g", v)
		assert.Greater(t, st.Current, prev, "bias %g", v)
		prev = st.Current
	}

	assert.Greater(t, prev, 1e-3)
}

func TestBackendsAgree(t *testing.T) {
	p := gaasDiode(t)
	var currents []float64
	for _, backend := range []string{matrix.BackendBanded, matrix.BackendSparse} {
		s := newSolver(t, p, backend)
		st, err := s.Equilibrium()
		require.NoError(t, err)
		for _, v := range []float64{0.3, 0.6, 0.9} {
			st, err = s.Solve(st, equation.Conditions{Voltage: v})
			require.NoError(t, err)
		}
		currents = append(currents, st.Current)
	}
	assert.InEpsilon(t, currents[0], currents[1], 1e-6)
}

func TestIlluminatedShortCircuit(t *testing.T) {
	p := gaasDiode(t)
	s := newSolver(t, p, matrix.BackendBanded)
	eq, err := s.Equilibrium()
	require.NoError(t, err)

	// Uniform generation, ramped up from equilibrium.
	const g = 1e26
	gen := make(equation.GenerationProfile, p.Mesh.Len())
	for i := range gen {
		gen[i] = g
	}
	st := eq
	for _, f := range []float64{0.01, 0.1, 1} {
		scaled := make(equation.GenerationProfile, len(gen))
		for i := range gen {
			scaled[i] = f * gen[i]
		}
		st, err = s.Solve(st, equation.Conditions{Voltage: 0, Gen: scaled})
		require.NoError(t, err)
	}

	limit := 1.602176634e-19 * g * p.Mesh.Width()
	assert.Less(t, st.Current, 0.0)
	assert.Greater(t, -st.Current, 0.3*limit)
	assert.LessOrEqual(t, -st.Current, limit*(1+1e-6))
}

func TestConvergenceError(t *testing.T) {
	p := gaasDiode(t)
	opts := DefaultOptions()
	opts.Backend = matrix.BackendBanded
	opts.MaxIterations = 2
	s, err := New(p, opts, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Solve(s.InitialGuess(), equation.Conditions{Voltage: 1.2})
	var cerr *ConvergenceError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, 1.2, cerr.Bias)
	assert.Equal(t, 2, cerr.Iterations)
	assert.Equal(t, Diverged, s.Phase())
	assert.False(t, math.IsNaN(cerr.Residual))
}

func TestBands(t *testing.T) {
	p := gaasDiode(t)
	s := newSolver(t, p, matrix.BackendBanded)
	eq, err := s.Equilibrium()
	require.NoError(t, err)

	b, err := s.Bands(eq)
	require.NoError(t, err)
	require.Len(t, b.Ec, eq.Len())
	for i := range b.Ec {
		assert.InDelta(t, 1.42, b.Ec[i]-b.Ev[i], 1e-12)
		assert.InDelta(t, 0, b.Efn[i], 1e-12)
	}
	// Majority carriers at the contacts.
	assert.InEpsilon(t, 1e24, b.P[0], 1e-3)
	assert.InEpsilon(t, 1e23, b.N[len(b.N)-1], 1e-3)

	clone := eq.Clone()
	clone.X[0] = 42
	assert.NotEqual(t, 42.0, eq.X[0])
}

func TestNewDeviceState(t *testing.T) {
	st, err := NewDeviceState([]float64{1, 2}, []float64{3, 4}, []float64{5, 6})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Len())
	assert.Equal(t, 2.0, st.Psi(1))
	assert.Equal(t, 4.0, st.PhiN(1))
	assert.Equal(t, 5.0, st.PhiP(0))

	_, err = NewDeviceState([]float64{1}, nil, nil)
	assert.Error(t, err)
}
