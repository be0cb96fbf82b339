package mesh

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMonotonic(t *testing.T) {
	cases := []struct {
		name   string
		widths []float64
	}{
		{"single", []float64{1e-6}},
		{"algaas", []float64{30e-9, 150e-9, 1000e-9, 200e-9}},
		{"gaas", []float64{30e-9, 150e-9, 3000e-9, 200e-9}},
		{"thin", []float64{1e-9, 2e-9}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := NewBuilder().Build(tc.widths)
			require.NoError(t, err)

			total := 0.0
			for _, w := range tc.widths {
				total += w
			}
			assert.Equal(t, 0.0, m.X[0])
			assert.Equal(t, total, m.Width())
			for i := 1; i < m.Len(); i++ {
				assert.Greater(t, m.X[i], m.X[i-1], "node %d", i)
			}
			assert.Len(t, m.Layer, m.Len())
			assert.Equal(t, len(tc.widths)-1, m.Layer[m.Len()-1])
		})
	}
}

func TestBuildInterfacesAreNodes(t *testing.T) {
	widths := []float64{30e-9, 150e-9, 1000e-9, 200e-9}
	m, err := NewBuilder().Build(widths)
	require.NoError(t, err)

	for k, xi := range m.Interfaces {
		assert.Contains(t, m.X, xi, "interface %d", k)
	}

	// Node layer index follows the interfaces.
	for i, xi := range m.X {
		k := m.Layer[i]
		assert.GreaterOrEqual(t, xi, m.Interfaces[k])
		if k < len(widths)-1 {
			assert.Less(t, xi, m.Interfaces[k+1])
		}
	}
}

func TestBuildRefinesTowardInterfaces(t *testing.T) {
	b := NewBuilder()
	m, err := b.Build([]float64{1e-6, 1e-6})
	require.NoError(t, err)

	var atInterface, atCentre float64
	for i := 0; i+1 < m.Len(); i++ {
		if m.X[i] == 1e-6 {
			atInterface = m.Spacing(i)
		}
		if m.X[i] <= 0.5e-6 && m.X[i+1] > 0.5e-6 {
			atCentre = m.Spacing(i)
		}
	}
	require.NotZero(t, atInterface)
	assert.Less(t, atInterface, atCentre)
	assert.InDelta(t, b.MinSpacing, atInterface, b.MinSpacing*1e-6)
	assert.LessOrEqual(t, atCentre, b.MaxSpacing*(1+1e-9))
}

func TestBuildBudget(t *testing.T) {
	b := NewBuilder()
	b.MaxNodes = 120
	m, err := b.Build([]float64{30e-9, 150e-9, 3000e-9, 200e-9})
	require.NoError(t, err)
	assert.LessOrEqual(t, m.Len(), 120)
	assert.InDelta(t, 3380e-9, m.Width(), 1e-15)
}

func TestBuildWindow(t *testing.T) {
	b := NewBuilder()
	plain, err := b.Build([]float64{2e-6})
	require.NoError(t, err)

	b.Windows = []Window{{Lo: 0.8e-6, Hi: 1.2e-6, MaxSpacing: 2e-9}}
	refined, err := b.Build([]float64{2e-6})
	require.NoError(t, err)
	assert.Greater(t, refined.Len(), plain.Len())
}

func TestBuildErrors(t *testing.T) {
	cases := []struct {
		name   string
		widths []float64
		layer  int
	}{
		{"empty", nil, -1},
		{"zero width", []float64{1e-6, 0}, 1},
		{"negative width", []float64{-1e-9}, 0},
		{"too thin", []float64{0.1e-9}, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBuilder().Build(tc.widths)
			var merr *MeshConstructionError
			require.True(t, errors.As(err, &merr), "got %v", err)
			assert.Equal(t, tc.layer, merr.Layer)
		})
	}
}

func TestBoxWidthsCoverDevice(t *testing.T) {
	m, err := NewBuilder().Build([]float64{100e-9, 400e-9})
	require.NoError(t, err)

	sum := 0.0
	for i := 0; i < m.Len(); i++ {
		sum += m.BoxWidth(i)
	}
	assert.InDelta(t, m.Width(), sum, 1e-18)
}
