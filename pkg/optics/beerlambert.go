package optics

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-pdd/pkg/device"
	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/mesh"
)

const MethodBeerLambert = "BL"

// Generation computes the Beer-Lambert generation profile of one junction
// illuminated from its front by lines, and returns the lines transmitted
// through its back.
//
// Each node receives the photons absorbed inside its control volume, so the
// profile integrates to the absorbed photon flux on any mesh.
func Generation(m *mesh.Mesh, layers []*device.Layer, lines []Line) (equation.GenerationProfile, []Line, error) {
	if len(layers) != len(m.Interfaces)-1 {
		return nil, nil, fmt.Errorf("beer-lambert: %d layers for %d mesh regions", len(layers), len(m.Interfaces)-1)
	}

	size := m.Len()
	edges := make([]float64, size+1)
	edges[0] = m.X[0]
	for i := 1; i < size; i++ {
		edges[i] = (m.X[i-1] + m.X[i]) / 2
	}
	edges[size] = m.Width()

	gen := make(equation.GenerationProfile, size)
	out := make([]Line, len(lines))
	alpha := make([]float64, len(layers))
	for k, l := range lines {
		for j, layer := range layers {
			alpha[j] = layer.Material.Alpha(l.Wavelength)
			if alpha[j] < 0 || math.IsNaN(alpha[j]) {
				return nil, nil, fmt.Errorf("beer-lambert: invalid absorption %g in layer %s at %g m",
					alpha[j], layer.Name, l.Wavelength)
			}
		}

		prev := 0.0
		for i := 0; i < size; i++ {
			tau := depth(m.Interfaces, alpha, edges[i+1])
			absorbed := l.Flux * (math.Exp(-prev) - math.Exp(-tau))
			if w := edges[i+1] - edges[i]; w > 0 {
				gen[i] += absorbed / w
			}
			prev = tau
		}
		out[k] = Line{Wavelength: l.Wavelength, Flux: l.Flux * math.Exp(-prev)}
	}
	return gen, out, nil
}

// depth is the optical depth from the front to x for piecewise constant
// absorption.
func depth(interfaces, alpha []float64, x float64) float64 {
	tau := 0.0
	for j := range alpha {
		lo, hi := interfaces[j], interfaces[j+1]
		if x <= lo {
			break
		}
		tau += alpha[j] * (math.Min(x, hi) - lo)
	}
	return tau
}
