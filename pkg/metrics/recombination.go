package metrics

import (
	"github.com/edp1096/toy-pdd/internal/consts"
	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/mesh"
)

// Currents are recombination and generation expressed as current
// densities (A/m^2).
type Currents struct {
	SRH   float64
	Rad   float64
	Auger float64
	Gen   float64
}

func (c Currents) Recombination() float64 { return c.SRH + c.Rad + c.Auger }

// RecombinationCurrents integrates the recombination of state x and the
// generation profile gen over the device.
func RecombinationCurrents(a *equation.Assembler, x []float64, gen equation.GenerationProfile) (Currents, error) {
	r, err := a.Recombination(x)
	if err != nil {
		return Currents{}, err
	}
	return Currents{
		SRH:   consts.CHARGE * r.SRH,
		Rad:   consts.CHARGE * r.Rad,
		Auger: consts.CHARGE * r.Auger,
		Gen:   consts.CHARGE * integrate(a.Problem().Mesh, gen),
	}, nil
}

func integrate(m *mesh.Mesh, gen equation.GenerationProfile) float64 {
	sum := 0.0
	for i := 0; i < len(gen) && i < m.Len(); i++ {
		sum += gen[i] * m.BoxWidth(i)
	}
	return sum
}
