package device

import "fmt"

// Junction is an ordered stack of layers, front (illuminated) side first.
type Junction struct {
	Name   string
	Layers []*Layer
	Front  Surface
	Back   Surface
	T      float64 // K
	Kind   Kind

	// Positions from the front contact (m) the mesh is refined toward,
	// e.g. a high-recombination boundary inside a layer.
	Boundaries []float64
}

func NewJunction(name string, layers []*Layer, temp float64) *Junction {
	return &Junction{
		Name:   name,
		Layers: layers,
		Front:  Ohmic(),
		Back:   Ohmic(),
		T:      temp,
		Kind:   KindPDD,
	}
}

// WithSurfaces sets the same recombination velocities on both contacts.
func (j *Junction) WithSurfaces(sn, sp float64) *Junction {
	j.Front = Surface{Sn: sn, Sp: sp}
	j.Back = Surface{Sn: sn, Sp: sp}
	return j
}

// WithBoundaries adds mesh refinement points.
func (j *Junction) WithBoundaries(x ...float64) *Junction {
	j.Boundaries = append(j.Boundaries, x...)
	return j
}

func (j *Junction) Width() float64 {
	w := 0.0
	for _, l := range j.Layers {
		w += l.Width
	}
	return w
}

// PSideFront reports whether the front contact is on p-type material.
// Forward bias is applied to the p-side contact.
func (j *Junction) PSideFront() bool {
	if len(j.Layers) == 0 {
		return true
	}
	front := j.Layers[0].NetDoping()
	back := j.Layers[len(j.Layers)-1].NetDoping()
	if front == back {
		return front <= 0
	}
	return front < back
}

func (j *Junction) Validate() error {
	if len(j.Layers) == 0 {
		return fmt.Errorf("junction %s: no layers", j.Name)
	}
	if j.T <= 0 {
		return fmt.Errorf("junction %s: temperature must be positive, got %g", j.Name, j.T)
	}
	for i, l := range j.Layers {
		if l.Material == nil {
			return fmt.Errorf("junction %s: layer %d (%s) has no material", j.Name, i, l.Name)
		}
		if err := l.Material.Validate(); err != nil {
			return fmt.Errorf("junction %s: layer %d (%s): %w", j.Name, i, l.Name, err)
		}
		if l.Na < 0 || l.Nd < 0 {
			return fmt.Errorf("junction %s: layer %d (%s): negative doping", j.Name, i, l.Name)
		}
	}
	for _, x := range j.Boundaries {
		if !(x >= 0 && x <= j.Width()) {
			return fmt.Errorf("junction %s: boundary %g outside the junction", j.Name, x)
		}
	}
	for _, s := range []Surface{j.Front, j.Back} {
		if s.Sn < 0 || s.Sp < 0 {
			return fmt.Errorf("junction %s: negative surface recombination velocity", j.Name)
		}
	}
	return nil
}
