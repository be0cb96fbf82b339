package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/edp1096/toy-pdd/internal/consts"
)

// EQE is an external quantum efficiency spectrum.
type EQE struct {
	Wavelength []float64 // m, increasing
	Value      []float64

	pl interp.PiecewiseLinear
}

func NewEQE(wavelength, value []float64) (*EQE, error) {
	if len(wavelength) != len(value) {
		return nil, fmt.Errorf("EQE has %d wavelengths and %d values", len(wavelength), len(value))
	}
	idx := make([]int, len(wavelength))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return wavelength[idx[a]] < wavelength[idx[b]] })
	q := &EQE{}
	for _, i := range idx {
		if n := len(q.Wavelength); n > 0 && wavelength[i] == q.Wavelength[n-1] {
			continue
		}
		q.Wavelength = append(q.Wavelength, wavelength[i])
		q.Value = append(q.Value, value[i])
	}
	if len(q.Wavelength) >= 2 {
		if err := q.pl.Fit(q.Wavelength, q.Value); err != nil {
			return nil, fmt.Errorf("EQE: %w", err)
		}
	}
	return q, nil
}

// FromPhotocurrent converts probe photocurrents (A/m^2, negative when
// collected) under a probe flux (photons m^-2 s^-1) to an EQE spectrum.
// Values are clipped to [0, 1].
func FromPhotocurrent(wavelength, current []float64, flux float64) (*EQE, error) {
	if flux <= 0 {
		return nil, fmt.Errorf("probe flux must be positive, got %g", flux)
	}
	v := make([]float64, len(current))
	for i, j := range current {
		v[i] = math.Max(0, math.Min(1, -j/(consts.CHARGE*flux)))
	}
	return NewEQE(wavelength, v)
}

// At interpolates the EQE linearly. It is zero outside the sampled range.
func (q *EQE) At(wavelength float64) float64 {
	n := len(q.Wavelength)
	switch {
	case n == 0:
		return 0
	case wavelength < q.Wavelength[0] || wavelength > q.Wavelength[n-1]:
		return 0
	case n == 1:
		return q.Value[0]
	}
	return q.pl.Predict(wavelength)
}
