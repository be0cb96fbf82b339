package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// InsufficientDataError is returned when a crossing or extremum is not
// bracketed by the sampled points.
type InsufficientDataError struct {
	Quantity string
	Reason   string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %s", e.Quantity, e.Reason)
}

// Curve is a sampled I-V curve in the diode convention: positive current
// for forward dark current, negative under illumination. Points are kept
// sorted by voltage.
type Curve struct {
	V []float64
	J []float64 // A/m^2
}

func NewCurve(v, j []float64) (*Curve, error) {
	if len(v) != len(j) {
		return nil, fmt.Errorf("curve has %d voltages and %d currents", len(v), len(j))
	}
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })
	c := &Curve{V: make([]float64, 0, len(v)), J: make([]float64, 0, len(v))}
	for _, i := range idx {
		if math.IsNaN(v[i]) || math.IsNaN(j[i]) {
			continue
		}
		if n := len(c.V); n > 0 && v[i] == c.V[n-1] {
			continue
		}
		c.V = append(c.V, v[i])
		c.J = append(c.J, j[i])
	}
	return c, nil
}

// At interpolates the current linearly.
func (c *Curve) At(v float64) (float64, error) {
	if len(c.V) < 2 {
		return 0, &InsufficientDataError{Quantity: "current", Reason: fmt.Sprintf("%d points", len(c.V))}
	}
	if v < c.V[0] || v > c.V[len(c.V)-1] {
		return 0, &InsufficientDataError{Quantity: "current", Reason: fmt.Sprintf(
			"%g V outside [%g, %g]", v, c.V[0], c.V[len(c.V)-1])}
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(c.V, c.J); err != nil {
		return 0, err
	}
	return pl.Predict(v), nil
}

// Isc is the short circuit current density, reported positive for a
// generating cell.
func (c *Curve) Isc() (float64, error) {
	j, err := c.At(0)
	if err != nil {
		return 0, &InsufficientDataError{Quantity: "Isc", Reason: "0 V not sampled"}
	}
	return -j, nil
}

// Voc is the first voltage at which the current changes sign from negative
// to positive, interpolated linearly between the bracketing points.
func (c *Curve) Voc() (float64, error) {
	for i := 1; i < len(c.V); i++ {
		j0, j1 := c.J[i-1], c.J[i]
		if j0 <= 0 && j1 > 0 {
			return c.V[i-1] + (c.V[i]-c.V[i-1])*(-j0)/(j1-j0), nil
		}
	}
	return 0, &InsufficientDataError{Quantity: "Voc", Reason: "current does not change sign"}
}

// MPP is the maximum power point of the generating quadrant.
type MPP struct {
	Vmpp float64 // V
	Impp float64 // A/m^2, positive
	Pmpp float64 // W/m^2
}

// MPP maximises -J*V over the sampled curve and refines the maximum by
// golden section search on the monotone cubic interpolant.
func (c *Curve) MPP() (MPP, error) {
	if len(c.V) < 3 {
		return MPP{}, &InsufficientDataError{Quantity: "MPP", Reason: fmt.Sprintf("%d points", len(c.V))}
	}
	power := make([]float64, len(c.V))
	for i := range c.V {
		power[i] = -c.J[i] * c.V[i]
	}
	k := floats.MaxIdx(power)
	if power[k] <= 0 {
		return MPP{}, &InsufficientDataError{Quantity: "MPP", Reason: "no generating point"}
	}
	if k == 0 || k == len(c.V)-1 {
		return MPP{}, &InsufficientDataError{Quantity: "MPP", Reason: "maximum power at the edge of the sampled range"}
	}

	var fb interp.FritschButland
	if err := fb.Fit(c.V, c.J); err != nil {
		return MPP{}, fmt.Errorf("MPP: %w", err)
	}
	p := func(v float64) float64 { return -fb.Predict(v) * v }
	v := goldenSection(p, c.V[k-1], c.V[k+1], 1e-9)
	if p(v) < power[k] {
		v = c.V[k]
	}
	j := fb.Predict(v)
	return MPP{Vmpp: v, Impp: -j, Pmpp: -j * v}, nil
}

// goldenSection maximises f on [a, b].
func goldenSection(f func(float64) float64, a, b, tol float64) float64 {
	const invPhi = 0.6180339887498949
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc, fd := f(c), f(d)
	for b-a > tol {
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - invPhi*(b-a)
			fc = f(c)
		} else {
			a, c, fc = c, d, fd
			d = a + invPhi*(b-a)
			fd = f(d)
		}
	}
	return (a + b) / 2
}

// Summary holds the figures of merit of an illuminated cell.
type Summary struct {
	Isc  float64 // A/m^2
	Voc  float64 // V
	FF   float64
	Pmpp float64 // W/m^2
	Vmpp float64
	Impp float64
	Eta  float64
}

// Summarize evaluates all figures of merit. incident is the incident power
// density (W/m^2).
func Summarize(c *Curve, incident float64) (Summary, error) {
	isc, err := c.Isc()
	if err != nil {
		return Summary{}, err
	}
	voc, err := c.Voc()
	if err != nil {
		return Summary{}, err
	}
	mpp, err := c.MPP()
	if err != nil {
		return Summary{}, err
	}
	if incident <= 0 {
		return Summary{}, &InsufficientDataError{Quantity: "Eta", Reason: "no incident power"}
	}
	if isc <= 0 || voc <= 0 {
		return Summary{}, &InsufficientDataError{Quantity: "FF", Reason: "cell does not generate"}
	}
	return Summary{
		Isc:  isc,
		Voc:  voc,
		FF:   mpp.Pmpp / (isc * voc),
		Pmpp: mpp.Pmpp,
		Vmpp: mpp.Vmpp,
		Impp: mpp.Impp,
		Eta:  mpp.Pmpp / incident,
	}, nil
}
