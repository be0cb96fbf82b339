package analysis

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/interp"
)

// Curve is a sampled I-V characteristic, currents increasing with bias.
type Curve struct {
	V []float64
	J []float64
}

// CurveOf extracts the converged points of an I-V sweep.
func CurveOf(r *SweepResult) Curve {
	return Curve{V: r.X(), J: r.Currents()}
}

// inverse is V(J) of one junction, found by bisection on the monotone
// interpolant J(V).
type inverse struct {
	vmin, vmax float64
	jmin, jmax float64
	fwd        interp.Predictor
}

func newInverse(c Curve) (*inverse, error) {
	if len(c.V) != len(c.J) {
		return nil, fmt.Errorf("curve has %d voltages and %d currents", len(c.V), len(c.J))
	}
	idx := make([]int, len(c.V))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return c.V[idx[a]] < c.V[idx[b]] })

	// Keep a strictly increasing subsequence in both V and J.
	var vs, js []float64
	for _, i := range idx {
		if n := len(vs); n > 0 && (c.V[i] <= vs[n-1] || c.J[i] <= js[n-1]) {
			continue
		}
		vs = append(vs, c.V[i])
		js = append(js, c.J[i])
	}
	if len(vs) < 2 {
		return nil, fmt.Errorf("curve needs at least two monotonic points, got %d", len(vs))
	}

	fwd, err := fit(vs, js)
	if err != nil {
		return nil, err
	}
	return &inverse{
		vmin: vs[0], vmax: vs[len(vs)-1],
		jmin: js[0], jmax: js[len(js)-1],
		fwd: fwd,
	}, nil
}

func (inv *inverse) voltage(i float64) float64 {
	a, b := inv.vmin, inv.vmax
	for range 100 {
		mid := (a + b) / 2
		if mid <= a || mid >= b {
			break
		}
		if inv.fwd.Predict(mid) < i {
			a = mid
		} else {
			b = mid
		}
	}
	return (a + b) / 2
}

// fit uses monotone cubic interpolation, linear for two points.
func fit(xs, ys []float64) (interp.Predictor, error) {
	if len(xs) < 3 {
		var pl interp.PiecewiseLinear
		return &pl, pl.Fit(xs, ys)
	}
	var fb interp.FritschButland
	return &fb, fb.Fit(xs, ys)
}

// SeriesResult is the I-V curve of series connected junctions. Junction[k]
// holds the voltage of every junction at point k.
type SeriesResult struct {
	V        []float64
	J        []float64
	Junction [][]float64
	Failed   []FailedPoint
}

func (r *SeriesResult) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, f.Err)
	}
	return err
}

// voltageTol bounds the stack voltage residual of a coupled point (V).
const voltageTol = 1e-9

// Series finds, for each stack voltage, the common current I with
// sum_j V_j(I) + I*rs = V. The search is a bisection on I over the current
// range shared by all junctions. It ends when the bracket is below tol
// (A/m^2) and the voltage residual below voltageTol. Voltages outside the
// reachable range are recorded as failed.
func Series(curves []Curve, voltages []float64, rs, tol float64) (*SeriesResult, error) {
	if len(curves) == 0 {
		return nil, fmt.Errorf("no junctions")
	}
	if tol <= 0 {
		return nil, fmt.Errorf("coupling tolerance must be positive, got %g", tol)
	}
	invs := make([]*inverse, len(curves))
	lo, hi := math.Inf(-1), math.Inf(1)
	for k, c := range curves {
		inv, err := newInverse(c)
		if err != nil {
			return nil, fmt.Errorf("junction %d: %w", k, err)
		}
		invs[k] = inv
		lo = math.Max(lo, inv.jmin)
		hi = math.Min(hi, inv.jmax)
	}
	if lo >= hi {
		return nil, fmt.Errorf("junction currents do not overlap (%g >= %g)", lo, hi)
	}

	stack := func(i float64, vj []float64) float64 {
		v := i * rs
		for k, inv := range invs {
			vj[k] = inv.voltage(i)
			v += vj[k]
		}
		return v
	}

	res := &SeriesResult{}
	vj := make([]float64, len(invs))
	vmin, vmax := stack(lo, vj), stack(hi, vj)
	for _, v := range voltages {
		if v < vmin || v > vmax {
			res.Failed = append(res.Failed, FailedPoint{X: v, Err: fmt.Errorf(
				"stack voltage %g V outside the junctions' range [%g, %g]", v, vmin, vmax)})
			continue
		}
		a, b := lo, hi
		i := (a + b) / 2
		for range 200 {
			i = (a + b) / 2
			r := stack(i, vj) - v
			if (b-a <= tol && math.Abs(r) <= voltageTol) || i <= a || i >= b {
				break
			}
			if r < 0 {
				a = i
			} else {
				b = i
			}
		}
		stack(i, vj)

		if err := mismatch(invs, vj, i, tol); err != nil {
			res.Failed = append(res.Failed, FailedPoint{X: v, Err: err})
			continue
		}
		res.V = append(res.V, v)
		res.J = append(res.J, i)
		res.Junction = append(res.Junction, append([]float64(nil), vj...))
	}
	return res, nil
}

// mismatch checks that every junction carries the common current at its
// own voltage.
func mismatch(invs []*inverse, vj []float64, i, tol float64) error {
	for k, inv := range invs {
		if d := math.Abs(inv.fwd.Predict(vj[k]) - i); d > tol*math.Max(1, math.Abs(i)) {
			return fmt.Errorf("junction %d current mismatch %g A/m^2 at %g A/m^2", k, d, i)
		}
	}
	return nil
}
