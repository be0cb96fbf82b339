package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/edp1096/toy-pdd/pkg/equation"
	"github.com/edp1096/toy-pdd/pkg/solver"
)

// IVSweep solves one junction over a list of biases, optionally under
// illumination.
type IVSweep struct {
	BaseAnalysis
	op       *OperatingPoint
	voltages []float64
	gen      equation.GenerationProfile
}

func NewIVSweep(p *equation.Problem, opts Options, voltages []float64, gen equation.GenerationProfile) *IVSweep {
	return &IVSweep{
		BaseAnalysis: *NewBaseAnalysis(p, opts),
		op:           NewOP(p, opts),
		voltages:     append([]float64(nil), voltages...),
		gen:          gen,
	}
}

// Execute visits the biases outward from 0 V, forward biases ascending and
// reverse biases descending, so that each point starts from its nearest
// solved neighbour. Points that do not converge after bisecting the bias
// step are recorded as gaps. A NumericalOverflowError or a cancelled
// context stops the sweep and is returned with the points solved so far.
func (dc *IVSweep) Execute(ctx context.Context) (*SweepResult, error) {
	if len(dc.voltages) == 0 {
		return nil, fmt.Errorf("no bias points")
	}
	for _, v := range dc.voltages {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid bias %g", v)
		}
	}

	eq, err := dc.op.Execute()
	if err != nil {
		return nil, fmt.Errorf("operating point analysis error: %w", err)
	}

	s, err := dc.newSolver(dc.Problem)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	// Without a short circuit solution each branch starts from the dark
	// equilibrium state; a requested 0 V point is retried there.
	origin, err := dc.op.Illuminate(s, eq, 0, dc.gen)
	if err != nil {
		if overflow(err) {
			return nil, fmt.Errorf("short circuit point: %w", err)
		}
		dc.log.Warn("short circuit point failed", zap.Error(err))
		origin = eq
	}

	points := make([]*Point, len(dc.voltages))
	failed := make([]error, len(dc.voltages))

	var sweepErr error
	for _, branch := range dc.branches() {
		from := origin
		for _, idx := range branch {
			if err := ctx.Err(); err != nil {
				sweepErr = err
				break
			}
			v := dc.voltages[idx]
			st, err := dc.step(s, from, v)
			if err != nil {
				if overflow(err) {
					sweepErr = err
					break
				}
				failed[idx] = err
				dc.log.Warn("bias point failed", zap.Float64("bias", v), zap.Error(err))
				continue
			}
			points[idx] = &Point{X: v, State: st, Current: st.Current}
			from = st
		}
		if sweepErr != nil {
			break
		}
	}

	res := &SweepResult{}
	for i, v := range dc.voltages {
		switch {
		case points[i] != nil:
			res.Points = append(res.Points, *points[i])
		case failed[i] != nil:
			res.Failed = append(res.Failed, FailedPoint{X: v, Err: failed[i]})
		}
	}
	return res, sweepErr
}

// branches returns request indices of the forward branch in ascending and
// the reverse branch in descending bias order.
func (dc *IVSweep) branches() [][]int {
	var fwd, rev []int
	for i, v := range dc.voltages {
		if v >= 0 {
			fwd = append(fwd, i)
		} else {
			rev = append(rev, i)
		}
	}
	sort.SliceStable(fwd, func(a, b int) bool { return dc.voltages[fwd[a]] < dc.voltages[fwd[b]] })
	sort.SliceStable(rev, func(a, b int) bool { return dc.voltages[rev[a]] > dc.voltages[rev[b]] })
	return [][]int{fwd, rev}
}

// step moves from a converged state to bias target. On divergence the bias
// step is halved, at most MaxRetries times in total.
func (dc *IVSweep) step(s *solver.Solver, from *solver.DeviceState, target float64) (*solver.DeviceState, error) {
	cur := from
	h := target - cur.Bias
	retries := 0
	for {
		v := cur.Bias + h
		if (h > 0 && v > target) || (h < 0 && v < target) || h == 0 {
			v = target
		}
		st, err := s.Solve(cur, equation.Conditions{Voltage: v, Gen: dc.gen})
		if err == nil {
			if v == target {
				return st, nil
			}
			cur = st
			continue
		}
		if overflow(err) || retries >= dc.opts.MaxRetries {
			return nil, err
		}
		retries++
		h /= 2
		dc.log.Debug("halving bias step",
			zap.Float64("bias", v),
			zap.Float64("step", h),
			zap.Int("retry", retries),
		)
	}
}
