package equation

import "math"

const seriesCut = 1e-3

// logBernoulli returns ln B(x) with B(x) = x/(exp(x)-1).
func logBernoulli(x float64) float64 {
	switch {
	case math.Abs(x) < seriesCut:
		x2 := x * x
		return -x/2 - x2/24 + x2*x2/2880
	case x > 0:
		return math.Log(x) - x - math.Log1p(-math.Exp(-x))
	}
	return math.Log(-x) - math.Log1p(-math.Exp(x))
}

// Bernoulli returns B(x) = x/(exp(x)-1).
func Bernoulli(x float64) float64 {
	return math.Exp(logBernoulli(x))
}

// bernoulliRatio returns B'(x)/B(x) = (1 - x - B(x))/x.
func bernoulliRatio(x float64) float64 {
	if math.Abs(x) < seriesCut {
		return -0.5 - x/12 + x*x*x/720
	}
	return (1 - x - Bernoulli(x)) / x
}
