package equation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBernoulli(t *testing.T) {
	assert.InDelta(t, 1.0, Bernoulli(0), 1e-15)

	// B(-x) = B(x) + x
	for _, x := range []float64{1e-7, 2e-3, 0.5, 3, 50, 800} {
		assert.InEpsilonf(t, Bernoulli(x)+x, Bernoulli(-x), 1e-10, "x=%g", x)
	}
	for _, x := range []float64{-40, -1, -2e-3, 2e-3, 0.5, 3, 50} {
		assert.InEpsilonf(t, x/math.Expm1(x), Bernoulli(x), 1e-12, "x=%g", x)
	}

	assert.GreaterOrEqual(t, Bernoulli(800), 0.0)
	assert.InEpsilon(t, 800.0, Bernoulli(-800), 1e-12)
}

func TestBernoulliRatioIsLogDerivative(t *testing.T) {
	for _, x := range []float64{-30, -2, -1.01e-3, -0.9e-3, 0, 0.9e-3, 1.01e-3, 1, 25} {
		const h = 1e-5
		fd := (logBernoulli(x+h) - logBernoulli(x-h)) / (2 * h)
		assert.InDeltaf(t, fd, bernoulliRatio(x), 1e-6, "x=%g", x)
	}
}
