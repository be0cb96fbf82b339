package material

import (
	"fmt"
	"math"
	"strings"
)

// Statistics selects the carrier occupancy function F(eta) with
// n = Nc*F(eta_n), p = Nv*F(eta_p).
type Statistics int

const (
	Boltzmann Statistics = iota
	FermiDirac
)

const (
	// ExpClamp is the reduced Fermi level above which the Boltzmann
	// exponential is continued linearly.
	ExpClamp = 40.0
	// ExpFloor keeps densities strictly positive.
	ExpFloor = -700.0

	blakemore = 0.27
)

func (s Statistics) String() string {
	if s == FermiDirac {
		return "fermi-dirac"
	}
	return "boltzmann"
}

func ParseStatistics(s string) (Statistics, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "boltzmann":
		return Boltzmann, nil
	case "fermi-dirac", "fermidirac", "fd":
		return FermiDirac, nil
	}
	return Boltzmann, fmt.Errorf("unknown carrier statistics %q", s)
}

// Occupancy returns F(eta), dF/deta, and whether the exponential clamp was
// used.
func (s Statistics) Occupancy(eta float64) (f, df float64, clamped bool) {
	if eta < ExpFloor {
		f = math.Exp(ExpFloor)
		return f, f, false
	}

	if s == FermiDirac {
		// Blakemore approximation of the Fermi-Dirac integral of order 1/2
		if eta >= 0 {
			e := math.Exp(-eta)
			d := e + blakemore
			return 1 / d, e / (d * d), false
		}
		e := math.Exp(eta)
		d := 1 + blakemore*e
		return e / d, e / (d * d), false
	}

	if eta > ExpClamp {
		e := math.Exp(ExpClamp)
		return e * (1 + eta - ExpClamp), e, true
	}
	f = math.Exp(eta)
	return f, f, false
}
