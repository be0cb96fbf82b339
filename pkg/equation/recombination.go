package equation

import "github.com/edp1096/toy-pdd/pkg/material"

// Rates holds the net recombination rates of one node (m^-3 s^-1).
type Rates struct {
	SRH, Rad, Auger float64
}

func (r Rates) Total() float64 { return r.SRH + r.Rad + r.Auger }

// recombination returns the net rate and its partial derivatives with
// respect to n and p.
func recombination(nd *material.Node, n, p float64) (r Rates, drdn, drdp float64) {
	excess := n*p - nd.Ni2

	if d := nd.TauP*(n+nd.N1) + nd.TauN*(p+nd.P1); d > 0 {
		r.SRH = excess / d
		drdn += (p*d - excess*nd.TauP) / (d * d)
		drdp += (n*d - excess*nd.TauN) / (d * d)
	}

	if nd.Brad > 0 {
		r.Rad = nd.Brad * excess
		drdn += nd.Brad * p
		drdp += nd.Brad * n
	}

	if nd.Cn > 0 || nd.Cp > 0 {
		c := nd.Cn*n + nd.Cp*p
		r.Auger = c * excess
		drdn += nd.Cn*excess + c*p
		drdp += nd.Cp*excess + c*n
	}
	return r, drdn, drdp
}

// trapOccupancy is the electron occupancy of the SRH trap level and its
// derivatives with respect to n and p.
func trapOccupancy(nd *material.Node, n, p float64) (f, dfdn, dfdp float64) {
	d := nd.TauP*(n+nd.N1) + nd.TauN*(p+nd.P1)
	if nd.Nt == 0 || d <= 0 {
		return 0, 0, 0
	}
	num := nd.TauP*n + nd.TauN*nd.P1
	f = num / d
	dfdn = (nd.TauP*d - num*nd.TauP) / (d * d)
	dfdp = -num * nd.TauN / (d * d)
	return f, dfdn, dfdp
}
