package equation

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-pdd/internal/consts"
	"github.com/edp1096/toy-pdd/pkg/device"
	"github.com/edp1096/toy-pdd/pkg/material"
	"github.com/edp1096/toy-pdd/pkg/mesh"
)

// NumericalOverflowError reports a carrier density that left the range
// the exponential clamp can represent. It points at a material parameter
// problem and is not retried.
type NumericalOverflowError struct {
	Node    int
	X       float64
	Carrier string
	Eta     float64
}

func (e *NumericalOverflowError) Error() string {
	return fmt.Sprintf("numerical overflow: %s density at node %d (x=%.4g m, eta=%.4g)",
		e.Carrier, e.Node, e.X, e.Eta)
}

// GenerationProfile is the optical generation rate per node (m^-3 s^-1).
type GenerationProfile []float64

// Contact is the equilibrium state of one electrical contact.
type Contact struct {
	Psi     float64 // equilibrium potential (V)
	N, P    float64 // equilibrium densities (m^-3)
	Surface device.Surface
}

// Problem is the read-only description of one junction.
type Problem struct {
	Mesh       *mesh.Mesh
	Mat        *material.Snapshot
	Front      Contact
	Back       Contact
	PSideFront bool
}

// NewProblem fixes the contact potentials and densities at local charge
// neutrality.
func NewProblem(m *mesh.Mesh, mat *material.Snapshot, front, back device.Surface, pSideFront bool) *Problem {
	p := &Problem{Mesh: m, Mat: mat, PSideFront: pSideFront}
	p.Front = neutralContact(mat, 0, front)
	p.Back = neutralContact(mat, m.Len()-1, back)
	return p
}

// WithMaterial returns the same junction over another material snapshot.
func (p *Problem) WithMaterial(mat *material.Snapshot) *Problem {
	return NewProblem(p.Mesh, mat, p.Front.Surface, p.Back.Surface, p.PSideFront)
}

func neutralContact(mat *material.Snapshot, i int, s device.Surface) Contact {
	psi := mat.NeutralPotential(i)
	n, _, _ := mat.Electron(i, mat.EtaN(i, psi, 0))
	p, _, _ := mat.Hole(i, mat.EtaP(i, psi, 0))
	return Contact{Psi: psi, N: n, P: p, Surface: s}
}

// Conditions select the operating point of one assembly.
type Conditions struct {
	Voltage     float64
	Gen         GenerationProfile
	Equilibrium bool
}

// ContactVoltages returns the applied potentials of the front and back
// contact. Forward bias is applied to the p side.
func (p *Problem) ContactVoltages(v float64) (front, back float64) {
	if p.PSideFront {
		return v, 0
	}
	return 0, v
}

// Assembler evaluates the discretized Poisson and continuity equations.
// It keeps scratch space and must not be shared between goroutines.
type Assembler struct {
	p *Problem

	n, dn []float64 // density and d/d eta
	h, dh []float64
	clamp *NumericalOverflowError
}

func NewAssembler(p *Problem) *Assembler {
	size := p.Mesh.Len()
	return &Assembler{
		p:  p,
		n:  make([]float64, size),
		dn: make([]float64, size),
		h:  make([]float64, size),
		dh: make([]float64, size),
	}
}

func (a *Assembler) Problem() *Problem { return a.p }

// Clamped returns the first node of the last evaluation that needed the
// exponential clamp, or nil.
func (a *Assembler) Clamped() *NumericalOverflowError { return a.clamp }

func (a *Assembler) densities(x []float64) error {
	mat := a.p.Mat
	a.clamp = nil
	for i := range a.n {
		psi, fn, fp := x[Vars*i+Psi], x[Vars*i+PhiN], x[Vars*i+PhiP]

		eta := mat.EtaN(i, psi, fn)
		n, dn, c := mat.Electron(i, eta)
		if !finite(n) || !finite(dn) {
			return &NumericalOverflowError{Node: i, X: a.p.Mesh.X[i], Carrier: "electron", Eta: eta}
		}
		a.n[i], a.dn[i] = n, dn
		if c && a.clamp == nil {
			a.clamp = &NumericalOverflowError{Node: i, X: a.p.Mesh.X[i], Carrier: "electron", Eta: eta}
		}

		eta = mat.EtaP(i, psi, fp)
		h, dh, c := mat.Hole(i, eta)
		if !finite(h) || !finite(dh) {
			return &NumericalOverflowError{Node: i, X: a.p.Mesh.X[i], Carrier: "hole", Eta: eta}
		}
		a.h[i], a.dh[i] = h, dh
		if c && a.clamp == nil {
			a.clamp = &NumericalOverflowError{Node: i, X: a.p.Mesh.X[i], Carrier: "hole", Eta: eta}
		}
	}
	return nil
}

// Densities returns electron and hole densities of state x.
func (a *Assembler) Densities(x []float64) (n, p []float64, err error) {
	if err := a.densities(x); err != nil {
		return nil, nil, err
	}
	return append([]float64(nil), a.n...), append([]float64(nil), a.h...), nil
}

// Assemble fills sys with F(x) and dF/dx.
func (a *Assembler) Assemble(x []float64, cond Conditions, sys *System) error {
	if err := a.densities(x); err != nil {
		return err
	}
	sys.reset()

	a.poisson(x, sys)
	a.continuity(x, sys)
	if !cond.Equilibrium {
		a.generation(cond.Gen, sys)
	}
	a.boundaries(x, cond, sys)

	for _, f := range sys.F {
		if !finite(f) {
			return fmt.Errorf("non-finite residual at bias %g V", cond.Voltage)
		}
	}
	return nil
}

func (a *Assembler) poisson(x []float64, sys *System) {
	m, mat := a.p.Mesh, a.p.Mat
	vt := mat.Vt
	J := sys.J

	for i := 0; i+1 < m.Len(); i++ {
		c := harmonic(mat.Nodes[i].Eps, mat.Nodes[i+1].Eps) / m.Spacing(i)
		flux := c * (x[Vars*(i+1)+Psi] - x[Vars*i+Psi])
		sys.F[Vars*i+Psi] += flux
		sys.F[Vars*(i+1)+Psi] -= flux
		J.Add(i, Psi, i+1, Psi, c)
		J.Add(i, Psi, i, Psi, -c)
		J.Add(i+1, Psi, i+1, Psi, -c)
		J.Add(i+1, Psi, i, Psi, c)
	}

	for i := range a.n {
		nd := &mat.Nodes[i]
		qh := consts.CHARGE * m.BoxWidth(i)
		n, p := a.n[i], a.h[i]
		ft, dfdn, dfdp := trapOccupancy(nd, n, p)

		sys.F[Vars*i+Psi] += qh * (p - n + nd.Nd - nd.Na - nd.Nt*ft)

		// d/dpsi: n rises, p falls
		dnPsi, dnPhi := a.dn[i]/vt, -a.dn[i]/vt
		dpPsi, dpPhi := -a.dh[i]/vt, a.dh[i]/vt
		drdn := -1 - nd.Nt*dfdn
		drdp := 1 - nd.Nt*dfdp
		J.Add(i, Psi, i, Psi, qh*(drdn*dnPsi+drdp*dpPsi))
		J.Add(i, Psi, i, PhiN, qh*drdn*dnPhi)
		J.Add(i, Psi, i, PhiP, qh*drdp*dpPhi)
	}
}

func (a *Assembler) continuity(x []float64, sys *System) {
	m, mat := a.p.Mesh, a.p.Mat
	vt := mat.Vt
	J := sys.J

	for i := 0; i+1 < m.Len(); i++ {
		l, r := &mat.Nodes[i], &mat.Nodes[i+1]
		cn := consts.CHARGE * harmonic(l.MuN, r.MuN) * vt / m.Spacing(i)
		cp := consts.CHARGE * harmonic(l.MuP, r.MuP) * vt / m.Spacing(i)

		jn, dn := electronFlux(cn, vt, a.n[i], a.n[i+1], a.dn[i], a.dn[i+1], x[Vars*i+PhiN], x[Vars*(i+1)+PhiN])
		sys.F[Vars*i+PhiN] += jn
		sys.F[Vars*(i+1)+PhiN] -= jn
		for _, row := range []struct {
			node int
			sign float64
		}{{i, 1}, {i + 1, -1}} {
			J.Add(row.node, PhiN, i, Psi, row.sign*dn[0])
			J.Add(row.node, PhiN, i, PhiN, row.sign*dn[1])
			J.Add(row.node, PhiN, i+1, Psi, row.sign*dn[2])
			J.Add(row.node, PhiN, i+1, PhiN, row.sign*dn[3])
		}

		jp, dp := holeFlux(cp, vt, a.h[i], a.h[i+1], a.dh[i], a.dh[i+1], x[Vars*i+PhiP], x[Vars*(i+1)+PhiP])
		sys.F[Vars*i+PhiP] += jp
		sys.F[Vars*(i+1)+PhiP] -= jp
		for _, row := range []struct {
			node int
			sign float64
		}{{i, 1}, {i + 1, -1}} {
			J.Add(row.node, PhiP, i, Psi, row.sign*dp[0])
			J.Add(row.node, PhiP, i, PhiP, row.sign*dp[1])
			J.Add(row.node, PhiP, i+1, Psi, row.sign*dp[2])
			J.Add(row.node, PhiP, i+1, PhiP, row.sign*dp[3])
		}
	}

	for i := range a.n {
		nd := &mat.Nodes[i]
		qh := consts.CHARGE * m.BoxWidth(i)
		rates, drdn, drdp := recombination(nd, a.n[i], a.h[i])
		u := rates.Total()

		dnPsi, dnPhi := a.dn[i]/vt, -a.dn[i]/vt
		dpPsi, dpPhi := -a.dh[i]/vt, a.dh[i]/vt
		duPsi := drdn*dnPsi + drdp*dpPsi
		duPhiN := drdn * dnPhi
		duPhiP := drdp * dpPhi

		sys.F[Vars*i+PhiN] -= qh * u
		J.Add(i, PhiN, i, Psi, -qh*duPsi)
		J.Add(i, PhiN, i, PhiN, -qh*duPhiN)
		J.Add(i, PhiN, i, PhiP, -qh*duPhiP)

		sys.F[Vars*i+PhiP] += qh * u
		J.Add(i, PhiP, i, Psi, qh*duPsi)
		J.Add(i, PhiP, i, PhiN, qh*duPhiN)
		J.Add(i, PhiP, i, PhiP, qh*duPhiP)
	}
}

func (a *Assembler) generation(gen GenerationProfile, sys *System) {
	if gen == nil {
		return
	}
	m := a.p.Mesh
	for i := range a.n {
		if i >= len(gen) {
			break
		}
		qhg := consts.CHARGE * m.BoxWidth(i) * gen[i]
		sys.F[Vars*i+PhiN] += qhg
		sys.F[Vars*i+PhiP] -= qhg
	}
}

func (a *Assembler) boundaries(x []float64, cond Conditions, sys *System) {
	last := a.p.Mesh.Len() - 1
	vt := a.p.Mat.Vt
	J := sys.J

	vf, vb := a.p.ContactVoltages(cond.Voltage)
	if cond.Equilibrium {
		vf, vb = 0, 0
	}

	for _, c := range []struct {
		node int
		v    float64
		eq   *Contact
	}{{0, vf, &a.p.Front}, {last, vb, &a.p.Back}} {
		i := c.node

		J.pin(i, Psi)
		sys.F[Vars*i+Psi] = x[Vars*i+Psi] - (c.eq.Psi + c.v)

		switch {
		case cond.Equilibrium || c.eq.Surface.OhmicN():
			J.pin(i, PhiN)
			sys.F[Vars*i+PhiN] = x[Vars*i+PhiN] - c.v
		default:
			// surface recombination q S (n - n_eq) is a loss at either contact
			s := consts.CHARGE * c.eq.Surface.Sn
			sys.F[Vars*i+PhiN] -= s * (a.n[i] - c.eq.N)
			J.Add(i, PhiN, i, Psi, -s*a.dn[i]/vt)
			J.Add(i, PhiN, i, PhiN, s*a.dn[i]/vt)
		}

		switch {
		case cond.Equilibrium || c.eq.Surface.OhmicP():
			J.pin(i, PhiP)
			sys.F[Vars*i+PhiP] = x[Vars*i+PhiP] - c.v
		default:
			s := consts.CHARGE * c.eq.Surface.Sp
			sys.F[Vars*i+PhiP] += s * (a.h[i] - c.eq.P)
			J.Add(i, PhiP, i, Psi, -s*a.dh[i]/vt)
			J.Add(i, PhiP, i, PhiP, s*a.dh[i]/vt)
		}
	}

	if cond.Equilibrium {
		for i := 1; i < last; i++ {
			J.pin(i, PhiN)
			sys.F[Vars*i+PhiN] = x[Vars*i+PhiN]
			J.pin(i, PhiP)
			sys.F[Vars*i+PhiP] = x[Vars*i+PhiP]
		}
	}
}

// FaceCurrents returns the electron and hole current densities (A/m^2,
// along +x) at every face of state x.
func (a *Assembler) FaceCurrents(x []float64) (jn, jp []float64, err error) {
	if err := a.densities(x); err != nil {
		return nil, nil, err
	}
	m, mat := a.p.Mesh, a.p.Mat
	vt := mat.Vt
	jn = make([]float64, m.Len()-1)
	jp = make([]float64, m.Len()-1)
	for i := range jn {
		l, r := &mat.Nodes[i], &mat.Nodes[i+1]
		cn := consts.CHARGE * harmonic(l.MuN, r.MuN) * vt / m.Spacing(i)
		cp := consts.CHARGE * harmonic(l.MuP, r.MuP) * vt / m.Spacing(i)
		jn[i], _ = electronFlux(cn, vt, a.n[i], a.n[i+1], a.dn[i], a.dn[i+1], x[Vars*i+PhiN], x[Vars*(i+1)+PhiN])
		jp[i], _ = holeFlux(cp, vt, a.h[i], a.h[i+1], a.dh[i], a.dh[i+1], x[Vars*i+PhiP], x[Vars*(i+1)+PhiP])
	}
	return jn, jp, nil
}

// TerminalCurrent returns the device current density in the diode
// convention: positive for forward dark current, negative under light.
//
// Face currents are averaged with weights inversely proportional to the
// face conductance. Majority carrier faces carry the current on a nearly
// flat quasi-Fermi level and are the least accurate.
func (a *Assembler) TerminalCurrent(x []float64) (float64, error) {
	jn, jp, err := a.FaceCurrents(x)
	if err != nil {
		return 0, err
	}
	m, mat := a.p.Mesh, a.p.Mat
	total, weights := 0.0, 0.0
	for i := range jn {
		l, r := &mat.Nodes[i], &mat.Nodes[i+1]
		g := (harmonic(l.MuN, r.MuN)*math.Max(a.n[i], a.n[i+1]) +
			harmonic(l.MuP, r.MuP)*math.Max(a.h[i], a.h[i+1])) / m.Spacing(i)
		w := 1 / g
		total += w * (jn[i] + jp[i])
		weights += w
	}
	total /= weights
	if a.p.PSideFront {
		return total, nil
	}
	return -total, nil
}

// Recombination integrates the recombination rates of state x over the
// device (m^-2 s^-1).
func (a *Assembler) Recombination(x []float64) (Rates, error) {
	if err := a.densities(x); err != nil {
		return Rates{}, err
	}
	var sum Rates
	for i := range a.n {
		r, _, _ := recombination(&a.p.Mat.Nodes[i], a.n[i], a.h[i])
		h := a.p.Mesh.BoxWidth(i)
		sum.SRH += r.SRH * h
		sum.Rad += r.Rad * h
		sum.Auger += r.Auger * h
	}
	return sum, nil
}

// electronFlux is the Scharfetter-Gummel electron current between nodes 0
// and 1 with derivatives with respect to (psi0, phi0, psi1, phi1).
// Degeneracy enters through g = dln n/deta.
func electronFlux(c, vt, n0, n1, dn0, dn1, phi0, phi1 float64) (float64, [4]float64) {
	ea := (phi1 - phi0) / vt
	e := -math.Expm1(ea)
	delta := math.Log(n1) - math.Log(n0) + ea
	s := math.Exp(math.Log(n1) + logBernoulli(delta))
	r := bernoulliRatio(delta)
	g0, g1 := dn0/n0, dn1/n1

	j := c * s * e
	d0 := -c * s * e * r * g0
	d1 := c * s * e * g1 * (1 + r)
	da := c * s * (r*e - math.Exp(ea))

	return j, [4]float64{
		d0 / vt,
		(-d0 - da) / vt,
		d1 / vt,
		(-d1 + da) / vt,
	}
}

// holeFlux mirrors electronFlux for holes.
func holeFlux(c, vt, p0, p1, dp0, dp1, phi0, phi1 float64) (float64, [4]float64) {
	ea := (phi1 - phi0) / vt
	e := -math.Expm1(ea)
	delta := ea - math.Log(p1) + math.Log(p0)
	s := math.Exp(math.Log(p0) + logBernoulli(delta))
	r := bernoulliRatio(delta)
	g0, g1 := dp0/p0, dp1/p1

	j := c * s * e
	d0 := c * s * e * g0 * (1 + r)
	d1 := -c * s * e * r * g1
	da := c * s * (r*e - math.Exp(ea))

	return j, [4]float64{
		-d0 / vt,
		(d0 - da) / vt,
		-d1 / vt,
		(d1 + da) / vt,
	}
}

func harmonic(a, b float64) float64 {
	if a == b {
		return a
	}
	return 2 * a * b / (a + b)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
