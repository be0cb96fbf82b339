package material

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-pdd/internal/consts"
	"github.com/edp1096/toy-pdd/pkg/device"
	"github.com/edp1096/toy-pdd/pkg/mesh"
)

// Node is the material snapshot at one mesh node. Energies in eV,
// densities in m^-3, Eps absolute (F/m).
type Node struct {
	Eg, Chi, Eps float64
	Nc, Nv       float64
	MuN, MuP     float64
	Na, Nd       float64

	TauN, TauP float64
	N1, P1     float64 // SRH trap-level densities
	Ni2        float64
	Nt         float64
	Brad       float64
	Cn, Cp     float64
}

// Sampler evaluates material parameters at a position inside a layer.
// Implementations must be safe for concurrent use.
type Sampler interface {
	Sample(layer *device.Layer, local, temp float64) Node
}

// LayerSampler returns uniform per-layer values with the layer's doping
// profile.
type LayerSampler struct{}

func (LayerSampler) Sample(layer *device.Layer, local, temp float64) Node {
	m := layer.Material
	vt := consts.ThermalVoltage(temp)
	na, nd := layer.Doping(local)
	ni := m.Ni(temp)

	return Node{
		Eg:   m.Eg,
		Chi:  m.Chi,
		Eps:  m.EpsR * consts.EPSILON0,
		Nc:   m.Nc,
		Nv:   m.Nv,
		MuN:  m.MuN,
		MuP:  m.MuP,
		Na:   na,
		Nd:   nd,
		TauN: m.TauN,
		TauP: m.TauP,
		N1:   ni * math.Exp(m.Et/vt),
		P1:   ni * math.Exp(-m.Et/vt),
		Ni2:  ni * ni,
		Nt:   m.Nt,
		Brad: m.Brad,
		Cn:   m.Cn,
		Cp:   m.Cp,
	}
}

// Snapshot is the read-only material table of one mesh. It is shared
// between concurrent solves.
type Snapshot struct {
	T     float64
	Vt    float64
	Stats Statistics
	Nodes []Node
}

func Snap(m *mesh.Mesh, layers []*device.Layer, temp float64, stats Statistics, s Sampler) (*Snapshot, error) {
	if s == nil {
		s = LayerSampler{}
	}
	snap := &Snapshot{
		T:     temp,
		Vt:    consts.ThermalVoltage(temp),
		Stats: stats,
		Nodes: make([]Node, m.Len()),
	}
	for i, x := range m.X {
		k := m.Layer[i]
		if k < 0 || k >= len(layers) {
			return nil, fmt.Errorf("node %d: layer index %d out of range", i, k)
		}
		snap.Nodes[i] = s.Sample(layers[k], x-m.Interfaces[k], temp)
		if nd := snap.Nodes[i]; nd.Ni2 <= 0 || math.IsInf(nd.Ni2, 0) || math.IsNaN(nd.Ni2) {
			return nil, fmt.Errorf("node %d: intrinsic density out of range (ni^2=%g)", i, nd.Ni2)
		}
	}
	return snap, nil
}

// Electron returns n and dn/deta for a reduced Fermi level.
func (s *Snapshot) Electron(i int, eta float64) (n, dn float64, clamped bool) {
	f, df, c := s.Stats.Occupancy(eta)
	nc := s.Nodes[i].Nc
	return nc * f, nc * df, c
}

func (s *Snapshot) Hole(i int, eta float64) (p, dp float64, clamped bool) {
	f, df, c := s.Stats.Occupancy(eta)
	nv := s.Nodes[i].Nv
	return nv * f, nv * df, c
}

// EtaN is the reduced electron Fermi level (psi + chi - phiN)/Vt.
func (s *Snapshot) EtaN(i int, psi, phiN float64) float64 {
	return (psi + s.Nodes[i].Chi - phiN) / s.Vt
}

// EtaP is the reduced hole Fermi level (phiP - psi - chi - Eg)/Vt.
func (s *Snapshot) EtaP(i int, psi, phiP float64) float64 {
	nd := s.Nodes[i]
	return (phiP - psi - nd.Chi - nd.Eg) / s.Vt
}

// NeutralPotential returns the equilibrium potential that makes node i
// charge neutral with both quasi-Fermi potentials at zero.
func (s *Snapshot) NeutralPotential(i int) float64 {
	nd := s.Nodes[i]
	net := nd.Nd - nd.Na
	charge := func(psi float64) float64 {
		n, _, _ := s.Electron(i, s.EtaN(i, psi, 0))
		p, _, _ := s.Hole(i, s.EtaP(i, psi, 0))
		return p - n + net
	}

	// charge is decreasing in psi
	lo := -nd.Chi - nd.Eg - 2
	hi := -nd.Chi + 2
	for k := 0; k < 50 && charge(lo) < 0; k++ {
		lo -= 1
	}
	for k := 0; k < 50 && charge(hi) > 0; k++ {
		hi += 1
	}
	for range 200 {
		mid := (lo + hi) / 2
		if charge(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-14 {
			break
		}
	}
	return (lo + hi) / 2
}

// ScaleDoping returns a copy with donor, acceptor and trap densities
// multiplied by f.
func (s *Snapshot) ScaleDoping(f float64) *Snapshot {
	c := *s
	c.Nodes = append([]Node(nil), s.Nodes...)
	for i := range c.Nodes {
		c.Nodes[i].Na *= f
		c.Nodes[i].Nd *= f
		c.Nodes[i].Nt *= f
	}
	return &c
}
