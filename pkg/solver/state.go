package solver

import (
	"fmt"

	"github.com/edp1096/toy-pdd/pkg/equation"
)

// DeviceState is the solution of one operating point. X interleaves
// psi, phiN and phiP per node, in volts.
type DeviceState struct {
	X       []float64
	Bias    float64 // V
	Current float64 // A/m^2, positive for forward dark current

	Iterations int
	Residual   float64
	Update     float64
}

// NewDeviceState builds a state from per-node values.
func NewDeviceState(psi, phiN, phiP []float64) (*DeviceState, error) {
	if len(psi) != len(phiN) || len(psi) != len(phiP) {
		return nil, fmt.Errorf("state vectors differ in length (%d, %d, %d)", len(psi), len(phiN), len(phiP))
	}
	s := &DeviceState{X: make([]float64, equation.Vars*len(psi))}
	for i := range psi {
		s.X[equation.Vars*i+equation.Psi] = psi[i]
		s.X[equation.Vars*i+equation.PhiN] = phiN[i]
		s.X[equation.Vars*i+equation.PhiP] = phiP[i]
	}
	return s, nil
}

func (s *DeviceState) Len() int { return len(s.X) / equation.Vars }

func (s *DeviceState) Psi(i int) float64  { return s.X[equation.Vars*i+equation.Psi] }
func (s *DeviceState) PhiN(i int) float64 { return s.X[equation.Vars*i+equation.PhiN] }
func (s *DeviceState) PhiP(i int) float64 { return s.X[equation.Vars*i+equation.PhiP] }

// Clone returns a deep copy that can be handed to another goroutine.
func (s *DeviceState) Clone() *DeviceState {
	c := *s
	c.X = append([]float64(nil), s.X...)
	return &c
}

// Bands is the band diagram of a state. Energies in eV, densities in m^-3.
type Bands struct {
	X        []float64
	Ec, Ev   []float64
	Efn, Efp []float64
	N, P     []float64
}

// Bands evaluates the band diagram of st on the solver's mesh.
func (s *Solver) Bands(st *DeviceState) (*Bands, error) {
	p := s.asm.Problem()
	if st.Len() != p.Mesh.Len() {
		return nil, fmt.Errorf("state has %d nodes, mesh has %d", st.Len(), p.Mesh.Len())
	}
	n, h, err := s.asm.Densities(st.X)
	if err != nil {
		return nil, err
	}

	size := st.Len()
	b := &Bands{
		X:   append([]float64(nil), p.Mesh.X...),
		Ec:  make([]float64, size),
		Ev:  make([]float64, size),
		Efn: make([]float64, size),
		Efp: make([]float64, size),
		N:   n,
		P:   h,
	}
	for i := 0; i < size; i++ {
		nd := p.Mat.Nodes[i]
		b.Ec[i] = -st.Psi(i) - nd.Chi
		b.Ev[i] = b.Ec[i] - nd.Eg
		b.Efn[i] = -st.PhiN(i)
		b.Efp[i] = -st.PhiP(i)
	}
	return b, nil
}
