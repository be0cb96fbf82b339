package equation

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-pdd/pkg/matrix"
)

// Unknowns per node, interleaved in the state vector as x[Vars*i+k].
const (
	Psi = iota
	PhiN
	PhiP
	Vars
)

// Band is the half bandwidth of the interleaved Jacobian.
const Band = 2*Vars - 1

// BlockTridiag holds the 3x3 blocks coupling node i to i-1, i and i+1.
type BlockTridiag struct {
	N      int
	blocks []float64
}

func NewBlockTridiag(n int) *BlockTridiag {
	return &BlockTridiag{N: n, blocks: make([]float64, n*3*Vars*Vars)}
}

func (b *BlockTridiag) index(i, vi, j, vj int) int {
	return ((i*3+(j-i+1))*Vars+vi)*Vars + vj
}

// Add accumulates d(row i, var vi)/d(node j, var vj); |i-j| <= 1.
func (b *BlockTridiag) Add(i, vi, j, vj int, v float64) {
	b.blocks[b.index(i, vi, j, vj)] += v
}

func (b *BlockTridiag) At(i, vi, j, vj int) float64 {
	if j < 0 || j >= b.N || j < i-1 || j > i+1 {
		return 0
	}
	return b.blocks[b.index(i, vi, j, vj)]
}

func (b *BlockTridiag) Zero() { clear(b.blocks) }

// row returns the 3*Vars entries of one equation, lower block first.
func (b *BlockTridiag) row(i, vi int) []float64 {
	out := make([]float64, 0, 3*Vars)
	for blk := 0; blk < 3; blk++ {
		base := ((i*3+blk)*Vars + vi) * Vars
		out = append(out, b.blocks[base:base+Vars]...)
	}
	return out
}

func (b *BlockTridiag) scaleRow(i, vi int, s float64) {
	for blk := 0; blk < 3; blk++ {
		base := ((i*3+blk)*Vars + vi) * Vars
		floats.Scale(s, b.blocks[base:base+Vars])
	}
}

// pin replaces equation (i, vi) by the identity row.
func (b *BlockTridiag) pin(i, vi int) {
	b.scaleRow(i, vi, 0)
	b.Add(i, vi, i, vi, 1)
}

// Stamp writes the nonzero entries with 1-based global indices.
func (b *BlockTridiag) Stamp(m matrix.DeviceMatrix) {
	for i := 0; i < b.N; i++ {
		for vi := 0; vi < Vars; vi++ {
			r := Vars*i + vi + 1
			for j := max(0, i-1); j <= min(b.N-1, i+1); j++ {
				for vj := 0; vj < Vars; vj++ {
					if v := b.blocks[b.index(i, vi, j, vj)]; v != 0 {
						m.AddElement(r, Vars*j+vj+1, v)
					}
				}
			}
		}
	}
}

// MulVec computes y = J x.
func (b *BlockTridiag) MulVec(x, y []float64) {
	for i := 0; i < b.N; i++ {
		for vi := 0; vi < Vars; vi++ {
			s := 0.0
			for j := max(0, i-1); j <= min(b.N-1, i+1); j++ {
				for vj := 0; vj < Vars; vj++ {
					s += b.blocks[b.index(i, vi, j, vj)] * x[Vars*j+vj]
				}
			}
			y[Vars*i+vi] = s
		}
	}
}

// System is the residual F(x) and its Jacobian for one assembly.
type System struct {
	N     int
	F     []float64
	J     *BlockTridiag
	Scale []float64
}

func NewSystem(n int) *System {
	return &System{
		N:     n,
		F:     make([]float64, Vars*n),
		J:     NewBlockTridiag(n),
		Scale: make([]float64, Vars*n),
	}
}

func (s *System) Dim() int { return Vars * s.N }

func (s *System) reset() {
	clear(s.F)
	s.J.Zero()
	for i := range s.Scale {
		s.Scale[i] = 1
	}
}

// Equilibrate divides every equation by its largest Jacobian entry. The
// scaled residual of each equation is then in volts.
func (s *System) Equilibrate() {
	for i := 0; i < s.N; i++ {
		for vi := 0; vi < Vars; vi++ {
			r := Vars*i + vi
			big := floats.Norm(s.J.row(i, vi), math.Inf(1))
			if big == 0 || math.IsInf(big, 0) || math.IsNaN(big) {
				big = 1
			}
			s.Scale[r] = big
			s.J.scaleRow(i, vi, 1/big)
			s.F[r] /= big
		}
	}
}

// ResidualNorm is the max norm of F.
func (s *System) ResidualNorm() float64 {
	return floats.Norm(s.F, math.Inf(1))
}

// Stamp loads J dx = -F into m.
func (s *System) Stamp(m matrix.DeviceMatrix) {
	s.J.Stamp(m)
	for r, f := range s.F {
		if f != 0 {
			m.AddRHS(r+1, -f)
		}
	}
}
