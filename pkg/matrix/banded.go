package matrix

import (
	"fmt"
	"math"
)

// BandedMatrix is a dense band store with room for the fill-in of
// partial pivoting. Row i keeps columns i-kl .. i+kl+ku.
type BandedMatrix struct {
	size   int
	kl, ku int
	width  int
	a      []float64
	rhs    []float64 // 1-based
	sol    []float64 // 1-based
	work   []float64
	wrhs   []float64

	outside error
}

func NewBanded(size, kl, ku int) *BandedMatrix {
	width := 2*kl + ku + 1
	return &BandedMatrix{
		size:  size,
		kl:    kl,
		ku:    ku,
		width: width,
		a:     make([]float64, size*width),
		rhs:   make([]float64, size+1),
		sol:   make([]float64, size+1),
		work:  make([]float64, size*width),
		wrhs:  make([]float64, size),
	}
}

func (m *BandedMatrix) Dim() int { return m.size }

// at addresses 0-based (i, j); j must lie inside the stored band of row i.
func (m *BandedMatrix) at(a []float64, i, j int) *float64 {
	return &a[i*m.width+j-i+m.kl]
}

func (m *BandedMatrix) AddElement(i, j int, value float64) {
	if i <= 0 || j <= 0 || i > m.size || j > m.size || j < i-m.kl || j > i+m.ku {
		if m.outside == nil {
			m.outside = fmt.Errorf("matrix index out of band (i=%d, j=%d, size=%d)", i, j, m.size)
		}
		return
	}
	*m.at(m.a, i-1, j-1) += value
}

func (m *BandedMatrix) AddRHS(i int, value float64) {
	if i <= 0 || i > m.size {
		if m.outside == nil {
			m.outside = fmt.Errorf("rhs index out of bounds (i=%d, size=%d)", i, m.size)
		}
		return
	}
	m.rhs[i] += value
}

func (m *BandedMatrix) Clear() {
	clear(m.a)
	clear(m.rhs)
	m.outside = nil
}

// Solve factors a copy of the band with row pivoting and back-substitutes.
// The assembled matrix is left untouched.
func (m *BandedMatrix) Solve() error {
	if m.outside != nil {
		return m.outside
	}

	n := m.size
	a := m.work
	copy(a, m.a)
	b := m.wrhs
	copy(b, m.rhs[1:])
	reach := m.kl + m.ku

	for k := 0; k < n; k++ {
		last := min(n-1, k+m.kl)
		p := k
		big := math.Abs(*m.at(a, k, k))
		for i := k + 1; i <= last; i++ {
			if v := math.Abs(*m.at(a, i, k)); v > big {
				big, p = v, i
			}
		}
		if big == 0 || math.IsNaN(big) || math.IsInf(big, 0) {
			return fmt.Errorf("matrix factorization failed: singular pivot at row %d", k+1)
		}

		right := min(n-1, k+reach)
		if p != k {
			for j := k; j <= right; j++ {
				pk, pp := m.at(a, k, j), m.at(a, p, j)
				*pk, *pp = *pp, *pk
			}
			b[k], b[p] = b[p], b[k]
		}

		pivot := *m.at(a, k, k)
		for i := k + 1; i <= last; i++ {
			lik := m.at(a, i, k)
			if *lik == 0 {
				continue
			}
			l := *lik / pivot
			*lik = 0
			for j := k + 1; j <= right; j++ {
				*m.at(a, i, j) -= l * *m.at(a, k, j)
			}
			b[i] -= l * b[k]
		}
	}

	x := m.sol
	x[0] = 0
	for i := n - 1; i >= 0; i-- {
		s := b[i]
		for j := i + 1; j <= min(n-1, i+reach); j++ {
			s -= *m.at(a, i, j) * x[j+1]
		}
		x[i+1] = s / *m.at(a, i, i)
	}
	return nil
}

func (m *BandedMatrix) Solution() []float64 { return m.sol }

func (m *BandedMatrix) Destroy() {}
