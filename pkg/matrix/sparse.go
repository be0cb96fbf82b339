package matrix

import (
	"fmt"

	"github.com/edp1096/sparse"
)

// SparseMatrix is a real linear system on the sparse LU package. Only the
// band pattern is created up front so fill-in stays inside the band.
type SparseMatrix struct {
	size     int
	kl, ku   int
	matrix   *sparse.Matrix
	rhs      []float64
	solution []float64
	outside  error
}

func NewSparse(size, kl, ku int) (*SparseMatrix, error) {
	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("error creating sparse matrix: %v", err)
	}

	m := &SparseMatrix{
		size:     size,
		kl:       kl,
		ku:       ku,
		matrix:   mat,
		rhs:      make([]float64, size+1), // 1-based indexing
		solution: make([]float64, size+1),
	}
	m.setupElements()
	return m, nil
}

func (m *SparseMatrix) setupElements() {
	for i := 1; i <= m.size; i++ {
		for j := max(1, i-m.kl); j <= min(m.size, i+m.ku); j++ {
			m.matrix.GetElement(int64(i), int64(j))
		}
	}
}

func (m *SparseMatrix) Dim() int { return m.size }

func (m *SparseMatrix) AddElement(i, j int, value float64) {
	if i <= 0 || j <= 0 || i > m.size || j > m.size || j < i-m.kl || j > i+m.ku {
		if m.outside == nil {
			m.outside = fmt.Errorf("matrix index out of band (i=%d, j=%d, size=%d)", i, j, m.size)
		}
		return
	}
	m.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (m *SparseMatrix) AddRHS(i int, value float64) {
	if i <= 0 || i > m.size {
		if m.outside == nil {
			m.outside = fmt.Errorf("rhs index out of bounds (i=%d, size=%d)", i, m.size)
		}
		return
	}
	m.rhs[i] += value
}

func (m *SparseMatrix) Clear() {
	m.matrix.Clear()
	for i := range m.rhs {
		m.rhs[i] = 0
	}
	m.outside = nil
}

func (m *SparseMatrix) Solve() error {
	if m.outside != nil {
		return m.outside
	}

	err := m.matrix.Factor()
	if err != nil {
		return fmt.Errorf("matrix factorization failed: %v", err)
	}

	m.solution, err = m.matrix.Solve(m.rhs)
	if err != nil {
		return fmt.Errorf("matrix solve failed: %v", err)
	}
	return nil
}

func (m *SparseMatrix) Solution() []float64 {
	return m.solution
}

func (m *SparseMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}
