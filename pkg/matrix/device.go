package matrix

import "fmt"

// DeviceMatrix receives stamps from an assembled system.
type DeviceMatrix interface {
	AddElement(i, j int, value float64) // 1-based indexing
	AddRHS(i int, value float64)
}

// LinearSystem is a square system solved once per Newton iteration.
// Solution is 1-based and valid until the next Solve.
type LinearSystem interface {
	DeviceMatrix
	Dim() int
	Clear()
	Solve() error
	Solution() []float64
	Destroy()
}

const (
	BackendSparse = "sparse"
	BackendBanded = "banded"
)

// New returns a linear system of the given backend with kl sub- and ku
// super-diagonals.
func New(backend string, size, kl, ku int) (LinearSystem, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid matrix size %d", size)
	}
	switch backend {
	case "", BackendSparse:
		return NewSparse(size, kl, ku)
	case BackendBanded:
		return NewBanded(size, kl, ku), nil
	}
	return nil, fmt.Errorf("unknown linear solver backend %q", backend)
}
