package mesh

import (
	"fmt"
	"math"
	"sort"
)

// MeshConstructionError reports a layer structure that cannot be meshed.
// Layer is -1 when the problem is not tied to a single layer.
type MeshConstructionError struct {
	Layer  int
	Reason string
}

func (e *MeshConstructionError) Error() string {
	if e.Layer >= 0 {
		return fmt.Sprintf("mesh construction: layer %d: %s", e.Layer, e.Reason)
	}
	return fmt.Sprintf("mesh construction: %s", e.Reason)
}

// Window caps the spacing inside [Lo, Hi], e.g. around the estimated
// depletion region.
type Window struct {
	Lo, Hi     float64
	MaxSpacing float64
}

type Builder struct {
	MinSpacing float64 // m
	MaxSpacing float64 // m
	Growth     float64 // ratio between neighbouring cells, > 1
	MaxNodes   int

	// Extra points to refine toward, besides layer interfaces and contacts.
	Boundaries []float64
	Windows    []Window
}

func NewBuilder() *Builder {
	return &Builder{
		MinSpacing: 0.2e-9,
		MaxSpacing: 20e-9,
		Growth:     1.2,
		MaxNodes:   1000,
	}
}

type Mesh struct {
	X          []float64 // node positions (m), strictly increasing
	Layer      []int     // owning layer of each node
	Interfaces []float64 // layer boundaries including 0 and the total width
}

func (m *Mesh) Len() int { return len(m.X) }

func (m *Mesh) Width() float64 { return m.X[len(m.X)-1] }

// Spacing is the distance between node i and i+1.
func (m *Mesh) Spacing(i int) float64 { return m.X[i+1] - m.X[i] }

// BoxWidth is the length of the control volume around node i.
func (m *Mesh) BoxWidth(i int) float64 {
	n := len(m.X)
	switch {
	case n < 2:
		return 0
	case i == 0:
		return (m.X[1] - m.X[0]) / 2
	case i == n-1:
		return (m.X[n-1] - m.X[n-2]) / 2
	}
	return (m.X[i+1] - m.X[i-1]) / 2
}

// Build meshes layers given by their widths. The budget is enforced by
// coarsening both spacing limits.
func (b *Builder) Build(widths []float64) (*Mesh, error) {
	if len(widths) == 0 {
		return nil, &MeshConstructionError{Layer: -1, Reason: "no layers"}
	}
	if b.MinSpacing <= 0 || b.MaxSpacing < b.MinSpacing || b.Growth <= 1 {
		return nil, &MeshConstructionError{Layer: -1, Reason: fmt.Sprintf(
			"invalid spacing limits (min=%g, max=%g, growth=%g)", b.MinSpacing, b.MaxSpacing, b.Growth)}
	}

	interfaces := make([]float64, 0, len(widths)+1)
	interfaces = append(interfaces, 0)
	total := 0.0
	for i, w := range widths {
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, &MeshConstructionError{Layer: i, Reason: fmt.Sprintf("non-positive width %g", w)}
		}
		total += w
		interfaces = append(interfaces, total)
	}
	if total < 2*b.MinSpacing {
		return nil, &MeshConstructionError{Layer: -1, Reason: fmt.Sprintf(
			"total width %g below minimum resolvable feature %g", total, 2*b.MinSpacing)}
	}

	anchors := b.anchors(interfaces, total)

	hmin, hmax := b.MinSpacing, b.MaxSpacing
	var x []float64
	for {
		x = b.march(anchors, hmin, hmax)
		if b.MaxNodes <= 0 || len(x) <= b.MaxNodes {
			break
		}
		if hmin*2 >= total && hmax >= total {
			return nil, &MeshConstructionError{Layer: -1, Reason: fmt.Sprintf(
				"node budget %d too small for %d layers", b.MaxNodes, len(widths))}
		}
		hmin *= 1.25
		hmax *= 1.25
	}

	m := &Mesh{X: x, Layer: make([]int, len(x)), Interfaces: interfaces}
	k := 0
	for i, xi := range x {
		for k < len(widths)-1 && xi >= interfaces[k+1] {
			k++
		}
		m.Layer[i] = k
	}
	return m, nil
}

// anchors returns the sorted, de-duplicated refinement points. Layer
// interfaces are always nodes of the mesh.
func (b *Builder) anchors(interfaces []float64, total float64) []float64 {
	pts := append([]float64(nil), interfaces...)
	for _, p := range b.Boundaries {
		if p > 0 && p < total {
			pts = append(pts, p)
		}
	}
	sort.Float64s(pts)
	out := pts[:1]
	for _, p := range pts[1:] {
		if p-out[len(out)-1] > b.MinSpacing*1e-6 {
			out = append(out, p)
		}
	}
	out[len(out)-1] = total
	return out
}

func (b *Builder) march(anchors []float64, hmin, hmax float64) []float64 {
	x := []float64{anchors[0]}
	for k := 0; k+1 < len(anchors); k++ {
		lo, hi := anchors[k], anchors[k+1]
		pos := lo
		for {
			h := b.spacing(pos, lo, hi, hmin, hmax)
			if hi-pos <= 1.5*h {
				break
			}
			pos += h
			x = append(x, pos)
		}
		x = append(x, hi)
	}
	return x
}

// spacing grows geometrically with the distance to the closest anchor:
// cells h, h*g, h*g^2... cover a distance d in cells of size ~hmin+(g-1)d.
func (b *Builder) spacing(pos, lo, hi, hmin, hmax float64) float64 {
	d := math.Min(pos-lo, hi-pos)
	h := hmin + (b.Growth-1)*d
	limit := hmax
	for _, w := range b.Windows {
		if pos >= w.Lo && pos <= w.Hi && w.MaxSpacing > 0 {
			limit = math.Min(limit, math.Max(w.MaxSpacing, hmin))
		}
	}
	return math.Min(h, limit)
}
