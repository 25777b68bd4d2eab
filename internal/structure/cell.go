package structure

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Cell holds the three lattice vectors as rows, in Angstrom.
type Cell [3]r3.Vec

// CellFromRows builds a Cell from a 3x3 row-major matrix.
func CellFromRows(m [3][3]float64) Cell {
	var c Cell
	for i := range m {
		c[i] = r3.Vec{X: m[i][0], Y: m[i][1], Z: m[i][2]}
	}
	return c
}

// Rows returns the lattice vectors as a 3x3 matrix.
func (c Cell) Rows() [3][3]float64 {
	var m [3][3]float64
	for i, v := range c {
		m[i] = [3]float64{v.X, v.Y, v.Z}
	}
	return m
}

// IsZero reports whether all lattice vectors have zero length.
func (c Cell) IsZero() bool {
	for _, v := range c {
		if r3.Norm(v) > 0 {
			return false
		}
	}
	return true
}

// Volume returns the signed cell volume a·(b×c).
func (c Cell) Volume() float64 {
	return r3.Dot(c[0], r3.Cross(c[1], c[2]))
}

// Lengths returns |a|, |b|, |c|.
func (c Cell) Lengths() [3]float64 {
	return [3]float64{r3.Norm(c[0]), r3.Norm(c[1]), r3.Norm(c[2])}
}

// Angles returns alpha (b,c), beta (a,c) and gamma (a,b) in degrees.
func (c Cell) Angles() [3]float64 {
	return [3]float64{
		angleDeg(c[1], c[2]),
		angleDeg(c[0], c[2]),
		angleDeg(c[0], c[1]),
	}
}

// Reciprocal returns the reciprocal lattice vectors b_i with a_i·b_j = δij
// (no 2π factor). A singular cell yields the zero cell.
func (c Cell) Reciprocal() Cell {
	vol := c.Volume()
	if vol == 0 {
		return Cell{}
	}
	return Cell{
		r3.Scale(1/vol, r3.Cross(c[1], c[2])),
		r3.Scale(1/vol, r3.Cross(c[2], c[0])),
		r3.Scale(1/vol, r3.Cross(c[0], c[1])),
	}
}

// Cartesian converts fractional coordinates in this basis to Cartesian.
func (c Cell) Cartesian(frac [3]float64) r3.Vec {
	out := r3.Scale(frac[0], c[0])
	out = r3.Add(out, r3.Scale(frac[1], c[1]))
	return r3.Add(out, r3.Scale(frac[2], c[2]))
}

// Orthogonal reports whether all lattice vector pairs have zero dot product.
func (c Cell) Orthogonal() bool {
	return r3.Dot(c[0], c[1]) == 0 && r3.Dot(c[0], c[2]) == 0 && r3.Dot(c[1], c[2]) == 0
}

func angleDeg(u, v r3.Vec) float64 {
	nu, nv := r3.Norm(u), r3.Norm(v)
	if nu == 0 || nv == 0 {
		return 0
	}
	cos := r3.Dot(u, v) / (nu * nv)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}
