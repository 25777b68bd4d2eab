package structure

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Lattice is a coarse Bravais lattice classification used to pick a band
// path.
type Lattice string

const (
	LatticeCubic        Lattice = "CUB"
	LatticeFCC          Lattice = "FCC"
	LatticeBCC          Lattice = "BCC"
	LatticeTetragonal   Lattice = "TET"
	LatticeOrthorhombic Lattice = "ORC"
	LatticeHexagonal    Lattice = "HEX"
	LatticeOther        Lattice = "OTHER"
)

type latticePath struct {
	points map[string][3]float64
	path   string
}

// Special points are fractional coordinates in the reciprocal basis of the
// conventional setting of each lattice. Segments are separated by commas.
var latticePaths = map[Lattice]latticePath{
	LatticeCubic: {
		points: map[string][3]float64{
			"G": {0, 0, 0}, "X": {0, 0.5, 0}, "M": {0.5, 0.5, 0}, "R": {0.5, 0.5, 0.5},
		},
		path: "GXMGRX,MR",
	},
	LatticeFCC: {
		points: map[string][3]float64{
			"G": {0, 0, 0}, "K": {0.375, 0.375, 0.75}, "L": {0.5, 0.5, 0.5},
			"U": {0.625, 0.25, 0.625}, "W": {0.5, 0.25, 0.75}, "X": {0.5, 0, 0.5},
		},
		path: "GXWKGLUWLK,UX",
	},
	LatticeBCC: {
		points: map[string][3]float64{
			"G": {0, 0, 0}, "H": {0.5, -0.5, 0.5}, "P": {0.25, 0.25, 0.25}, "N": {0, 0, 0.5},
		},
		path: "GHNGPH,PN",
	},
	LatticeTetragonal: {
		points: map[string][3]float64{
			"G": {0, 0, 0}, "A": {0.5, 0.5, 0.5}, "M": {0.5, 0.5, 0}, "R": {0, 0.5, 0.5},
			"X": {0, 0.5, 0}, "Z": {0, 0, 0.5},
		},
		path: "GXMGZRAZ,XR,MA",
	},
	LatticeOrthorhombic: {
		points: map[string][3]float64{
			"G": {0, 0, 0}, "R": {0.5, 0.5, 0.5}, "S": {0.5, 0.5, 0}, "T": {0, 0.5, 0.5},
			"U": {0.5, 0, 0.5}, "X": {0.5, 0, 0}, "Y": {0, 0.5, 0}, "Z": {0, 0, 0.5},
		},
		path: "GXSYGZURTZ,YT,UX,SR",
	},
	LatticeHexagonal: {
		points: map[string][3]float64{
			"G": {0, 0, 0}, "A": {0, 0, 0.5}, "H": {1.0 / 3, 1.0 / 3, 0.5},
			"K": {1.0 / 3, 1.0 / 3, 0}, "L": {0.5, 0, 0.5}, "M": {0.5, 0, 0},
		},
		path: "GMKGALHA,LM,KH",
	},
	LatticeOther: {
		points: map[string][3]float64{
			"G": {0, 0, 0}, "X": {0.5, 0, 0}, "Y": {0, 0.5, 0}, "Z": {0, 0, 0.5},
		},
		path: "XGY,GZ",
	},
}

const (
	lengthTol = 1e-4
	angleTol  = 1e-2
)

// Classify returns the lattice type of a cell from its lengths and angles.
func Classify(c Cell) Lattice {
	l := c.Lengths()
	ang := c.Angles()
	a, b, cc := l[0], l[1], l[2]
	if a == 0 || b == 0 || cc == 0 {
		return LatticeOther
	}

	eqLen := func(x, y float64) bool { return math.Abs(x-y) <= lengthTol*math.Max(x, y) }
	eqAng := func(x, y float64) bool { return math.Abs(x-y) <= angleTol }
	allAng := func(v float64) bool { return eqAng(ang[0], v) && eqAng(ang[1], v) && eqAng(ang[2], v) }

	allEqual := eqLen(a, b) && eqLen(b, cc)

	switch {
	case allAng(90) && allEqual:
		return LatticeCubic
	case allAng(90) && eqLen(a, b):
		return LatticeTetragonal
	case allAng(90):
		return LatticeOrthorhombic
	case allEqual && allAng(60):
		return LatticeFCC
	case allEqual && allAng(109.47122063449069):
		return LatticeBCC
	case eqLen(a, b) && eqAng(ang[0], 90) && eqAng(ang[1], 90) && (eqAng(ang[2], 120) || eqAng(ang[2], 60)):
		return LatticeHexagonal
	default:
		return LatticeOther
	}
}

// BandLine is one entry of a band path: the number of k-points from the
// previous entry to this one (1 starts a new segment), the fractional
// reciprocal coordinates and the point label.
type BandLine struct {
	Points int
	K      [3]float64
	Label  string
}

// BandPath is a sequence of high-symmetry points through the Brillouin zone.
type BandPath struct {
	Lattice  Lattice
	LabelSeq string
	Lines    []BandLine
}

// NewBandPath builds the standard band path for the cell with roughly
// npoints k-points in total, distributed along segments in proportion to
// their reciprocal-space length.
func NewBandPath(c Cell, npoints int) BandPath {
	lattice := Classify(c)
	lp := latticePaths[lattice]
	rec := c.Reciprocal()
	if lattice == LatticeHexagonal && c.Angles()[2] < 90 {
		lp = flipSecondAxis(lp)
	}

	segments := strings.Split(lp.path, ",")

	var total float64
	for _, seg := range segments {
		for i := 1; i < len(seg); i++ {
			total += segmentLength(rec, lp.points[seg[i-1:i]], lp.points[seg[i:i+1]])
		}
	}

	if npoints < 2 {
		npoints = 2
	}

	var lines []BandLine
	for _, seg := range segments {
		for i := 0; i < len(seg); i++ {
			label := seg[i : i+1]
			n := 1
			if i > 0 && total > 0 {
				d := segmentLength(rec, lp.points[seg[i-1:i]], lp.points[label])
				n = int(math.Max(1, math.Round(float64(npoints)*d/total)))
			}
			lines = append(lines, BandLine{Points: n, K: lp.points[label], Label: label})
		}
	}

	return BandPath{Lattice: lattice, LabelSeq: lp.path, Lines: lines}
}

// flipSecondAxis re-expresses special points of the 120 degree hexagonal
// setting in the 60 degree one, which is the same lattice with b negated.
func flipSecondAxis(lp latticePath) latticePath {
	points := make(map[string][3]float64, len(lp.points))
	for label, k := range lp.points {
		if k[1] != 0 {
			k[1] = -k[1]
		}
		points[label] = k
	}
	return latticePath{points: points, path: lp.path}
}

func segmentLength(rec Cell, from, to [3]float64) float64 {
	return r3.Norm(r3.Sub(rec.Cartesian(to), rec.Cartesian(from)))
}

// DisplayLabel maps the ASCII label "G" to the Greek letter Gamma.
func DisplayLabel(label string) string {
	if label == "G" {
		return "Γ"
	}
	return label
}
