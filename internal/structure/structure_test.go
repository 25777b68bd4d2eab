package structure

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const waterNDArray = `{
  "numbers": {"__ndarray__": [[3], "int64", [8, 1, 1]]},
  "positions": {"__ndarray__": [[3, 3], "float64", [0, 0, 0.119, 0, 0.763, -0.477, 0, -0.763, -0.477]]},
  "cell": {"array": {"__ndarray__": [[3, 3], "float64", [0, 0, 0, 0, 0, 0, 0, 0, 0]]}, "__ase_objtype__": "cell"},
  "pbc": {"__ndarray__": [[3], "bool", [false, false, false]]},
  "__ase_objtype__": "atoms"
}`

const siliconPlain = `{
  "symbols": ["Si", "Si"],
  "positions": [[0, 0, 0], [1.3575, 1.3575, 1.3575]],
  "cell": [[0, 2.715, 2.715], [2.715, 0, 2.715], [2.715, 2.715, 0]],
  "pbc": [true, true, true]
}`

func TestParseAtoms_NumpyEnvelope(t *testing.T) {
	atoms, err := ParseAtoms([]byte(waterNDArray))
	require.NoError(t, err)

	assert.Equal(t, []int{8, 1, 1}, atoms.Numbers)
	assert.Equal(t, []string{"O", "H", "H"}, atoms.Symbols())
	assert.InDelta(t, -0.477, atoms.Positions[2].Z, 1e-12)
	assert.False(t, atoms.Periodic())
	assert.True(t, atoms.Cell.IsZero())
}

func TestParseAtoms_PlainListsAndSymbols(t *testing.T) {
	atoms, err := ParseAtoms([]byte(siliconPlain))
	require.NoError(t, err)

	assert.Equal(t, []int{14, 14}, atoms.Numbers)
	assert.True(t, atoms.Periodic())
	assert.InDelta(t, 2*2.715*2.715*2.715, atoms.Cell.Volume(), 1e-9)
	require.NoError(t, atoms.Validate())
}

func TestParseAtoms_Errors(t *testing.T) {
	tests := map[string]string{
		"no species":     `{"positions": [[0,0,0]]}`,
		"count mismatch": `{"numbers": [1, 1], "positions": [[0,0,0]]}`,
		"bad shape":      `{"numbers": [1], "positions": [[0,0]]}`,
		"ragged":         `{"numbers": [1, 1], "positions": [[0,0,0],[0,0]]}`,
		"bad symbol":     `{"symbols": ["Qq"], "positions": [[0,0,0]]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAtoms([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestCenter_MoleculeGetsVacuumBox(t *testing.T) {
	atoms, err := ParseAtoms([]byte(waterNDArray))
	require.NoError(t, err)

	atoms.Center(8.0)

	assert.True(t, atoms.Periodic())
	lengths := atoms.Cell.Lengths()
	assert.InDelta(t, 16.0, lengths[0], 1e-9)
	assert.InDelta(t, 16.0+1.526, lengths[1], 1e-9)
	assert.InDelta(t, 16.0+0.596, lengths[2], 1e-9)
	assert.InDelta(t, 8.0, atoms.Positions[0].X, 1e-9)
	assert.InDelta(t, 8.0, atoms.Positions[2].Y, 1e-9)
	assert.InDelta(t, 8.0, atoms.Positions[1].Z, 1e-9)
	assert.True(t, atoms.Cell.Orthogonal())
}

func TestCenter_PeriodicUntouched(t *testing.T) {
	atoms, err := ParseAtoms([]byte(siliconPlain))
	require.NoError(t, err)
	before := atoms.Cell

	atoms.Center(8.0)
	assert.Equal(t, before, atoms.Cell)
}

func TestSpecies_FirstAppearanceOrder(t *testing.T) {
	atoms := &Atoms{Numbers: []int{8, 1, 1, 6, 8}}
	kinds, index := atoms.Species()
	assert.Equal(t, []int{8, 1, 6}, kinds)
	assert.Equal(t, []int{1, 2, 2, 3, 1}, index)
}

func TestReciprocal_IsDual(t *testing.T) {
	c := CellFromRows([3][3]float64{{3, 0, 0}, {1, 4, 0}, {0.5, 0.2, 5}})
	rec := c.Reciprocal()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, r3.Dot(c[i], rec[j]), 1e-12)
		}
	}
}

func TestClassify(t *testing.T) {
	hexA := 2.46
	tests := []struct {
		name string
		cell Cell
		want Lattice
	}{
		{"cubic", CellFromRows([3][3]float64{{4, 0, 0}, {0, 4, 0}, {0, 0, 4}}), LatticeCubic},
		{"tetragonal", CellFromRows([3][3]float64{{4, 0, 0}, {0, 4, 0}, {0, 0, 6}}), LatticeTetragonal},
		{"orthorhombic", CellFromRows([3][3]float64{{3, 0, 0}, {0, 4, 0}, {0, 0, 5}}), LatticeOrthorhombic},
		{"fcc", CellFromRows([3][3]float64{{0, 2.715, 2.715}, {2.715, 0, 2.715}, {2.715, 2.715, 0}}), LatticeFCC},
		{"bcc", CellFromRows([3][3]float64{{-1.4, 1.4, 1.4}, {1.4, -1.4, 1.4}, {1.4, 1.4, -1.4}}), LatticeBCC},
		{"hexagonal", CellFromRows([3][3]float64{{hexA, 0, 0}, {-hexA / 2, hexA * math.Sqrt(3) / 2, 0}, {0, 0, 6.7}}), LatticeHexagonal},
		{"triclinic", CellFromRows([3][3]float64{{3, 0, 0}, {1, 4, 0}, {0.5, 0.2, 5}}), LatticeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.cell))
		})
	}
}

func TestNewBandPath_SegmentsAndCounts(t *testing.T) {
	cell := CellFromRows([3][3]float64{{4, 0, 0}, {0, 4, 0}, {0, 0, 4}})
	path := NewBandPath(cell, 100)

	assert.Equal(t, LatticeCubic, path.Lattice)
	labels := make([]string, len(path.Lines))
	for i, l := range path.Lines {
		labels[i] = l.Label
	}
	assert.Equal(t, []string{"G", "X", "M", "G", "R", "X", "M", "R"}, labels)

	assert.Equal(t, 1, path.Lines[0].Points)
	assert.Equal(t, 1, path.Lines[6].Points, "a new segment starts with a single point")

	total := 0
	for _, l := range path.Lines {
		total += l.Points
	}
	assert.InDelta(t, 100, total, 8)

	// G->X (0.125/Å) is shorter than G->R (0.2165/Å).
	assert.Less(t, path.Lines[1].Points, path.Lines[4].Points)
}

func TestNewBandPath_HexagonalSettings(t *testing.T) {
	a := 2.46
	tests := []struct {
		name string
		cell Cell
	}{
		{"gamma 120", CellFromRows([3][3]float64{{a, 0, 0}, {-a / 2, a * math.Sqrt(3) / 2, 0}, {0, 0, 6.7}})},
		{"gamma 60", CellFromRows([3][3]float64{{a, 0, 0}, {a / 2, a * math.Sqrt(3) / 2, 0}, {0, 0, 6.7}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := NewBandPath(tt.cell, 60)
			require.Equal(t, LatticeHexagonal, path.Lattice)

			rec := tt.cell.Reciprocal()
			b1 := r3.Norm(rec[0])
			b3 := r3.Norm(rec[2])
			points := map[string][3]float64{}
			for _, l := range path.Lines {
				points[l.Label] = l.K
			}

			// K and H sit on the zone corner, M on the edge centre.
			assert.InDelta(t, b1/math.Sqrt(3), r3.Norm(rec.Cartesian(points["K"])), 1e-9)
			assert.InDelta(t, b1/2, r3.Norm(rec.Cartesian(points["M"])), 1e-9)
			h := rec.Cartesian(points["H"])
			assert.InDelta(t, math.Hypot(b1/math.Sqrt(3), b3/2), r3.Norm(h), 1e-9)
			assert.Equal(t, [3]float64{0, 0, 0}, points["G"])
		})
	}
}

func TestDecodeArray_EnvelopeShapeMismatch(t *testing.T) {
	_, err := DecodeArray([]byte(`{"__ndarray__": [[2, 2], "float64", [1, 2, 3]]}`))
	assert.Error(t, err)
}

func TestAtomicNumber(t *testing.T) {
	z, err := AtomicNumber("fe")
	require.NoError(t, err)
	assert.Equal(t, 26, z)
	assert.Equal(t, "Fe", Symbol(26))
	assert.Equal(t, "X", Symbol(0))
}
