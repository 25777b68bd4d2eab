package analysis

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siestarunner/internal/config"
	"siestarunner/internal/report"
)

// siestaOrderGrid returns values laid out [spin][n3][n2][n1], as SIESTA
// writes gridfunc, with f(i, j, k) = i + 10j + 100k.
func siestaOrderGrid(n1, n2, n3 int) [][][][]float32 {
	g := make([][][][]float32, 1)
	g[0] = make([][][]float32, n3)
	for k := range g[0] {
		g[0][k] = make([][]float32, n2)
		for j := range g[0][k] {
			g[0][k][j] = make([]float32, n1)
			for i := range g[0][k][j] {
				g[0][k][j][i] = float32(i + 10*j + 100*k)
			}
		}
	}
	return g
}

func TestNewGrid_NamedDimensions(t *testing.T) {
	g, err := NewGrid(siestaOrderGrid(2, 2, 3), []string{"spin", "n3", "n2", "n1"})
	require.NoError(t, err)
	assert.Equal(t, 1, g.NSpin)
	assert.Equal(t, [3]int{2, 2, 3}, g.N)
	assert.Equal(t, 211.0, g.At(0, 1, 1, 2))
	assert.Equal(t, 100.0, g.At(0, 0, 0, 1))
}

func TestNewGrid_PositionalFallback(t *testing.T) {
	values := [][][][]float64{{
		{{1, 2, 3}, {4, 5, 6}},
		{{7, 8, 9}, {10, 11, 12}},
	}}
	g, err := NewGrid(values, nil)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 3}, g.N)
	assert.Equal(t, 6.0, g.At(0, 0, 1, 2))
	assert.Equal(t, 78.0, g.Sum())
}

func TestNewGrid_Errors(t *testing.T) {
	_, err := NewGrid([]float64{1, 2}, nil)
	assert.ErrorContains(t, err, "dimensions")

	_, err = NewGrid([][][]float64{{{1, 2}, {3}}}, nil)
	assert.ErrorIs(t, err, errRagged)

	_, err = NewGrid([][][]string{{{"a"}}}, nil)
	assert.ErrorContains(t, err, "unsupported")
}

func TestSummarizeGrid(t *testing.T) {
	g, err := NewGrid(siestaOrderGrid(2, 2, 3), []string{"spin", "n3", "n2", "n1"})
	require.NoError(t, err)
	cell := [3][3]float64{{2, 0, 0}, {0, 4, 0}, {0, 0, 6}}

	s := SummarizeGrid(cell, g)
	assert.True(t, s.Orthogonal)
	assert.Equal(t, 8.0, s.FaceAB)
	assert.Equal(t, 12.0, s.FaceAC)
	assert.Equal(t, 24.0, s.FaceBC)
	assert.Equal(t, 1.0, s.DiffA)
	assert.Equal(t, 2.0, s.DiffB)
	assert.Equal(t, 2.0, s.DiffC)
	assert.Equal(t, 48.0, s.Volume)
	assert.Equal(t, 4.0, s.DiffVolume)
	assert.Equal(t, []float64{0, 1}, s.AGrid)
	assert.Equal(t, []float64{0, 2}, s.BGrid)
	assert.Equal(t, []float64{0, 2, 4}, s.CGrid)
	assert.InDeltaSlice(t, []float64{105, 106}, s.AAverage, 1e-9)
	assert.InDeltaSlice(t, []float64{100.5, 110.5}, s.BAverage, 1e-9)
	assert.Equal(t, []float64{5.5, 105.5, 205.5}, s.CAverage)
}

func TestSummarizeGrid_Oblique(t *testing.T) {
	g, err := NewGrid([][][]float64{{{1}}}, nil)
	require.NoError(t, err)
	hex := [3][3]float64{{2, 0, 0}, {-1, 1.7320508075688772, 0}, {0, 0, 5}}

	s := SummarizeGrid(hex, g)
	assert.False(t, s.Orthogonal)
	assert.InDelta(t, 2*1.7320508075688772*5, s.Volume, 1e-12)
	assert.Equal(t, []float64{1}, s.AAverage)
}

func TestMergeDocuments_LaterKeysWin(t *testing.T) {
	doc, err := mergeDocuments(
		map[string]int{"n1": 2, "spin": 1},
		GridSummary{Volume: 3},
		map[string]any{"volume": "overridden", "energy": -1.5},
	)
	require.NoError(t, err)
	assert.Equal(t, float64(2), doc["n1"])
	assert.Equal(t, "overridden", doc["volume"])
	assert.Equal(t, -1.5, doc["energy"])
	assert.Contains(t, doc, "a_average")
}

// writeGridFile writes a grid file with the variable layout SIESTA uses:
// cell(abc, xyz) and gridfunc(spin, n3, n2, n1).
func writeGridFile(t *testing.T, path string, cell [][]float64, gridfunc [][][][]float32) {
	t.Helper()
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, cw.AddVar("cell", api.Variable{Values: cell, Dimensions: []string{"abc", "xyz"}}))
	require.NoError(t, cw.AddVar("gridfunc", api.Variable{Values: gridfunc, Dimensions: []string{"spin", "n3", "n2", "n1"}}))
	require.NoError(t, cw.Close())
}

func TestGridTask_ReadsNetCDF(t *testing.T) {
	dir := copyFixtures(t, "siesta.out", "siesta.EIG")
	writeGridFile(t, filepath.Join(dir, config.RhoGridNC),
		[][]float64{{4, 0, 0}, {0, 6, 0}, {0, 0, 8}},
		siestaOrderGrid(2, 3, 4))

	a, err := New(Options{Dir: dir, Label: "siesta", ProjectType: config.ProjectTypeSinglePoint})
	require.NoError(t, err)
	rep, err := a.Perform(context.Background())
	require.NoError(t, err)

	events := eventsByTask(rep)
	require.Equal(t, report.EventTaskCompleted, events[TaskRhoGrid].Kind, events[TaskRhoGrid].Message)
	assert.Equal(t, report.EventTaskSkipped, events[TaskPotentialGrid].Kind)

	data, err := os.ReadFile(filepath.Join(dir, config.RhoGridJSON))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, float64(2), doc["n1"])
	assert.Equal(t, float64(3), doc["n2"])
	assert.Equal(t, float64(4), doc["n3"])
	assert.Equal(t, float64(1), doc["spin"])
	assert.Equal(t, float64(3), doc["xyz"])

	assert.Equal(t, true, doc["orthogonal"])
	assert.Equal(t, float64(192), doc["volume"])
	assert.Equal(t, float64(2), doc["diff_a"])
	assert.Equal(t, float64(2), doc["diff_b"])
	assert.Equal(t, float64(2), doc["diff_c"])
	assert.Equal(t, []any{float64(0), float64(2)}, doc["a_grid"])
	// f(i, j, k) = i + 10j + 100k averaged over the other two axes.
	assert.Equal(t, []any{float64(160), float64(161)}, doc["a_average"])
	assert.Equal(t, []any{10.5, 110.5, 210.5, 310.5}, doc["c_average"])
	assert.Equal(t, []any{
		[]any{float64(4), float64(0), float64(0)},
		[]any{float64(0), float64(6), float64(0)},
		[]any{float64(0), float64(0), float64(8)},
	}, doc["cell"])

	var general map[string]any
	require.NoError(t, json.Unmarshal(mustRead(t, filepath.Join(dir, config.GeneralInfoJSON)), &general))
	for _, key := range []string{"n_spin", "fermi_energy", "energy"} {
		require.Contains(t, general, key)
		assert.Equal(t, general[key], doc[key], key)
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
