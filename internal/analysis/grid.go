package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"siestarunner/internal/atomicfile"
	"siestarunner/internal/config"
)

const orthogonalTol = 1e-10

// Grid is a real-space function sampled on n1 x n2 x n3 points along the
// cell vectors a, b and c, for each spin.
type Grid struct {
	NSpin int
	N     [3]int

	data    []float64
	spinAx  int
	axes    [3]int
	strides []int
}

// At returns the value at spin s and grid point (i, j, k) along a, b, c.
func (g *Grid) At(s, i, j, k int) float64 {
	off := i*g.strides[g.axes[0]] + j*g.strides[g.axes[1]] + k*g.strides[g.axes[2]]
	if g.spinAx >= 0 {
		off += s * g.strides[g.spinAx]
	}
	return g.data[off]
}

// Sum returns the sum over every spin and grid point.
func (g *Grid) Sum() float64 {
	return floats.Sum(g.data)
}

// NewGrid wraps the values of a netCDF gridfunc variable. Axes are matched
// to a, b, c through the dimension names n1, n2, n3; without them the last
// three dimensions are taken in order, after a leading spin dimension.
func NewGrid(values any, dims []string) (*Grid, error) {
	data, shape, err := flattenValues(values)
	if err != nil {
		return nil, err
	}
	if len(shape) != 3 && len(shape) != 4 {
		return nil, fmt.Errorf("gridfunc: expected 3 or 4 dimensions, got %d", len(shape))
	}

	g := &Grid{data: data, strides: rowMajorStrides(shape), spinAx: -1, NSpin: 1}
	named := len(dims) == len(shape)
	for n, name := range []string{"n1", "n2", "n3"} {
		idx := -1
		if named {
			idx = slices.Index(dims, name)
		}
		if idx < 0 {
			named = false
			break
		}
		g.axes[n] = idx
	}
	if !named {
		off := len(shape) - 3
		g.axes = [3]int{off, off + 1, off + 2}
	}
	if len(shape) == 4 {
		for ax := range shape {
			if ax != g.axes[0] && ax != g.axes[1] && ax != g.axes[2] {
				g.spinAx = ax
			}
		}
		g.NSpin = shape[g.spinAx]
	}
	for n := range g.N {
		g.N[n] = shape[g.axes[n]]
	}
	if g.NSpin < 1 || g.N[0] < 1 || g.N[1] < 1 || g.N[2] < 1 {
		return nil, fmt.Errorf("gridfunc: empty grid %v", shape)
	}
	return g, nil
}

// GridSummary is the derived part of a grid document.
type GridSummary struct {
	Cell       [3][3]float64 `json:"cell"`
	Orthogonal bool          `json:"orthogonal"`
	FaceAB     float64       `json:"face_ab"`
	FaceAC     float64       `json:"face_ac"`
	FaceBC     float64       `json:"face_bc"`
	DiffA      float64       `json:"diff_a"`
	DiffB      float64       `json:"diff_b"`
	DiffC      float64       `json:"diff_c"`
	Volume     float64       `json:"volume"`
	DiffVolume float64       `json:"diff_volume"`
	AGrid      []float64     `json:"a_grid"`
	BGrid      []float64     `json:"b_grid"`
	CGrid      []float64     `json:"c_grid"`
	AAverage   []float64     `json:"a_average"`
	BAverage   []float64     `json:"b_average"`
	CAverage   []float64     `json:"c_average"`
}

// SummarizeGrid computes cell geometry, voxel sizes and the planar averages
// of spin 0 along each cell vector.
func SummarizeGrid(cell [3][3]float64, g *Grid) GridSummary {
	a := r3.Vec{X: cell[0][0], Y: cell[0][1], Z: cell[0][2]}
	b := r3.Vec{X: cell[1][0], Y: cell[1][1], Z: cell[1][2]}
	c := r3.Vec{X: cell[2][0], Y: cell[2][1], Z: cell[2][2]}
	n1, n2, n3 := g.N[0], g.N[1], g.N[2]
	la, lb, lc := r3.Norm(a), r3.Norm(b), r3.Norm(c)

	s := GridSummary{
		Cell: cell,
		Orthogonal: math.Abs(r3.Dot(a, b)) < orthogonalTol &&
			math.Abs(r3.Dot(a, c)) < orthogonalTol &&
			math.Abs(r3.Dot(b, c)) < orthogonalTol,
		FaceAB: r3.Norm(r3.Cross(a, b)),
		FaceAC: r3.Norm(r3.Cross(a, c)),
		FaceBC: r3.Norm(r3.Cross(b, c)),
		DiffA:  la / float64(n1),
		DiffB:  lb / float64(n2),
		DiffC:  lc / float64(n3),
		Volume: r3.Dot(r3.Cross(a, b), c),
		AGrid:  axisGrid(la, n1),
		BGrid:  axisGrid(lb, n2),
		CGrid:  axisGrid(lc, n3),
	}
	s.DiffVolume = s.Volume / float64(n1*n2*n3)

	s.AAverage = make([]float64, n1)
	s.BAverage = make([]float64, n2)
	s.CAverage = make([]float64, n3)
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			for k := 0; k < n3; k++ {
				v := g.At(0, i, j, k)
				s.AAverage[i] += v
				s.BAverage[j] += v
				s.CAverage[k] += v
			}
		}
	}
	floats.Scale(1/float64(n2*n3), s.AAverage)
	floats.Scale(1/float64(n1*n3), s.BAverage)
	floats.Scale(1/float64(n1*n2), s.CAverage)
	return s
}

// axisGrid returns n evenly spaced points from 0 to length, excluding the
// endpoint.
func axisGrid(length float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = length * float64(i) / float64(n)
	}
	return out
}

func gridTask(name, input, output string, logCharge bool) Task {
	return Task{
		Name:             name,
		Inputs:           []string{input},
		Output:           output,
		NeedsGeneralInfo: true,
		Run: func(_ context.Context, env *Env) error {
			cell, grid, dims, err := readGridFile(env.Path(input))
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			summary := SummarizeGrid(cell, grid)
			if logCharge {
				env.Logger.Infow("integrated grid charge", "file", input, "total_charge", summary.DiffVolume*grid.Sum())
			}

			var general map[string]any
			if err := atomicfile.ReadJSON(env.Path(config.GeneralInfoJSON), &general); err != nil {
				return fmt.Errorf("read %s: %w", config.GeneralInfoJSON, err)
			}
			doc, err := mergeDocuments(dims, summary, general)
			if err != nil {
				return err
			}
			return atomicfile.WriteJSON(env.Path(output), doc)
		},
	}
}

// readGridFile loads the cell and gridfunc variables of a SIESTA grid file
// and the lengths of the dimensions they use.
func readGridFile(path string) ([3][3]float64, *Grid, map[string]int, error) {
	var cell [3][3]float64

	nc, err := netcdf.Open(path)
	if err != nil {
		return cell, nil, nil, err
	}
	defer nc.Close()

	cellVar, err := nc.GetVariable("cell")
	if err != nil {
		return cell, nil, nil, fmt.Errorf("cell: %w", err)
	}
	cellData, cellShape, err := flattenValues(cellVar.Values)
	if err != nil {
		return cell, nil, nil, fmt.Errorf("cell: %w", err)
	}
	if !slices.Equal(cellShape, []int{3, 3}) {
		return cell, nil, nil, fmt.Errorf("cell: expected shape [3 3], got %v", cellShape)
	}
	for i := 0; i < 3; i++ {
		copy(cell[i][:], cellData[3*i:3*i+3])
	}

	gridVar, err := nc.GetVariable("gridfunc")
	if err != nil {
		return cell, nil, nil, fmt.Errorf("gridfunc: %w", err)
	}
	grid, err := NewGrid(gridVar.Values, gridVar.Dimensions)
	if err != nil {
		return cell, nil, nil, err
	}

	dims := make(map[string]int)
	for _, v := range []struct {
		names  []string
		values any
	}{{cellVar.Dimensions, cellVar.Values}, {gridVar.Dimensions, gridVar.Values}} {
		_, shape, _ := flattenValues(v.values)
		for i, name := range v.names {
			if i < len(shape) {
				dims[name] = shape[i]
			}
		}
	}
	return cell, grid, dims, nil
}

// mergeDocuments encodes each part as a JSON object and merges them in
// order; later keys win.
func mergeDocuments(parts ...any) (map[string]any, error) {
	out := make(map[string]any)
	for _, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out, nil
}

var errRagged = errors.New("ragged array")

// flattenValues converts nested slices of numbers into row-major data and
// a shape.
func flattenValues(values any) ([]float64, []int, error) {
	rv := reflect.ValueOf(values)
	if !rv.IsValid() {
		return nil, nil, errors.New("no values")
	}
	var shape []int
	for t := rv; t.Kind() == reflect.Slice || t.Kind() == reflect.Array; t = t.Index(0) {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
	}
	size := 1
	for _, n := range shape {
		size *= n
	}
	data := make([]float64, 0, size)

	var walk func(v reflect.Value, depth int) error
	walk = func(v reflect.Value, depth int) error {
		if depth == len(shape) {
			switch v.Kind() {
			case reflect.Float32, reflect.Float64:
				data = append(data, v.Float())
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				data = append(data, float64(v.Int()))
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				data = append(data, float64(v.Uint()))
			default:
				return fmt.Errorf("unsupported element type %s", v.Type())
			}
			return nil
		}
		if (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) || v.Len() != shape[depth] {
			return errRagged
		}
		for i := 0; i < v.Len(); i++ {
			if err := walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}
