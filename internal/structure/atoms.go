// Package structure models the atomic structure of a calculation: atoms,
// the simulation cell and the reciprocal-space band path.
package structure

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
)

// Atoms is an atomic structure with an optional periodic cell.
type Atoms struct {
	Numbers   []int
	Positions []r3.Vec
	Cell      Cell
	PBC       [3]bool
}

// Len returns the number of atoms.
func (a *Atoms) Len() int {
	return len(a.Numbers)
}

// Symbols returns the chemical symbol of every atom.
func (a *Atoms) Symbols() []string {
	out := make([]string, len(a.Numbers))
	for i, z := range a.Numbers {
		out[i] = Symbol(z)
	}
	return out
}

// Periodic reports whether any axis is periodic.
func (a *Atoms) Periodic() bool {
	return a.PBC[0] || a.PBC[1] || a.PBC[2]
}

// Species returns the distinct atomic numbers in order of first appearance
// and, for every atom, its 1-based species index.
func (a *Atoms) Species() (kinds []int, index []int) {
	seen := make(map[int]int)
	index = make([]int, len(a.Numbers))
	for i, z := range a.Numbers {
		k, ok := seen[z]
		if !ok {
			kinds = append(kinds, z)
			k = len(kinds)
			seen[z] = k
		}
		index[i] = k
	}
	return kinds, index
}

// Center places a non-periodic system in an orthorhombic box with vacuum
// Angstrom of empty space on every side and marks it periodic, so a
// plane-wave-grid code can treat a molecule. Periodic systems are left
// untouched.
func (a *Atoms) Center(vacuum float64) {
	if a.Periodic() || a.Len() == 0 {
		return
	}

	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, p := range a.Positions {
		lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	extent := r3.Sub(hi, lo)

	shift := r3.Sub(r3.Vec{X: vacuum, Y: vacuum, Z: vacuum}, lo)
	for i := range a.Positions {
		a.Positions[i] = r3.Add(a.Positions[i], shift)
	}
	a.Cell = Cell{
		{X: extent.X + 2*vacuum},
		{Y: extent.Y + 2*vacuum},
		{Z: extent.Z + 2*vacuum},
	}
	a.PBC = [3]bool{true, true, true}
}

// Validate checks that the structure can be written as solver input.
func (a *Atoms) Validate() error {
	var errs []error
	if a.Len() == 0 {
		errs = append(errs, errors.New("structure has no atoms"))
	}
	if len(a.Positions) != len(a.Numbers) {
		errs = append(errs, fmt.Errorf("%d positions for %d atoms", len(a.Positions), len(a.Numbers)))
	}
	for i, z := range a.Numbers {
		if z < 1 || z > MaxAtomicNumber {
			errs = append(errs, fmt.Errorf("atom %d: invalid atomic number %d", i, z))
		}
	}
	if a.Periodic() && a.Cell.Volume() == 0 {
		errs = append(errs, errors.New("periodic structure has a singular cell"))
	}
	return errors.Join(errs...)
}

// atomsDocument is the on-disk structure document. Every array field may be
// a plain nested list or a numpy envelope.
type atomsDocument struct {
	Numbers   json.RawMessage `json:"numbers"`
	Symbols   []string        `json:"symbols"`
	Positions json.RawMessage `json:"positions"`
	Cell      json.RawMessage `json:"cell"`
	PBC       json.RawMessage `json:"pbc"`
}

// LoadAtoms reads a structure document from path.
func LoadAtoms(path string) (*Atoms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	atoms, err := ParseAtoms(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return atoms, nil
}

// ParseAtoms decodes a structure document.
func ParseAtoms(data []byte) (*Atoms, error) {
	var doc atomsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	atoms := &Atoms{}

	switch {
	case len(doc.Numbers) > 0:
		numbers, err := DecodeArray(doc.Numbers)
		if err != nil {
			return nil, fmt.Errorf("numbers: %w", err)
		}
		atoms.Numbers = make([]int, len(numbers.Values))
		for i, v := range numbers.Values {
			atoms.Numbers[i] = int(math.Round(v))
		}
	case len(doc.Symbols) > 0:
		atoms.Numbers = make([]int, len(doc.Symbols))
		for i, s := range doc.Symbols {
			z, err := AtomicNumber(s)
			if err != nil {
				return nil, fmt.Errorf("symbols[%d]: %w", i, err)
			}
			atoms.Numbers[i] = z
		}
	default:
		return nil, errors.New("structure has neither numbers nor symbols")
	}

	positions, err := DecodeArray(doc.Positions)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	rows, err := positions.Rows3()
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	atoms.Positions = make([]r3.Vec, len(rows))
	for i, p := range rows {
		atoms.Positions[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}

	cell, err := decodeCell(doc.Cell)
	if err != nil {
		return nil, fmt.Errorf("cell: %w", err)
	}
	atoms.Cell = cell

	if len(doc.PBC) > 0 {
		pbc, err := DecodeArray(doc.PBC)
		if err != nil {
			return nil, fmt.Errorf("pbc: %w", err)
		}
		switch len(pbc.Values) {
		case 1:
			atoms.PBC = [3]bool{pbc.Values[0] != 0, pbc.Values[0] != 0, pbc.Values[0] != 0}
		case 3:
			atoms.PBC = [3]bool{pbc.Values[0] != 0, pbc.Values[1] != 0, pbc.Values[2] != 0}
		default:
			return nil, fmt.Errorf("pbc: expected 1 or 3 values, got %d", len(pbc.Values))
		}
	}

	if len(atoms.Positions) != len(atoms.Numbers) {
		return nil, fmt.Errorf("%d positions for %d atoms", len(atoms.Positions), len(atoms.Numbers))
	}
	return atoms, nil
}

// decodeCell accepts a 3x3 matrix, three lengths (orthorhombic), or the
// object form {"array": ...}.
func decodeCell(raw json.RawMessage) (Cell, error) {
	if len(raw) == 0 {
		return Cell{}, nil
	}

	var wrapped struct {
		Array json.RawMessage `json:"array"`
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Array) > 0 {
			raw = wrapped.Array
		}
	}

	arr, err := DecodeArray(raw)
	if err != nil {
		return Cell{}, err
	}
	switch len(arr.Values) {
	case 0:
		return Cell{}, nil
	case 3:
		return Cell{{X: arr.Values[0]}, {Y: arr.Values[1]}, {Z: arr.Values[2]}}, nil
	case 9:
		var m [3][3]float64
		for i := 0; i < 9; i++ {
			m[i/3][i%3] = arr.Values[i]
		}
		return CellFromRows(m), nil
	default:
		return Cell{}, fmt.Errorf("expected 3 or 9 values, got %d", len(arr.Values))
	}
}
