package siesta

import (
	"fmt"
	"io"
	"os"
)

// Eigenvalues is the content of a .EIG file.
type Eigenvalues struct {
	FermiEnergy float64
	NBands      int
	NSpin       int
	NK          int
	// Values is indexed [spin][k][band], in eV.
	Values [][][]float64
}

// ReadEIG reads a .EIG file.
func ReadEIG(path string) (*Eigenvalues, error) {
	return readFile(path, ParseEIG)
}

// ParseEIG parses the .EIG format: the Fermi energy, then
// "nbands nspin nk", then for every k-point its index followed by
// nbands*nspin energies (all bands of spin 1, then spin 2).
func ParseEIG(r io.Reader) (*Eigenvalues, error) {
	t, err := newTokens("EIG", r)
	if err != nil {
		return nil, err
	}
	ef, err := t.float()
	if err != nil {
		return nil, err
	}
	nb, err := t.int()
	if err != nil {
		return nil, err
	}
	ns, err := t.int()
	if err != nil {
		return nil, err
	}
	nk, err := t.int()
	if err != nil {
		return nil, err
	}
	if nb < 1 || ns < 1 || nk < 1 || ns > 2 {
		return nil, fmt.Errorf("EIG: invalid dimensions nbands=%d nspin=%d nk=%d", nb, ns, nk)
	}

	e := &Eigenvalues{FermiEnergy: ef, NBands: nb, NSpin: ns, NK: nk}
	e.Values = make([][][]float64, ns)
	for s := range e.Values {
		e.Values[s] = make([][]float64, nk)
	}
	for k := 0; k < nk; k++ {
		ik, err := t.int()
		if err != nil {
			return nil, err
		}
		if ik != k+1 {
			return nil, fmt.Errorf("EIG: expected k-point %d, got %d", k+1, ik)
		}
		for s := 0; s < ns; s++ {
			vals, err := t.floats(nb)
			if err != nil {
				return nil, err
			}
			e.Values[s][k] = vals
		}
	}
	return e, nil
}

// KPoints is the content of a .KP file.
type KPoints struct {
	// Points are Cartesian, in 1/Bohr.
	Points  [][3]float64
	Weights []float64
}

// ReadKP reads a .KP file.
func ReadKP(path string) (*KPoints, error) {
	return readFile(path, ParseKP)
}

// ParseKP parses the .KP format: the number of k-points, then one
// "index kx ky kz weight" line per point.
func ParseKP(r io.Reader) (*KPoints, error) {
	t, err := newTokens("KP", r)
	if err != nil {
		return nil, err
	}
	n, err := t.int()
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("KP: invalid k-point count %d", n)
	}
	kp := &KPoints{Points: make([][3]float64, n), Weights: make([]float64, n)}
	for i := 0; i < n; i++ {
		if _, err := t.int(); err != nil {
			return nil, err
		}
		vals, err := t.floats(4)
		if err != nil {
			return nil, err
		}
		kp.Points[i] = [3]float64{vals[0], vals[1], vals[2]}
		kp.Weights[i] = vals[3]
	}
	return kp, nil
}

// ReadForces reads a .FA file: the atom count, then "index fx fy fz" per
// atom, in eV/Ang.
func ReadForces(path string) ([][3]float64, error) {
	return readFile(path, ParseForces)
}

// ParseForces parses the .FA format.
func ParseForces(r io.Reader) ([][3]float64, error) {
	t, err := newTokens("FA", r)
	if err != nil {
		return nil, err
	}
	n, err := t.int()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("FA: invalid atom count %d", n)
	}
	forces := make([][3]float64, n)
	for i := range forces {
		if _, err := t.int(); err != nil {
			return nil, err
		}
		vals, err := t.floats(3)
		if err != nil {
			return nil, err
		}
		forces[i] = [3]float64{vals[0], vals[1], vals[2]}
	}
	return forces, nil
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	v, err := parse(f)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
