package structure

import (
	"fmt"
	"strings"
)

var symbols = [...]string{
	"X",
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn",
	"Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd",
	"In", "Sn", "Sb", "Te", "I", "Xe",
	"Cs", "Ba",
	"La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er", "Tm", "Yb", "Lu",
	"Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg",
	"Tl", "Pb", "Bi", "Po", "At", "Rn",
	"Fr", "Ra",
	"Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es", "Fm", "Md", "No", "Lr",
}

// MaxAtomicNumber is the largest atomic number with a known symbol.
const MaxAtomicNumber = len(symbols) - 1

// Symbol returns the chemical symbol for atomic number z, or "X" when z is
// out of range.
func Symbol(z int) string {
	if z < 1 || z > MaxAtomicNumber {
		return "X"
	}
	return symbols[z]
}

// AtomicNumber returns the atomic number for a chemical symbol. The match is
// case-insensitive.
func AtomicNumber(symbol string) (int, error) {
	s := strings.TrimSpace(symbol)
	for z := 1; z <= MaxAtomicNumber; z++ {
		if strings.EqualFold(symbols[z], s) {
			return z, nil
		}
	}
	return 0, fmt.Errorf("unknown chemical symbol %q", symbol)
}
