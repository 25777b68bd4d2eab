package siesta

import (
	"fmt"
	"io"
	"strings"
)

// BandTick is a labelled special point on the band path.
type BandTick struct {
	K     float64 `json:"k"`
	Label string  `json:"label"`
}

// Bands is the content of a .bands file.
type Bands struct {
	FermiEnergy float64
	KMin, KMax  float64
	EMin, EMax  float64
	NBands      int
	NSpin       int
	NK          int
	// Path is the accumulated distance along the band path, in 1/Bohr.
	Path []float64
	// Energies is indexed [spin][k][band], in eV.
	Energies [][][]float64
	Ticks    []BandTick
}

// ReadBands reads a .bands file.
func ReadBands(path string) (*Bands, error) {
	return readFile(path, ParseBands)
}

// ParseBands parses the .bands format: Fermi energy; kmin kmax; emin emax;
// nbands nspin nk; then per k-point its path coordinate followed by
// nbands*nspin energies; then the number of labels and one
// "k 'label'" line each.
func ParseBands(r io.Reader) (*Bands, error) {
	t, err := newTokens("bands", r)
	if err != nil {
		return nil, err
	}
	header, err := t.floats(5)
	if err != nil {
		return nil, err
	}
	b := &Bands{
		FermiEnergy: header[0],
		KMin:        header[1],
		KMax:        header[2],
		EMin:        header[3],
		EMax:        header[4],
	}
	if b.NBands, err = t.int(); err != nil {
		return nil, err
	}
	if b.NSpin, err = t.int(); err != nil {
		return nil, err
	}
	if b.NK, err = t.int(); err != nil {
		return nil, err
	}
	if b.NBands < 1 || b.NSpin < 1 || b.NSpin > 2 || b.NK < 1 {
		return nil, fmt.Errorf("bands: invalid dimensions nbands=%d nspin=%d nk=%d", b.NBands, b.NSpin, b.NK)
	}

	b.Path = make([]float64, b.NK)
	b.Energies = make([][][]float64, b.NSpin)
	for s := range b.Energies {
		b.Energies[s] = make([][]float64, b.NK)
	}
	for k := 0; k < b.NK; k++ {
		if b.Path[k], err = t.float(); err != nil {
			return nil, err
		}
		for s := 0; s < b.NSpin; s++ {
			vals, err := t.floats(b.NBands)
			if err != nil {
				return nil, err
			}
			b.Energies[s][k] = vals
		}
	}

	b.Ticks, err = parseTicks(t.remainingLines())
	if err != nil {
		return nil, err
	}
	return b, nil
}

func parseTicks(lines []string) ([]BandTick, error) {
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i == len(lines) {
		return nil, nil
	}
	var n int
	if _, err := fmt.Sscan(lines[i], &n); err != nil {
		return nil, fmt.Errorf("bands: label count: %w", err)
	}
	i++

	ticks := make([]BandTick, 0, n)
	for ; i < len(lines) && len(ticks) < n; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		k, err := parseFloat(fields[0])
		if err != nil {
			return nil, fmt.Errorf("bands: label position: %w", err)
		}
		label := ""
		if len(fields) == 2 {
			label = strings.Trim(strings.TrimSpace(fields[1]), `'"`)
		}
		ticks = append(ticks, BandTick{K: k, Label: normalizeLabel(label)})
	}
	if len(ticks) != n {
		return nil, fmt.Errorf("bands: expected %d labels, found %d", n, len(ticks))
	}
	return ticks, nil
}

func normalizeLabel(label string) string {
	switch strings.ToLower(strings.TrimPrefix(label, `\`)) {
	case "gamma", "g":
		return "Γ"
	}
	return label
}
