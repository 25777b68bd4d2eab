package siesta

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Step is one geometry step of a relaxation or MD run.
type Step struct {
	Energy     float64  `json:"energy"`
	TotalForce *float64 `json:"total_force"`
	MaxForce   *float64 `json:"max_force"`
}

// Output holds what the runner extracts from the main SIESTA log.
type Output struct {
	NumberOfElectrons *float64       `json:"number_of_electrons"`
	TotalForceVector  *[3]float64    `json:"total_force_vector,omitempty"`
	TotalForce        *float64       `json:"total_force"`
	Energy            *float64       `json:"energy"`
	FreeEnergy        *float64       `json:"free_energy"`
	Stress            *[3][3]float64 `json:"stress"`
	Dipole            *[3]float64    `json:"dipole"`
	Steps             []Step         `json:"steps"`
}

const (
	electronsMarker  = "Total number of electrons:"
	totForcePrefix   = "   Tot   "
	maxForcePrefix   = "   Max "
	etotPrefix       = "siesta: Etot    ="
	freeEngPrefix    = "siesta: FreeEng ="
	finalTotalPrefix = "siesta:         Total ="
	finalFreePrefix  = "siesta:         Free ="
	eksPrefix        = "siesta: E_KS(eV) ="
	stressMarker     = "siesta: Stress tensor (static) (eV/Ang**3):"
	dipoleMarker     = "Electric dipole (Debye)"
	forcesMarker     = "siesta: Atomic forces (eV/Ang):"
)

// ReadOutput parses the SIESTA log at path.
func ReadOutput(path string) (*Output, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out, err := ParseOutput(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// ParseOutput scans a SIESTA log. Quantities printed more than once keep
// their last value, so a relaxation reports its final geometry. Lines that
// fail to parse are skipped; only read errors are returned.
func ParseOutput(r io.Reader) (*Output, error) {
	out := &Output{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		lastTot     string
		finalEnergy *float64
		finalFree   *float64
		stressRows  int
		stress      [3][3]float64
		awaitMax    bool
	)

	for sc.Scan() {
		line := sc.Text()

		if stressRows > 0 {
			fields := strings.Fields(strings.TrimPrefix(line, "siesta:"))
			row, ok := parse3(fields)
			if !ok {
				stressRows = 0
				continue
			}
			stress[3-stressRows] = row
			stressRows--
			if stressRows == 0 {
				s := stress
				out.Stress = &s
			}
			continue
		}

		switch {
		case strings.Contains(line, electronsMarker):
			if v, ok := lastFloat(line); ok {
				out.NumberOfElectrons = &v
			}
		case strings.HasPrefix(line, totForcePrefix):
			lastTot = line
			if n := len(out.Steps); n > 0 {
				if v, ok := forceNorm(line); ok {
					out.Steps[n-1].TotalForce = &v
				}
			}
		case strings.HasPrefix(line, forcesMarker):
			awaitMax = true
		case awaitMax && strings.HasPrefix(line, maxForcePrefix):
			awaitMax = false
			fields := strings.Fields(line)
			if len(fields) >= 2 && len(out.Steps) > 0 {
				if v, err := parseFloat(fields[1]); err == nil {
					out.Steps[len(out.Steps)-1].MaxForce = &v
				}
			}
		case strings.HasPrefix(line, etotPrefix):
			if v, ok := valueAfter(line, etotPrefix); ok {
				out.Energy = &v
			}
		case strings.HasPrefix(line, freeEngPrefix):
			if v, ok := valueAfter(line, freeEngPrefix); ok {
				out.FreeEnergy = &v
			}
		case strings.HasPrefix(line, finalTotalPrefix):
			if v, ok := valueAfter(line, finalTotalPrefix); ok {
				finalEnergy = &v
			}
		case strings.HasPrefix(line, finalFreePrefix):
			if v, ok := valueAfter(line, finalFreePrefix); ok {
				finalFree = &v
			}
		case strings.HasPrefix(line, eksPrefix):
			if v, ok := valueAfter(line, eksPrefix); ok {
				out.Steps = append(out.Steps, Step{Energy: v})
			}
		case strings.Contains(line, stressMarker):
			stressRows = 3
		case strings.Contains(line, dipoleMarker):
			if i := strings.Index(line, "="); i >= 0 {
				if d, ok := parse3(strings.Fields(line[i+1:])); ok {
					out.Dipole = &d
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if finalEnergy != nil {
		out.Energy = finalEnergy
	}
	if finalFree != nil {
		out.FreeEnergy = finalFree
	}

	if lastTot != "" {
		fields := strings.Fields(lastTot)
		if len(fields) == 4 {
			if v, ok := parse3(fields[1:]); ok {
				out.TotalForceVector = &v
				norm, _ := forceNorm(lastTot)
				out.TotalForce = &norm
			}
		}
	}

	return out, nil
}

// forceNorm returns the magnitude of a "Tot fx fy fz" line, rounded to
// six decimals.
func forceNorm(line string) (float64, bool) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return 0, false
	}
	v, ok := parse3(fields[1:])
	if !ok {
		return 0, false
	}
	return round6(math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])), true
}

func parse3(fields []string) ([3]float64, bool) {
	var v [3]float64
	if len(fields) < 3 {
		return v, false
	}
	for i := range v {
		x, err := parseFloat(fields[i])
		if err != nil {
			return v, false
		}
		v[i] = x
	}
	return v, true
}

func valueAfter(line, prefix string) (float64, bool) {
	fields := strings.Fields(strings.TrimPrefix(line, prefix))
	if len(fields) == 0 {
		return 0, false
	}
	v, err := parseFloat(fields[0])
	return v, err == nil
}

func lastFloat(line string) (float64, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := parseFloat(fields[len(fields)-1])
	return v, err == nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
