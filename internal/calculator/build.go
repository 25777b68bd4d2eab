// Package calculator turns the backend's structure and settings documents
// into a SIESTA input deck and stages the pseudopotentials it needs.
package calculator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"siestarunner/internal/config"
	"siestarunner/internal/structure"
)

// spinModes maps accepted spellings to SIESTA's Spin values.
var spinModes = map[string]string{
	"":              "non-polarized",
	"none":          "non-polarized",
	"non-polarized": "non-polarized",
	"unpolarized":   "non-polarized",
	"polarized":     "polarized",
	"collinear":     "polarized",
	"non-collinear": "non-collinear",
	"noncollinear":  "non-collinear",
	"spin-orbit":    "spin-orbit",
	"spinorbit":     "spin-orbit",
}

var mdEnsembles = map[string]string{
	"":    "Verlet",
	"nve": "Verlet",
	"nvt": "Nose",
}

// BuildOptions carries the job-level values that are not part of the
// backend documents.
type BuildOptions struct {
	Label       string
	ProjectType config.ProjectType
}

// BuildInput assembles the FDF document for atoms. The structure must
// already be centred if it is a molecule.
func BuildInput(atoms *structure.Atoms, calc CalcSettings, params Parameters, opts BuildOptions) (*Input, error) {
	if err := atoms.Validate(); err != nil {
		return nil, fmt.Errorf("invalid structure: %w", err)
	}
	if !atoms.Periodic() {
		return nil, errors.New("structure is not periodic; center it in a box first")
	}
	label := opts.Label
	if label == "" {
		label = "siesta"
	}
	spin, ok := spinModes[strings.ToLower(strings.TrimSpace(calc.Spin))]
	if !ok {
		return nil, fmt.Errorf("unknown spin mode %q", calc.Spin)
	}
	kgrid := calc.KGrid()
	for i, n := range kgrid {
		if n < 1 {
			return nil, fmt.Errorf("k-grid size along axis %d must be positive (got %d)", i, n)
		}
	}

	in := NewInput()
	in.Set("SystemName", label)
	in.Set("SystemLabel", label)

	kinds, index := atoms.Species()
	in.Set("NumberOfSpecies", len(kinds))
	in.Set("NumberOfAtoms", atoms.Len())
	speciesLines := make([]string, len(kinds))
	for i, z := range kinds {
		speciesLines[i] = fmt.Sprintf("%d %d %s", i+1, z, structure.Symbol(z))
	}
	in.SetBlock("ChemicalSpeciesLabel", speciesLines)

	in.Set("LatticeConstant", "1.0 Ang")
	rows := atoms.Cell.Rows()
	latticeLines := make([]string, 3)
	for i, r := range rows {
		latticeLines[i] = fmt.Sprintf("%16.10f %16.10f %16.10f", r[0], r[1], r[2])
	}
	in.SetBlock("LatticeVectors", latticeLines)

	in.Set("AtomicCoordinatesFormat", "Ang")
	coordLines := make([]string, atoms.Len())
	for i, p := range atoms.Positions {
		coordLines[i] = fmt.Sprintf("%16.10f %16.10f %16.10f %d", p.X, p.Y, p.Z, index[i])
	}
	in.SetBlock("AtomicCoordinatesAndAtomicSpecies", coordLines)

	in.SetBlock("kgrid_Monkhorst_Pack", []string{
		fmt.Sprintf("%d 0 0 0.0", kgrid[0]),
		fmt.Sprintf("0 %d 0 0.0", kgrid[1]),
		fmt.Sprintf("0 0 %d 0.0", kgrid[2]),
	})

	in.Set("XC.functional", calc.XC)
	in.Set("XC.authors", calc.XCAuthors)
	in.Set("Spin", spin)
	in.Set("PAO.EnergyShift", fmt.Sprintf("%g eV", float64(calc.EnergyShift)))
	in.Set("PAO.BasisSize", calc.BasisSet)
	in.Set("MeshCutoff", fmt.Sprintf("%g Ry", float64(calc.MeshCutoff)))
	in.Set("DM.MixingWeight", calc.MixingCoeff)
	in.Set("MaxSCFIterations", calc.MaxIter.Int())
	in.Set("DM.UseSaveDM", true)

	in.Set("WriteEigenvalues", true)
	in.Set("WriteKpoints", true)
	in.Set("WriteForces", true)
	in.Set("WriteCoorXmol", true)
	in.Set("SaveElectrostaticPotential", true)

	if params.BandWanted {
		nk := params.BandInputs.NKForBand.Int()
		if nk < 2 {
			return nil, fmt.Errorf("nkforband must be at least 2 (got %d)", nk)
		}
		path := structure.NewBandPath(atoms.Cell, nk)
		lines := make([]string, len(path.Lines))
		for i, l := range path.Lines {
			label := l.Label
			if label == "G" {
				label = `\Gamma`
			}
			lines[i] = fmt.Sprintf("%d %.8f %.8f %.8f %s", l.Points, l.K[0], l.K[1], l.K[2], label)
		}
		in.Set("BandLinesScale", "ReciprocalLatticeVectors")
		in.SetBlock("BandLines", lines)
	}

	if params.DOSWanted {
		d := params.DOSInputs
		if d.EMax <= d.EMin {
			return nil, fmt.Errorf("dos energy window [%g, %g] is empty", float64(d.EMin), float64(d.EMax))
		}
		unit := d.SelectedUnit
		if unit == "" {
			unit = "eV"
		}
		in.SetBlock("ProjectedDensityOfStates", []string{
			fmt.Sprintf("%8.4f %8.4f %8.4f 3220 %s", float64(d.EMin), float64(d.EMax), float64(d.FWHM), unit),
		})
	}

	if params.ChargeWanted {
		c := params.ChargeInputs
		in.Set("WriteMullikenPop", c.Mulliken.Int())
		in.Set("WriteHirshfeldPop", c.Hirshfeld)
		in.Set("WriteVoronoiPop", c.Voronoi)
		in.Set("SaveRho", true)
	}

	switch opts.ProjectType {
	case config.ProjectTypeGeometryOptimization:
		r := params.RelaxInputs
		in.Set("MD.TypeOfRun", "CG")
		in.Set("MD.NumCGsteps", r.Steps.Int())
		in.Set("MD.MaxForceTol", fmt.Sprintf("%g eV/Ang", float64(r.MaxForce)))
		in.Set("MD.VariableCell", r.VariableCell)
		in.Set("WriteMDXmol", true)
		in.Set("WriteMDHistory", true)
	case config.ProjectTypeMD:
		m := params.MDInputs
		run, ok := mdEnsembles[strings.ToLower(m.Ensemble)]
		if !ok {
			return nil, fmt.Errorf("unknown md ensemble %q", m.Ensemble)
		}
		in.Set("MD.TypeOfRun", run)
		in.Set("MD.InitialTimeStep", 1)
		in.Set("MD.FinalTimeStep", m.Steps.Int())
		in.Set("MD.LengthTimeStep", fmt.Sprintf("%g fs", float64(m.TimeStep)))
		in.Set("MD.InitialTemperature", fmt.Sprintf("%g K", float64(m.Temperature)))
		if run == "Nose" {
			in.Set("MD.TargetTemperature", fmt.Sprintf("%g K", float64(m.Temperature)))
		}
		in.Set("WriteMDXmol", true)
		in.Set("WriteMDHistory", true)
	}

	return in, nil
}

// WriteInput writes the document to <dir>/<label>.fdf and returns the path.
func WriteInput(dir, label string, in *Input) (string, error) {
	path := filepath.Join(dir, label+".fdf")
	tmp, err := os.CreateTemp(dir, "."+label+".fdf.tmp-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := in.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", err
	}
	return path, nil
}
