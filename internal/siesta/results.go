// Package siesta reads the files a SIESTA run leaves in its job directory.
package siesta

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"siestarunner/internal/atomicfile"
)

// CalcResults is the summary of a finished calculation, persisted as
// calc_results_task.json.
type CalcResults struct {
	Label             string         `json:"label"`
	Energy            *float64       `json:"energy"`
	FreeEnergy        *float64       `json:"free_energy"`
	Stress            *[3][3]float64 `json:"stress"`
	Forces            [][3]float64   `json:"forces"`
	FermiEnergy       *float64       `json:"fermi_energy"`
	Eigenvalues       [][][]float64  `json:"eigenvalues"`
	KPoints           [][3]float64   `json:"kpoints"`
	KWeights          []float64      `json:"kweights"`
	Dipole            *[3]float64    `json:"dipole"`
	NSpin             int            `json:"n_spin"`
	NK                int            `json:"n_k"`
	NBands            int            `json:"n_bands"`
	NumberOfElectrons *float64       `json:"number_of_electrons"`
	TotalForce        *float64       `json:"total_force"`
	Steps             []Step         `json:"steps,omitempty"`

	// Missing lists optional outputs that were not found.
	Missing []string `json:"-"`
}

// OutputFile returns the name of the main log for label.
func OutputFile(label string) string {
	return label + ".out"
}

// CollectResults reads the outputs of a run labelled label in dir. The main
// log is required; the .EIG, .KP and .FA files are optional and leave their
// fields empty when absent. A present but malformed file is an error.
func CollectResults(dir, label string) (*CalcResults, error) {
	out, err := ReadOutput(filepath.Join(dir, OutputFile(label)))
	if err != nil {
		return nil, fmt.Errorf("read solver output: %w", err)
	}

	res := &CalcResults{
		Label:             label,
		Energy:            out.Energy,
		FreeEnergy:        out.FreeEnergy,
		Stress:            out.Stress,
		Dipole:            out.Dipole,
		NumberOfElectrons: out.NumberOfElectrons,
		TotalForce:        out.TotalForce,
		Steps:             out.Steps,
	}

	var errs []error
	optional := func(ext string, read func(path string) error) {
		name := label + "." + ext
		err := read(filepath.Join(dir, name))
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			res.Missing = append(res.Missing, name)
		default:
			errs = append(errs, err)
		}
	}

	optional("EIG", func(path string) error {
		eig, err := ReadEIG(path)
		if err != nil {
			return err
		}
		ef := eig.FermiEnergy
		res.FermiEnergy = &ef
		res.Eigenvalues = eig.Values
		res.NSpin, res.NK, res.NBands = eig.NSpin, eig.NK, eig.NBands
		return nil
	})
	optional("KP", func(path string) error {
		kp, err := ReadKP(path)
		if err != nil {
			return err
		}
		res.KPoints, res.KWeights = kp.Points, kp.Weights
		return nil
	})
	optional("FA", func(path string) error {
		forces, err := ReadForces(path)
		if err != nil {
			return err
		}
		res.Forces = forces
		return nil
	})

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return res, nil
}

// Save writes the results as JSON.
func (r *CalcResults) Save(path string) error {
	return atomicfile.WriteJSON(path, r)
}

// LoadResults reads results written by Save.
func LoadResults(path string) (*CalcResults, error) {
	var r CalcResults
	if err := atomicfile.ReadJSON(path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
