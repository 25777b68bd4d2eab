package analysis

import (
	"context"

	"siestarunner/internal/atomicfile"
	"siestarunner/internal/config"
	"siestarunner/internal/siesta"
)

// GeneralInfo is general_info.json.
type GeneralInfo struct {
	NSpin             int      `json:"n_spin"`
	NK                int      `json:"n_k"`
	NEig              int      `json:"n_eig"`
	FermiEnergy       *float64 `json:"fermi_energy"`
	Energy            *float64 `json:"energy"`
	NumberOfElectrons *float64 `json:"number_of_electrons"`
	NormOfForce       *float64 `json:"norm_of_force"`
	TotalForce        *float64 `json:"Total_force,omitempty"`
	NOccupied         *float64 `json:"n_occupied,omitempty"`
}

func generalInfoTask() Task {
	return Task{
		Name:   TaskGeneralInfo,
		Output: config.GeneralInfoJSON,
		Run: func(_ context.Context, env *Env) error {
			info := BuildGeneralInfo(env.Results, readOutputOrNil(env))
			return atomicfile.WriteJSON(env.Path(config.GeneralInfoJSON), info)
		},
	}
}

// readOutputOrNil re-reads the main log so general info reflects it even
// when calc_results_task.json was written by an older runner.
func readOutputOrNil(env *Env) *siesta.Output {
	out, err := siesta.ReadOutput(env.Path(siesta.OutputFile(env.Label)))
	if err != nil {
		env.Logger.Warnw("could not read solver output for general info", "error", err)
		return nil
	}
	return out
}

// BuildGeneralInfo summarises res. Electron count and total force come from
// out when given, falling back to res.
func BuildGeneralInfo(res *siesta.CalcResults, out *siesta.Output) GeneralInfo {
	info := GeneralInfo{
		NSpin:             res.NSpin,
		NK:                res.NK,
		NEig:              res.NBands,
		FermiEnergy:       res.FermiEnergy,
		Energy:            res.Energy,
		NumberOfElectrons: res.NumberOfElectrons,
		TotalForce:        res.TotalForce,
	}
	if out != nil {
		if out.NumberOfElectrons != nil {
			info.NumberOfElectrons = out.NumberOfElectrons
		}
		if out.TotalForce != nil {
			info.TotalForce = out.TotalForce
		}
	}
	info.NormOfForce = info.TotalForce

	if info.NSpin != 0 && info.NK != 0 && info.NEig != 0 &&
		info.NumberOfElectrons != nil && *info.NumberOfElectrons != 0 {
		occupied := float64(info.NSpin) * *info.NumberOfElectrons / 2
		info.NOccupied = &occupied
	}
	return info
}
