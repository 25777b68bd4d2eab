package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"siestarunner/internal/atomicfile"
	"siestarunner/internal/config"
	"siestarunner/internal/siesta"
)

// TrajectoryStep is one entry of trajectory_analysis.json.
type TrajectoryStep struct {
	Step           int          `json:"step"`
	Energy         *float64     `json:"energy"`
	ForceMagnitude *float64     `json:"force_magnitude"`
	MaxForce       *float64     `json:"max_force,omitempty"`
	Symbols        []string     `json:"symbols,omitempty"`
	Positions      [][3]float64 `json:"positions"`
}

// Trajectory is trajectory_analysis.json.
type Trajectory struct {
	Steps []TrajectoryStep `json:"steps"`
}

func trajectoryTask() Task {
	return Task{
		Name:   TaskTrajectory,
		Output: config.TrajectoryJSON,
		Run: func(_ context.Context, env *Env) error {
			frames, err := siesta.ReadANI(env.LabelPath("ANI"))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if len(frames) == 0 && len(env.Results.Steps) == 0 {
				return fmt.Errorf("no geometry steps: %w", fs.ErrNotExist)
			}
			traj := BuildTrajectory(frames, env.Results.Steps)
			return atomicfile.WriteJSON(env.Path(config.TrajectoryJSON), traj)
		},
	}
}

// BuildTrajectory pairs the frames of the .ANI file with the energies and
// forces logged for each step. Either side may be shorter; the missing
// fields are left null.
func BuildTrajectory(frames []siesta.Frame, steps []siesta.Step) Trajectory {
	n := max(len(frames), len(steps))
	traj := Trajectory{Steps: make([]TrajectoryStep, n)}
	for i := range traj.Steps {
		st := TrajectoryStep{Step: i + 1}
		if i < len(steps) {
			energy := steps[i].Energy
			st.Energy = &energy
			st.ForceMagnitude = steps[i].TotalForce
			st.MaxForce = steps[i].MaxForce
		}
		if i < len(frames) {
			st.Symbols = frames[i].Symbols
			st.Positions = frames[i].Positions
		}
		traj.Steps[i] = st
	}
	return traj
}
