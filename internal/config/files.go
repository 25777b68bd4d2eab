package config

// Job directory inputs written by the backend.
const (
	AtomsJSON      = "atomic_struct.json"
	CalculatorJSON = "calculator.json"
	ParametersJSON = "parameters.json"
)

// Files produced by the runner.
const (
	CalcResultsJSON    = "calc_results_task.json"
	GeneralInfoJSON    = "general_info.json"
	DOSJSON            = "DOS.json"
	PDOSJSON           = "pdos_data.json"
	BandFigureJSON     = "band_structure_plot.json"
	RhoGridJSON        = "Rho_grid.json"
	PotentialGridJSON  = "ElectrostaticPotential_grid.json"
	TrajectoryJSON     = "trajectory_analysis.json"
	AnalysisReportJSON = "analysis_report.json"
)

// Grid files SIESTA writes independently of the system label.
const (
	RhoGridNC       = "Rho.grid.nc"
	PotentialGridNC = "ElectrostaticPotential.grid.nc"
)

// LabelFile returns the name of a SIESTA output derived from the system
// label, e.g. LabelFile("siesta", "EIG") == "siesta.EIG".
func LabelFile(label, ext string) string {
	return label + "." + ext
}
