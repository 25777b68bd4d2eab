package siesta

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOutput(t *testing.T) {
	out, err := ReadOutput(filepath.Join("testdata", "siesta.out"))
	require.NoError(t, err)

	require.NotNil(t, out.NumberOfElectrons)
	assert.Equal(t, 8.0, *out.NumberOfElectrons)

	require.NotNil(t, out.Energy)
	assert.Equal(t, -465.85, *out.Energy, "final block wins over the decomposition")
	require.NotNil(t, out.FreeEnergy)
	assert.Equal(t, -465.845, *out.FreeEnergy)

	require.NotNil(t, out.TotalForce)
	assert.Equal(t, 0.000005, *out.TotalForce)
	assert.Equal(t, [3]float64{0, 0.000003, 0.000004}, *out.TotalForceVector)

	require.NotNil(t, out.Stress)
	assert.Equal(t, -0.000234, out.Stress[1][1])
	assert.Equal(t, 0.000001, out.Stress[0][1])

	require.NotNil(t, out.Dipole)
	assert.Equal(t, [3]float64{0, 0, 1.8481}, *out.Dipole)

	require.Len(t, out.Steps, 2)
	assert.Equal(t, -465.71, out.Steps[0].Energy)
	require.NotNil(t, out.Steps[0].MaxForce)
	assert.Equal(t, 0.7585, *out.Steps[0].MaxForce)
	assert.Equal(t, 0.03, *out.Steps[1].MaxForce)
	require.NotNil(t, out.Steps[0].TotalForce)
	assert.Equal(t, 0.000002, *out.Steps[0].TotalForce)
}

func TestParseOutput_Empty(t *testing.T) {
	out, err := ParseOutput(strings.NewReader("nothing useful\n"))
	require.NoError(t, err)
	assert.Nil(t, out.Energy)
	assert.Nil(t, out.TotalForce)
	assert.Empty(t, out.Steps)
}

func TestParseEIG(t *testing.T) {
	eig, err := ReadEIG(filepath.Join("testdata", "siesta.EIG"))
	require.NoError(t, err)

	assert.Equal(t, -3.5602, eig.FermiEnergy)
	assert.Equal(t, 4, eig.NBands)
	assert.Equal(t, 1, eig.NSpin)
	assert.Equal(t, 2, eig.NK)
	assert.Equal(t, []float64{-24.9, -12.8, -8.9, -6.8}, eig.Values[0][0], "records wrap across lines")
	assert.Equal(t, -6.2, eig.Values[0][1][3])
}

func TestParseEIG_Errors(t *testing.T) {
	tests := map[string]string{
		"truncated":      "-3.5\n 2 1 2\n 1 -1.0 -2.0\n",
		"bad index":      "-3.5\n 1 1 1\n 7 -1.0\n",
		"bad dimensions": "-3.5\n 0 1 1\n",
		"not a number":   "Ef\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEIG(strings.NewReader(content))
			assert.Error(t, err)
		})
	}
}

func TestParseKPAndForces(t *testing.T) {
	kp, err := ReadKP(filepath.Join("testdata", "siesta.KP"))
	require.NoError(t, err)
	assert.Equal(t, [][3]float64{{0, 0, 0}, {0.5, 0, 0}}, kp.Points)
	assert.Equal(t, []float64{0.25, 0.75}, kp.Weights)

	forces, err := ReadForces(filepath.Join("testdata", "siesta.FA"))
	require.NoError(t, err)
	require.Len(t, forces, 3)
	assert.Equal(t, [3]float64{0, -0.02, 0.015}, forces[2])
}

func TestParseBands_SpinPolarized(t *testing.T) {
	b, err := ReadBands(filepath.Join("testdata", "siesta.bands"))
	require.NoError(t, err)

	assert.Equal(t, -3.5, b.FermiEnergy)
	assert.Equal(t, 4, b.NBands)
	assert.Equal(t, 2, b.NSpin)
	assert.Equal(t, 3, b.NK)
	assert.Equal(t, []float64{0, 0.5, 1}, b.Path)
	assert.Equal(t, []float64{-9.9, -3.9, 1.1, 3.1}, b.Energies[1][0])
	assert.Equal(t, 5.0, b.Energies[0][2][3])
	assert.Equal(t, []BandTick{{K: 0, Label: "Γ"}, {K: 1, Label: "X"}}, b.Ticks)
}

func TestParseBands_MissingLabels(t *testing.T) {
	content := "0\n0 1\n-1 1\n1 1 1\n0.0 -0.5\n3\n0.0 'G'\n"
	_, err := ParseBands(strings.NewReader(content))
	assert.ErrorContains(t, err, "expected 3 labels")
}

func TestParseXYZ(t *testing.T) {
	frames, err := ReadANI(filepath.Join("testdata", "siesta.ANI"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []string{"O", "H", "H"}, frames[1].Symbols)
	assert.Equal(t, [3]float64{0, 0.77, -0.48}, frames[1].Positions[1])

	_, err = ParseXYZ(strings.NewReader("2\n\nH 0 0 0\n"))
	assert.ErrorContains(t, err, "truncated")

	_, err = ParseXYZ(strings.NewReader("\n"))
	assert.Error(t, err)
}

func copyFixtures(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func TestCollectResults(t *testing.T) {
	dir := copyFixtures(t, "siesta.out", "siesta.EIG", "siesta.KP")

	res, err := CollectResults(dir, "siesta")
	require.NoError(t, err)

	assert.Equal(t, -465.85, *res.Energy)
	assert.Equal(t, -3.5602, *res.FermiEnergy)
	assert.Equal(t, 1, res.NSpin)
	assert.Equal(t, 2, res.NK)
	assert.Equal(t, 4, res.NBands)
	assert.Len(t, res.KWeights, 2)
	assert.Nil(t, res.Forces)
	assert.Equal(t, []string{"siesta.FA"}, res.Missing)

	path := filepath.Join(dir, "calc_results_task.json")
	require.NoError(t, res.Save(path))
	loaded, err := LoadResults(path)
	require.NoError(t, err)
	assert.Equal(t, res.Eigenvalues, loaded.Eigenvalues)
	assert.Empty(t, loaded.Missing)
}

func TestCollectResults_RequiresOutput(t *testing.T) {
	dir := copyFixtures(t, "siesta.EIG")
	_, err := CollectResults(dir, "siesta")
	assert.Error(t, err)
}

func TestCollectResults_MalformedOptionalFile(t *testing.T) {
	dir := copyFixtures(t, "siesta.out")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "siesta.KP"), []byte("2\n1 0 0 0\n"), 0o644))

	_, err := CollectResults(dir, "siesta")
	assert.ErrorContains(t, err, "siesta.KP")
}
