package analysis

import (
	"context"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"siestarunner/internal/atomicfile"
	"siestarunner/internal/config"
	"siestarunner/internal/siesta"
)

// Plotly figure schema, limited to the attributes the band figure sets.
type (
	Figure struct {
		Data   []Trace `json:"data"`
		Layout Layout  `json:"layout"`
	}

	Trace struct {
		Type       string    `json:"type"`
		X          []float64 `json:"x"`
		Y          []float64 `json:"y"`
		Mode       string    `json:"mode,omitempty"`
		Name       string    `json:"name,omitempty"`
		ShowLegend bool      `json:"showlegend"`
		Line       Line      `json:"line"`
		YAxis      string    `json:"yaxis,omitempty"`
	}

	Line struct {
		Shape string  `json:"shape,omitempty"`
		Color string  `json:"color"`
		Width float64 `json:"width"`
	}

	Font struct {
		Family string `json:"family,omitempty"`
		Size   int    `json:"size"`
		Color  string `json:"color,omitempty"`
	}

	Title struct {
		Text string `json:"text"`
		Font *Font  `json:"font,omitempty"`
	}

	Axis struct {
		Range    []float64 `json:"range,omitempty"`
		TickMode string    `json:"tickmode,omitempty"`
		TickVals []float64 `json:"tickvals,omitempty"`
		TickText []string  `json:"ticktext,omitempty"`
		Mirror   bool      `json:"mirror"`
		Ticks    string    `json:"ticks"`
		TickFont Font      `json:"tickfont"`
		Title    Title     `json:"title"`
	}

	Legend struct {
		Font Font `json:"font"`
	}

	Layout struct {
		Title        Title  `json:"title"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		XAxis        Axis   `json:"xaxis"`
		YAxis        Axis   `json:"yaxis"`
		Legend       Legend `json:"legend"`
		PlotBGColor  string `json:"plot_bgcolor"`
		PaperBGColor string `json:"paper_bgcolor"`
	}
)

// bandColorCycle is how many palette entries band lines cycle through; the
// remaining entries are unused by band lines.
const bandColorCycle = 5

// bandPalette is indexed [spin][band % bandColorCycle].
var bandPalette = [2][]string{
	{
		"rgba(0, 149, 168, 0.4)",
		"rgba(17, 46, 81,0.4)",
		"rgba(255, 112, 67, 0.4)",
		"rgba(128, 64, 211, 0.4)",
		"rgba(161, 132, 151, 0.4)",
		"rgba(187, 66, 21, 0.4)",
		"rgba(174, 154, 15, 0.4)",
		"rgba(15, 121, 174, 0.4)",
	},
	{
		"rgba(0, 149, 168, 0.8)",
		"rgba(17, 46, 81,0.8)",
		"rgba(255, 112, 67, 0.8)",
		"rgba(128, 64, 211, 0.8)",
		"rgba(161, 132, 151, 0.8)",
		"rgba(187, 66, 21, 0.8)",
		"rgba(174, 154, 15, 0.8)",
		"rgba(15, 121, 174, 0.8)",
	},
}

const (
	guideColor     = "rgb(180, 171, 186)"
	axisFont       = "Helvetica, san-serif"
	legendBands    = 3
	tickMergeDelta = 1e-6
	spinShift      = 0.0001
)

// BandEnergyRange is the visible energy window relative to the Fermi level.
var BandEnergyRange = [2]float64{-6, 8}

func bandStructureTask(label string) Task {
	input := config.LabelFile(label, "bands")
	return Task{
		Name:   TaskBandStructure,
		Inputs: []string{input},
		Output: config.BandFigureJSON,
		Run: func(_ context.Context, env *Env) error {
			b, err := siesta.ReadBands(env.Path(input))
			if err != nil {
				return err
			}
			return atomicfile.WriteJSON(env.Path(config.BandFigureJSON), BuildBandFigure(b))
		},
	}
}

// BuildBandFigure renders a band structure, with energies shifted so the
// Fermi level sits at zero.
func BuildBandFigure(b *siesta.Bands) Figure {
	xmin, xmax := floats.Min(b.Path), floats.Max(b.Path)
	tickVals, tickText := mergeTicks(b.Ticks)

	var data []Trace
	guide := func(x, y []float64) Trace {
		return Trace{Type: "scatter", X: x, Y: y, Line: Line{Color: guideColor, Width: 1}}
	}
	for _, k := range tickVals {
		data = append(data, guide([]float64{k, k}, []float64{BandEnergyRange[0] - 1, BandEnergyRange[1] + 1}))
	}
	for _, y := range []float64{BandEnergyRange[0], BandEnergyRange[1], 0} {
		data = append(data, guide([]float64{-1, xmax + 1}, []float64{y, y}))
	}

	lo, hi := legendWindow(b)
	spinLabels := []string{""}
	if b.NSpin == 2 {
		spinLabels = []string{"↑", "↓"}
	}
	for s := 0; s < b.NSpin; s++ {
		palette := bandPalette[min(s, len(bandPalette)-1)]
		for i := 0; i < b.NBands; i++ {
			y := make([]float64, b.NK)
			for k := 0; k < b.NK; k++ {
				y[k] = b.Energies[s][k][i] - b.FermiEnergy - spinShift*float64(s)
			}
			data = append(data, Trace{
				Type:       "scatter",
				X:          b.Path,
				Y:          y,
				Mode:       "lines",
				Name:       "band_" + strconv.Itoa(i+1) + spinLabels[s],
				ShowLegend: i >= lo && i < hi,
				Line:       Line{Shape: "linear", Color: palette[i%bandColorCycle], Width: float64(4 - 2*s)},
				YAxis:      "y1",
			})
		}
	}

	return Figure{
		Data: data,
		Layout: Layout{
			Width:  1000,
			Height: 800,
			XAxis: Axis{
				Range:    []float64{xmin, xmax},
				TickMode: "array",
				TickVals: tickVals,
				TickText: tickText,
				Mirror:   true,
				Ticks:    "outside",
				TickFont: Font{Family: axisFont, Size: 24, Color: "black"},
				Title:    Title{Font: &Font{Family: axisFont, Size: 8}},
			},
			YAxis: Axis{
				Range:    []float64{BandEnergyRange[0], BandEnergyRange[1]},
				Mirror:   true,
				Ticks:    "outside",
				TickFont: Font{Family: axisFont, Size: 18, Color: "black"},
				Title:    Title{Text: "Energy (eV)", Font: &Font{Family: axisFont, Size: 24}},
			},
			Legend:       Legend{Font: Font{Family: "Courier", Size: 24, Color: "black"}},
			PlotBGColor:  "rgba(249,254,254, 0.99)",
			PaperBGColor: "rgba(249,253,253, 0.99)",
		},
	}
}

// legendWindow returns the half-open band range [lo, hi) shown in the
// legend: legendBands bands on each side of the highest fully occupied one.
func legendWindow(b *siesta.Bands) (lo, hi int) {
	below := 0
	for i := 0; i < b.NBands; i++ {
		top := math.Inf(-1)
		for s := 0; s < b.NSpin; s++ {
			for k := 0; k < b.NK; k++ {
				top = math.Max(top, b.Energies[s][k][i]-b.FermiEnergy)
			}
		}
		if top < 0 {
			below++
		}
	}
	return max(below-legendBands, 0), min(below+legendBands, b.NBands)
}

// mergeTicks collapses labels at the same path position, which mark a
// discontinuity, into one "A,B" tick.
func mergeTicks(ticks []siesta.BandTick) ([]float64, []string) {
	vals := make([]float64, 0, len(ticks))
	text := make([]string, 0, len(ticks))
	for _, t := range ticks {
		if n := len(vals); n > 0 && math.Abs(vals[n-1]-t.K) < tickMergeDelta {
			if text[n-1] != t.Label {
				text[n-1] += "," + t.Label
			}
			continue
		}
		vals = append(vals, t.K)
		text = append(text, t.Label)
	}
	return vals, text
}
