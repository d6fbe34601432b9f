package cli

import (
	"github.com/guptarohit/asciigraph"
)

// SpendChart renders one value per day as an ASCII line chart. It returns
// an empty string when there is nothing to plot.
func SpendChart(values []float64, width, height int, caption string) string {
	if len(values) == 0 {
		return ""
	}
	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	// A single point draws nothing useful; repeat it to get a flat line.
	if len(values) == 1 {
		values = []float64{values[0], values[0]}
	}

	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(2),
		asciigraph.Caption(caption),
	)
}
