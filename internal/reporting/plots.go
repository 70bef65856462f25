// Package reporting renders diagnostic plots from a finished trace.
// These are post-run artifacts for humans; the video pipeline downstream
// consumes the trace itself.
package reporting

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"github.com/zerodha/logf"

	"github.com/venlab/physgate/pkg/trace"
)

// PlotRenderer writes SVG plots into an assets directory.
type PlotRenderer struct {
	assetsDir string
	log       logf.Logger
}

// NewPlotRenderer creates a renderer targeting the given directory.
func NewPlotRenderer(assetsDir string, log logf.Logger) *PlotRenderer {
	return &PlotRenderer{assetsDir: assetsDir, log: log}
}

// GenerateEnergyVsTimePlot generates an SVG plot of total energy vs. time.
func (pr *PlotRenderer) GenerateEnergyVsTimePlot(tr *trace.Trace) error {
	if tr == nil || len(tr.Samples) == 0 {
		return fmt.Errorf("cannot generate energy plot: no samples")
	}

	pts := make(plotter.XYs, len(tr.Samples))
	for i, s := range tr.Samples {
		pts[i].X = s.T
		pts[i].Y = s.Energy
	}

	p := plot.New()
	p.Title.Text = "Total Energy vs. Time"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Energy (J)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create line plotter: %w", err)
	}
	line.Color = color.RGBA{B: 255, A: 255}
	p.Add(line)

	plotPath := filepath.Join(pr.assetsDir, "energy_vs_time.svg")
	if err := p.Save(4*vg.Inch, 4*vg.Inch, plotPath); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", plotPath, err)
	}
	pr.log.Info("Successfully generated plot", "path", plotPath)
	return nil
}

// GenerateTrajectoryPlot generates an SVG x/y trajectory plot for one body.
func (pr *PlotRenderer) GenerateTrajectoryPlot(tr *trace.Trace, bodyID string) error {
	if tr == nil || len(tr.Samples) == 0 {
		return fmt.Errorf("cannot generate trajectory plot: no samples")
	}

	pts := make(plotter.XYs, 0, len(tr.Samples))
	for i := range tr.Samples {
		b, ok := tr.BodyAt(i, bodyID)
		if !ok {
			continue // body retired by a merge mid-run
		}
		pts = append(pts, plotter.XY{X: b.Position.X, Y: b.Position.Y})
	}
	if len(pts) == 0 {
		return fmt.Errorf("body %q never appears in the trace", bodyID)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trajectory of %s", bodyID)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create line plotter: %w", err)
	}
	line.Color = color.RGBA{R: 255, A: 255}
	p.Add(line)

	plotPath := filepath.Join(pr.assetsDir, fmt.Sprintf("trajectory_%s.svg", bodyID))
	if err := p.Save(4*vg.Inch, 4*vg.Inch, plotPath); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", plotPath, err)
	}
	pr.log.Info("Successfully generated plot", "path", plotPath)
	return nil
}
