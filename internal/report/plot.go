package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// coveragePlot builds a plot with one horizontal bar per track segment,
// one row per track.
func coveragePlot(vid string, summaries []TrackSummary) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track coverage - %s", vid)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Track"
	p.Y.Min = -1
	p.Y.Max = float64(len(summaries))

	colors := generateColors(len(summaries))
	ticks := make([]plot.Tick, len(summaries))
	for row, s := range summaries {
		ticks[row] = plot.Tick{Value: float64(row), Label: shortID(s.Root)}
		for i, sp := range s.Spans {
			pts := plotter.XYs{{X: sp.Start, Y: float64(row)}, {X: sp.End, Y: float64(row)}}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			line.Color = colors[row]
			line.Width = vg.Points(6)
			p.Add(line)
			if i == 0 {
				p.Legend.Add(fmt.Sprintf("%s (%d boxes)", shortID(s.Root), s.Boxes), line)
			}
		}
	}
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	p.Add(plotter.NewGrid())
	return p, nil
}

// PlotCoverage writes a PNG coverage plot of summaries to w.
func PlotCoverage(w io.Writer, vid string, summaries []TrackSummary) error {
	p, err := coveragePlot(vid, summaries)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight(len(summaries)), "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveCoverage writes the coverage plot to path; the format follows the
// file extension.
func SaveCoverage(path, vid string, summaries []TrackSummary) error {
	p, err := coveragePlot(vid, summaries)
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight(len(summaries)), path); err != nil {
		return fmt.Errorf("failed to save coverage plot %s: %w", path, err)
	}
	return nil
}

const plotWidth = 12 * vg.Inch

func plotHeight(rows int) vg.Length {
	return vg.Length(2+rows/2) * vg.Inch
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// generateColors creates a palette of n distinct colors.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hexColor returns the i-th of n palette colors as "#rrggbb".
func hexColor(i, n int) string {
	r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// hslToRGB converts HSL (all in [0,1]) to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		q := l + s - l*s
		if l < 0.5 {
			q = l * (1 + s)
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
