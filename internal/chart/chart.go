// Package chart renders round-trip time versus distance scatter plots.
package chart

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tkjaer/geoping/internal/shared"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Crop bounds of the zoomed plot.
const (
	CropMaxMs = 100
	CropMaxKm = 2500
)

var (
	width  = vg.Points(1000)
	height = vg.Points(600)
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no measurements to plot")

// Kind selects one of the rendered views.
type Kind int

const (
	Linear Kind = iota
	LogLog
	Cropped
)

// File returns the file name a view is written to.
func (k Kind) File() string {
	switch k {
	case LogLog:
		return "plot_log.svg"
	case Cropped:
		return "plot_crop.svg"
	default:
		return "plot.svg"
	}
}

func (k Kind) title() string {
	switch k {
	case LogLog:
		return "Ping time vs. distance (log-log)"
	case Cropped:
		return fmt.Sprintf("Ping time vs. distance (0-%d ms, 0-%d km)", CropMaxMs, CropMaxKm)
	default:
		return "Ping time vs. distance"
	}
}

// Kinds lists every view in the order they are written.
var Kinds = []Kind{Linear, LogLog, Cropped}

// points converts measurements to (ms, km) pairs. The log-log view drops
// non-positive values, the cropped view drops everything outside its range.
func points(data []shared.MeasuredDistance, k Kind) plotter.XYs {
	xys := make(plotter.XYs, 0, len(data))
	for _, d := range data {
		x, y := d.Time*1000, d.Distance
		switch k {
		case LogLog:
			if x <= 0 || y <= 0 {
				continue
			}
		case Cropped:
			if x < 0 || x > CropMaxMs || y < 0 || y > CropMaxKm {
				continue
			}
		}
		xys = append(xys, plotter.XY{X: x, Y: y})
	}
	return xys
}

// New builds the plot of one view. The linear and log-log views fail with
// ErrNoData when no point survives filtering.
func New(data []shared.MeasuredDistance, k Kind) (*plot.Plot, error) {
	xys := points(data, k)
	if len(xys) == 0 && k != Cropped {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = k.title()
	p.X.Label.Text = "Time (ms)"
	p.Y.Label.Text = "Distance (km)"
	p.Add(plotter.NewGrid())

	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(s)

	switch k {
	case LogLog:
		p.X.Scale = plot.LogScale{}
		p.Y.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
		widenDegenerate(&p.X)
		widenDegenerate(&p.Y)
	case Cropped:
		p.X.Min, p.X.Max = 0, CropMaxMs
		p.Y.Min, p.Y.Max = 0, CropMaxKm
	}
	return p, nil
}

// widenDegenerate spreads a single-valued log axis over one decade each way;
// the default widening by ±1 can cross zero.
func widenDegenerate(a *plot.Axis) {
	if a.Min == a.Max {
		a.Min, a.Max = a.Min/10, a.Max*10
	}
}

// WriteAll renders every view as SVG into dir and returns the written paths.
// Views without data are skipped.
func WriteAll(data []shared.MeasuredDistance, dir string) ([]string, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot directory: %w", err)
	}

	var written []string
	for _, k := range Kinds {
		p, err := New(data, k)
		if errors.Is(err, ErrNoData) {
			slog.Warn("Skipping plot without data", "plot", k.File())
			continue
		}
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, k.File())
		if err := p.Save(width, height, path); err != nil {
			return written, fmt.Errorf("save %s: %w", path, err)
		}
		slog.Info("Wrote plot", "path", path, "points", len(points(data, k)))
		written = append(written, path)
	}
	return written, nil
}
