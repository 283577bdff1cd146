package charts

import (
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	apperrors "churncli/internal/errors"
	"churncli/internal/stats"
)

const (
	defaultWidth  = 10 * vg.Inch
	defaultHeight = 6 * vg.Inch
	boxWidth      = vg.Length(40)
	pieSize       = 800
	labelWrap     = 20
)

// BoxGroup is one box of a comparison plot. Names, when set, label each
// value and are printed next to outliers.
type BoxGroup struct {
	Label  string
	Values []float64
	Names  []string
}

// Slice is one wedge of a pie chart.
type Slice struct {
	Label string
	Value float64
}

// Renderer writes charts as PNG files.
type Renderer struct {
	enabled bool
	width   vg.Length
	height  vg.Length
	logger  *slog.Logger
}

// NewRenderer creates a renderer; with enabled false every call is a no-op.
func NewRenderer(enabled bool, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{enabled: enabled, width: defaultWidth, height: defaultHeight, logger: logger}
}

// Enabled reports whether charts are written.
func (r *Renderer) Enabled() bool { return r != nil && r.enabled }

// BoxComparison draws one box per group and labels the values outside the
// Tukey fences of their group.
func (r *Renderer) BoxComparison(path, title, xLabel, yLabel string, groups []BoxGroup) error {
	if !r.Enabled() {
		return nil
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Label
		values := plotter.Values(stats.DropNaN(g.Values))
		if len(values) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(boxWidth, float64(i), values)
		if err != nil {
			return fmt.Errorf("box plot %s: %w", g.Label, err)
		}
		box.FillColor = plotutil.Color(i)
		p.Add(box)

		if labels := outlierLabels(float64(i), g); labels != nil {
			p.Add(labels)
		}
	}
	p.NominalX(names...)

	return r.save(p, path, r.width, r.height)
}

func outlierLabels(x float64, g BoxGroup) *plotter.Labels {
	if len(g.Names) != len(g.Values) {
		return nil
	}
	bounds := stats.TukeyFences(g.Values)
	var xys plotter.XYs
	var text []string
	for i, v := range g.Values {
		if stats.IsOutlier(bounds, v) {
			xys = append(xys, plotter.XY{X: x, Y: v})
			text = append(text, g.Names[i])
		}
	}
	if len(xys) == 0 {
		return nil
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
	if err != nil {
		return nil
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].Color = color.RGBA{R: 200, A: 255}
	}
	return labels
}

// MetricGrid draws one box plot per metric, three panels per row, each
// comparing the categories in order. values[metric][category] holds the
// samples.
func (r *Renderer) MetricGrid(path string, metrics, categories []string, values map[string]map[string][]float64) error {
	if !r.Enabled() || len(metrics) == 0 {
		return nil
	}
	const cols = 3
	rows := (len(metrics) + cols - 1) / cols

	grid := make([][]*plot.Plot, rows)
	for i := range grid {
		grid[i] = make([]*plot.Plot, cols)
		for j := range grid[i] {
			empty := plot.New()
			empty.HideAxes()
			grid[i][j] = empty
		}
	}

	for m, metric := range metrics {
		p := plot.New()
		p.Title.Text = metric
		p.Y.Label.Text = metric
		p.Add(plotter.NewGrid())
		for c, category := range categories {
			vals := plotter.Values(stats.DropNaN(values[metric][category]))
			if len(vals) == 0 {
				continue
			}
			box, err := plotter.NewBoxPlot(boxWidth, float64(c), vals)
			if err != nil {
				return fmt.Errorf("box plot %s/%s: %w", metric, category, err)
			}
			box.FillColor = plotutil.Color(c)
			p.Add(box)
		}
		p.NominalX(categories...)
		grid[m/cols][m%cols] = p
	}

	width := 5 * vg.Inch * cols
	height := 4 * vg.Inch * vg.Length(rows)
	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: rows, Cols: cols, PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2, PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2}
	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		for j := range grid[i] {
			grid[i][j].Draw(canvases[i][j])
		}
	}

	return r.writePNG(path, func(f *os.File) error {
		_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(f)
		return err
	})
}

// Bars draws a bar chart; horizontal bars list labels on the Y axis.
func (r *Renderer) Bars(path, title, xLabel, yLabel string, labels []string, values []float64, horizontal bool) error {
	if !r.Enabled() || len(values) == 0 {
		return nil
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	vals := make(plotter.Values, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			v = 0
		}
		vals[i] = v
	}
	bars, err := plotter.NewBarChart(vals, vg.Points(24))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bars.Color = plotutil.Color(0)
	bars.Horizontal = horizontal
	p.Add(bars)
	if horizontal {
		p.NominalY(labels...)
	} else {
		p.NominalX(labels...)
	}
	return r.save(p, path, r.width, r.height)
}

// Scatter draws points (xs[i], ys[i]) skipping missing values.
func (r *Renderer) Scatter(path, title, xLabel, yLabel string, xs, ys []float64) error {
	if !r.Enabled() {
		return nil
	}
	var pts plotter.XYs
	for i := range xs {
		if i < len(ys) && !math.IsNaN(xs[i]) && !math.IsNaN(ys[i]) {
			pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
		}
	}
	if len(pts) == 0 {
		return nil
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	sc.GlyphStyle.Color = plotutil.Color(1)
	sc.GlyphStyle.Radius = vg.Points(3)
	p.Add(sc)
	return r.save(p, path, r.width, r.height)
}

// ShapSummary plots every attribution of every row, one horizontal band
// per feature, features listed top to bottom in the given order.
func (r *Renderer) ShapSummary(path, title string, features []string, phi [][]float64) error {
	if !r.Enabled() || len(phi) == 0 {
		return nil
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "SHAP value"
	p.Add(plotter.NewGrid())

	n := len(features)
	for j := range features {
		var pts plotter.XYs
		for i, row := range phi {
			// spread points vertically inside the band
			jitter := (float64(i%7) - 3) * 0.05
			pts = append(pts, plotter.XY{X: row[j], Y: float64(n-1-j) + jitter})
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("shap summary %s: %w", features[j], err)
		}
		sc.GlyphStyle.Color = plotutil.Color(j)
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
	}

	reversed := make([]string, n)
	for j, f := range features {
		reversed[n-1-j] = f
	}
	p.NominalY(reversed...)
	return r.save(p, path, r.width, r.height)
}

// Pie draws a pie chart with wrapped labels and percentage shares.
func (r *Renderer) Pie(path, title string, slices []Slice) error {
	if !r.Enabled() || len(slices) == 0 {
		return nil
	}
	var total float64
	for _, s := range slices {
		total += s.Value
	}

	values := make([]chart.Value, 0, len(slices))
	for _, s := range slices {
		if s.Value <= 0 || math.IsNaN(s.Value) {
			continue
		}
		label := fmt.Sprintf("%s (%.1f%%)", wrap(s.Label, labelWrap), s.Value*100/total)
		values = append(values, chart.Value{Value: s.Value, Label: label})
	}
	if len(values) == 0 {
		return nil
	}

	pie := chart.PieChart{
		Title:  title,
		Width:  pieSize,
		Height: pieSize,
		Values: values,
	}
	return r.writePNG(path, func(f *os.File) error {
		return pie.Render(chart.PNG, f)
	})
}

func (r *Renderer) save(p *plot.Plot, path string, w, h vg.Length) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewFileError("mkdir", filepath.Dir(path), err)
	}
	if err := p.Save(w, h, path); err != nil {
		return apperrors.NewFileError("write", path, err)
	}
	r.logger.Info("chart saved", slog.String("file", path))
	return nil
}

func (r *Renderer) writePNG(path string, render func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewFileError("mkdir", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewFileError("create", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return apperrors.NewFileError("write", path, err)
	}
	if err := f.Close(); err != nil {
		return apperrors.NewFileError("close", path, err)
	}
	r.logger.Info("chart saved", slog.String("file", path))
	return nil
}

// wrap breaks s into lines of at most width runes at word boundaries.
func wrap(s string, width int) string {
	words := strings.Fields(s)
	var lines []string
	var line []rune
	for _, w := range words {
		wr := []rune(w)
		if len(line) > 0 && len(line)+1+len(wr) > width {
			lines = append(lines, string(line))
			line = nil
		}
		if len(line) > 0 {
			line = append(line, ' ')
		}
		line = append(line, wr...)
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return strings.Join(lines, "\n")
}
