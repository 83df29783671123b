// Package charts renders the forecast and top-product charts as PNG files
// with gonum/plot.
package charts

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/sells-group/retail-insights/internal/model"
)

// DPI is the resolution of rendered images.
const DPI = 100

var (
	historyColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	forecastColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	barColor      = color.RGBA{R: 135, G: 206, B: 235, A: 255}
)

// Size is the physical size of a chart.
type Size struct {
	Width, Height vg.Length
}

// Inches builds a Size from inch dimensions.
func Inches(w, h float64) Size {
	return Size{Width: vg.Length(w) * vg.Inch, Height: vg.Length(h) * vg.Inch}
}

// Forecast draws the historical series as a solid line and the forecast as a
// dashed line on a date axis.
func Forecast(path, title string, history, forecast []model.DailyPoint, size Size) error {
	if len(history) == 0 {
		return eris.New("charts: no history to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Quantity"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	hist, err := plotter.NewLine(toXYs(history))
	if err != nil {
		return eris.Wrap(err, "charts: history line")
	}
	hist.LineStyle.Color = historyColor
	hist.LineStyle.Width = vg.Points(1.5)
	p.Add(hist)
	p.Legend.Add("Historical Sales", hist)

	if len(forecast) > 0 {
		fc, err := plotter.NewLine(toXYs(forecast))
		if err != nil {
			return eris.Wrap(err, "charts: forecast line")
		}
		fc.LineStyle.Color = forecastColor
		fc.LineStyle.Width = vg.Points(1.5)
		fc.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
		p.Add(fc)
		p.Legend.Add("Forecasted Sales", fc)
	}
	p.Legend.Top = true

	return save(p, path, size)
}

// Bar draws one bar per product, labelled along the x axis.
func Bar(path, title string, totals []model.ProductTotal, size Size) error {
	if len(totals) == 0 {
		return eris.New("charts: no products to plot")
	}

	values := make(plotter.Values, len(totals))
	names := make([]string, len(totals))
	for i, t := range totals {
		values[i] = float64(t.Quantity)
		names[i] = t.Description
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Product"
	p.Y.Label.Text = "Total Quantity Sold"

	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return eris.Wrap(err, "charts: bar chart")
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	return save(p, path, size)
}

// Pie draws each product's share of the combined quantity with percentage
// labels and a legend.
func Pie(path, title string, totals []model.ProductTotal, size Size) error {
	pie, err := NewPieChart(totals)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(pie)
	for i, t := range totals {
		p.Legend.Add(t.Description, swatch{pie.Colors[i]})
	}
	p.Legend.Left = true
	p.Legend.Top = true

	return save(p, path, size)
}

func toXYs(points []model.DailyPoint) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = float64(pt.Day.Unix())
		xys[i].Y = pt.Quantity
	}
	return xys
}

// save renders p onto a PNG canvas and writes it to path. The image is
// written to a temporary file first so readers never see a partial PNG.
func save(p *plot.Plot, path string, size Size) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "charts: create dir for %s", path)
	}

	c := vgimg.NewWith(vgimg.UseWH(size.Width, size.Height), vgimg.UseDPI(DPI))
	p.Draw(draw.New(c))

	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "charts: create temp for %s", path)
	}
	tmp := f.Name()
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "charts: encode %s", path)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "charts: close %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "charts: rename to %s", path)
	}
	return nil
}
