package charts

import (
	"fmt"
	"image/color"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/sells-group/retail-insights/internal/model"
)

// pieStart is the angle of the first slice edge, counter-clockwise from the
// positive x axis.
const pieStart = 140 * math.Pi / 180

// PieChart is a plot.Plotter drawing filled wedges around the canvas centre.
type PieChart struct {
	Values []float64
	Colors []color.Color
	// Radius as a fraction of half the smaller canvas side.
	Radius float64
	// LabelRadius places percentage labels as a fraction of the radius.
	LabelRadius float64

	total float64
}

// NewPieChart builds a pie of product quantities. Non-positive quantities
// are rejected since a wedge cannot represent them.
func NewPieChart(totals []model.ProductTotal) (*PieChart, error) {
	if len(totals) == 0 {
		return nil, eris.New("charts: no products to plot")
	}
	pc := &PieChart{Radius: 0.85, LabelRadius: 0.65}
	for i, t := range totals {
		if t.Quantity <= 0 {
			return nil, eris.Errorf("charts: %q has non-positive quantity %d", t.Description, t.Quantity)
		}
		pc.Values = append(pc.Values, float64(t.Quantity))
		pc.Colors = append(pc.Colors, plotutil.Color(i))
		pc.total += float64(t.Quantity)
	}
	return pc, nil
}

// Shares returns each value's fraction of the total.
func (pc *PieChart) Shares() []float64 {
	out := make([]float64, len(pc.Values))
	for i, v := range pc.Values {
		out[i] = v / pc.total
	}
	return out
}

// Plot implements plot.Plotter.
func (pc *PieChart) Plot(c draw.Canvas, plt *plot.Plot) {
	center := c.Center()
	r := vg.Length(pc.Radius) * min(c.Max.X-c.Min.X, c.Max.Y-c.Min.Y) / 2

	sty := plt.Legend.TextStyle
	sty.XAlign = draw.XCenter
	sty.YAlign = draw.YCenter

	angle := pieStart
	for i, share := range pc.Shares() {
		sweep := share * 2 * math.Pi

		var path vg.Path
		path.Move(center)
		path.Line(polar(center, r, angle))
		path.Arc(center, r, angle, sweep)
		path.Close()
		c.SetColor(pc.Colors[i])
		c.Fill(path)

		mid := angle + sweep/2
		c.FillText(sty, polar(center, r*vg.Length(pc.LabelRadius), mid), fmt.Sprintf("%.1f%%", share*100))
		angle += sweep
	}
}

func polar(center vg.Point, r vg.Length, angle float64) vg.Point {
	return vg.Point{
		X: center.X + r*vg.Length(math.Cos(angle)),
		Y: center.Y + r*vg.Length(math.Sin(angle)),
	}
}

// swatch is a legend thumbnail filled with one colour.
type swatch struct{ color.Color }

// Thumbnail implements plot.Thumbnailer.
func (s swatch) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	}
	c.FillPolygon(s.Color, c.ClipPolygonY(pts))
}
