// Package arima fits non-seasonal ARIMA(p,d,q) models by conditional sum of
// squares and produces point forecasts. Series are differenced d times; a
// mean term is estimated only when d is zero.
package arima

import (
	"encoding/json"
	"math"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptySeries is returned when there is nothing to fit.
var ErrEmptySeries = eris.New("arima: empty series")

// Model is a fitted ARIMA model together with the series it was fitted on,
// which forecasting conditions on.
type Model struct {
	Requested     Order     `json:"requested_order"`
	Order         Order     `json:"order"` // effective order after degradation
	AR            []float64 `json:"ar"`
	MA            []float64 `json:"ma"`
	Mean          float64   `json:"mean"`
	Sigma2        float64   `json:"sigma2"`
	LogLikelihood float64   `json:"log_likelihood"`
	AIC           float64   `json:"aic"`
	NObs          int       `json:"nobs"`
	Series        []float64 `json:"series"`
	Start         time.Time `json:"start"` // date of Series[0] when the series is daily
}

// Summary is the printable part of a fitted model.
type Summary struct {
	Requested     Order     `yaml:"requested_order"`
	Order         Order     `yaml:"order"`
	AR            []float64 `yaml:"ar,flow"`
	MA            []float64 `yaml:"ma,flow"`
	Mean          float64   `yaml:"mean"`
	Sigma2        float64   `yaml:"sigma2"`
	LogLikelihood float64   `yaml:"log_likelihood"`
	AIC           float64   `yaml:"aic"`
	NObs          int       `yaml:"nobs"`
}

// Summary returns the fit statistics.
func (m *Model) Summary() Summary {
	return Summary{
		Requested: m.Requested, Order: m.Order,
		AR: m.AR, MA: m.MA, Mean: m.Mean,
		Sigma2: m.Sigma2, LogLikelihood: m.LogLikelihood, AIC: m.AIC, NObs: m.NObs,
	}
}

// Fit estimates an ARIMA model of the requested order. When the series is
// too short for the order, p and q are reduced (the larger first) until the
// number of conditioned observations covers the parameter count, down to
// ARIMA(0,d,0).
func Fit(series []float64, order Order) (*Model, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, eris.New("arima: series contains non-finite values")
		}
	}

	w := difference(series, order.D)
	withMean := order.D == 0
	eff := degrade(order, len(w), withMean)
	if eff != order {
		zap.L().Warn("arima: series too short for requested order, degrading",
			zap.Stringer("requested", order),
			zap.Stringer("effective", eff),
			zap.Int("observations", len(series)),
		)
	}

	m := &Model{
		Requested: order,
		Order:     eff,
		Series:    append([]float64(nil), series...),
		AR:        make([]float64, eff.P),
		MA:        make([]float64, eff.Q),
	}
	if withMean && len(w) > 0 {
		m.Mean = stat.Mean(w, nil)
	}
	z := demean(w, m.Mean)

	if eff.P > 0 {
		if phi, err := fitAR(z, eff.P); err != nil {
			zap.L().Warn("arima: AR least squares failed, starting from zero", zap.Error(err))
		} else {
			copy(m.AR, phi)
		}
	}
	if eff.Q > 0 {
		fitCSS(z, m)
	}

	m.computeStats(z, withMean)
	return m, nil
}

// degrade lowers p and q until n observations support the model.
func degrade(o Order, n int, withMean bool) Order {
	params := func(o Order) int {
		k := o.P + o.Q
		if withMean {
			k++
		}
		return k
	}
	for o.P+o.Q > 0 && n-o.P < params(o)+1 {
		if o.P >= o.Q {
			o.P--
		} else {
			o.Q--
		}
	}
	return o
}

// fitAR solves the conditional least squares AR(p) regression.
func fitAR(z []float64, p int) ([]float64, error) {
	rows := len(z) - p
	x := mat.NewDense(rows, p, nil)
	y := mat.NewVecDense(rows, nil)
	for t := p; t < len(z); t++ {
		for i := 1; i <= p; i++ {
			x.Set(t-p, i-1, z[t-i])
		}
		y.SetVec(t-p, z[t])
	}
	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, eris.Wrap(err, "arima: solve AR regression")
	}
	phi := make([]float64, p)
	for i := range phi {
		phi[i] = beta.AtVec(i)
	}
	if !allFinite(phi) {
		return nil, eris.New("arima: AR regression produced non-finite coefficients")
	}
	return phi, nil
}

// fitCSS minimises the conditional sum of squares over AR and MA
// coefficients with Nelder-Mead, starting from the AR estimate and zero MA.
func fitCSS(z []float64, m *Model) {
	p, q := len(m.AR), len(m.MA)
	init := make([]float64, p+q)
	copy(init, m.AR)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sse := sumSquares(residuals(z, x[:p], x[p:]))
			if math.IsNaN(sse) || math.IsInf(sse, 0) {
				return math.MaxFloat64
			}
			return sse
		},
	}
	settings := &optimize.Settings{MajorIterations: 5000, FuncEvaluations: 20000}

	res, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if res == nil || !allFinite(res.X) {
		zap.L().Warn("arima: CSS optimisation failed, keeping starting values", zap.Error(err))
		return
	}
	if err != nil {
		zap.L().Debug("arima: CSS optimisation stopped early", zap.Error(err), zap.Stringer("status", res.Status))
	}
	copy(m.AR, res.X[:p])
	copy(m.MA, res.X[p:])
}

// residuals computes one-step errors for t >= p; errors before the
// conditioning window are taken as zero.
func residuals(z, ar, ma []float64) []float64 {
	p := len(ar)
	if len(z) <= p {
		return nil
	}
	e := make([]float64, len(z))
	for t := p; t < len(z); t++ {
		pred := 0.0
		for i, phi := range ar {
			pred += phi * z[t-1-i]
		}
		for j, theta := range ma {
			if t-1-j >= p {
				pred += theta * e[t-1-j]
			}
		}
		e[t] = z[t] - pred
	}
	return e[p:]
}

func (m *Model) computeStats(z []float64, withMean bool) {
	e := residuals(z, m.AR, m.MA)
	m.NObs = len(e)
	if m.NObs == 0 {
		return
	}
	m.Sigma2 = sumSquares(e) / float64(m.NObs)
	if m.Sigma2 <= 0 {
		return
	}
	k := len(m.AR) + len(m.MA) + 1 // sigma2
	if withMean {
		k++
	}
	n := float64(m.NObs)
	m.LogLikelihood = -n / 2 * (math.Log(2*math.Pi*m.Sigma2) + 1)
	m.AIC = 2*float64(k) - 2*m.LogLikelihood
}

// Forecast returns the next steps point forecasts on the original scale.
func (m *Model) Forecast(steps int) ([]float64, error) {
	if steps <= 0 {
		return nil, eris.Errorf("arima: steps must be positive, got %d", steps)
	}
	if len(m.Series) == 0 {
		return nil, ErrEmptySeries
	}
	if len(m.AR) != m.Order.P || len(m.MA) != m.Order.Q {
		return nil, eris.Errorf("arima: coefficients do not match order %s", m.Order)
	}

	levels := make([][]float64, m.Order.D+1)
	levels[0] = m.Series
	for k := 1; k <= m.Order.D; k++ {
		levels[k] = difference(levels[k-1], 1)
	}
	z := demean(levels[m.Order.D], m.Mean)

	p := len(m.AR)
	var e []float64
	if len(z) > p {
		e = make([]float64, p, len(z))
		e = append(e, residuals(z, m.AR, m.MA)...)
	}

	zs := append([]float64(nil), z...)
	es := append([]float64(nil), e...)
	out := make([]float64, steps)
	for h := range steps {
		t := len(zs)
		pred := 0.0
		for i, phi := range m.AR {
			if t-1-i >= 0 {
				pred += phi * zs[t-1-i]
			}
		}
		for j, theta := range m.MA {
			if t-1-j >= 0 && t-1-j < len(es) {
				pred += theta * es[t-1-j]
			}
		}
		zs = append(zs, pred)
		out[h] = pred + m.Mean
	}

	// Undo differencing from the highest level down.
	for k := m.Order.D - 1; k >= 0; k-- {
		last := 0.0
		if n := len(levels[k]); n > 0 {
			last = levels[k][n-1]
		}
		for i := range out {
			last += out[i]
			out[i] = last
		}
	}
	return out, nil
}

// ForecastDates returns the calendar days following a daily series.
func (m *Model) ForecastDates(steps int) []time.Time {
	dates := make([]time.Time, steps)
	next := m.Start.AddDate(0, 0, len(m.Series))
	for i := range dates {
		dates[i] = next.AddDate(0, 0, i)
	}
	return dates
}

// Save writes the model as JSON.
func (m *Model) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "arima: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "arima: write %s", path)
	}
	return nil
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "arima: read %s", path)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "arima: decode %s", path)
	}
	if len(m.Series) == 0 {
		return nil, eris.Wrapf(ErrEmptySeries, "arima: %s", path)
	}
	if len(m.AR) != m.Order.P || len(m.MA) != m.Order.Q {
		return nil, eris.Errorf("arima: %s coefficients do not match order %s", path, m.Order)
	}
	zap.L().Info("arima: loaded model",
		zap.String("path", path),
		zap.Stringer("order", m.Order),
		zap.Int("observations", len(m.Series)),
	)
	return &m, nil
}

func difference(x []float64, d int) []float64 {
	out := append([]float64(nil), x...)
	for range d {
		if len(out) < 2 {
			return nil
		}
		next := make([]float64, len(out)-1)
		floats.SubTo(next, out[1:], out[:len(out)-1])
		out = next
	}
	return out
}

func demean(w []float64, mean float64) []float64 {
	z := append([]float64(nil), w...)
	if mean != 0 {
		floats.AddConst(-mean, z)
	}
	return z
}

func sumSquares(e []float64) float64 {
	return floats.Dot(e, e)
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
