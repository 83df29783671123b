package arima

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("5,1,0")
	require.NoError(t, err)
	assert.Equal(t, Order{P: 5, D: 1, Q: 0}, o)

	o, err = ParseOrder("(1, 1, 1)")
	require.NoError(t, err)
	assert.Equal(t, Order{P: 1, D: 1, Q: 1}, o)
	assert.Equal(t, "(1,1,1)", o.String())

	for _, bad := range []string{"1,2", "a,b,c", "-1,0,0", ""} {
		_, err := ParseOrder(bad)
		assert.Error(t, err, bad)
	}
}

func TestFit_RandomWalkRepeatsLastValue(t *testing.T) {
	m, err := Fit([]float64{3, 7, 4}, Order{D: 1})
	require.NoError(t, err)

	fc, err := m.Forecast(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 4, 4}, fc)
}

func TestFit_ExactAR1OnDifferences(t *testing.T) {
	// First differences halve every step: 1024, 512, ..., 0.5.
	series := []float64{0}
	w := 1024.0
	for range 12 {
		series = append(series, series[len(series)-1]+w)
		w /= 2
	}
	last := series[len(series)-1]

	m, err := Fit(series, Order{P: 1, D: 1})
	require.NoError(t, err)
	require.Len(t, m.AR, 1)
	assert.InDelta(t, 0.5, m.AR[0], 1e-9)
	assert.Equal(t, Order{P: 1, D: 1}, m.Order)
	assert.InDelta(t, 0.0, m.Mean, 0)

	fc, err := m.Forecast(2)
	require.NoError(t, err)
	assert.InDelta(t, last+0.25, fc[0], 1e-6)
	assert.InDelta(t, last+0.25+0.125, fc[1], 1e-6)
}

func TestFit_DegradesShortSeries(t *testing.T) {
	m, err := Fit([]float64{10, 12, 9, 14}, Order{P: 5, D: 1})
	require.NoError(t, err)
	assert.Equal(t, Order{P: 5, D: 1}, m.Requested)
	assert.Equal(t, Order{P: 1, D: 1}, m.Order)

	fc, err := m.Forecast(30)
	require.NoError(t, err)
	assert.Len(t, fc, 30)
	for _, v := range fc {
		assert.False(t, math.IsNaN(v))
	}
}

func TestFit_SinglePoint(t *testing.T) {
	m, err := Fit([]float64{42}, Order{P: 5, D: 1})
	require.NoError(t, err)
	assert.Equal(t, Order{D: 1}, m.Order)
	assert.Equal(t, 0, m.NObs)

	fc, err := m.Forecast(5)
	require.NoError(t, err)
	assert.Equal(t, []float64{42, 42, 42, 42, 42}, fc)
}

func TestFit_ConstantSeriesWithMean(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 5
	}
	m, err := Fit(series, Order{P: 1})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, m.Mean, 1e-12)

	fc, err := m.Forecast(4)
	require.NoError(t, err)
	for _, v := range fc {
		assert.InDelta(t, 5.0, v, 1e-9)
	}
}

func TestFit_MA1(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const theta = 0.6
	prev := rng.NormFloat64()
	series := make([]float64, 2000)
	for i := range series {
		e := rng.NormFloat64()
		series[i] = e + theta*prev
		prev = e
	}

	m, err := Fit(series, Order{Q: 1})
	require.NoError(t, err)
	require.Len(t, m.MA, 1)
	assert.InDelta(t, theta, m.MA[0], 0.1)
	assert.InDelta(t, 1.0, m.Sigma2, 0.15)
	assert.Equal(t, 2000, m.NObs)
	assert.Less(t, m.LogLikelihood, 0.0)
	// k = MA + mean + sigma2
	assert.InDelta(t, 2*3-2*m.LogLikelihood, m.AIC, 1e-9)
}

func TestFit_Errors(t *testing.T) {
	_, err := Fit(nil, Order{P: 1, D: 1})
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = Fit([]float64{1, 2}, Order{P: -1})
	assert.Error(t, err)

	_, err = Fit([]float64{1, math.NaN()}, Order{D: 1})
	assert.Error(t, err)
}

func TestForecast_InvalidSteps(t *testing.T) {
	m, err := Fit([]float64{1, 2, 3}, Order{D: 1})
	require.NoError(t, err)
	_, err = m.Forecast(0)
	assert.Error(t, err)
}

func TestForecastDates(t *testing.T) {
	start := time.Date(2011, 12, 7, 0, 0, 0, 0, time.UTC)
	m := &Model{Series: []float64{1, 2, 3}, Start: start}

	dates := m.ForecastDates(2)
	assert.Equal(t, []time.Time{
		time.Date(2011, 12, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2011, 12, 11, 0, 0, 0, 0, time.UTC),
	}, dates)
}

func TestSaveLoad(t *testing.T) {
	series := []float64{5, 8, 6, 9, 7, 10, 8, 11, 9, 12}
	m, err := Fit(series, Order{P: 1, D: 1, Q: 1})
	require.NoError(t, err)
	m.Start = time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)

	path := filepath.Join(t.TempDir(), "sales_forecast_model.json")
	require.NoError(t, m.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Order, got.Order)
	assert.Equal(t, m.AR, got.AR)
	assert.Equal(t, m.MA, got.MA)
	assert.True(t, m.Start.Equal(got.Start))

	want, err := m.Forecast(5)
	require.NoError(t, err)
	fc, err := got.Forecast(5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, fc, 1e-9)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	mismatch := filepath.Join(dir, "mismatch.json")
	require.NoError(t, os.WriteFile(mismatch, []byte(`{"order":{"p":2,"d":1,"q":0},"ar":[0.1],"series":[1,2,3]}`), 0o644))
	_, err = Load(mismatch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"order":{"p":0,"d":1,"q":0}}`), 0o644))
	_, err = Load(empty)
	assert.ErrorIs(t, err, ErrEmptySeries)
}
