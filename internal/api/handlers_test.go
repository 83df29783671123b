package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/retail-insights/internal/arima"
	"github.com/sells-group/retail-insights/internal/charts"
	"github.com/sells-group/retail-insights/internal/forecast"
	"github.com/sells-group/retail-insights/internal/model"
	"github.com/sells-group/retail-insights/internal/rules"
	"github.com/sells-group/retail-insights/internal/store"
)

func TestPredict_Success(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.predict(t, url.Values{
		"Description": {"  LANTERN "},
		"Quantity":    {"6"},
		"UnitPrice":   {"3.39"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got model.Prediction
	decode(t, rec, &got)
	assert.InDelta(t, 0.5+6+2*3.39, got.SalesPrediction, 1e-9)
	assert.InDelta(t, 6, got.Quantity, 0)
	assert.InDelta(t, 3.39, got.UnitPrice, 0)
	assert.Equal(t, "LANTERN", got.ProductDescription)
	// Highest-confidence rule first; the queried item is never recommended.
	assert.Equal(t, []string{"MUG", "CANDLE"}, got.Recommendations)
	// LANTERN sold 6, 0, 4 over three days: 6 / (10/3).
	assert.InDelta(t, 1.8, float64(got.DaysToSell), 1e-9)
	assert.InDelta(t, 0.5, got.PurchaseProbability, 1e-9)

	recs, err := f.store.ListPredictions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "LANTERN", recs[0].Prediction.ProductDescription)
}

func TestPredict_UnknownProduct(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.predict(t, url.Values{"Description": {"GHOST"}, "Quantity": {"3"}, "UnitPrice": {"1.5"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "Infinity", body["days_to_sell"])
	assert.Equal(t, []any{}, body["recommendations"])
	assert.InDelta(t, 0, body["purchase_probability"], 0)
}

func TestPredict_MissingInput(t *testing.T) {
	f := newFixture(t, nil)

	for name, form := range map[string]url.Values{
		"empty":          {},
		"no description": {"Quantity": {"1"}, "UnitPrice": {"1"}},
		"blank quantity": {"Description": {"MUG"}, "Quantity": {"   "}, "UnitPrice": {"1"}},
		"no unit price":  {"Description": {"MUG"}, "Quantity": {"1"}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.predict(t, form)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"Missing input values."}`, rec.Body.String())
		})
	}
}

func TestPredict_InvalidNumbers(t *testing.T) {
	f := newFixture(t, nil)

	for _, tc := range []struct{ qty, price string }{
		{"abc", "1"},
		{"1", "1,5"},
		{"NaN", "1"},
		{"1", "inf"},
	} {
		rec := f.predict(t, url.Values{"Description": {"MUG"}, "Quantity": {tc.qty}, "UnitPrice": {tc.price}})
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc)
		assert.JSONEq(t, `{"error":"Quantity and Unit Price must be valid numbers."}`, rec.Body.String(), tc)
	}
}

func TestPredict_EmptyRuleTable(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Rules = rules.NewTable(nil) })

	rec := f.predict(t, url.Values{"Description": {"MUG"}, "Quantity": {"1"}, "UnitPrice": {"1"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Error making prediction: rules: rule table is empty"}`, rec.Body.String())
}

func TestForecast_Success(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/forecast")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, `src="/static/sales_forecast.png"`)
	assert.Contains(t, body, `src="/static/top_10_products.png"`)
	assert.Contains(t, body, `src="/static/top_10_products_pie.png"`)
	assert.Contains(t, body, "Sales Forecast for Next 2 Days")
	assert.Contains(t, body, "ARIMA(5,1,0)")
	assert.Contains(t, body, "1,234.5")
	assert.Contains(t, body, "2010-12-04")
	assert.Equal(t, 1, f.forecaster.calls)

	runs, err := f.store.ListForecasts(context.Background(), store.ForecastFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.ForecastStatusComplete, runs[0].Status)
	assert.Equal(t, [3]int{5, 1, 0}, runs[0].Order)

	rec = f.get(t, "/api/forecasts/"+runs[0].ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var run model.ForecastRun
	decode(t, rec, &run)
	require.Len(t, run.Points, 2)
	assert.InDelta(t, 1234.5, run.Points[0].Quantity, 1e-9)
}

func TestForecast_WithoutPie(t *testing.T) {
	f := newFixture(t, nil)
	f.forecaster.images = []string{forecast.ForecastImage, forecast.TopProductsImage}

	rec := f.get(t, "/forecast")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, `src="/static/top_10_products.png"`)
	assert.NotContains(t, body, "top_10_products_pie.png")
}

func TestForecast_Failure(t *testing.T) {
	f := newFixture(t, nil)
	f.forecaster.err = errors.New("forecast: no positive sales to forecast")

	rec := f.get(t, "/forecast")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Error generating forecast: forecast: no positive sales to forecast"}`, rec.Body.String())

	rec = f.get(t, "/api/forecasts?status=failed")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.ForecastRun
	decode(t, rec, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "forecast: no positive sales to forecast", runs[0].Error)
}

func TestForecast_RendersImages(t *testing.T) {
	out := t.TempDir()
	renderer, err := forecast.NewRenderer(forecast.Options{
		Order:        arima.Order{P: 1, D: 1, Q: 0},
		Steps:        5,
		TopN:         10,
		OutputDir:    out,
		ForecastSize: charts.Inches(4, 2),
	})
	require.NoError(t, err)
	f := newFixture(t, func(d *Deps) { d.Forecaster = renderer })

	rec := f.get(t, "/forecast")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, name := range []string{forecast.ForecastImage, forecast.TopProductsImage, forecast.TopProductsPie} {
		img := f.get(t, "/static/"+name)
		require.Equal(t, http.StatusOK, img.Code, name)
		assert.Equal(t, "image/png", img.Header().Get("Content-Type"), name)
		assert.NotEmpty(t, img.Body.Bytes(), name)
	}
}

func TestModelForecast(t *testing.T) {
	m, err := arima.Fit([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, arima.Order{P: 0, D: 1, Q: 0})
	require.NoError(t, err)
	m.Start = time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, func(d *Deps) { d.ForecastModel = m })

	rec := f.get(t, "/api/forecast?steps=3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body modelForecast
	decode(t, rec, &body)
	assert.Equal(t, "(0,1,0)", body.Order)
	assert.Equal(t, 3, body.Steps)
	require.Len(t, body.Points, 3)
	assert.InDelta(t, 10, body.Points[0].Quantity, 1e-9)
	assert.True(t, time.Date(2011, 1, 11, 0, 0, 0, 0, time.UTC).Equal(body.Points[0].Day))

	rec = f.get(t, "/api/forecast")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Len(t, body.Points, 30)

	for _, q := range []string{"steps=0", "steps=366", "steps=ten"} {
		assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/forecast?"+q).Code, q)
	}
}

func TestModelForecast_NotLoaded(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.get(t, "/api/forecast")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"No forecast model is loaded."}`, rec.Body.String())
}

func TestHistory_Lists(t *testing.T) {
	f := newFixture(t, nil)
	for range 3 {
		f.predict(t, url.Values{"Description": {"MUG"}, "Quantity": {"1"}, "UnitPrice": {"2"}})
	}

	rec := f.get(t, "/api/predictions?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var preds []model.PredictionRecord
	decode(t, rec, &preds)
	assert.Len(t, preds, 2)

	rec = f.get(t, "/api/forecasts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, q := range []string{"limit=-1", "limit=501", "limit=x", "status=running"} {
		assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/forecasts?"+q).Code, q)
	}
}

func TestGetForecast_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.get(t, "/api/forecasts/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Forecast run not found."}`, rec.Body.String())
}
