// Package salesmodel is the linear regression behind POST /predict: line
// revenue as a function of quantity and unit price.
package salesmodel

import (
	"encoding/json"
	"math"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Features names the model inputs in coefficient order.
var Features = []string{"Quantity", "UnitPrice"}

// Model is a fitted ordinary least squares regression.
type Model struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"` // aligned with Features
	Features     []string  `json:"features"`
	RSquared     float64   `json:"r_squared"`
	Samples      int       `json:"samples"`
}

// Fit estimates the model by least squares on x (quantity, unit price) and y.
func Fit(x [][2]float64, y []float64) (*Model, error) {
	n := len(x)
	if n != len(y) {
		return nil, eris.Errorf("salesmodel: %d feature rows but %d targets", n, len(y))
	}
	if n < 3 {
		return nil, eris.Errorf("salesmodel: need at least 3 samples, got %d", n)
	}

	design := mat.NewDense(n, 3, nil)
	for i, row := range x {
		design.Set(i, 0, 1)
		design.Set(i, 1, row[0])
		design.Set(i, 2, row[1])
	}
	target := mat.NewVecDense(n, append([]float64(nil), y...))

	var beta mat.VecDense
	if err := beta.SolveVec(design, target); err != nil {
		return nil, eris.Wrap(err, "salesmodel: solve least squares")
	}

	m := &Model{
		Intercept:    beta.AtVec(0),
		Coefficients: []float64{beta.AtVec(1), beta.AtVec(2)},
		Features:     append([]string(nil), Features...),
		Samples:      n,
	}
	if !m.finite() {
		return nil, eris.New("salesmodel: fit produced non-finite coefficients")
	}

	estimates := make([]float64, n)
	for i, row := range x {
		estimates[i] = m.Predict(row[0], row[1])
	}
	m.RSquared = stat.RSquaredFrom(estimates, y, nil)

	zap.L().Info("salesmodel: fitted",
		zap.Int("samples", n),
		zap.Float64("intercept", m.Intercept),
		zap.Float64s("coefficients", m.Coefficients),
		zap.Float64("r_squared", m.RSquared),
	)
	return m, nil
}

// Predict returns the predicted line revenue.
func (m *Model) Predict(quantity, unitPrice float64) float64 {
	return m.Intercept + m.Coefficients[0]*quantity + m.Coefficients[1]*unitPrice
}

func (m *Model) finite() bool {
	if math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return false
	}
	for _, c := range m.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Save writes the model as JSON.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "salesmodel: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "salesmodel: write %s", path)
	}
	return nil
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "salesmodel: read %s", path)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "salesmodel: decode %s", path)
	}
	if len(m.Coefficients) != len(Features) {
		return nil, eris.Errorf("salesmodel: %s has %d coefficients, want %d", path, len(m.Coefficients), len(Features))
	}
	if !m.finite() {
		return nil, eris.Errorf("salesmodel: %s has non-finite coefficients", path)
	}
	zap.L().Info("salesmodel: loaded", zap.String("path", path), zap.Int("samples", m.Samples))
	return &m, nil
}
