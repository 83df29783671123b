package model

import "time"

// Prediction is the full response of a single /predict call.
type Prediction struct {
	SalesPrediction     float64  `json:"sales_prediction"`
	UnitPrice           float64  `json:"unit_price"`
	Quantity            float64  `json:"quantity"`
	ProductDescription  string   `json:"product_description"`
	Recommendations     []string `json:"recommendations"`
	DaysToSell          Days     `json:"days_to_sell"`
	PurchaseProbability float64  `json:"purchase_probability"`
}

// PredictionRecord is a stored prediction.
type PredictionRecord struct {
	ID         string     `json:"id"`
	Prediction Prediction `json:"prediction"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ForecastStatus represents the outcome of a forecast run.
type ForecastStatus string

const (
	ForecastStatusComplete ForecastStatus = "complete"
	ForecastStatusFailed   ForecastStatus = "failed"
)

// ForecastRun records one forecast/image generation.
type ForecastRun struct {
	ID        string         `json:"id"`
	Steps     int            `json:"steps"`
	Order     [3]int         `json:"order"`
	Status    ForecastStatus `json:"status"`
	Images    []string       `json:"images,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
	CreatedAt time.Time      `json:"created_at"`
	// Points holds the forecast values; list queries leave it empty.
	Points []DailyPoint `json:"points,omitempty"`
}
