// Package estimate provides the naive demand estimates shown next to a sales
// prediction: how many days a quantity takes to sell and how likely the
// product is to be bought.
package estimate

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/model"
)

// SalesHistory is the read-only view of historical sales the estimators need.
type SalesHistory interface {
	Len() int
	TotalQuantity() int64
	ProductQuantity(description string) int64
	ProductDailySales(description string) []model.DailyPoint
}

// NeverSells is the saturating sentinel returned by DaysToSell when the
// product has no positive average daily sales.
var NeverSells = math.Inf(1)

// Demand bundles both estimates for one product and quantity.
type Demand struct {
	DaysToSell          float64 `json:"days_to_sell"`
	PurchaseProbability float64 `json:"purchase_probability"`
	AvgDailySales       float64 `json:"avg_daily_sales"`
}

// DaysToSell divides quantity by the product's average daily quantity sold,
// where the average runs over every calendar day from its first to its last
// sale (days without sales count as zero). The result is rounded to 2
// decimals. Returns NeverSells when the average is not positive.
func DaysToSell(h SalesHistory, description string, quantity float64) float64 {
	return daysAt(quantity, AvgDailySales(h, description))
}

func daysAt(quantity, avg float64) float64 {
	if avg <= 0 {
		return NeverSells
	}
	return round2(quantity / avg)
}

// AvgDailySales returns the zero-filled mean daily quantity of the product,
// or 0 when it never sold.
func AvgDailySales(h SalesHistory, description string) float64 {
	series := h.ProductDailySales(description)
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, p := range series {
		sum += p.Quantity
	}
	return sum / float64(len(series))
}

// PurchaseProbability is the product's share of the total quantity sold,
// rounded to 2 decimals and clamped into [0, 1]. Returns 0 for an empty
// dataset or a non-positive total. The quantity argument does not affect
// the result.
func PurchaseProbability(h SalesHistory, description string, _ float64) float64 {
	if h.Len() == 0 {
		return 0
	}
	total := h.TotalQuantity()
	if total <= 0 {
		return 0
	}
	p := round2(float64(h.ProductQuantity(description)) / float64(total))
	return math.Min(1, math.Max(0, p))
}

// Estimate computes both estimates for one request.
func Estimate(h SalesHistory, description string, quantity float64) Demand {
	d := Demand{
		AvgDailySales:       AvgDailySales(h, description),
		PurchaseProbability: PurchaseProbability(h, description, quantity),
	}
	d.DaysToSell = daysAt(quantity, d.AvgDailySales)

	zap.L().Debug("estimate: demand computed",
		zap.String("description", description),
		zap.Float64("quantity", quantity),
		zap.Float64("avg_daily_sales", d.AvgDailySales),
		zap.Float64("days_to_sell", d.DaysToSell),
		zap.Float64("purchase_probability", d.PurchaseProbability),
	)
	return d
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
