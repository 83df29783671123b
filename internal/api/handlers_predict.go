package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/estimate"
	"github.com/sells-group/retail-insights/internal/metrics"
	"github.com/sells-group/retail-insights/internal/model"
)

// Client-facing messages of /predict.
const (
	msgMissingInput  = "Missing input values."
	msgInvalidNumber = "Quantity and Unit Price must be valid numbers."
	msgPredictFailed = "Error making prediction: "
)

// predictForm holds the trimmed form fields of a /predict call.
type predictForm struct {
	Description string `validate:"required"`
	Quantity    string `validate:"required"`
	UnitPrice   string `validate:"required"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		metrics.RecordPrediction(metrics.OutcomeInvalid)
		respondError(w, http.StatusBadRequest, msgMissingInput)
		return
	}
	form := predictForm{
		Description: strings.TrimSpace(r.PostFormValue("Description")),
		Quantity:    strings.TrimSpace(r.PostFormValue("Quantity")),
		UnitPrice:   strings.TrimSpace(r.PostFormValue("UnitPrice")),
	}
	if err := s.validate.Struct(form); err != nil {
		metrics.RecordPrediction(metrics.OutcomeInvalid)
		respondError(w, http.StatusBadRequest, msgMissingInput)
		return
	}

	quantity, okQty := parseNumber(form.Quantity)
	unitPrice, okPrice := parseNumber(form.UnitPrice)
	if !okQty || !okPrice {
		metrics.RecordPrediction(metrics.OutcomeInvalid)
		respondError(w, http.StatusBadRequest, msgInvalidNumber)
		return
	}

	recs, err := s.deps.Rules.Recommend(form.Description)
	if err != nil {
		metrics.RecordPrediction(metrics.OutcomeError)
		zap.L().Error("api: predict failed",
			zap.String("description", form.Description),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, msgPredictFailed+err.Error())
		return
	}

	demand := estimate.Estimate(s.deps.Data, form.Description, quantity)
	pred := model.Prediction{
		SalesPrediction:     s.deps.Sales.Predict(quantity, unitPrice),
		UnitPrice:           unitPrice,
		Quantity:            quantity,
		ProductDescription:  form.Description,
		Recommendations:     recs,
		DaysToSell:          model.Days(demand.DaysToSell),
		PurchaseProbability: demand.PurchaseProbability,
	}

	if _, err := s.deps.Store.RecordPrediction(r.Context(), pred); err != nil {
		zap.L().Warn("api: record prediction", zap.Error(err))
	}
	metrics.RecordPrediction(metrics.OutcomeSuccess)
	respondJSON(w, http.StatusOK, pred)
}

// parseNumber parses a finite decimal number.
func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
