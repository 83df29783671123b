// Package dataset holds the historical retail transactions in memory and
// answers the aggregate queries the estimators, recommender training and
// forecast renderer need. A Dataset is immutable once built and safe for
// concurrent readers.
package dataset

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/retail-insights/internal/model"
)

// Dataset is an immutable in-memory table of transactions.
type Dataset struct {
	txs      []model.Transaction
	products []string // unique descriptions in first-seen order

	totalQty   int64
	productQty map[string]int64
	// productDaily maps description → day → summed quantity.
	productDaily map[string]map[time.Time]int64

	skipped int
}

// New builds a Dataset from already-parsed transactions.
func New(txs []model.Transaction) *Dataset {
	d := &Dataset{
		txs:          txs,
		productQty:   make(map[string]int64),
		productDaily: make(map[string]map[time.Time]int64),
	}
	for _, tx := range txs {
		d.totalQty += tx.Quantity

		if _, seen := d.productQty[tx.Description]; !seen {
			d.products = append(d.products, tx.Description)
		}
		d.productQty[tx.Description] += tx.Quantity

		days, ok := d.productDaily[tx.Description]
		if !ok {
			days = make(map[time.Time]int64)
			d.productDaily[tx.Description] = days
		}
		days[tx.Day()] += tx.Quantity
	}
	return d
}

// Len returns the number of transactions.
func (d *Dataset) Len() int { return len(d.txs) }

// Skipped returns how many source rows were dropped while loading.
func (d *Dataset) Skipped() int { return d.skipped }

// Transactions returns the underlying rows. Callers must not modify them.
func (d *Dataset) Transactions() []model.Transaction { return d.txs }

// Products returns the unique product descriptions in first-seen order.
func (d *Dataset) Products() []string {
	return slices.Clone(d.products)
}

// HasProduct reports whether description appears in the dataset.
func (d *Dataset) HasProduct(description string) bool {
	_, ok := d.productQty[description]
	return ok
}

// TotalQuantity returns the summed quantity of every row.
func (d *Dataset) TotalQuantity() int64 { return d.totalQty }

// ProductQuantity returns the summed quantity of one product (0 if unknown).
func (d *Dataset) ProductQuantity(description string) int64 {
	return d.productQty[description]
}

// ProductDailySales returns the product's quantity per calendar day,
// zero-filled from its first to its last sale day. Nil when the product is
// unknown.
func (d *Dataset) ProductDailySales(description string) []model.DailyPoint {
	return zeroFill(d.productDaily[description])
}

// DailySeries sums quantity per calendar day over the rows accepted by keep
// (all rows when keep is nil), zero-filled over the full range of kept days.
func (d *Dataset) DailySeries(keep func(model.Transaction) bool) []model.DailyPoint {
	days := make(map[time.Time]int64)
	for _, tx := range d.txs {
		if keep != nil && !keep(tx) {
			continue
		}
		days[tx.Day()] += tx.Quantity
	}
	return zeroFill(days)
}

// PositiveSales keeps only rows with a positive quantity, dropping returns
// and cancellations.
func PositiveSales(tx model.Transaction) bool { return tx.Quantity > 0 }

// TopProducts returns the n products with the largest total quantity,
// largest first. Ties are broken by description for a stable order.
func (d *Dataset) TopProducts(n int) []model.ProductTotal {
	totals := make([]model.ProductTotal, 0, len(d.productQty))
	for desc, qty := range d.productQty {
		totals = append(totals, model.ProductTotal{Description: desc, Quantity: qty})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Quantity != totals[j].Quantity {
			return totals[i].Quantity > totals[j].Quantity
		}
		return totals[i].Description < totals[j].Description
	})
	if n >= 0 && len(totals) > n {
		totals = totals[:n]
	}
	return totals
}

// Baskets groups rows by invoice and returns, per invoice, the sorted set of
// descriptions whose summed quantity on that invoice is positive. Invoices
// with no such item are omitted. The result is ordered by invoice number.
func (d *Dataset) Baskets() [][]string {
	perInvoice := make(map[string]map[string]int64)
	for _, tx := range d.txs {
		if tx.InvoiceNo == "" {
			continue
		}
		items, ok := perInvoice[tx.InvoiceNo]
		if !ok {
			items = make(map[string]int64)
			perInvoice[tx.InvoiceNo] = items
		}
		items[tx.Description] += tx.Quantity
	}

	invoices := make([]string, 0, len(perInvoice))
	for inv := range perInvoice {
		invoices = append(invoices, inv)
	}
	sort.Strings(invoices)

	baskets := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		var basket []string
		for desc, qty := range perInvoice[inv] {
			if qty > 0 {
				basket = append(basket, desc)
			}
		}
		if len(basket) == 0 {
			continue
		}
		sort.Strings(basket)
		baskets = append(baskets, basket)
	}
	return baskets
}

// SalesFeatures returns (quantity, unit price) features and the line revenue
// target for every row, the training set of the sales model.
func (d *Dataset) SalesFeatures() (x [][2]float64, y []float64) {
	x = make([][2]float64, 0, len(d.txs))
	y = make([]float64, 0, len(d.txs))
	for _, tx := range d.txs {
		x = append(x, [2]float64{float64(tx.Quantity), tx.UnitPrice})
		y = append(y, tx.Revenue())
	}
	return x, y
}

// zeroFill turns a sparse day → quantity map into a dense daily series.
func zeroFill(days map[time.Time]int64) []model.DailyPoint {
	if len(days) == 0 {
		return nil
	}
	var first, last time.Time
	for day := range days {
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}

	var series []model.DailyPoint
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		series = append(series, model.DailyPoint{Day: day, Quantity: float64(days[day])})
	}
	return series
}

// normalizeHeader lower-cases and strips spaces/underscores so "Invoice No",
// "invoice_no" and "InvoiceNo" map to the same key.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "").Replace(h)
}
