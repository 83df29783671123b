package model

import "time"

// Transaction is one invoice line item from the retail dataset.
type Transaction struct {
	InvoiceNo   string    `json:"invoice_no"`
	StockCode   string    `json:"stock_code,omitempty"`
	Description string    `json:"description"`
	Quantity    int64     `json:"quantity"` // negative for returns/cancellations
	UnitPrice   float64   `json:"unit_price"`
	InvoiceDate time.Time `json:"invoice_date"`
	CustomerID  string    `json:"customer_id,omitempty"`
	Country     string    `json:"country,omitempty"`
}

// Day returns the civil date of the invoice as midnight UTC, so days from
// different source locations compare and step uniformly.
func (t Transaction) Day() time.Time {
	y, m, d := t.InvoiceDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Revenue returns Quantity × UnitPrice.
func (t Transaction) Revenue() float64 {
	return float64(t.Quantity) * t.UnitPrice
}

// ProductTotal is the summed quantity for one product description.
type ProductTotal struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
}

// DailyPoint is one day of an aggregated quantity series.
type DailyPoint struct {
	Day      time.Time `json:"day"`
	Quantity float64   `json:"quantity"`
}
