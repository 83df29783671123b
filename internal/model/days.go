package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Days is a day count that may be +Inf when an item never sells.
// It encodes as a JSON number, or the string "Infinity" for the sentinel.
type Days float64

// IsInf reports whether d is the saturating "never sells" sentinel.
func (d Days) IsInf() bool {
	return math.IsInf(float64(d), 1)
}

// MarshalJSON implements json.Marshaler.
func (d Days) MarshalJSON() ([]byte, error) {
	if d.IsInf() {
		return []byte(`"Infinity"`), nil
	}
	return json.Marshal(float64(d))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Days) UnmarshalJSON(b []byte) error {
	if string(b) == `"Infinity"` {
		*d = Days(math.Inf(1))
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*d = Days(f)
	return nil
}
