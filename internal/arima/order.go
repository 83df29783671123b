package arima

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Order is the (p, d, q) specification of an ARIMA model.
type Order struct {
	P int `json:"p" yaml:"p"`
	D int `json:"d" yaml:"d"`
	Q int `json:"q" yaml:"q"`
}

// OrderOf converts a config triple.
func OrderOf(pdq [3]int) Order {
	return Order{P: pdq[0], D: pdq[1], Q: pdq[2]}
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

// Validate rejects negative components.
func (o Order) Validate() error {
	if o.P < 0 || o.D < 0 || o.Q < 0 {
		return eris.Errorf("arima: order %s must be non-negative", o)
	}
	return nil
}

// ParseOrder parses "p,d,q", optionally wrapped in parentheses.
func ParseOrder(s string) (Order, error) {
	s = strings.Trim(strings.TrimSpace(s), "()")
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Order{}, eris.Errorf("arima: order %q must have three components", s)
	}
	var v [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Order{}, eris.Wrapf(err, "arima: order component %q", part)
		}
		v[i] = n
	}
	o := OrderOf(v)
	return o, o.Validate()
}
