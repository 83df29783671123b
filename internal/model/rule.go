package model

import "slices"

// Rule is a mined association rule: customers who bought every item in
// Antecedents also tended to buy the items in Consequents.
type Rule struct {
	Antecedents       []string `json:"antecedents"` // sorted, unique
	Consequents       []string `json:"consequents"` // sorted, unique
	AntecedentSupport float64  `json:"antecedent_support"`
	ConsequentSupport float64  `json:"consequent_support"`
	Support           float64  `json:"support"`
	Confidence        float64  `json:"confidence"`
	Lift              float64  `json:"lift"`
	Leverage          float64  `json:"leverage"`
	Conviction        float64  `json:"conviction"` // +Inf when confidence is 1
}

// HasAntecedent reports whether item is part of the rule's antecedent set.
func (r Rule) HasAntecedent(item string) bool {
	_, found := slices.BinarySearch(r.Antecedents, item)
	return found
}
