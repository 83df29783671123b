// Package rules loads, mines and queries market-basket association rules.
package rules

import (
	"io"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/fetcher"
	"github.com/sells-group/retail-insights/internal/model"
)

// MaxRecommendations caps the number of items Recommend returns.
const MaxRecommendations = 5

// ErrEmptyTable is returned when recommendations are requested from a table
// that holds no rules at all.
var ErrEmptyTable = eris.New("rules: rule table is empty")

// Column names of the rules CSV, in the miner's layout.
const (
	colAntecedents       = "antecedents"
	colConsequents       = "consequents"
	colAntecedentSupport = "antecedent support"
	colConsequentSupport = "consequent support"
	colSupport           = "support"
	colConfidence        = "confidence"
	colLift              = "lift"
	colLeverage          = "leverage"
	colConviction        = "conviction"
)

var header = []string{
	colAntecedents, colConsequents, colAntecedentSupport, colConsequentSupport,
	colSupport, colConfidence, colLift, colLeverage, colConviction,
}

// Table is an immutable, ordered set of association rules.
type Table struct {
	rules []model.Rule
}

// NewTable wraps rules, normalizing each item set to sorted unique order.
func NewTable(rules []model.Rule) *Table {
	out := make([]model.Rule, len(rules))
	for i, r := range rules {
		r.Antecedents = normalize(r.Antecedents)
		r.Consequents = normalize(r.Consequents)
		out[i] = r
	}
	return &Table{rules: out}
}

func normalize(items []string) []string {
	items = slices.Clone(items)
	slices.Sort(items)
	return slices.Compact(items)
}

// Len returns the number of rules.
func (t *Table) Len() int { return len(t.rules) }

// Rules returns the rules in file order. Callers must not modify them.
func (t *Table) Rules() []model.Rule { return t.rules }

// Recommend returns up to MaxRecommendations items bought together with
// item. Rules whose antecedents contain item are ranked by confidence, then
// lift, both descending; ties keep file order. Consequents are flattened in
// that order, skipping item itself and repeats. A table without any rule
// yields ErrEmptyTable; no matching rule yields an empty list.
func (t *Table) Recommend(item string) ([]string, error) {
	if t == nil || len(t.rules) == 0 {
		return nil, ErrEmptyTable
	}

	var matched []model.Rule
	for _, r := range t.rules {
		if r.HasAntecedent(item) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Confidence != matched[j].Confidence {
			return matched[i].Confidence > matched[j].Confidence
		}
		return matched[i].Lift > matched[j].Lift
	})

	recs := make([]string, 0, MaxRecommendations)
	seen := map[string]bool{item: true}
	for _, r := range matched {
		for _, c := range r.Consequents {
			if seen[c] {
				continue
			}
			seen[c] = true
			recs = append(recs, c)
			if len(recs) == MaxRecommendations {
				return recs, nil
			}
		}
	}
	return recs, nil
}

// Load reads a rules CSV from disk.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	t, err := Read(f)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: load %s", path)
	}
	zap.L().Info("rules: loaded rule table", zap.String("path", path), zap.Int("rules", t.Len()))
	return t, nil
}

// Read parses a rules CSV. The antecedents, consequents, confidence and lift
// columns are required; the remaining metrics default to zero. A leading
// unnamed index column is ignored.
func Read(r io.Reader) (*Table, error) {
	tbl, err := fetcher.ReadCSV(r, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, err
	}

	colIdx := make(map[string]int, len(tbl.Header))
	for i, h := range tbl.Header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{colAntecedents, colConsequents, colConfidence, colLift} {
		if _, ok := colIdx[col]; !ok {
			return nil, eris.Errorf("rules: missing required column %q", col)
		}
	}

	rules := make([]model.Rule, 0, len(tbl.Rows))
	for n, record := range tbl.Rows {
		line := n + 2
		cell := func(col string) string {
			idx, ok := colIdx[col]
			if !ok || idx >= len(record) {
				return ""
			}
			return record[idx]
		}

		var rule model.Rule
		if rule.Antecedents, err = parseItemset(cell(colAntecedents)); err != nil {
			return nil, eris.Wrapf(err, "rules: line %d", line)
		}
		if rule.Consequents, err = parseItemset(cell(colConsequents)); err != nil {
			return nil, eris.Wrapf(err, "rules: line %d", line)
		}

		metrics := []struct {
			col      string
			dst      *float64
			required bool
		}{
			{colAntecedentSupport, &rule.AntecedentSupport, false},
			{colConsequentSupport, &rule.ConsequentSupport, false},
			{colSupport, &rule.Support, false},
			{colConfidence, &rule.Confidence, true},
			{colLift, &rule.Lift, true},
			{colLeverage, &rule.Leverage, false},
			{colConviction, &rule.Conviction, false},
		}
		for _, m := range metrics {
			raw := cell(m.col)
			if raw == "" && !m.required {
				continue
			}
			v, perr := strconv.ParseFloat(raw, 64)
			if perr != nil || math.IsNaN(v) {
				return nil, eris.Errorf("rules: line %d: invalid %s %q", line, m.col, raw)
			}
			*m.dst = v
		}
		rules = append(rules, rule)
	}
	return &Table{rules: rules}, nil
}

// Write serializes rules as CSV in the miner's column layout.
func Write(w io.Writer, rules []model.Rule) error {
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []string{
			formatItemset(r.Antecedents),
			formatItemset(r.Consequents),
			formatFloat(r.AntecedentSupport),
			formatFloat(r.ConsequentSupport),
			formatFloat(r.Support),
			formatFloat(r.Confidence),
			formatFloat(r.Lift),
			formatFloat(r.Leverage),
			formatFloat(r.Conviction),
		})
	}
	return fetcher.WriteCSV(w, header, rows)
}

// Save writes rules to path, replacing the file atomically.
func Save(path string, rules []model.Rule) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "rules: create %s", tmp)
	}
	if err := Write(f, rules); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return eris.Wrap(err, "rules: write")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "rules: close")
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "rules: rename to %s", path)
	}
	return nil
}

func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
