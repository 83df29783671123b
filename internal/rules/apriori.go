package rules

import (
	"context"
	"math"
	"math/bits"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/model"
)

// MineOptions configures the Apriori miner.
type MineOptions struct {
	MinSupport float64 // fraction of baskets, (0, 1]
	MinLift    float64
	MaxItemset int // largest itemset size considered; 0 means no limit
}

// tidset is a bitset over basket indices.
type tidset []uint64

func newTidset(n int) tidset { return make(tidset, (n+63)/64) }

func (t tidset) set(i int) { t[i/64] |= 1 << (uint(i) % 64) }

func (t tidset) and(o tidset) tidset {
	out := make(tidset, len(t))
	for i := range t {
		out[i] = t[i] & o[i]
	}
	return out
}

func (t tidset) count() int {
	n := 0
	for _, w := range t {
		n += bits.OnesCount64(w)
	}
	return n
}

type itemset struct {
	items []int // sorted item ids
	tids  tidset
}

func key(items []int) string {
	var b strings.Builder
	for i, id := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}

// Mine runs Apriori over baskets and derives every association rule of the
// frequent itemsets whose lift reaches MinLift. Rules are returned ranked by
// confidence, then lift, then antecedents and consequents.
func Mine(ctx context.Context, baskets [][]string, opts MineOptions) ([]model.Rule, error) {
	if len(baskets) == 0 {
		return nil, eris.New("rules: no baskets to mine")
	}
	if opts.MinSupport <= 0 || opts.MinSupport > 1 {
		return nil, eris.Errorf("rules: min support %v outside (0, 1]", opts.MinSupport)
	}

	// Item ids follow lexical order so itemsets sort like their names.
	ids := make(map[string]int)
	var names []string
	for _, basket := range baskets {
		for _, item := range basket {
			if _, ok := ids[item]; !ok {
				ids[item] = -1
				names = append(names, item)
			}
		}
	}
	sort.Strings(names)
	for i, name := range names {
		ids[name] = i
	}

	n := len(baskets)
	itemTids := make([]tidset, len(names))
	for i := range itemTids {
		itemTids[i] = newTidset(n)
	}
	for b, basket := range baskets {
		for _, item := range basket {
			itemTids[ids[item]].set(b)
		}
	}

	frequent := func(count int) bool { return float64(count)/float64(n) >= opts.MinSupport }
	support := make(map[string]float64)

	var level []itemset
	for id, tids := range itemTids {
		if c := tids.count(); frequent(c) {
			level = append(level, itemset{items: []int{id}, tids: tids})
			support[key([]int{id})] = float64(c) / float64(n)
		}
	}

	var all [][]int
	for size := 2; len(level) > 1 && (opts.MaxItemset == 0 || size <= opts.MaxItemset); size++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "rules: mining cancelled")
		}

		var next []itemset
		for i := 0; i < len(level); i++ {
			for j := i + 1; j < len(level); j++ {
				a, b := level[i].items, level[j].items
				if !samePrefix(a, b) {
					break
				}
				cand := append(append(make([]int, 0, size), a...), b[size-2])
				if !allSubsetsFrequent(cand, support) {
					continue
				}
				tids := level[i].tids.and(itemTids[b[size-2]])
				c := tids.count()
				if !frequent(c) {
					continue
				}
				support[key(cand)] = float64(c) / float64(n)
				next = append(next, itemset{items: cand, tids: tids})
				all = append(all, cand)
			}
		}
		level = next
	}

	var rules []model.Rule
	for _, items := range all {
		rules = append(rules, rulesFor(items, names, support, opts.MinLift)...)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Lift != b.Lift {
			return a.Lift > b.Lift
		}
		if ka, kb := strings.Join(a.Antecedents, "|"), strings.Join(b.Antecedents, "|"); ka != kb {
			return ka < kb
		}
		return strings.Join(a.Consequents, "|") < strings.Join(b.Consequents, "|")
	})

	zap.L().Info("rules: mined association rules",
		zap.Int("baskets", n),
		zap.Int("items", len(names)),
		zap.Int("frequent_itemsets", len(support)),
		zap.Int("rules", len(rules)),
		zap.Float64("min_support", opts.MinSupport),
		zap.Float64("min_lift", opts.MinLift),
	)
	return rules, nil
}

// samePrefix reports whether two sorted k-itemsets share their first k-1 items.
func samePrefix(a, b []int) bool {
	for i := 0; i < len(a)-1; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func allSubsetsFrequent(cand []int, support map[string]float64) bool {
	sub := make([]int, 0, len(cand)-1)
	for skip := range cand {
		sub = sub[:0]
		for i, id := range cand {
			if i != skip {
				sub = append(sub, id)
			}
		}
		if _, ok := support[key(sub)]; !ok {
			return false
		}
	}
	return true
}

// rulesFor splits one frequent itemset into every antecedent/consequent pair.
func rulesFor(items []int, names []string, support map[string]float64, minLift float64) []model.Rule {
	whole := support[key(items)]
	var out []model.Rule
	for mask := 1; mask < (1<<len(items))-1; mask++ {
		var ante, cons []int
		for i, id := range items {
			if mask&(1<<i) != 0 {
				ante = append(ante, id)
			} else {
				cons = append(cons, id)
			}
		}
		sa, sc := support[key(ante)], support[key(cons)]
		conf := whole / sa
		lift := conf / sc
		if lift < minLift {
			continue
		}
		conviction := math.Inf(1)
		if conf < 1 {
			conviction = (1 - sc) / (1 - conf)
		}
		out = append(out, model.Rule{
			Antecedents:       lookup(ante, names),
			Consequents:       lookup(cons, names),
			AntecedentSupport: sa,
			ConsequentSupport: sc,
			Support:           whole,
			Confidence:        conf,
			Lift:              lift,
			Leverage:          whole - sa*sc,
			Conviction:        conviction,
		})
	}
	return out
}

func lookup(ids []int, names []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = names[id]
	}
	return out
}
