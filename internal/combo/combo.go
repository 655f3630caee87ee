// Package combo mines item pairs that are bought together and prices them as
// bundles.
package combo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/stats"
)

// Confidence cut-offs on the number of usable baskets.
const (
	highConfidenceBaskets   = 500
	mediumConfidenceBaskets = 100
)

// Params are the per-request thresholds of a combo run.
type Params struct {
	Branch           model.Branch `json:"branch"`
	TopK             int          `json:"top_k"`
	MinSupport       float64      `json:"min_support"`
	MinConfidence    float64      `json:"min_confidence"`
	MinLift          float64      `json:"min_lift"`
	IncludeModifiers bool         `json:"include_modifiers"`
}

// DefaultParams returns the configured thresholds for all branches.
func DefaultParams(cfg config.ComboConfig) Params {
	return Params{
		Branch:           model.AllBranches,
		TopK:             cfg.TopK,
		MinSupport:       cfg.MinSupport,
		MinConfidence:    cfg.MinConfidence,
		MinLift:          cfg.MinLift,
		IncludeModifiers: cfg.IncludeModifiers,
	}
}

// Validate rejects out-of-range thresholds.
func (p Params) Validate() error {
	if !p.Branch.IsAll() && !p.Branch.Valid() {
		return &model.InputError{Kind: model.KindUnknownBranch, Field: "branch", Value: p.Branch, Reason: "not a canonical branch"}
	}
	if p.TopK < 1 || p.TopK > 20 {
		return model.InvalidParam("top_k", p.TopK, "must be between 1 and 20")
	}
	if p.MinSupport < 0 || p.MinSupport > 1 {
		return model.InvalidParam("min_support", p.MinSupport, "must be between 0 and 1")
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return model.InvalidParam("min_confidence", p.MinConfidence, "must be between 0 and 1")
	}
	if p.MinLift < 0 {
		return model.InvalidParam("min_lift", p.MinLift, "must be >= 0")
	}
	return nil
}

// Pair is one recommended item pair. ItemA sorts before ItemB.
type Pair struct {
	ItemA               string  `json:"item_a"`
	ItemB               string  `json:"item_b"`
	Support             float64 `json:"support"`
	ConfidenceAToB      float64 `json:"confidence_a_to_b"`
	ConfidenceBToA      float64 `json:"confidence_b_to_a"`
	Lift                float64 `json:"lift"`
	BasketCount         int     `json:"basket_count"`
	AvgComboRevenue     float64 `json:"avg_combo_revenue"`
	PriceA              float64 `json:"price_a"`
	PriceB              float64 `json:"price_b"`
	IndividualTotal     float64 `json:"individual_total"`
	SuggestedComboPrice float64 `json:"suggested_combo_price"`
	Savings             float64 `json:"savings"`
}

// Result is the output of a combo run.
type Result struct {
	model.Assessment
	Branch           model.Branch `json:"branch"`
	TotalBaskets     int          `json:"total_baskets"`
	PairsEvaluated   int          `json:"pairs_evaluated"`
	PairsPassing     int          `json:"pairs_passing"`
	IncludeModifiers bool         `json:"include_modifiers"`
	Recommendations  []Pair       `json:"recommendations"`
}

// Engine recommends combos from basket lines.
type Engine struct {
	cfg       config.ComboConfig
	modifiers map[string]bool
	nonItems  map[string]bool
}

// New creates a combo engine.
func New(cfg config.ComboConfig) *Engine {
	e := &Engine{
		cfg:       cfg,
		modifiers: make(map[string]bool),
		nonItems:  make(map[string]bool),
	}
	for _, c := range cfg.ModifierCategories {
		e.modifiers[strings.ToLower(strings.TrimSpace(c))] = true
	}
	for _, it := range cfg.NonProductItems {
		e.nonItems[strings.ToUpper(strings.TrimSpace(it))] = true
	}
	return e
}

// Compute mines the snapshot's basket lines for the requested branch.
func (e *Engine) Compute(snap *model.Snapshot, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, eris.Wrap(err, "combo: validate params")
	}
	r := e.Mine(snap.BasketLines(p.Branch), p)
	zap.L().Debug("combo: computed",
		zap.String("branch", string(p.Branch)),
		zap.Int("baskets", r.TotalBaskets),
		zap.Int("pairs_passing", r.PairsPassing),
	)
	return r, nil
}

// basket is the distinct items of one order with the revenue per item.
type basket struct {
	revenue map[string]float64
}

// Mine runs the association analysis over lines. Params must be valid.
func (e *Engine) Mine(lines []model.BasketLine, p Params) *Result {
	res := &Result{
		Branch:           p.Branch,
		IncludeModifiers: p.IncludeModifiers,
		Recommendations:  []Pair{},
	}

	type orderKey struct {
		branch model.Branch
		order  string
	}
	orders := make(map[orderKey]*basket)
	var keys []orderKey
	valueSum := make(map[string]float64)
	qtySum := make(map[string]float64)

	for _, l := range lines {
		if !e.keep(l, p.IncludeModifiers) {
			continue
		}
		item := strings.TrimSpace(l.Item)
		k := orderKey{branch: l.Branch, order: l.OrderID}
		b, ok := orders[k]
		if !ok {
			b = &basket{revenue: make(map[string]float64)}
			orders[k] = b
			keys = append(keys, k)
		}
		b.revenue[item] += l.LineValue
		if l.LineValue > 0 {
			valueSum[item] += l.LineValue
			qtySum[item] += l.Qty
		}
	}

	// Only multi-item baskets count, in numerators and denominators alike.
	var baskets []*basket
	for _, k := range keys {
		if b := orders[k]; len(b.revenue) >= 2 {
			baskets = append(baskets, b)
		}
	}
	res.TotalBaskets = len(baskets)
	if res.TotalBaskets == 0 {
		res.Assessment = model.Unavailable(fmt.Sprintf(
			"No baskets with at least two distinct items were found for %s.", scope(p.Branch)))
		return res
	}

	type pairKey struct{ a, b string }
	itemCount := make(map[string]int)
	pairCount := make(map[pairKey]int)
	pairRevenue := make(map[pairKey]float64)
	for _, b := range baskets {
		items := make([]string, 0, len(b.revenue))
		for it := range b.revenue {
			items = append(items, it)
			itemCount[it]++
		}
		sort.Strings(items)
		for i := 0; i < len(items); i++ {
			for j := i + 1; j < len(items); j++ {
				k := pairKey{items[i], items[j]}
				pairCount[k]++
				pairRevenue[k] += b.revenue[items[i]] + b.revenue[items[j]]
			}
		}
	}
	res.PairsEvaluated = len(pairCount)

	total := float64(res.TotalBaskets)
	var passing []Pair
	for k, nab := range pairCount {
		na, nb := float64(itemCount[k.a]), float64(itemCount[k.b])
		support := float64(nab) / total
		confAB, okA := stats.Ratio(float64(nab), na)
		confBA, okB := stats.Ratio(float64(nab), nb)
		if !okA || !okB {
			continue
		}
		lift, ok := stats.Ratio(confAB, nb/total)
		if !ok {
			continue
		}
		if support < p.MinSupport || max(confAB, confBA) < p.MinConfidence || lift < p.MinLift {
			continue
		}
		passing = append(passing, e.price(Pair{
			ItemA:           k.a,
			ItemB:           k.b,
			Support:         support,
			ConfidenceAToB:  confAB,
			ConfidenceBToA:  confBA,
			Lift:            lift,
			BasketCount:     nab,
			AvgComboRevenue: stats.Round(pairRevenue[k]/float64(nab), 2),
		}, valueSum, qtySum))
	}
	res.PairsPassing = len(passing)

	sort.Slice(passing, func(i, j int) bool {
		a, b := passing[i], passing[j]
		if a.Lift != b.Lift {
			return a.Lift > b.Lift
		}
		if a.Support != b.Support {
			return a.Support > b.Support
		}
		if a.ItemA != b.ItemA {
			return a.ItemA < b.ItemA
		}
		return a.ItemB < b.ItemB
	})
	if len(passing) > p.TopK {
		passing = passing[:p.TopK]
	}
	res.Recommendations = append(res.Recommendations, passing...)

	res.Assessment = model.Assessment{
		Status:      model.StatusOK,
		Confidence:  confidenceFor(res.TotalBaskets),
		Explanation: e.explain(res, p),
	}
	return res
}

// keep reports whether a line takes part in the analysis.
func (e *Engine) keep(l model.BasketLine, includeModifiers bool) bool {
	if l.Qty <= 0 {
		return false
	}
	if e.nonItems[strings.ToUpper(strings.TrimSpace(l.Item))] {
		return false
	}
	if !includeModifiers && (l.LineValue == 0 || e.modifiers[strings.ToLower(strings.TrimSpace(l.Category))]) {
		return false
	}
	return true
}

func (e *Engine) price(p Pair, valueSum, qtySum map[string]float64) Pair {
	unit := func(item string) float64 {
		v, ok := stats.Ratio(valueSum[item], qtySum[item])
		if !ok {
			return 0
		}
		return stats.Round(v, 2)
	}
	p.PriceA = unit(p.ItemA)
	p.PriceB = unit(p.ItemB)
	p.IndividualTotal = stats.Round(p.PriceA+p.PriceB, 2)
	if p.IndividualTotal > 0 {
		p.SuggestedComboPrice = stats.Round(p.IndividualTotal*(1-e.cfg.DiscountPct), 2)
		p.Savings = stats.Round(p.IndividualTotal-p.SuggestedComboPrice, 2)
	}
	return p
}

func (e *Engine) explain(r *Result, p Params) string {
	mods := "excluded"
	if p.IncludeModifiers {
		mods = "included"
	}
	return fmt.Sprintf(
		"Analysed %d baskets with two or more items for %s. %d of %d item pairs pass the thresholds "+
			"(support >= %g, confidence >= %g in either direction, lift >= %g). "+
			"Returning the top %d ranked by lift, then support, then item name. "+
			"Modifiers %s. Combo prices apply a %.0f%% discount to the average unit prices.",
		r.TotalBaskets, scope(p.Branch), r.PairsPassing, r.PairsEvaluated,
		p.MinSupport, p.MinConfidence, p.MinLift,
		len(r.Recommendations), mods, e.cfg.DiscountPct*100,
	)
}

func confidenceFor(baskets int) model.Confidence {
	switch {
	case baskets >= highConfidenceBaskets:
		return model.ConfidenceHigh
	case baskets >= mediumConfidenceBaskets:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func scope(b model.Branch) string {
	if b.IsAll() {
		return "all branches"
	}
	return "branch " + string(b)
}
