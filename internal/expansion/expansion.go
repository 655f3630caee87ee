// Package expansion scores branches on six dimensions, picks the best one as
// the template for a new branch and ranks curated candidate locations.
package expansion

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/forecast"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/stats"
)

// Dimension names.
const (
	DimDemandTrend        = "demand_trend"
	DimAvgTicket          = "avg_ticket"
	DimRepeatCustomer     = "repeat_customer"
	DimBeverageAttachment = "beverage_attachment"
	DimChannelMix         = "channel_mix"
	DimProductMix         = "product_mix"
)

// Dimensions returns the scorecard dimensions in display order.
func Dimensions() []string {
	return []string{DimDemandTrend, DimAvgTicket, DimRepeatCustomer, DimBeverageAttachment, DimChannelMix, DimProductMix}
}

// neutralScore is used when a branch has no data for a dimension.
const neutralScore = 50.0

// History thresholds, in months, for risks and confidence. The full
// threshold is configurable; this is its fallback.
const (
	defaultHistoryMonths = 6
	partialHistoryMonths = 3
	marginalGap          = 5.0
)

// Verdict is the expansion recommendation.
type Verdict string

const (
	VerdictGo      Verdict = "GO"
	VerdictCaution Verdict = "CAUTION"
	VerdictNoGo    Verdict = "NO-GO"
)

// Params are the per-request inputs of an expansion evaluation.
type Params struct {
	Branch            model.Branch `json:"branch"` // focus branch, or all
	IncludeCandidates bool         `json:"include_candidates"`
	TopCandidates     int          `json:"top_candidates"`
}

// DefaultParams evaluates every branch with candidates included.
func DefaultParams(cfg config.ExpansionConfig) Params {
	return Params{Branch: model.AllBranches, IncludeCandidates: true, TopCandidates: cfg.TopCandidates}
}

// Validate rejects unknown focus branches and out-of-range candidate counts.
func (p Params) Validate() error {
	if !p.Branch.IsAll() && !p.Branch.Valid() {
		return &model.InputError{Kind: model.KindUnknownBranch, Field: "branch", Value: p.Branch, Reason: "not a canonical branch"}
	}
	if p.IncludeCandidates && (p.TopCandidates < 1 || p.TopCandidates > 20) {
		return model.InvalidParam("top_candidates", p.TopCandidates, "must be between 1 and 20")
	}
	return nil
}

// DimensionScore is a 0-100 score with the figures it was derived from.
type DimensionScore struct {
	Score  float64            `json:"score"`
	Detail map[string]float64 `json:"detail"`
	Note   string             `json:"note,omitempty"`
}

// Scorecard holds the dimension scores of one branch.
type Scorecard struct {
	Branch         model.Branch              `json:"branch"`
	Dimensions     map[string]DimensionScore `json:"dimensions"`
	CompositeScore float64                   `json:"composite_score"`
	MonthsHistory  int                       `json:"months_history"`
}

// CategoryRevenue is one category of the archetype's revenue.
type CategoryRevenue struct {
	Category string  `json:"category"`
	Revenue  float64 `json:"revenue"`
}

// Archetype is the best branch, surfaced as the template to replicate.
type Archetype struct {
	Branch         model.Branch       `json:"branch"`
	CompositeScore float64            `json:"composite_score"`
	TopCategories  []CategoryRevenue  `json:"top_categories"`
	BeveragePct    float64            `json:"beverage_pct"`
	AvgTicketScore float64            `json:"avg_ticket_score"`
	ChannelMix     map[string]float64 `json:"channel_mix"`
	Recommendation string             `json:"recommendation"`
}

// Focus compares a requested branch against the archetype.
type Focus struct {
	Branch         model.Branch       `json:"branch"`
	CompositeScore float64            `json:"composite_score"`
	GapToArchetype map[string]float64 `json:"gap_to_archetype"`
}

// Result is the expansion evaluation.
type Result struct {
	model.Assessment
	Verdict       Verdict     `json:"verdict,omitempty"`
	VerdictDetail string      `json:"verdict_detail,omitempty"`
	BestArchetype *Archetype  `json:"best_archetype,omitempty"`
	Scorecards    []Scorecard `json:"scorecards"`
	Focus         *Focus      `json:"focus,omitempty"`
	Candidates    []Candidate `json:"candidate_locations"`
	Risks         []string    `json:"risks"`
}

// Engine evaluates expansion. It is safe for concurrent use.
type Engine struct {
	cfg       config.ExpansionConfig
	forecast  *forecast.Engine
	locations []Location
}

// New creates an expansion engine and loads the candidate list.
func New(cfg config.ExpansionConfig, fc *forecast.Engine) (*Engine, error) {
	locs, err := LoadLocations(cfg.CandidatesFile)
	if err != nil {
		return nil, err
	}
	if cfg.MinHistoryMonths < 1 {
		cfg.MinHistoryMonths = defaultHistoryMonths
	}
	return &Engine{cfg: cfg, forecast: fc, locations: locs}, nil
}

// Compute scores every branch of the snapshot.
func (e *Engine) Compute(snap *model.Snapshot, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, eris.Wrap(err, "expansion: validate params")
	}

	res := &Result{Scorecards: []Scorecard{}, Candidates: []Candidate{}, Risks: []string{}}
	rows := snap.RowCounts()
	if rows[model.TableMonthlySales]+rows[model.TableItemSales]+rows[model.TableMenuChannel]+
		rows[model.TableCustomerOrders]+rows[model.TableCategoryChannel] == 0 {
		res.Assessment = model.Unavailable("No sales, item, channel or customer data is loaded, so branches cannot be scored.")
		return res, nil
	}

	in := e.gather(snap)
	for _, b := range model.Branches() {
		res.Scorecards = append(res.Scorecards, e.scorecard(b, in))
	}
	sort.SliceStable(res.Scorecards, func(i, j int) bool {
		a, b := res.Scorecards[i], res.Scorecards[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		return a.Branch < b.Branch
	})

	best := res.Scorecards[0]
	res.BestArchetype = e.archetype(best, in)
	res.Verdict, res.VerdictDetail = e.verdict(best)

	if !p.Branch.IsAll() {
		for _, sc := range res.Scorecards {
			if sc.Branch == p.Branch {
				res.Focus = focus(sc, best)
			}
		}
	}
	if p.IncludeCandidates {
		res.Candidates = rankCandidates(e.locations, res.BestArchetype, p.TopCandidates)
	}
	res.Risks = e.risks(snap, res, p.IncludeCandidates)

	res.Assessment = model.Assessment{
		Status:      model.StatusOK,
		Confidence:  e.confidence(snap),
		Explanation: e.explain(res),
	}
	zap.L().Debug("expansion: computed",
		zap.String("archetype", string(best.Branch)),
		zap.Float64("composite", best.CompositeScore),
		zap.String("verdict", string(res.Verdict)),
	)
	return res, nil
}

// inputs are the cross-branch aggregates the dimensions normalise against.
type inputs struct {
	snap      *model.Snapshot
	tickets   map[model.Branch]float64 // average ticket, absent when unknown
	maxTicket float64
	skus      map[model.Branch]int
	maxSKUs   int
}

func (e *Engine) gather(snap *model.Snapshot) inputs {
	in := inputs{snap: snap, tickets: make(map[model.Branch]float64), skus: make(map[model.Branch]int)}
	for _, b := range model.Branches() {
		var sales, customers float64
		for _, r := range snap.MenuChannel(b) {
			sales += r.Sales
			customers += float64(r.Customers)
		}
		if t, ok := stats.Ratio(sales, customers); ok {
			in.tickets[b] = t
			in.maxTicket = math.Max(in.maxTicket, t)
		}

		items := make(map[string]bool)
		for _, r := range snap.ItemSales(b) {
			items[strings.ToLower(strings.TrimSpace(r.Item))] = true
		}
		in.skus[b] = len(items)
		in.maxSKUs = max(in.maxSKUs, len(items))
	}
	return in
}

func (e *Engine) scorecard(b model.Branch, in inputs) Scorecard {
	sc := Scorecard{
		Branch:        b,
		MonthsHistory: len(in.snap.MonthlySales(b)),
		Dimensions: map[string]DimensionScore{
			DimDemandTrend:        e.demandTrend(b, in),
			DimAvgTicket:          avgTicket(b, in),
			DimRepeatCustomer:     repeatCustomer(in.snap.CustomerOrders(b)),
			DimBeverageAttachment: e.beverageAttachment(b, in.snap),
			DimChannelMix:         channelMix(in.snap.MenuChannel(b)),
			DimProductMix:         productMix(b, in),
		},
	}
	sc.CompositeScore = e.composite(sc.Dimensions)
	return sc
}

// composite is the weighted mean of the dimension scores.
func (e *Engine) composite(dims map[string]DimensionScore) float64 {
	w := e.cfg.Weights
	weights := map[string]float64{
		DimDemandTrend:        w.DemandTrend,
		DimAvgTicket:          w.AvgTicket,
		DimRepeatCustomer:     w.RepeatCustomer,
		DimBeverageAttachment: w.BeverageAttachment,
		DimChannelMix:         w.ChannelMix,
		DimProductMix:         w.ProductMix,
	}
	var sum, wsum float64
	for _, d := range Dimensions() {
		sum += dims[d].Score * weights[d]
		wsum += weights[d]
	}
	v, ok := stats.Ratio(sum, wsum)
	if !ok {
		return 0
	}
	return stats.Round(stats.Clamp(v, 0, 100), 2)
}

func score(v float64) float64 { return stats.Round(stats.Clamp(v, 0, 100), 2) }

// demandTrend maps average month-over-month growth onto 0-100: -100% -> 0,
// flat -> 50, +100% -> 100.
func (e *Engine) demandTrend(b model.Branch, in inputs) DimensionScore {
	growth, ok := e.forecast.AvgMoMGrowth(in.snap.MonthlySales(b))
	if !ok {
		return DimensionScore{Score: neutralScore, Detail: map[string]float64{}, Note: "fewer than two usable months; neutral score"}
	}
	return DimensionScore{
		Score:  score(50 + 0.5*growth),
		Detail: map[string]float64{"avg_mom_growth_pct": stats.Round(growth, 2)},
	}
}

// avgTicket compares the branch's sales per customer with the best branch.
func avgTicket(b model.Branch, in inputs) DimensionScore {
	t, ok := in.tickets[b]
	if !ok {
		return DimensionScore{Score: neutralScore, Detail: map[string]float64{}, Note: "no channel summary; neutral score"}
	}
	rel, ok := stats.Ratio(t, in.maxTicket)
	if !ok {
		rel = 0
	}
	return DimensionScore{
		Score:  score(rel * 100),
		Detail: map[string]float64{"avg_ticket": stats.Round(t, 2), "max_avg_ticket": stats.Round(in.maxTicket, 2)},
	}
}

// repeatCustomer maps the share of customers with more than one order onto
// 20 (nobody returns) to 100 (30% or more return).
func repeatCustomer(rows []model.CustomerOrderRecord) DimensionScore {
	orders := make(map[string]int)
	for _, r := range rows {
		orders[r.Customer] += r.Orders
	}
	if len(orders) == 0 {
		return DimensionScore{Score: neutralScore, Detail: map[string]float64{}, Note: "no customer order data; neutral score"}
	}
	repeat := 0
	for _, n := range orders {
		if n > 1 {
			repeat++
		}
	}
	pct := float64(repeat) / float64(len(orders)) * 100
	return DimensionScore{
		Score: score(20 + pct*80/30),
		Detail: map[string]float64{
			"customers":        float64(len(orders)),
			"repeat_customers": float64(repeat),
			"repeat_pct":       stats.Round(pct, 2),
		},
	}
}

func (e *Engine) isBeverage(category string) bool {
	c := strings.ToLower(category)
	for _, kw := range e.cfg.BeverageCategories {
		if kw != "" && strings.Contains(c, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// BeveragePct returns beverage revenue as a percentage of category revenue,
// from category-channel sales or, failing that, item sales.
func (e *Engine) BeveragePct(b model.Branch, snap *model.Snapshot) (float64, bool) {
	var bev, total float64
	for _, r := range snap.CategoryChannel(b) {
		total += r.Total
		if e.isBeverage(r.Category) {
			bev += r.Total
		}
	}
	if total == 0 {
		for _, r := range snap.ItemSales(b) {
			total += r.Revenue
			if e.isBeverage(r.Category) {
				bev += r.Revenue
			}
		}
	}
	pct, ok := stats.Ratio(bev, total)
	return pct * 100, ok
}

// beverageAttachment maps beverage share onto 0-100, reaching 100 at 20%.
func (e *Engine) beverageAttachment(b model.Branch, snap *model.Snapshot) DimensionScore {
	pct, ok := e.BeveragePct(b, snap)
	if !ok {
		return DimensionScore{Score: neutralScore, Detail: map[string]float64{}, Note: "no category revenue; neutral score"}
	}
	return DimensionScore{Score: score(pct * 5), Detail: map[string]float64{"beverage_pct": stats.Round(pct, 2)}}
}

// channelMix is the normalised Shannon entropy of the sales split over the
// known channels: one channel scores 0, an even three-way split 100.
func channelMix(rows []model.MenuChannelRecord) DimensionScore {
	sales := make(map[string]float64)
	var total float64
	for _, r := range rows {
		sales[model.NormalizeChannel(r.Channel)] += r.Sales
		total += r.Sales
	}
	if total == 0 {
		return DimensionScore{Score: neutralScore, Detail: map[string]float64{}, Note: "no channel sales; neutral score"}
	}
	known := model.Channels()
	detail := make(map[string]float64, len(known))
	var h float64
	for _, ch := range known {
		share := sales[ch] / total
		detail[ch+"_share"] = stats.Round(share, 4)
		if share > 0 {
			h -= share * math.Log(share)
		}
	}
	return DimensionScore{Score: score(h / math.Log(float64(len(known))) * 100), Detail: detail}
}

// productMix combines SKU breadth against the widest menu (60%) with
// category diversification, 1 - HHI of category revenue shares (40%).
func productMix(b model.Branch, in inputs) DimensionScore {
	rows := in.snap.ItemSales(b)
	if len(rows) == 0 {
		return DimensionScore{Score: neutralScore, Detail: map[string]float64{}, Note: "no item sales; neutral score"}
	}
	byCat := make(map[string]float64)
	var total float64
	for _, r := range rows {
		byCat[r.Category] += r.Revenue
		total += r.Revenue
	}
	hhi := 1.0
	if total > 0 {
		hhi = 0
		for _, v := range byCat {
			s := v / total
			hhi += s * s
		}
	}
	skuNorm, ok := stats.Ratio(float64(in.skus[b]), float64(in.maxSKUs))
	if !ok {
		skuNorm = 0
	}
	return DimensionScore{
		Score: score(0.6*skuNorm*100 + 0.4*(1-hhi)*100),
		Detail: map[string]float64{
			"unique_skus": float64(in.skus[b]),
			"categories":  float64(len(byCat)),
			"herfindahl":  stats.Round(hhi, 4),
		},
	}
}

func (e *Engine) archetype(best Scorecard, in inputs) *Archetype {
	a := &Archetype{
		Branch:         best.Branch,
		CompositeScore: best.CompositeScore,
		TopCategories:  []CategoryRevenue{},
		AvgTicketScore: best.Dimensions[DimAvgTicket].Score,
		ChannelMix:     make(map[string]float64),
	}
	if pct, ok := e.BeveragePct(best.Branch, in.snap); ok {
		a.BeveragePct = stats.Round(pct, 2)
	}

	byCat := make(map[string]float64)
	for _, r := range in.snap.ItemSales(best.Branch) {
		byCat[r.Category] += r.Revenue
	}
	for c, v := range byCat {
		a.TopCategories = append(a.TopCategories, CategoryRevenue{Category: c, Revenue: stats.Round(v, 2)})
	}
	sort.Slice(a.TopCategories, func(i, j int) bool {
		if a.TopCategories[i].Revenue != a.TopCategories[j].Revenue {
			return a.TopCategories[i].Revenue > a.TopCategories[j].Revenue
		}
		return a.TopCategories[i].Category < a.TopCategories[j].Category
	})
	if len(a.TopCategories) > 5 {
		a.TopCategories = a.TopCategories[:5]
	}

	var channels []string
	for _, r := range in.snap.MenuChannel(best.Branch) {
		ch := model.NormalizeChannel(r.Channel)
		if _, seen := a.ChannelMix[ch]; !seen {
			channels = append(channels, ch)
		}
		a.ChannelMix[ch] += stats.Round(r.Sales, 2)
	}
	sort.Strings(channels)
	chText := "no recorded"
	if len(channels) > 0 {
		chText = strings.Join(channels, ", ")
	}
	a.Recommendation = fmt.Sprintf("Replicate the %s operating model: %s channels, %.1f%% beverage attachment.",
		best.Branch, chText, a.BeveragePct)
	return a
}

func (e *Engine) verdict(best Scorecard) (Verdict, string) {
	s := best.CompositeScore
	switch {
	case s >= e.cfg.GoThreshold:
		return VerdictGo, fmt.Sprintf("Expansion is recommended. The best archetype (%s) scores %.2f/100, a strong replicable profile.", best.Branch, s)
	case s < e.cfg.NoGoThreshold:
		return VerdictNoGo, fmt.Sprintf("Expansion is not recommended yet. The best archetype (%s) scores only %.2f/100; strengthen existing branches first.", best.Branch, s)
	default:
		return VerdictCaution, fmt.Sprintf("Expansion is conditionally feasible. The best archetype (%s) scores %.2f/100; start with a limited pilot.", best.Branch, s)
	}
}

func focus(sc, best Scorecard) *Focus {
	f := &Focus{Branch: sc.Branch, CompositeScore: sc.CompositeScore, GapToArchetype: make(map[string]float64)}
	for _, d := range Dimensions() {
		f.GapToArchetype[d] = stats.Round(best.Dimensions[d].Score-sc.Dimensions[d].Score, 2)
	}
	return f
}

// requiredTables feed the scorecard; a branch missing from one is a risk.
var requiredTables = []string{
	model.TableMonthlySales,
	model.TableMenuChannel,
	model.TableCustomerOrders,
	model.TableItemSales,
	model.TableCategoryChannel,
}

func (e *Engine) risks(snap *model.Snapshot, res *Result, candidates bool) []string {
	risks := []string{}
	cov := snap.Coverage()
	for _, b := range model.Branches() {
		if n := cov[model.TableMonthlySales][b]; n < e.cfg.MinHistoryMonths {
			risks = append(risks, fmt.Sprintf("%s has only %d month(s) of sales history; its trend score may not persist.", b, n))
		}
	}
	for _, b := range model.Branches() {
		var missing []string
		for _, t := range requiredTables {
			if cov[t][b] == 0 {
				missing = append(missing, t)
			}
		}
		if len(missing) > 0 {
			risks = append(risks, fmt.Sprintf("%s is missing from %s; neutral scores were applied.", b, strings.Join(missing, ", ")))
		}
	}
	if deliveryOnly(snap.CustomerOrders(model.AllBranches)) {
		risks = append(risks, "The repeat-customer signal is delivery-only; table and take-away repeat behaviour is unobserved.")
	}
	if candidates {
		risks = append(risks, "Candidate locations come from a curated static list (population, foot traffic and rent tiers), not real-estate analytics.")
	}
	if len(res.Scorecards) > 1 && res.Scorecards[0].CompositeScore-res.Scorecards[1].CompositeScore < marginalGap {
		risks = append(risks, fmt.Sprintf("The archetype is marginal: %s and %s are within %.0f points.",
			res.Scorecards[0].Branch, res.Scorecards[1].Branch, marginalGap))
	}
	return risks
}

func deliveryOnly(rows []model.CustomerOrderRecord) bool {
	if len(rows) == 0 {
		return false
	}
	for _, r := range rows {
		if model.NormalizeChannel(r.Channel) != model.ChannelDelivery {
			return false
		}
	}
	return true
}

// confidence is high when every branch has MinHistoryMonths of history and
// full table coverage, medium when every branch has a partial history.
func (e *Engine) confidence(snap *model.Snapshot) model.Confidence {
	cov := snap.Coverage()
	partialMonths := min(partialHistoryMonths, e.cfg.MinHistoryMonths)
	full, partial := true, true
	for _, b := range model.Branches() {
		months := cov[model.TableMonthlySales][b]
		if months < e.cfg.MinHistoryMonths {
			full = false
		}
		if months < partialMonths {
			partial = false
		}
		for _, t := range requiredTables {
			if cov[t][b] == 0 {
				full = false
			}
		}
	}
	switch {
	case full:
		return model.ConfidenceHigh
	case partial:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func (e *Engine) explain(r *Result) string {
	w := e.cfg.Weights
	parts := []string{
		fmt.Sprintf("Scored %d branches on six dimensions (weights: demand trend %.2f, average ticket %.2f, repeat customers %.2f, beverage attachment %.2f, channel mix %.2f, product mix %.2f).",
			len(r.Scorecards), w.DemandTrend, w.AvgTicket, w.RepeatCustomer, w.BeverageAttachment, w.ChannelMix, w.ProductMix),
		fmt.Sprintf("Best archetype: %s at %.2f/100. Verdict: %s (GO at %.0f or above, NO-GO below %.0f).",
			r.BestArchetype.Branch, r.BestArchetype.CompositeScore, r.Verdict, e.cfg.GoThreshold, e.cfg.NoGoThreshold),
	}
	if len(r.Candidates) > 0 {
		parts = append(parts, fmt.Sprintf("Ranked %d candidate locations where the chain is not yet present.", len(r.Candidates)))
	}
	if r.Focus != nil {
		parts = append(parts, fmt.Sprintf("%s scores %.2f/100.", r.Focus.Branch, r.Focus.CompositeScore))
	}
	return strings.Join(parts, " ")
}
