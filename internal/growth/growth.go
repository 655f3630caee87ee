// Package growth analyses beverage performance per branch and turns it into
// ranked, rule-based growth actions.
package growth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/forecast"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/stats"
)

// Action thresholds.
const (
	urgentVolumeRatio   = 0.5
	trailingVolumeRatio = 0.8
	strongMomentumPct   = 20.0
	lowSpendRatio       = 0.6
	lowThroughput       = 0.5
	minRepeatCustomers  = 5
	lowRepeatRatePct    = 15.0
	totalSignals        = 6
)

// Params are the per-request inputs of a growth analysis.
type Params struct {
	Branch model.Branch `json:"branch"`
}

// Validate rejects unknown branches.
func (p Params) Validate() error {
	if !p.Branch.IsAll() && !p.Branch.Valid() {
		return &model.InputError{Kind: model.KindUnknownBranch, Field: "branch", Value: p.Branch, Reason: "not a canonical branch"}
	}
	return nil
}

// SegmentTotals is the quantity and revenue of one beverage segment.
type SegmentTotals struct {
	Qty     float64 `json:"qty"`
	Revenue float64 `json:"revenue"`
}

// HeroItem is a top seller within a segment.
type HeroItem struct {
	Item    string  `json:"item"`
	Qty     float64 `json:"qty"`
	Revenue float64 `json:"revenue"`
	Rank    int     `json:"rank"`
}

// Underperformer is a beverage that sells much better at another branch.
type Underperformer struct {
	Item       string       `json:"item"`
	Segment    Segment      `json:"segment"`
	YourQty    float64      `json:"your_qty"`
	BestBranch model.Branch `json:"best_branch"`
	BestQty    float64      `json:"best_qty"`
	GapPct     float64      `json:"gap_pct"`
}

// ChannelInsight splits beverage revenue by channel.
type ChannelInsight struct {
	Available   bool    `json:"available"`
	DeliveryPct float64 `json:"delivery_pct"`
	TablePct    float64 `json:"table_pct"`
	TakeAwayPct float64 `json:"take_away_pct"`
	NoDelivery  bool    `json:"no_delivery"`
	NoTakeAway  bool    `json:"no_take_away"`
	Summary     string  `json:"summary"`
}

// Bundle is a dessert and beverage bought together.
type Bundle struct {
	Dessert      string `json:"dessert"`
	Beverage     string `json:"beverage"`
	CoOccurrence int    `json:"co_occurrence_count"`
}

// Momentum compares the latest two months of sales.
type Momentum struct {
	MonthsAvailable int            `json:"months_available"`
	LatestMonth     string         `json:"latest_month,omitempty"`
	MoMGrowthPct    float64        `json:"mom_growth_pct"`
	Trend           forecast.Trend `json:"trend,omitempty"`
}

// ChannelCustomers is the customer breakdown of one channel.
type ChannelCustomers struct {
	Channel   string  `json:"channel"`
	Customers int     `json:"customers"`
	Orders    int     `json:"orders"`
	Sales     float64 `json:"sales"`
	AvgTicket float64 `json:"avg_ticket"`
}

// CustomerMetrics aggregates customer orders.
type CustomerMetrics struct {
	TotalCustomers int                `json:"total_customers"`
	TotalOrders    int                `json:"total_orders"`
	TotalSales     float64            `json:"total_sales"`
	AvgTicket      float64            `json:"avg_ticket"`
	Channels       []ChannelCustomers `json:"channels"`
}

// DeliveryRepeat measures how often delivery customers come back.
type DeliveryRepeat struct {
	DeliveryCustomers    int     `json:"delivery_customers"`
	RepeatCustomers      int     `json:"repeat_customers"`
	RepeatRatePct        float64 `json:"repeat_rate_pct"`
	AvgOrdersPerCustomer float64 `json:"avg_orders_per_customer"`
}

// StaffingCapacity relates beverage volume to staff hours.
type StaffingCapacity struct {
	TotalStaffHours      float64 `json:"total_staff_hours"`
	UniqueEmployees      int     `json:"unique_employees"`
	BeveragePerStaffHour float64 `json:"beverage_per_staff_hour"`
}

// Profile is the beverage analysis of one branch.
type Profile struct {
	model.Assessment
	Branch                 model.Branch              `json:"branch"`
	BeveragePenetrationPct float64                   `json:"beverage_penetration_pct"`
	PenetrationRank        int                       `json:"penetration_rank"`
	Segments               map[Segment]SegmentTotals `json:"segments"`
	Heroes                 map[Segment][]HeroItem    `json:"hero_items"`
	Underperformers        []Underperformer          `json:"underperforming_items"`
	Channel                ChannelInsight            `json:"channel_insight"`
	Bundles                []Bundle                  `json:"bundle_recommendations"`
	Momentum               Momentum                  `json:"revenue_momentum"`
	Customers              CustomerMetrics           `json:"customer_metrics"`
	DeliveryRepeat         DeliveryRepeat            `json:"delivery_repeat_rate"`
	Staffing               StaffingCapacity          `json:"staffing_capacity"`
	Actions                []string                  `json:"actions"`
}

// Result holds one profile per requested branch.
type Result struct {
	model.Assessment
	Branch   model.Branch `json:"branch"`
	Profiles []Profile    `json:"branches"`
}

// Engine runs growth analyses. It is safe for concurrent use.
type Engine struct {
	cfg        config.GrowthConfig
	stableBand float64
	cls        classifier
}

// New creates a growth engine. stableBand is the relative change treated as
// flat when labelling momentum.
func New(cfg config.GrowthConfig, stableBand float64) *Engine {
	return &Engine{cfg: cfg, stableBand: stableBand, cls: newClassifier(cfg)}
}

// branchStats are the cross-branch figures used for ranking and benchmarks.
type branchStats struct {
	segments     map[Segment]SegmentTotals
	bevQty       float64
	bevRevenue   float64
	totalRevenue float64
	penetration  float64
	customers    int
}

// Compute analyses one branch, or every branch for AllBranches.
func (e *Engine) Compute(snap *model.Snapshot, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, eris.Wrap(err, "growth: validate params")
	}

	all := make(map[model.Branch]*branchStats)
	for _, b := range model.Branches() {
		all[b] = e.branchStats(snap, b)
	}
	ranks := penetrationRanks(all)

	targets := model.Branches()
	if !p.Branch.IsAll() {
		targets = []model.Branch{p.Branch}
	}

	res := &Result{Branch: p.Branch, Profiles: []Profile{}}
	ok := 0
	for _, b := range targets {
		prof := e.profile(snap, b, all, ranks[b])
		if prof.Status == model.StatusOK {
			ok++
		}
		res.Profiles = append(res.Profiles, prof)
	}

	if ok == 0 {
		res.Assessment = model.Unavailable(fmt.Sprintf("No beverage, sales or customer data is available for %s.", scope(p.Branch)))
		return res, nil
	}
	conf := res.Profiles[0].Confidence
	for _, prof := range res.Profiles[1:] {
		conf = lowerConfidence(conf, prof.Confidence)
	}
	res.Assessment = model.Assessment{
		Status:     model.StatusOK,
		Confidence: conf,
		Explanation: fmt.Sprintf(
			"Beverage growth analysis for %s: penetration is coffee, milkshake and frappé revenue over total item revenue; "+
				"heroes are the top %d items by revenue per segment; underperformers trail the best branch by at least %.0f%%; "+
				"bundles count dessert and beverage co-purchases; momentum compares the latest two months (stable within +/-%.0f%%).",
			scope(p.Branch), e.cfg.HeroCount, e.cfg.UnderperformerGap*100, e.stableBand*100),
	}
	zap.L().Debug("growth: computed", zap.String("branch", string(p.Branch)), zap.Int("profiles", len(res.Profiles)))
	return res, nil
}

func (e *Engine) branchStats(snap *model.Snapshot, b model.Branch) *branchStats {
	s := &branchStats{segments: make(map[Segment]SegmentTotals)}
	for _, r := range snap.ItemSales(b) {
		s.totalRevenue += r.Revenue
		seg, ok := e.cls.itemSegment(r.Category, r.Item)
		if !ok || r.Qty <= 0 {
			continue
		}
		t := s.segments[seg]
		t.Qty += r.Qty
		t.Revenue += r.Revenue
		s.segments[seg] = t
		s.bevQty += r.Qty
		s.bevRevenue += r.Revenue
	}
	if pct, ok := stats.Ratio(s.bevRevenue, s.totalRevenue); ok {
		s.penetration = pct * 100
	}
	customers := make(map[string]bool)
	for _, r := range snap.CustomerOrders(b) {
		customers[r.Customer] = true
	}
	s.customers = len(customers)
	return s
}

func penetrationRanks(all map[model.Branch]*branchStats) map[model.Branch]int {
	order := model.Branches()
	sort.Slice(order, func(i, j int) bool {
		pi, pj := all[order[i]].penetration, all[order[j]].penetration
		if pi != pj {
			return pi > pj
		}
		return order[i] < order[j]
	})
	ranks := make(map[model.Branch]int, len(order))
	for i, b := range order {
		ranks[b] = i + 1
	}
	return ranks
}

func (e *Engine) profile(snap *model.Snapshot, b model.Branch, all map[model.Branch]*branchStats, rank int) Profile {
	st := all[b]
	p := Profile{
		Branch:                 b,
		BeveragePenetrationPct: stats.Round(st.penetration, 2),
		PenetrationRank:        rank,
		Segments:               make(map[Segment]SegmentTotals, 3),
		Heroes:                 e.heroes(snap.ItemSales(b)),
		Underperformers:        e.underperformers(snap, b),
		Channel:                e.channelInsight(snap.CategoryChannel(b), b),
		Bundles:                e.bundles(snap.BasketLines(b)),
		Momentum:               e.momentum(snap.MonthlySales(b)),
		Customers:              customerMetrics(snap.CustomerOrders(b)),
		DeliveryRepeat:         deliveryRepeat(snap.CustomerOrders(b)),
		Staffing:               staffingCapacity(snap.Attendance(b), st.bevQty),
	}
	for _, seg := range Segments() {
		t := st.segments[seg]
		p.Segments[seg] = SegmentTotals{Qty: t.Qty, Revenue: stats.Round(t.Revenue, 2)}
	}

	signals := 0
	for _, has := range []bool{
		len(snap.ItemSales(b)) > 0,
		len(snap.CategoryChannel(b)) > 0,
		len(p.Bundles) > 0 || len(snap.BasketLines(b)) > 0,
		p.Momentum.MonthsAvailable >= 2,
		p.Customers.TotalCustomers > 0,
		p.Staffing.TotalStaffHours > 0,
	} {
		if has {
			signals++
		}
	}
	if signals == 0 {
		p.Assessment = model.Unavailable(fmt.Sprintf("No data is available for %s.", b))
		p.Actions = []string{}
		return p
	}

	p.Actions = e.actions(b, p, all)
	p.Assessment = model.Assessment{
		Status:     model.StatusOK,
		Confidence: signalConfidence(signals),
		Explanation: fmt.Sprintf("%s: beverages are %.1f%% of item revenue (rank %d of %d); %d of %d signals have data; %d action(s) proposed.",
			b, p.BeveragePenetrationPct, rank, len(all), signals, totalSignals, len(p.Actions)),
	}
	return p
}

func signalConfidence(signals int) model.Confidence {
	switch {
	case signals >= 5:
		return model.ConfidenceHigh
	case signals >= 3:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func lowerConfidence(a, b model.Confidence) model.Confidence {
	rank := map[model.Confidence]int{model.ConfidenceLow: 0, model.ConfidenceMedium: 1, model.ConfidenceHigh: 2}
	if rank[b] < rank[a] {
		return b
	}
	return a
}

// heroes returns the top items by revenue within each segment.
func (e *Engine) heroes(rows []model.ItemSalesRecord) map[Segment][]HeroItem {
	type agg struct{ qty, rev float64 }
	bySeg := make(map[Segment]map[string]*agg)
	for _, r := range rows {
		seg, ok := e.cls.itemSegment(r.Category, r.Item)
		if !ok || r.Qty <= 0 || r.Revenue <= 0 {
			continue
		}
		if bySeg[seg] == nil {
			bySeg[seg] = make(map[string]*agg)
		}
		a := bySeg[seg][r.Item]
		if a == nil {
			a = &agg{}
			bySeg[seg][r.Item] = a
		}
		a.qty += r.Qty
		a.rev += r.Revenue
	}

	out := make(map[Segment][]HeroItem, 3)
	for _, seg := range Segments() {
		items := []HeroItem{}
		for name, a := range bySeg[seg] {
			items = append(items, HeroItem{Item: name, Qty: a.qty, Revenue: stats.Round(a.rev, 2)})
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].Revenue != items[j].Revenue {
				return items[i].Revenue > items[j].Revenue
			}
			return items[i].Item < items[j].Item
		})
		if len(items) > e.cfg.HeroCount {
			items = items[:e.cfg.HeroCount]
		}
		for i := range items {
			items[i].Rank = i + 1
		}
		out[seg] = items
	}
	return out
}

// underperformers lists beverages whose quantity at b trails the best branch
// by at least UnderperformerGap.
func (e *Engine) underperformers(snap *model.Snapshot, b model.Branch) []Underperformer {
	type key struct {
		seg  Segment
		item string
	}
	qty := make(map[key]map[model.Branch]float64)
	for _, r := range snap.ItemSales(model.AllBranches) {
		seg, ok := e.cls.itemSegment(r.Category, r.Item)
		if !ok || r.Qty <= 0 {
			continue
		}
		k := key{seg, r.Item}
		if qty[k] == nil {
			qty[k] = make(map[model.Branch]float64)
		}
		qty[k][r.Branch] += r.Qty
	}

	out := []Underperformer{}
	for k, per := range qty {
		var best model.Branch
		var bestQty float64
		for _, br := range model.Branches() {
			if per[br] > bestQty {
				best, bestQty = br, per[br]
			}
		}
		if best == b || bestQty < e.cfg.MinBestQty {
			continue
		}
		gap := (bestQty - per[b]) / bestQty
		if gap < e.cfg.UnderperformerGap {
			continue
		}
		out = append(out, Underperformer{
			Item:       k.item,
			Segment:    k.seg,
			YourQty:    per[b],
			BestBranch: best,
			BestQty:    bestQty,
			GapPct:     stats.Round(gap*100, 1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GapPct != out[j].GapPct {
			return out[i].GapPct > out[j].GapPct
		}
		return out[i].Item < out[j].Item
	})
	if len(out) > e.cfg.MaxUnderperformers {
		out = out[:e.cfg.MaxUnderperformers]
	}
	return out
}

func (e *Engine) channelInsight(rows []model.CategoryChannelRecord, b model.Branch) ChannelInsight {
	var delivery, table, takeAway float64
	for _, r := range rows {
		if _, ok := e.cls.segment(r.Category); !ok {
			continue
		}
		delivery += r.Delivery
		table += r.Table
		takeAway += r.TakeAway
	}
	total := delivery + table + takeAway
	if total == 0 {
		return ChannelInsight{Summary: fmt.Sprintf("No beverage channel data is available for %s.", b)}
	}
	ci := ChannelInsight{
		Available:   true,
		DeliveryPct: stats.Round(delivery/total*100, 1),
		TablePct:    stats.Round(table/total*100, 1),
		TakeAwayPct: stats.Round(takeAway/total*100, 1),
		NoDelivery:  delivery == 0,
		NoTakeAway:  takeAway == 0,
	}
	ci.Summary = fmt.Sprintf("Beverage channel mix: delivery %.0f%%, table %.0f%%, take-away %.0f%%.",
		ci.DeliveryPct, ci.TablePct, ci.TakeAwayPct)
	if ci.NoDelivery {
		ci.Summary += " No beverage delivery sales."
	}
	if ci.NoTakeAway {
		ci.Summary += " No take-away beverage sales."
	}
	return ci
}

// bundles counts dessert and beverage pairs within multi-item baskets.
func (e *Engine) bundles(lines []model.BasketLine) []Bundle {
	type orderKey struct {
		branch model.Branch
		order  string
	}
	baskets := make(map[orderKey]map[string]string) // item -> category
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		k := orderKey{l.Branch, l.OrderID}
		if baskets[k] == nil {
			baskets[k] = make(map[string]string)
		}
		baskets[k][strings.TrimSpace(l.Item)] = l.Category
	}

	type pair struct{ dessert, beverage string }
	counts := make(map[pair]int)
	for _, items := range baskets {
		if len(items) < 2 {
			continue
		}
		var desserts, bevs []string
		for item, cat := range items {
			if _, ok := e.cls.itemSegment(cat, item); ok {
				bevs = append(bevs, item)
			} else if e.cls.isDessert(cat, item) {
				desserts = append(desserts, item)
			}
		}
		for _, d := range desserts {
			for _, b := range bevs {
				counts[pair{d, b}]++
			}
		}
	}

	out := []Bundle{}
	for p, n := range counts {
		out = append(out, Bundle{Dessert: p.dessert, Beverage: p.beverage, CoOccurrence: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CoOccurrence != out[j].CoOccurrence {
			return out[i].CoOccurrence > out[j].CoOccurrence
		}
		if out[i].Dessert != out[j].Dessert {
			return out[i].Dessert < out[j].Dessert
		}
		return out[i].Beverage < out[j].Beverage
	})
	if len(out) > e.cfg.BundleCount {
		out = out[:e.cfg.BundleCount]
	}
	return out
}

// momentum labels the latest month-over-month change with the forecast
// trend rule.
func (e *Engine) momentum(rows []model.MonthlySalesRecord) Momentum {
	m := Momentum{MonthsAvailable: len(rows)}
	if len(rows) < 2 {
		return m
	}
	latest, prev := rows[len(rows)-1], rows[len(rows)-2]
	m.LatestMonth = latest.MonthLabel()
	change, ok := stats.Ratio(latest.SalesValue-prev.SalesValue, prev.SalesValue)
	if !ok {
		return m
	}
	m.MoMGrowthPct = stats.Round(change*100, 1)
	m.Trend = forecast.ClassifyChange(change, e.stableBand)
	return m
}

func customerMetrics(rows []model.CustomerOrderRecord) CustomerMetrics {
	cm := CustomerMetrics{Channels: []ChannelCustomers{}}
	customers := make(map[string]bool)
	type chAgg struct {
		customers map[string]bool
		orders    int
		sales     float64
	}
	byChannel := make(map[string]*chAgg)
	var channels []string
	for _, r := range rows {
		customers[r.Customer] = true
		cm.TotalOrders += r.Orders
		cm.TotalSales += r.Total
		ch := model.NormalizeChannel(r.Channel)
		a := byChannel[ch]
		if a == nil {
			a = &chAgg{customers: make(map[string]bool)}
			byChannel[ch] = a
			channels = append(channels, ch)
		}
		a.customers[r.Customer] = true
		a.orders += r.Orders
		a.sales += r.Total
	}
	cm.TotalCustomers = len(customers)
	cm.TotalSales = stats.Round(cm.TotalSales, 2)
	if t, ok := stats.Ratio(cm.TotalSales, float64(cm.TotalCustomers)); ok {
		cm.AvgTicket = stats.Round(t, 2)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		a := byChannel[ch]
		cc := ChannelCustomers{Channel: ch, Customers: len(a.customers), Orders: a.orders, Sales: stats.Round(a.sales, 2)}
		if t, ok := stats.Ratio(a.sales, float64(len(a.customers))); ok {
			cc.AvgTicket = stats.Round(t, 2)
		}
		cm.Channels = append(cm.Channels, cc)
	}
	return cm
}

func deliveryRepeat(rows []model.CustomerOrderRecord) DeliveryRepeat {
	orders := make(map[string]int)
	for _, r := range rows {
		if model.NormalizeChannel(r.Channel) == model.ChannelDelivery {
			orders[r.Customer] += r.Orders
		}
	}
	dr := DeliveryRepeat{DeliveryCustomers: len(orders)}
	if len(orders) == 0 {
		return dr
	}
	total := 0
	for _, n := range orders {
		total += n
		if n > 1 {
			dr.RepeatCustomers++
		}
	}
	dr.RepeatRatePct = stats.Round(float64(dr.RepeatCustomers)/float64(len(orders))*100, 1)
	dr.AvgOrdersPerCustomer = stats.Round(float64(total)/float64(len(orders)), 2)
	return dr
}

func staffingCapacity(rows []model.AttendanceRecord, bevQty float64) StaffingCapacity {
	var sc StaffingCapacity
	emps := make(map[string]bool)
	for _, r := range rows {
		sc.TotalStaffHours += r.HoursWorked
		emps[r.EmployeeID] = true
	}
	sc.UniqueEmployees = len(emps)
	if v, ok := stats.Ratio(bevQty, sc.TotalStaffHours); ok {
		sc.BeveragePerStaffHour = stats.Round(v, 2)
	}
	sc.TotalStaffHours = stats.Round(sc.TotalStaffHours, 1)
	return sc
}

// actions turns the profile signals into ranked recommendations.
func (e *Engine) actions(b model.Branch, p Profile, all map[model.Branch]*branchStats) []string {
	var out []string
	own := all[b]

	var bench model.Branch
	var benchQty float64
	for _, br := range model.Branches() {
		if all[br].bevQty > benchQty {
			bench, benchQty = br, all[br].bevQty
		}
	}
	if benchQty > 0 && bench != b {
		behind := (1 - own.bevQty/benchQty) * 100
		switch {
		case own.bevQty < benchQty*urgentVolumeRatio:
			out = append(out, fmt.Sprintf("URGENT: beverage volume is %.0f units, %.0f%% behind %s (%.0f units). Prioritise beverage promotion and staff training.",
				own.bevQty, behind, bench, benchQty))
		case own.bevQty < benchQty*trailingVolumeRatio:
			out = append(out, fmt.Sprintf("Beverage volume (%.0f) trails %s (%.0f) by %.0f%%. Target coffee upselling during peak hours.",
				own.bevQty, bench, benchQty, behind))
		}
	}

	switch {
	case p.Momentum.Trend == forecast.TrendDeclining:
		out = append(out, fmt.Sprintf("WARNING: revenue is declining (%+.1f%% month over month in %s). Investigate pricing, footfall and competition.",
			p.Momentum.MoMGrowthPct, p.Momentum.LatestMonth))
	case p.Momentum.Trend == forecast.TrendGrowing && p.Momentum.MoMGrowthPct > strongMomentumPct:
		out = append(out, fmt.Sprintf("Strong momentum: %+.1f%% month over month in %s. Expand the beverage range while traffic is up.",
			p.Momentum.MoMGrowthPct, p.Momentum.LatestMonth))
	}

	if own.customers > 0 {
		spend := own.bevRevenue / float64(own.customers)
		var best float64
		var bestBranch model.Branch
		for _, br := range model.Branches() {
			if all[br].customers == 0 {
				continue
			}
			if v := all[br].bevRevenue / float64(all[br].customers); v > best {
				best, bestBranch = v, br
			}
		}
		if best > 0 && spend < best*lowSpendRatio {
			out = append(out, fmt.Sprintf("Low beverage spend per customer (%.0f vs %.0f at %s). Upsell a drink with every dessert order.",
				spend, best, bestBranch))
		}
	}

	if t := p.Staffing.BeveragePerStaffHour; t > 0 && t < lowThroughput {
		out = append(out, fmt.Sprintf("Low beverage throughput (%.2f units per staff hour). Consider dedicated barista shifts.", t))
	}

	switch dr := p.DeliveryRepeat; {
	case dr.DeliveryCustomers > minRepeatCustomers && dr.RepeatRatePct < lowRepeatRatePct:
		out = append(out, fmt.Sprintf("Delivery repeat rate is only %.0f%% (%d of %d customers). Launch a loyalty or bundled delivery beverage deal.",
			dr.RepeatRatePct, dr.RepeatCustomers, dr.DeliveryCustomers))
	case dr.DeliveryCustomers == 0:
		out = append(out, "No delivery customers. Consider launching a delivery beverage menu.")
	}

	for _, seg := range []Segment{SegmentCoffee, SegmentMilkshake} {
		if h := p.Heroes[seg]; len(h) > 0 {
			out = append(out, fmt.Sprintf("Push hero %s: %s (top seller with %.0f units).", seg, h[0].Item, h[0].Qty))
		}
	}

	if len(p.Underperformers) > 0 {
		w := p.Underperformers[0]
		out = append(out, fmt.Sprintf("Growth opportunity: %s sells %.0f units at %s but only %.0f here (%.0f%% gap). Check visibility and staffing.",
			w.Item, w.BestQty, w.BestBranch, w.YourQty, w.GapPct))
	}

	if p.Channel.Available && p.Channel.NoDelivery {
		out = append(out, "Enable beverage delivery; other branches show delivery demand for drinks.")
	}
	if p.Channel.Available && p.Channel.NoTakeAway {
		out = append(out, "Add a grab-and-go beverage promotion for take-away customers.")
	}

	if len(p.Bundles) > 0 {
		bd := p.Bundles[0]
		out = append(out, fmt.Sprintf("Bundle opportunity: %s + %s (bought together %d times). Create a combo deal.",
			bd.Dessert, bd.Beverage, bd.CoOccurrence))
	}

	if len(out) > e.cfg.MaxActions {
		out = out[:e.cfg.MaxActions]
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func scope(b model.Branch) string {
	if b.IsAll() {
		return "all branches"
	}
	return string(b)
}
