// Package synth generates seeded, reproducible demo tables for the four
// branches.
package synth

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/sells-group/branch-insights/internal/model"
)

// Options control the generated volume.
type Options struct {
	Seed           uint64
	Months         int
	Start          time.Time // first month, truncated to the month
	OrdersPerMonth int       // for a branch with scale 1
	StaffPerBranch int
}

// DefaultOptions returns a year of data starting January 2025.
func DefaultOptions(seed uint64) Options {
	return Options{
		Seed:           seed,
		Months:         12,
		Start:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		OrdersPerMonth: 80,
		StaffPerBranch: 10,
	}
}

type menuItem struct {
	name     string
	category string
	price    float64
	beverage bool
}

var menu = []menuItem{
	{"Latte", "Hot Coffee", 4.5, true},
	{"Cappuccino", "Hot Coffee", 4.0, true},
	{"Americano", "Hot Coffee", 3.5, true},
	{"Espresso", "Hot Coffee", 2.5, true},
	{"Caramel Frappe", "Frappes", 5.5, true},
	{"Mocha Frappe", "Frappes", 5.5, true},
	{"Oreo Shake", "Shakes", 5.0, true},
	{"Pistachio Shake", "Shakes", 5.5, true},
	{"Classic Conut", "Conuts", 3.0, false},
	{"Nutella Conut", "Conuts", 3.5, false},
	{"Chimney Cake", "Chimney", 4.0, false},
	{"Mini Conuts Box", "Mini", 6.0, false},
	{"Acai Bowl", "Bowls", 6.5, false},
}

var extraNutella = menuItem{"Extra Nutella", "Extras", 0.5, false}

// profile shapes one branch's demand.
type profile struct {
	scale     float64 // order volume relative to OrdersPerMonth
	growth    float64 // monthly growth rate
	beverage  float64 // probability an order includes a drink
	channels  []float64
	avgBasket int
}

var profiles = map[model.Branch]profile{
	model.BranchConut:            {scale: 1.0, growth: 0.04, beverage: 0.7, channels: []float64{0.3, 0.5, 0.2}, avgBasket: 3},
	model.BranchConutTyre:        {scale: 0.8, growth: 0.01, beverage: 0.45, channels: []float64{0.2, 0.6, 0.2}, avgBasket: 2},
	model.BranchConutJnah:        {scale: 0.7, growth: -0.01, beverage: 0.55, channels: []float64{0.5, 0.3, 0.2}, avgBasket: 2},
	model.BranchMainStreetCoffee: {scale: 0.5, growth: 0.0, beverage: 0.85, channels: []float64{0.0, 0.7, 0.3}, avgBasket: 2},
}

// generator keeps the faker and the accumulating tables.
type generator struct {
	f    *gofakeit.Faker
	opts Options
	t    model.Tables
}

// Generate builds a complete, internally consistent set of tables. The same
// options always produce the same tables.
func Generate(opts Options) model.Tables {
	if opts.Months < 1 {
		opts.Months = 1
	}
	if opts.OrdersPerMonth < 1 {
		opts.OrdersPerMonth = 1
	}
	if opts.StaffPerBranch < 1 {
		opts.StaffPerBranch = 1
	}
	if opts.Start.IsZero() {
		opts.Start = DefaultOptions(opts.Seed).Start
	}
	opts.Start = time.Date(opts.Start.Year(), opts.Start.Month(), 1, 0, 0, 0, 0, time.UTC)

	g := &generator{f: gofakeit.New(opts.Seed), opts: opts}
	for _, b := range model.Branches() {
		g.branch(b, profiles[b])
	}
	return g.t
}

func (g *generator) branch(b model.Branch, p profile) {
	customers := make([]string, 60)
	for i := range customers {
		customers[i] = fmt.Sprintf("%s %s", g.f.FirstName(), g.f.LastName())
	}

	var lines []model.BasketLine
	channelOf := make(map[string]string)
	for m := 0; m < g.opts.Months; m++ {
		month := g.opts.Start.AddDate(0, m, 0)
		orders := int(math.Round(float64(g.opts.OrdersPerMonth) * p.scale * math.Pow(1+p.growth, float64(m))))
		for o := 0; o < orders; o++ {
			id := fmt.Sprintf("%s-%04d%02d-%04d", branchCode(b), month.Year(), int(month.Month()), o)
			ts := month.AddDate(0, 0, g.f.IntRange(0, daysIn(month)-1)).
				Add(time.Duration(g.f.IntRange(8, 22))*time.Hour + time.Duration(g.f.IntRange(0, 59))*time.Minute)
			channelOf[id] = g.channel(p.channels)
			lines = append(lines, g.order(id, b, ts, p)...)
		}
	}
	g.t.BasketLines = append(g.t.BasketLines, lines...)
	g.aggregate(b, lines, channelOf, customers)
	g.attendance(b)
}

func branchCode(b model.Branch) string {
	switch b {
	case model.BranchConut:
		return "CON"
	case model.BranchConutTyre:
		return "TYR"
	case model.BranchConutJnah:
		return "JNH"
	default:
		return "MSC"
	}
}

func daysIn(month time.Time) int {
	return month.AddDate(0, 1, -1).Day()
}

func (g *generator) channel(weights []float64) string {
	r := g.f.Float64Range(0, 1)
	for i, ch := range model.Channels() {
		if r < weights[i] {
			return ch
		}
		r -= weights[i]
	}
	return model.ChannelTable
}

func (g *generator) pick(beverage bool) menuItem {
	var pool []menuItem
	for _, it := range menu {
		if it.beverage == beverage {
			pool = append(pool, it)
		}
	}
	return pool[g.f.IntRange(0, len(pool)-1)]
}

// order draws the lines of one basket. Classic Conut and Latte are bought
// together often enough to surface as a combo.
func (g *generator) order(id string, b model.Branch, ts time.Time, p profile) []model.BasketLine {
	items := make(map[string]menuItem)
	n := g.f.IntRange(1, p.avgBasket)
	for i := 0; i < n; i++ {
		it := g.pick(false)
		items[it.name] = it
	}
	if g.f.Float64Range(0, 1) < p.beverage {
		it := g.pick(true)
		if _, ok := items["Classic Conut"]; ok && g.f.Float64Range(0, 1) < 0.6 {
			it = menu[0]
		}
		items[it.name] = it
	}
	if g.f.Float64Range(0, 1) < 0.1 {
		items[extraNutella.name] = extraNutella
	}

	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]model.BasketLine, 0, len(names)+1)
	for _, name := range names {
		it := items[name]
		qty := float64(g.f.IntRange(1, 2))
		out = append(out, model.BasketLine{
			OrderID: id, Branch: b, Timestamp: ts, Item: it.name, Category: it.category,
			Qty: qty, LineValue: round2(qty * it.price),
		})
	}
	// occasional void of the first line
	if g.f.Float64Range(0, 1) < 0.03 {
		v := out[0]
		v.Qty, v.LineValue = -v.Qty, -v.LineValue
		out = append(out, v)
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// aggregate derives the summary tables from the generated baskets so every
// table agrees with the others.
func (g *generator) aggregate(b model.Branch, lines []model.BasketLine, channelOf map[string]string, customers []string) {
	type monthAgg struct {
		sales     float64
		orders    map[string]bool
		customers map[string]bool
	}
	type itemAgg struct {
		category string
		qty, rev float64
	}
	type custKey struct{ customer, channel string }
	type custAgg struct {
		orders map[string]bool
		total  float64
	}

	months := make(map[string]*monthAgg)
	items := make(map[string]*itemAgg)
	catChannel := make(map[string]map[string]float64)
	custs := make(map[custKey]*custAgg)
	customerOf := make(map[string]string)

	for _, l := range lines {
		cust, ok := customerOf[l.OrderID]
		if !ok {
			cust = customers[g.f.IntRange(0, len(customers)-1)]
			customerOf[l.OrderID] = cust
		}
		mk := l.Timestamp.Format("2006-01")
		ma := months[mk]
		if ma == nil {
			ma = &monthAgg{orders: make(map[string]bool), customers: make(map[string]bool)}
			months[mk] = ma
		}
		ma.sales += l.LineValue
		ma.orders[l.OrderID] = true
		ma.customers[cust] = true

		ia := items[l.Item]
		if ia == nil {
			ia = &itemAgg{category: l.Category}
			items[l.Item] = ia
		}
		ia.qty += l.Qty
		ia.rev += l.LineValue

		ch := channelOf[l.OrderID]
		if catChannel[l.Category] == nil {
			catChannel[l.Category] = make(map[string]float64)
		}
		catChannel[l.Category][ch] += l.LineValue

		ck := custKey{cust, ch}
		ca := custs[ck]
		if ca == nil {
			ca = &custAgg{orders: make(map[string]bool)}
			custs[ck] = ca
		}
		ca.orders[l.OrderID] = true
		ca.total += l.LineValue
	}

	for _, mk := range sortedKeys(months) {
		ma := months[mk]
		month, _ := time.Parse("2006-01", mk)
		g.t.MonthlySales = append(g.t.MonthlySales, model.MonthlySalesRecord{
			Branch: b, Month: month, SalesValue: round2(ma.sales), Orders: len(ma.orders), Customers: len(ma.customers),
		})
	}
	for _, name := range sortedKeys(items) {
		ia := items[name]
		g.t.ItemSales = append(g.t.ItemSales, model.ItemSalesRecord{
			Branch: b, Category: ia.category, Item: name, Qty: ia.qty, Revenue: round2(ia.rev),
		})
	}
	for _, cat := range sortedKeys(catChannel) {
		cc := catChannel[cat]
		r := model.CategoryChannelRecord{
			Branch:   b,
			Category: cat,
			Delivery: round2(cc[model.ChannelDelivery]),
			Table:    round2(cc[model.ChannelTable]),
			TakeAway: round2(cc[model.ChannelTakeAway]),
		}
		r.Total = round2(r.Delivery + r.Table + r.TakeAway)
		g.t.CategoryChannel = append(g.t.CategoryChannel, r)
	}

	keys := make([]custKey, 0, len(custs))
	for k := range custs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].customer != keys[j].customer {
			return keys[i].customer < keys[j].customer
		}
		return keys[i].channel < keys[j].channel
	})
	channelCustomers := make(map[string]map[string]bool)
	channelSales := make(map[string]float64)
	for _, k := range keys {
		ca := custs[k]
		total := round2(ca.total)
		if total < 0 {
			total = 0
		}
		g.t.CustomerOrders = append(g.t.CustomerOrders, model.CustomerOrderRecord{
			Branch: b, Customer: k.customer, Channel: k.channel, Orders: len(ca.orders), Total: total,
		})
		if channelCustomers[k.channel] == nil {
			channelCustomers[k.channel] = make(map[string]bool)
		}
		channelCustomers[k.channel][k.customer] = true
		channelSales[k.channel] += total
	}
	for _, ch := range model.Channels() {
		n := len(channelCustomers[ch])
		if n == 0 {
			continue
		}
		g.t.MenuChannel = append(g.t.MenuChannel, model.MenuChannelRecord{
			Branch: b, Channel: ch, Customers: n, Sales: round2(channelSales[ch]), AvgPerCustomer: round2(channelSales[ch] / float64(n)),
		})
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// shiftStart is the usual clock-in hour of each shift.
var shiftStart = map[model.Shift]int{
	model.ShiftMorning: 7,
	model.ShiftMidday:  12,
	model.ShiftEvening: 17,
}

// attendance staffs every shift of every day of the last three months.
func (g *generator) attendance(b model.Branch) {
	staff := make([]string, g.opts.StaffPerBranch)
	for i := range staff {
		staff[i] = fmt.Sprintf("%s-E%02d", branchCode(b), i+1)
	}
	first := g.opts.Months - 3
	if first < 0 {
		first = 0
	}
	for m := first; m < g.opts.Months; m++ {
		month := g.opts.Start.AddDate(0, m, 0)
		for d := 0; d < daysIn(month); d++ {
			day := month.AddDate(0, 0, d)
			for _, s := range model.Shifts() {
				n := g.f.IntRange(2, 4)
				if n > len(staff) {
					n = len(staff)
				}
				offset := g.f.IntRange(0, len(staff)-1)
				for i := 0; i < n; i++ {
					in := day.Add(time.Duration(shiftStart[s])*time.Hour + time.Duration(g.f.IntRange(0, 30))*time.Minute)
					hours := float64(g.f.IntRange(8, 16)) / 2
					out := in.Add(time.Duration(hours * float64(time.Hour)))
					g.t.Attendance = append(g.t.Attendance, model.AttendanceRecord{
						EmployeeID: staff[(offset+i)%len(staff)], Branch: b, Date: day, InTime: in, OutTime: out, HoursWorked: hours,
					})
				}
			}
		}
	}
}
