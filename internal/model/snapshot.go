package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// maxReportedIssues caps the validation issues included in an error.
const maxReportedIssues = 5

// Snapshot is an immutable, validated view of every input table, indexed by
// branch. It is built once per load and shared read-only by all engines.
// Slices returned by accessors must not be modified.
type Snapshot struct {
	Version  string    `json:"version"`
	LoadedAt time.Time `json:"loaded_at"`

	all              Tables
	sales            map[Branch][]MonthlySalesRecord
	baskets          map[Branch][]BasketLine
	attendance       map[Branch][]AttendanceRecord
	items            map[Branch][]ItemSalesRecord
	categoryChannels map[Branch][]CategoryChannelRecord
	customerOrders   map[Branch][]CustomerOrderRecord
	menuChannels     map[Branch][]MenuChannelRecord
}

// NewSnapshot validates t and builds an indexed snapshot. The input slices are
// copied, so later changes to t do not leak into the snapshot.
func NewSnapshot(t Tables, version string, loadedAt time.Time) (*Snapshot, error) {
	if issues := validateTables(t); len(issues) > 0 {
		shown := issues
		if len(shown) > maxReportedIssues {
			shown = shown[:maxReportedIssues]
		}
		return nil, eris.Errorf("model: snapshot validation failed (%d issues): %s",
			len(issues), strings.Join(shown, "; "))
	}

	s := &Snapshot{
		Version:  version,
		LoadedAt: loadedAt,
		all: Tables{
			MonthlySales:    append([]MonthlySalesRecord(nil), t.MonthlySales...),
			BasketLines:     append([]BasketLine(nil), t.BasketLines...),
			Attendance:      append([]AttendanceRecord(nil), t.Attendance...),
			ItemSales:       append([]ItemSalesRecord(nil), t.ItemSales...),
			CategoryChannel: append([]CategoryChannelRecord(nil), t.CategoryChannel...),
			CustomerOrders:  append([]CustomerOrderRecord(nil), t.CustomerOrders...),
			MenuChannel:     append([]MenuChannelRecord(nil), t.MenuChannel...),
		},
	}

	sort.SliceStable(s.all.MonthlySales, func(i, j int) bool {
		a, b := s.all.MonthlySales[i], s.all.MonthlySales[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		return a.Month.Before(b.Month)
	})

	s.sales = groupBy(s.all.MonthlySales, func(r MonthlySalesRecord) Branch { return r.Branch })
	s.baskets = groupBy(s.all.BasketLines, func(r BasketLine) Branch { return r.Branch })
	s.attendance = groupBy(s.all.Attendance, func(r AttendanceRecord) Branch { return r.Branch })
	s.items = groupBy(s.all.ItemSales, func(r ItemSalesRecord) Branch { return r.Branch })
	s.categoryChannels = groupBy(s.all.CategoryChannel, func(r CategoryChannelRecord) Branch { return r.Branch })
	s.customerOrders = groupBy(s.all.CustomerOrders, func(r CustomerOrderRecord) Branch { return r.Branch })
	s.menuChannels = groupBy(s.all.MenuChannel, func(r MenuChannelRecord) Branch { return r.Branch })

	return s, nil
}

func groupBy[T any](rows []T, key func(T) Branch) map[Branch][]T {
	out := make(map[Branch][]T)
	for _, r := range rows {
		k := key(r)
		out[k] = append(out[k], r)
	}
	return out
}

// pick returns the rows of one branch, or every row for AllBranches.
func pick[T any](idx map[Branch][]T, all []T, b Branch) []T {
	if b.IsAll() {
		return all
	}
	return idx[b]
}

// MonthlySales returns a branch's monthly sales in ascending month order.
func (s *Snapshot) MonthlySales(b Branch) []MonthlySalesRecord {
	return pick(s.sales, s.all.MonthlySales, b)
}

// BasketLines returns basket lines for a branch or for AllBranches.
func (s *Snapshot) BasketLines(b Branch) []BasketLine {
	return pick(s.baskets, s.all.BasketLines, b)
}

// Attendance returns attendance records for a branch or for AllBranches.
func (s *Snapshot) Attendance(b Branch) []AttendanceRecord {
	return pick(s.attendance, s.all.Attendance, b)
}

// ItemSales returns item sales for a branch or for AllBranches.
func (s *Snapshot) ItemSales(b Branch) []ItemSalesRecord {
	return pick(s.items, s.all.ItemSales, b)
}

// CategoryChannel returns category-channel sales for a branch or for AllBranches.
func (s *Snapshot) CategoryChannel(b Branch) []CategoryChannelRecord {
	return pick(s.categoryChannels, s.all.CategoryChannel, b)
}

// CustomerOrders returns customer orders for a branch or for AllBranches.
func (s *Snapshot) CustomerOrders(b Branch) []CustomerOrderRecord {
	return pick(s.customerOrders, s.all.CustomerOrders, b)
}

// MenuChannel returns the menu-channel summary for a branch or for AllBranches.
func (s *Snapshot) MenuChannel(b Branch) []MenuChannelRecord {
	return pick(s.menuChannels, s.all.MenuChannel, b)
}

// Coverage reports the number of rows per table per branch.
func (s *Snapshot) Coverage() map[string]map[Branch]int {
	count := func(n func(Branch) int) map[Branch]int {
		out := make(map[Branch]int, len(canonicalBranches))
		for _, b := range canonicalBranches {
			out[b] = n(b)
		}
		return out
	}
	return map[string]map[Branch]int{
		TableMonthlySales:    count(func(b Branch) int { return len(s.sales[b]) }),
		TableBasketLines:     count(func(b Branch) int { return len(s.baskets[b]) }),
		TableAttendance:      count(func(b Branch) int { return len(s.attendance[b]) }),
		TableItemSales:       count(func(b Branch) int { return len(s.items[b]) }),
		TableCategoryChannel: count(func(b Branch) int { return len(s.categoryChannels[b]) }),
		TableCustomerOrders:  count(func(b Branch) int { return len(s.customerOrders[b]) }),
		TableMenuChannel:     count(func(b Branch) int { return len(s.menuChannels[b]) }),
	}
}

// RowCounts returns the total number of rows per table.
func (s *Snapshot) RowCounts() map[string]int {
	return map[string]int{
		TableMonthlySales:    len(s.all.MonthlySales),
		TableBasketLines:     len(s.all.BasketLines),
		TableAttendance:      len(s.all.Attendance),
		TableItemSales:       len(s.all.ItemSales),
		TableCategoryChannel: len(s.all.CategoryChannel),
		TableCustomerOrders:  len(s.all.CustomerOrders),
		TableMenuChannel:     len(s.all.MenuChannel),
	}
}

func validateTables(t Tables) []string {
	var issues []string
	add := func(table string, i int, format string, args ...any) {
		issues = append(issues, fmt.Sprintf("%s row %d: %s", table, i+1, fmt.Sprintf(format, args...)))
	}
	branch := func(table string, i int, b Branch) {
		if !b.Valid() {
			add(table, i, "unknown branch %q", b)
		}
	}
	// NaN and infinities pass every comparison below, so they are
	// rejected on their own.
	finite := func(table string, i int, vs ...float64) bool {
		for _, v := range vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				add(table, i, "non-finite value")
				return false
			}
		}
		return true
	}

	seen := make(map[string]bool)
	for i, r := range t.MonthlySales {
		branch(TableMonthlySales, i, r.Branch)
		if r.Month.IsZero() {
			add(TableMonthlySales, i, "month is required")
		}
		switch {
		case !finite(TableMonthlySales, i, r.SalesValue):
		case r.SalesValue < 0 || r.Orders < 0 || r.Customers < 0:
			add(TableMonthlySales, i, "negative value")
		}
		key := string(r.Branch) + "|" + r.Month.Format("2006-01")
		if seen[key] {
			add(TableMonthlySales, i, "duplicate month %s", r.Month.Format("2006-01"))
		}
		seen[key] = true
	}
	for i, r := range t.BasketLines {
		branch(TableBasketLines, i, r.Branch)
		if r.OrderID == "" || strings.TrimSpace(r.Item) == "" {
			add(TableBasketLines, i, "order_id and item are required")
		}
		switch {
		case !finite(TableBasketLines, i, r.Qty, r.LineValue):
		case r.LineValue < 0 && r.Qty > 0:
			add(TableBasketLines, i, "negative line_value on a sale")
		}
	}
	for i, r := range t.Attendance {
		branch(TableAttendance, i, r.Branch)
		switch {
		case !finite(TableAttendance, i, r.HoursWorked):
		case r.HoursWorked < 0:
			add(TableAttendance, i, "negative hours_worked")
		}
		if r.EmployeeID == "" {
			add(TableAttendance, i, "employee_id is required")
		}
	}
	for i, r := range t.ItemSales {
		branch(TableItemSales, i, r.Branch)
		switch {
		case !finite(TableItemSales, i, r.Qty, r.Revenue):
		case r.Qty < 0 || r.Revenue < 0:
			add(TableItemSales, i, "negative value")
		}
	}
	for i, r := range t.CategoryChannel {
		branch(TableCategoryChannel, i, r.Branch)
		switch {
		case !finite(TableCategoryChannel, i, r.Delivery, r.Table, r.TakeAway, r.Total):
		case r.Delivery < 0 || r.Table < 0 || r.TakeAway < 0 || r.Total < 0:
			add(TableCategoryChannel, i, "negative value")
		}
	}
	for i, r := range t.CustomerOrders {
		branch(TableCustomerOrders, i, r.Branch)
		switch {
		case !finite(TableCustomerOrders, i, r.Total):
		case r.Orders < 0 || r.Total < 0:
			add(TableCustomerOrders, i, "negative value")
		}
	}
	for i, r := range t.MenuChannel {
		branch(TableMenuChannel, i, r.Branch)
		switch {
		case !finite(TableMenuChannel, i, r.Sales, r.AvgPerCustomer):
		case r.Customers < 0 || r.Sales < 0:
			add(TableMenuChannel, i, "negative value")
		}
	}
	return issues
}
