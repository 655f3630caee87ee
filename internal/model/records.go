package model

import (
	"strings"
	"time"
)

// Table names as they appear in the data contract.
const (
	TableMonthlySales    = "branch_monthly_sales"
	TableBasketLines     = "basket_lines"
	TableAttendance      = "attendance"
	TableItemSales       = "item_sales"
	TableCategoryChannel = "category_channel_sales"
	TableCustomerOrders  = "customer_orders"
	TableMenuChannel     = "menu_channel_summary"
)

// TableNames returns every table of the data contract.
func TableNames() []string {
	return []string{
		TableMonthlySales,
		TableBasketLines,
		TableAttendance,
		TableItemSales,
		TableCategoryChannel,
		TableCustomerOrders,
		TableMenuChannel,
	}
}

// Sales channels.
const (
	ChannelDelivery = "delivery"
	ChannelTable    = "table"
	ChannelTakeAway = "take_away"
)

// Channels returns the known sales channels.
func Channels() []string {
	return []string{ChannelDelivery, ChannelTable, ChannelTakeAway}
}

// NormalizeChannel maps report spellings ("TAKE AWAY", "Dine-in") onto the
// known channel names. Unknown channels are lower-cased and returned as-is.
func NormalizeChannel(s string) string {
	key := strings.Join(strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(strings.ToLower(s))), " ")
	switch key {
	case "delivery", "deliveries":
		return ChannelDelivery
	case "table", "dine in", "dinein", "tables":
		return ChannelTable
	case "take away", "takeaway", "take out", "takeout", "to go":
		return ChannelTakeAway
	}
	return strings.ReplaceAll(key, " ", "_")
}

// MonthlySalesRecord is one branch-month of sales.
type MonthlySalesRecord struct {
	Branch     Branch    `json:"branch"`
	Month      time.Time `json:"month"` // first day of the month, UTC
	SalesValue float64   `json:"sales_value"`
	Orders     int       `json:"orders"`
	Customers  int       `json:"customers"`
}

// MonthLabel formats the month as YYYY-MM.
func (r MonthlySalesRecord) MonthLabel() string { return r.Month.Format("2006-01") }

// BasketLine is one item line of a customer order. Lines with Qty <= 0 are
// cancellations.
type BasketLine struct {
	OrderID   string    `json:"order_id"`
	Branch    Branch    `json:"branch"`
	Timestamp time.Time `json:"timestamp"`
	Item      string    `json:"item"`
	Category  string    `json:"category"`
	Qty       float64   `json:"qty"`
	LineValue float64   `json:"line_value"`
}

// AttendanceRecord is one punch-in/punch-out pair.
type AttendanceRecord struct {
	EmployeeID  string    `json:"employee_id"`
	Branch      Branch    `json:"branch"`
	Date        time.Time `json:"date"`
	InTime      time.Time `json:"in_time"`
	OutTime     time.Time `json:"out_time"`
	HoursWorked float64   `json:"hours_worked"`
}

// Shift derives the shift from the in-time; it is never stored.
func (r AttendanceRecord) Shift() Shift { return ShiftFor(r.InTime) }

// DateKey returns the calendar day of the record as YYYY-MM-DD.
func (r AttendanceRecord) DateKey() string { return r.Date.Format("2006-01-02") }

// ItemSalesRecord aggregates quantity and revenue of one item at a branch.
type ItemSalesRecord struct {
	Branch   Branch  `json:"branch"`
	Category string  `json:"category"`
	Item     string  `json:"item"`
	Qty      float64 `json:"qty"`
	Revenue  float64 `json:"revenue"`
}

// CategoryChannelRecord splits a category's revenue by sales channel.
type CategoryChannelRecord struct {
	Branch   Branch  `json:"branch"`
	Category string  `json:"category"`
	Delivery float64 `json:"delivery"`
	Table    float64 `json:"table"`
	TakeAway float64 `json:"take_away"`
	Total    float64 `json:"total"`
}

// CustomerOrderRecord aggregates the orders of one customer.
type CustomerOrderRecord struct {
	Branch   Branch  `json:"branch"`
	Customer string  `json:"customer"`
	Channel  string  `json:"channel"`
	Orders   int     `json:"orders"`
	Total    float64 `json:"total"`
}

// MenuChannelRecord is the per-channel customer and ticket summary.
type MenuChannelRecord struct {
	Branch         Branch  `json:"branch"`
	Channel        string  `json:"channel"`
	Customers      int     `json:"customers"`
	Sales          float64 `json:"sales"`
	AvgPerCustomer float64 `json:"avg_per_customer"`
}

// Tables groups every input table as loaded from a source.
type Tables struct {
	MonthlySales    []MonthlySalesRecord
	BasketLines     []BasketLine
	Attendance      []AttendanceRecord
	ItemSales       []ItemSalesRecord
	CategoryChannel []CategoryChannelRecord
	CustomerOrders  []CustomerOrderRecord
	MenuChannel     []MenuChannelRecord
}
