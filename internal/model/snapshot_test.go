package model

import (
	"math"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time { return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC) }

func sampleTables() Tables {
	return Tables{
		MonthlySales: []MonthlySalesRecord{
			{Branch: BranchConut, Month: month(2025, 10), SalesValue: 120},
			{Branch: BranchConut, Month: month(2025, 8), SalesValue: 100},
			{Branch: BranchConut, Month: month(2025, 9), SalesValue: 110},
			{Branch: BranchConutJnah, Month: month(2025, 9), SalesValue: 50},
		},
		BasketLines: []BasketLine{
			{OrderID: "1", Branch: BranchConut, Item: "Latte", Qty: 1, LineValue: 4},
			{OrderID: "1", Branch: BranchConut, Item: "Conut", Qty: 1, LineValue: 3},
			{OrderID: "2", Branch: BranchConutTyre, Item: "Latte", Qty: -1, LineValue: -4},
		},
		Attendance: []AttendanceRecord{
			{EmployeeID: "e1", Branch: BranchConutJnah, HoursWorked: 8},
		},
		ItemSales:       []ItemSalesRecord{{Branch: BranchConut, Item: "Latte", Qty: 3, Revenue: 12}},
		CategoryChannel: []CategoryChannelRecord{{Branch: BranchConut, Category: "Coffee", Total: 12}},
		CustomerOrders:  []CustomerOrderRecord{{Branch: BranchMainStreetCoffee, Customer: "c1", Orders: 2, Total: 20}},
		MenuChannel:     []MenuChannelRecord{{Branch: BranchMainStreetCoffee, Channel: ChannelDelivery, Customers: 1, Sales: 20}},
	}
}

func TestNewSnapshot(t *testing.T) {
	t.Parallel()

	in := sampleTables()
	loaded := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := NewSnapshot(in, "v1", loaded)
	require.NoError(t, err)

	assert.Equal(t, "v1", s.Version)
	assert.Equal(t, loaded, s.LoadedAt)

	t.Run("monthly sales sorted ascending", func(t *testing.T) {
		sales := s.MonthlySales(BranchConut)
		require.Len(t, sales, 3)
		assert.Equal(t, "2025-08", sales[0].MonthLabel())
		assert.Equal(t, "2025-10", sales[2].MonthLabel())
	})

	t.Run("per-branch and all selectors", func(t *testing.T) {
		assert.Len(t, s.BasketLines(BranchConut), 2)
		assert.Len(t, s.BasketLines(AllBranches), 3)
		assert.Empty(t, s.Attendance(BranchConut))
		assert.Len(t, s.Attendance(BranchConutJnah), 1)
		assert.Len(t, s.MonthlySales(AllBranches), 4)
		assert.Len(t, s.CustomerOrders(BranchMainStreetCoffee), 1)
		assert.Len(t, s.MenuChannel(AllBranches), 1)
		assert.Len(t, s.ItemSales(BranchConut), 1)
		assert.Len(t, s.CategoryChannel(BranchConut), 1)
	})

	t.Run("input is copied", func(t *testing.T) {
		in.MonthlySales[0].SalesValue = 999
		for _, r := range s.MonthlySales(AllBranches) {
			assert.NotEqual(t, 999.0, r.SalesValue)
		}
	})

	t.Run("coverage", func(t *testing.T) {
		cov := s.Coverage()
		assert.Equal(t, 3, cov[TableMonthlySales][BranchConut])
		assert.Equal(t, 0, cov[TableMonthlySales][BranchConutTyre])
		assert.Len(t, cov, len(TableNames()))
		assert.Equal(t, 4, s.RowCounts()[TableMonthlySales])
	})
}

func TestNewSnapshot_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Tables)
		wantErr string
	}{
		{"unknown branch", func(tb *Tables) { tb.ItemSales[0].Branch = "Hamra" }, `unknown branch "Hamra"`},
		{"selector in row", func(tb *Tables) { tb.ItemSales[0].Branch = AllBranches }, `unknown branch "all"`},
		{"negative sales", func(tb *Tables) { tb.MonthlySales[0].SalesValue = -1 }, "negative value"},
		{"duplicate month", func(tb *Tables) { tb.MonthlySales[1].Month = month(2025, 10) }, "duplicate month 2025-10"},
		{"missing order id", func(tb *Tables) { tb.BasketLines[0].OrderID = "" }, "order_id and item are required"},
		{"negative hours", func(tb *Tables) { tb.Attendance[0].HoursWorked = -2 }, "negative hours_worked"},
		{"missing employee", func(tb *Tables) { tb.Attendance[0].EmployeeID = "" }, "employee_id is required"},
		{"NaN sales", func(tb *Tables) { tb.MonthlySales[0].SalesValue = math.NaN() }, "non-finite value"},
		{"infinite sales", func(tb *Tables) { tb.MonthlySales[2].SalesValue = math.Inf(1) }, "non-finite value"},
		{"NaN line value", func(tb *Tables) { tb.BasketLines[1].LineValue = math.NaN() }, "non-finite value"},
		{"infinite void qty", func(tb *Tables) { tb.BasketLines[2].Qty = math.Inf(-1) }, "non-finite value"},
		{"NaN hours", func(tb *Tables) { tb.Attendance[0].HoursWorked = math.NaN() }, "non-finite value"},
		{"NaN revenue", func(tb *Tables) { tb.ItemSales[0].Revenue = math.NaN() }, "non-finite value"},
		{"infinite channel total", func(tb *Tables) { tb.CategoryChannel[0].Total = math.Inf(1) }, "non-finite value"},
		{"NaN customer total", func(tb *Tables) { tb.CustomerOrders[0].Total = math.NaN() }, "non-finite value"},
		{"NaN average per customer", func(tb *Tables) { tb.MenuChannel[0].AvgPerCustomer = math.NaN() }, "non-finite value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tb := sampleTables()
			tt.mutate(&tb)
			_, err := NewSnapshot(tb, "v", time.Now())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewSnapshot_CapsReportedIssues(t *testing.T) {
	t.Parallel()

	var tb Tables
	for i := 0; i < 12; i++ {
		tb.ItemSales = append(tb.ItemSales, ItemSalesRecord{Branch: "nowhere"})
	}
	_, err := NewSnapshot(tb, "v", time.Now())
	require.Error(t, err)
	msg := eris.ToString(err, false)
	assert.Contains(t, msg, "12 issues")
	assert.Contains(t, msg, "row 5")
	assert.NotContains(t, msg, "row 6")
}

func TestNewSnapshot_Empty(t *testing.T) {
	t.Parallel()

	s, err := NewSnapshot(Tables{}, "empty", time.Now())
	require.NoError(t, err)
	assert.Empty(t, s.MonthlySales(BranchConut))
	assert.Empty(t, s.BasketLines(AllBranches))
}
