package tables

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/branch-insights/internal/model"
)

// columns is the column order of every table of the data contract.
var columns = map[string][]string{
	model.TableMonthlySales:    {"branch", "month", "sales_value", "orders", "customers"},
	model.TableBasketLines:     {"order_id", "branch", "timestamp", "item", "category", "qty", "line_value"},
	model.TableAttendance:      {"employee_id", "branch", "date", "shift", "in_time", "out_time", "hours_worked"},
	model.TableItemSales:       {"branch", "category", "item", "qty", "revenue"},
	model.TableCategoryChannel: {"branch", "category", "delivery", "table", "take_away", "total"},
	model.TableCustomerOrders:  {"branch", "customer", "channel", "orders", "total"},
	model.TableMenuChannel:     {"branch", "channel", "customers", "sales", "avg_per_customer"},
}

// Columns returns the column order of a table.
func Columns(table string) []string {
	return append([]string(nil), columns[table]...)
}

// amount is a report number. Thousands separators, quotes and blanks are
// tolerated; a blank cell is zero.
type amount float64

func (a *amount) UnmarshalText(b []byte) error {
	s := strings.NewReplacer(",", "", "\"", "", " ", "").Replace(string(b))
	if s == "" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "tables: parse number %q", string(b))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return eris.Errorf("tables: non-finite number %q", string(b))
	}
	*a = amount(v)
	return nil
}

// count is a report integer. Counts exported as "12.0" are accepted.
type count int

func (c *count) UnmarshalText(b []byte) error {
	var a amount
	if err := a.UnmarshalText(b); err != nil {
		return err
	}
	*c = count(int(a))
	return nil
}

type monthlyRow struct {
	Branch     string `csv:"branch"`
	Month      string `csv:"month"`
	SalesValue amount `csv:"sales_value"`
	Orders     count  `csv:"orders"`
	Customers  count  `csv:"customers"`
}

type basketRow struct {
	OrderID   string `csv:"order_id"`
	Branch    string `csv:"branch"`
	Timestamp string `csv:"timestamp"`
	Item      string `csv:"item"`
	Category  string `csv:"category"`
	Qty       amount `csv:"qty"`
	LineValue amount `csv:"line_value"`
}

type attendanceRow struct {
	EmployeeID  string `csv:"employee_id"`
	Branch      string `csv:"branch"`
	Date        string `csv:"date"`
	InTime      string `csv:"in_time"`
	OutTime     string `csv:"out_time"`
	HoursWorked amount `csv:"hours_worked"`
}

type itemRow struct {
	Branch   string `csv:"branch"`
	Category string `csv:"category"`
	Item     string `csv:"item"`
	Qty      amount `csv:"qty"`
	Revenue  amount `csv:"revenue"`
}

type categoryChannelRow struct {
	Branch   string `csv:"branch"`
	Category string `csv:"category"`
	Delivery amount `csv:"delivery"`
	Table    amount `csv:"table"`
	TakeAway amount `csv:"take_away"`
	Total    amount `csv:"total"`
}

type customerRow struct {
	Branch   string `csv:"branch"`
	Customer string `csv:"customer"`
	Channel  string `csv:"channel"`
	Orders   count  `csv:"orders"`
	Total    amount `csv:"total"`
}

type menuChannelRow struct {
	Branch         string `csv:"branch"`
	Channel        string `csv:"channel"`
	Customers      count  `csv:"customers"`
	Sales          amount `csv:"sales"`
	AvgPerCustomer amount `csv:"avg_per_customer"`
}

// sliceReader adapts in-memory rows to csvutil.Reader.
type sliceReader struct {
	rows [][]string
	pos  int
}

func (r *sliceReader) Read() ([]string, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

// padReader evens out ragged rows to the header width. Spreadsheet and CSV
// exports drop trailing empty cells.
type padReader struct {
	r     csvutil.Reader
	width int
}

func (p *padReader) Read() ([]string, error) {
	row, err := p.r.Read()
	if err != nil {
		return nil, err
	}
	switch {
	case p.width == 0:
		p.width = len(row)
	case len(row) < p.width:
		row = append(row, make([]string, p.width-len(row))...)
	case len(row) > p.width:
		row = row[:p.width]
	}
	return row, nil
}

// RowError reports a data row that could not be decoded. Row counts data
// rows from 1, excluding the header.
type RowError struct {
	Table string
	Row   int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("tables: %s row %d: %v", e.Table, e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// decode reads every row of one table. A reader without a header yields no
// rows.
func decode[T any](table string, r csvutil.Reader) ([]T, error) {
	dec, err := csvutil.NewDecoder(&padReader{r: r})
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tables: read %s header", table)
	}
	var out []T
	for {
		var row T
		err := dec.Decode(&row)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, &RowError{Table: table, Row: len(out) + 1, Err: err}
		}
		out = append(out, row)
	}
}

// opener returns the reader of one table. The returned close func may be nil.
type opener func(table string) (csvutil.Reader, func() error, error)

// assemble decodes all seven tables through open and converts them into
// records. Any failure aborts the whole load.
func assemble(open opener) (*model.Tables, error) {
	var t model.Tables
	load := func(table string, fn func(csvutil.Reader) error) error {
		r, closeFn, err := open(table)
		if err != nil {
			return err
		}
		if closeFn != nil {
			defer closeFn() //nolint:errcheck
		}
		return fn(r)
	}

	steps := []struct {
		table string
		fn    func(csvutil.Reader) error
	}{
		{model.TableMonthlySales, func(r csvutil.Reader) (err error) {
			t.MonthlySales, err = convert(model.TableMonthlySales, r, monthlyRecord)
			return err
		}},
		{model.TableBasketLines, func(r csvutil.Reader) (err error) {
			t.BasketLines, err = convert(model.TableBasketLines, r, basketRecord)
			return err
		}},
		{model.TableAttendance, func(r csvutil.Reader) (err error) {
			t.Attendance, err = convert(model.TableAttendance, r, attendanceRecord)
			return err
		}},
		{model.TableItemSales, func(r csvutil.Reader) (err error) {
			t.ItemSales, err = convert(model.TableItemSales, r, itemRecord)
			return err
		}},
		{model.TableCategoryChannel, func(r csvutil.Reader) (err error) {
			t.CategoryChannel, err = convert(model.TableCategoryChannel, r, categoryChannelRecord)
			return err
		}},
		{model.TableCustomerOrders, func(r csvutil.Reader) (err error) {
			t.CustomerOrders, err = convert(model.TableCustomerOrders, r, customerRecord)
			return err
		}},
		{model.TableMenuChannel, func(r csvutil.Reader) (err error) {
			t.MenuChannel, err = convert(model.TableMenuChannel, r, menuChannelRecord)
			return err
		}},
	}
	for _, s := range steps {
		if err := load(s.table, s.fn); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func convert[R, T any](table string, r csvutil.Reader, fn func(R) (T, error)) ([]T, error) {
	rows, err := decode[R](table, r)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		rec, err := fn(row)
		if err != nil {
			return nil, &RowError{Table: table, Row: i + 1, Err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseBranch(s string) (model.Branch, error) {
	return model.ParseSingleBranch(s)
}

var monthLayouts = []string{"2006-01", "2006-01-02", "January 2006", "Jan 2006", "2006-01-02 15:04:05", time.RFC3339}

func parseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Errorf("tables: unrecognised month %q", s)
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("tables: unrecognised timestamp %q", s)
}

var clockLayouts = []string{"15:04:05", "15:04", "3:04 PM", "3:04:05 PM", "3:04PM"}

// parseClock resolves a punch time. Bare clock times are placed on day.
func parseClock(s string, day time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := parseTimestamp(s); err == nil && strings.ContainsAny(s, "-/") {
		return t, nil
	}
	for _, layout := range clockLayouts {
		if c, err := time.Parse(layout, strings.ToUpper(s)); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), c.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Errorf("tables: unrecognised time %q", s)
}

func monthlyRecord(r monthlyRow) (model.MonthlySalesRecord, error) {
	b, err := parseBranch(r.Branch)
	if err != nil {
		return model.MonthlySalesRecord{}, err
	}
	m, err := parseMonth(r.Month)
	if err != nil {
		return model.MonthlySalesRecord{}, err
	}
	return model.MonthlySalesRecord{Branch: b, Month: m, SalesValue: float64(r.SalesValue), Orders: int(r.Orders), Customers: int(r.Customers)}, nil
}

func basketRecord(r basketRow) (model.BasketLine, error) {
	b, err := parseBranch(r.Branch)
	if err != nil {
		return model.BasketLine{}, err
	}
	var ts time.Time
	if strings.TrimSpace(r.Timestamp) != "" {
		if ts, err = parseTimestamp(r.Timestamp); err != nil {
			return model.BasketLine{}, err
		}
	}
	return model.BasketLine{
		OrderID:   strings.TrimSpace(r.OrderID),
		Branch:    b,
		Timestamp: ts,
		Item:      strings.TrimSpace(r.Item),
		Category:  strings.TrimSpace(r.Category),
		Qty:       float64(r.Qty),
		LineValue: float64(r.LineValue),
	}, nil
}

// attendanceRecord ignores the stored shift; it is derived from the in-time.
// Out-times earlier than the in-time roll over to the next day, and a blank
// hours_worked is derived from the punches.
func attendanceRecord(r attendanceRow) (model.AttendanceRecord, error) {
	b, err := parseBranch(r.Branch)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	day, err := parseTimestamp(r.Date)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	in, err := parseClock(r.InTime, day)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	out, err := parseClock(r.OutTime, day)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if out.Before(in) {
		out = out.Add(24 * time.Hour)
	}
	hours := float64(r.HoursWorked)
	if hours == 0 {
		hours = out.Sub(in).Hours()
	}
	return model.AttendanceRecord{
		EmployeeID:  strings.TrimSpace(r.EmployeeID),
		Branch:      b,
		Date:        day,
		InTime:      in,
		OutTime:     out,
		HoursWorked: hours,
	}, nil
}

func itemRecord(r itemRow) (model.ItemSalesRecord, error) {
	b, err := parseBranch(r.Branch)
	if err != nil {
		return model.ItemSalesRecord{}, err
	}
	return model.ItemSalesRecord{
		Branch: b, Category: strings.TrimSpace(r.Category), Item: strings.TrimSpace(r.Item),
		Qty: float64(r.Qty), Revenue: float64(r.Revenue),
	}, nil
}

func categoryChannelRecord(r categoryChannelRow) (model.CategoryChannelRecord, error) {
	b, err := parseBranch(r.Branch)
	if err != nil {
		return model.CategoryChannelRecord{}, err
	}
	rec := model.CategoryChannelRecord{
		Branch: b, Category: strings.TrimSpace(r.Category),
		Delivery: float64(r.Delivery), Table: float64(r.Table), TakeAway: float64(r.TakeAway), Total: float64(r.Total),
	}
	if rec.Total == 0 {
		rec.Total = rec.Delivery + rec.Table + rec.TakeAway
	}
	return rec, nil
}

func customerRecord(r customerRow) (model.CustomerOrderRecord, error) {
	b, err := parseBranch(r.Branch)
	if err != nil {
		return model.CustomerOrderRecord{}, err
	}
	return model.CustomerOrderRecord{
		Branch: b, Customer: strings.TrimSpace(r.Customer), Channel: model.NormalizeChannel(r.Channel),
		Orders: int(r.Orders), Total: float64(r.Total),
	}, nil
}

func menuChannelRecord(r menuChannelRow) (model.MenuChannelRecord, error) {
	b, err := parseBranch(r.Branch)
	if err != nil {
		return model.MenuChannelRecord{}, err
	}
	return model.MenuChannelRecord{
		Branch: b, Channel: model.NormalizeChannel(r.Channel), Customers: int(r.Customers),
		Sales: float64(r.Sales), AvgPerCustomer: float64(r.AvgPerCustomer),
	}, nil
}

// Rows renders tables as header plus string rows, keyed by table name. It is
// the inverse of the decoders above.
func Rows(t *model.Tables) map[string][][]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	i := strconv.Itoa
	const stamp = "2006-01-02 15:04:05"

	out := make(map[string][][]string, len(columns))
	for name, cols := range columns {
		out[name] = [][]string{append([]string(nil), cols...)}
	}
	add := func(table string, row ...string) { out[table] = append(out[table], row) }

	for _, r := range t.MonthlySales {
		add(model.TableMonthlySales, string(r.Branch), r.MonthLabel(), f(r.SalesValue), i(r.Orders), i(r.Customers))
	}
	for _, r := range t.BasketLines {
		add(model.TableBasketLines, r.OrderID, string(r.Branch), r.Timestamp.Format(stamp), r.Item, r.Category, f(r.Qty), f(r.LineValue))
	}
	for _, r := range t.Attendance {
		add(model.TableAttendance, r.EmployeeID, string(r.Branch), r.DateKey(), string(r.Shift()),
			r.InTime.Format(stamp), r.OutTime.Format(stamp), f(r.HoursWorked))
	}
	for _, r := range t.ItemSales {
		add(model.TableItemSales, string(r.Branch), r.Category, r.Item, f(r.Qty), f(r.Revenue))
	}
	for _, r := range t.CategoryChannel {
		add(model.TableCategoryChannel, string(r.Branch), r.Category, f(r.Delivery), f(r.Table), f(r.TakeAway), f(r.Total))
	}
	for _, r := range t.CustomerOrders {
		add(model.TableCustomerOrders, string(r.Branch), r.Customer, r.Channel, i(r.Orders), f(r.Total))
	}
	for _, r := range t.MenuChannel {
		add(model.TableMenuChannel, string(r.Branch), r.Channel, i(r.Customers), f(r.Sales), f(r.AvgPerCustomer))
	}
	return out
}
