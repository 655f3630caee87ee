package staffing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/forecast"
	"github.com/sells-group/branch-insights/internal/model"
)

func testEngine() *Engine {
	cfg := config.Defaults()
	return New(cfg.Staffing, forecast.New(cfg.Forecast))
}

// attendance builds records where day i has perDay[i] distinct employees
// clocking in at the given hour.
func attendance(b model.Branch, hour int, perDay ...int) []model.AttendanceRecord {
	var out []model.AttendanceRecord
	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	for d, n := range perDay {
		day := start.AddDate(0, 0, d)
		for emp := 1; emp <= n; emp++ {
			in := day.Add(time.Duration(hour) * time.Hour)
			out = append(out, model.AttendanceRecord{
				EmployeeID:  fmt.Sprintf("e%d", emp),
				Branch:      b,
				Date:        day,
				InTime:      in,
				OutTime:     in.Add(8 * time.Hour),
				HoursWorked: 8,
			})
		}
	}
	return out
}

func TestEstimate_EveningScenario(t *testing.T) {
	t.Parallel()

	recs := attendance(model.BranchConut, 18, 4, 4, 4, 3, 5)
	res := testEngine().Estimate(model.BranchConut, model.ShiftEvening, recs, 1.1)

	require.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, 4.0, res.BaselineHeadcount)
	assert.Equal(t, Scenario{Low: 3, Base: 4, High: 5}, res.Scenarios)
	assert.Equal(t, 4, res.RecommendedStaff)
	assert.Equal(t, 5, res.DaysObserved)
	assert.Equal(t, 5, res.PeakHeadcount)
	assert.InDelta(t, 8.0, res.AvgHoursPerStaff, 1e-9)
	assert.Equal(t, model.ConfidenceLow, res.Confidence)
	assert.Contains(t, res.Explanation, "round(4 x 1.10) = 4")
}

func TestEstimate_ScenarioBounds(t *testing.T) {
	t.Parallel()

	e := testEngine()
	for _, baseline := range []float64{0.5, 1, 1.5, 2, 3, 4, 7, 12} {
		for _, factor := range []float64{0.01, 0.5, 0.9, 1, 1.1, 1.5, 2} {
			s := e.scenario(baseline, factor)
			assert.LessOrEqual(t, s.Low, s.Base, "baseline %g factor %g", baseline, factor)
			assert.LessOrEqual(t, s.Base, s.High, "baseline %g factor %g", baseline, factor)
			assert.GreaterOrEqual(t, s.Low, 1, "baseline %g factor %g", baseline, factor)
		}
	}
	assert.Equal(t, Scenario{}, e.scenario(0, 1.5))
}

func TestEstimate_ShiftBucketing(t *testing.T) {
	t.Parallel()

	var recs []model.AttendanceRecord
	recs = append(recs, attendance(model.BranchConutJnah, 7, 2, 2, 2)...)
	recs = append(recs, attendance(model.BranchConutJnah, 12, 1, 1)...)
	// Same employee twice on one day counts once.
	recs = append(recs, attendance(model.BranchConutJnah, 7, 1)...)

	res := testEngine().Estimate(model.BranchConutJnah, model.ShiftMorning, recs, 1)
	require.Len(t, res.Overview, 3)
	assert.Equal(t, model.ShiftMorning, res.Overview[0].Shift)
	assert.Equal(t, 3, res.Overview[0].DaysObserved)
	assert.Equal(t, 2.0, res.Overview[0].MedianHeadcount)
	assert.Equal(t, 2, res.Overview[1].DaysObserved)
	assert.Equal(t, 1.0, res.Overview[1].MedianHeadcount)
	assert.Equal(t, 0, res.Overview[2].DaysObserved)
	assert.Equal(t, 2, res.RecommendedStaff)
}

func TestEstimate_NoData(t *testing.T) {
	t.Parallel()

	recs := attendance(model.BranchConut, 8, 3, 3)
	res := testEngine().Estimate(model.BranchConut, model.ShiftEvening, recs, 1.2)
	assert.Equal(t, model.StatusDataUnavailable, res.Status)
	assert.Equal(t, Scenario{}, res.Scenarios)
	assert.Equal(t, 0, res.RecommendedStaff)
	assert.Contains(t, res.Explanation, "No evening attendance")
}

func TestEstimate_Confidence(t *testing.T) {
	t.Parallel()

	days := func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = 2
		}
		return out
	}
	e := testEngine()
	assert.Equal(t, model.ConfidenceLow, e.Estimate(model.BranchConut, model.ShiftMorning, attendance(model.BranchConut, 6, days(7)...), 1).Confidence)
	assert.Equal(t, model.ConfidenceMedium, e.Estimate(model.BranchConut, model.ShiftMorning, attendance(model.BranchConut, 6, days(8)...), 1).Confidence)
	assert.Equal(t, model.ConfidenceHigh, e.Estimate(model.BranchConut, model.ShiftMorning, attendance(model.BranchConut, 6, days(20)...), 1).Confidence)
}

func TestCompute_DemandFromForecast(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	var sales []model.MonthlySalesRecord
	for i, v := range []float64{100, 110, 120, 130, 140} {
		sales = append(sales, model.MonthlySalesRecord{Branch: model.BranchConut, Month: start.AddDate(0, i, 0), SalesValue: v})
	}
	snap, err := model.NewSnapshot(model.Tables{
		MonthlySales: sales,
		Attendance:   attendance(model.BranchConut, 18, 3, 3, 3, 4, 4, 3),
	}, "test", time.Now())
	require.NoError(t, err)

	res, err := testEngine().Compute(snap, Params{Branch: model.BranchConut, Shift: "Evening"})
	require.NoError(t, err)
	assert.Equal(t, model.ShiftEvening, res.Shift)
	assert.Equal(t, FactorFromForecast, res.DemandFactorSource)
	assert.Greater(t, res.DemandFactor, 1.0)
	assert.Equal(t, 3.0, res.BaselineHeadcount)
	assert.Equal(t, 4, res.RecommendedStaff)
	assert.GreaterOrEqual(t, res.Scenarios.High, res.RecommendedStaff)

	res, err = testEngine().Compute(snap, Params{Branch: model.BranchConut, Shift: model.ShiftEvening, DemandFactor: 1})
	require.NoError(t, err)
	assert.Equal(t, FactorFromCaller, res.DemandFactorSource)
	assert.Equal(t, 3, res.RecommendedStaff)
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    Params
		kind model.ErrorKind
	}{
		{"all branches", Params{Branch: model.AllBranches, Shift: model.ShiftMorning}, model.KindUnknownBranch},
		{"unknown shift", Params{Branch: model.BranchConut, Shift: "night"}, model.KindUnknownShift},
		{"negative factor", Params{Branch: model.BranchConut, Shift: model.ShiftMorning, DemandFactor: -1}, model.KindInvalidParameter},
		{"factor above ceiling", Params{Branch: model.BranchConut, Shift: model.ShiftMorning, DemandFactor: MaxDemandFactor + 0.5}, model.KindInvalidParameter},
		{"huge factor", Params{Branch: model.BranchConut, Shift: model.ShiftMorning, DemandFactor: 1e300}, model.KindInvalidParameter},
	}
	assert.NoError(t, Params{Branch: model.BranchConut, Shift: model.ShiftMorning, DemandFactor: MaxDemandFactor}.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ie, ok := model.AsInputError(tt.p.Validate())
			require.True(t, ok)
			assert.Equal(t, tt.kind, ie.Kind)
		})
	}
}
