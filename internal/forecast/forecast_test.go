package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/model"
)

func testEngine() *Engine {
	return New(config.Defaults().Forecast)
}

func monthly(b model.Branch, values ...float64) []model.MonthlySalesRecord {
	out := make([]model.MonthlySalesRecord, len(values))
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		out[i] = model.MonthlySalesRecord{Branch: b, Month: start.AddDate(0, i, 0), SalesValue: v}
	}
	return out
}

func TestProject_ThreeMonthScenario(t *testing.T) {
	t.Parallel()

	res := testEngine().Project(model.BranchConut, monthly(model.BranchConut, 100, 110, 120), 3)
	require.Equal(t, model.StatusOK, res.Status)
	require.Len(t, res.Forecasts, 3)

	first := res.Forecasts[0]
	assert.Equal(t, "2025-11", first.Month)
	assert.InDelta(t, 120, first.Naive, 1e-9)
	assert.InDelta(t, 113, first.WMA, 1e-9)
	assert.InDelta(t, 130, first.Trend, 1e-9)
	assert.InDelta(t, (120.0+113+130)/3, first.Ensemble, 0.01)
	assert.GreaterOrEqual(t, first.Ensemble, first.WMA)
	assert.LessOrEqual(t, first.Ensemble, first.Trend)

	assert.Equal(t, TrendGrowing, res.Trend)
	assert.InDelta(t, 10, res.Slope, 1e-9)
	assert.Equal(t, "2026-01", res.Forecasts[2].Month)
	assert.InDelta(t, 150, res.Forecasts[2].Trend, 1e-9)

	require.NotNil(t, res.AvgMoMGrowthPct)
	assert.InDelta(t, (10.0+100.0/11)/2, *res.AvgMoMGrowthPct, 0.01)
	assert.Equal(t, model.ConfidenceLow, res.Confidence)
	assert.Contains(t, res.Explanation, "Trend is growing")
}

func TestProject_EnsembleIsConvex(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults().Forecast
	cfg.EnsembleWeights = config.EnsembleWeights{Naive: 2, WMA: 1, Trend: 5}
	e := New(cfg)

	seriesList := [][]float64{
		{100, 110, 120},
		{500, 420, 380, 300, 250, 120},
		{10, 80, 15, 90, 20, 85, 30},
		{7, 7, 7, 7},
	}
	for _, vals := range seriesList {
		res := e.Project(model.BranchConutJnah, monthly(model.BranchConutJnah, vals...), 12)
		require.Equal(t, model.StatusOK, res.Status)
		for _, f := range res.Forecasts {
			lo := min(f.Naive, f.WMA, f.Trend)
			hi := max(f.Naive, f.WMA, f.Trend)
			assert.GreaterOrEqual(t, f.Ensemble, lo, "%v %s", vals, f.Month)
			assert.LessOrEqual(t, f.Ensemble, hi, "%v %s", vals, f.Month)
			assert.GreaterOrEqual(t, f.Trend, 0.0, "trend projections never go negative")
		}
	}
}

func TestProject_TrendIsScaleInvariant(t *testing.T) {
	t.Parallel()

	e := testEngine()
	seriesList := [][]float64{
		{100, 110, 120},
		{100, 101, 99, 100},
		{300, 250, 200, 150},
		{1, 2, 2, 3, 5},
	}
	for _, vals := range seriesList {
		base := e.Project(model.BranchConut, monthly(model.BranchConut, vals...), 1)
		for _, k := range []float64{0.001, 3, 1e6} {
			scaled := make([]float64, len(vals))
			for i, v := range vals {
				scaled[i] = v * k
			}
			got := e.Project(model.BranchConut, monthly(model.BranchConut, scaled...), 1)
			assert.Equal(t, base.Trend, got.Trend, "%v x %g", vals, k)
		}
	}
}

func TestProject_TrendLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		vals []float64
		want Trend
	}{
		{"growing", []float64{100, 110, 120}, TrendGrowing},
		{"declining", []float64{300, 250, 200, 150}, TrendDeclining},
		{"flat", []float64{100, 101, 99, 100}, TrendStable},
		{"zero series", []float64{0, 0, 0}, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := testEngine().Project(model.BranchConut, monthly(model.BranchConut, tt.vals...), 1)
			assert.Equal(t, tt.want, res.Trend)
		})
	}
}

func TestProject_IncompleteMonthExcluded(t *testing.T) {
	t.Parallel()

	res := testEngine().Project(model.BranchConut, monthly(model.BranchConut, 1000, 1100, 1200, 1300, 50), 1)
	require.Equal(t, model.StatusOK, res.Status)
	require.Len(t, res.History, 5)
	assert.True(t, res.History[4].Excluded)
	assert.False(t, res.History[3].Excluded)

	require.NotEmpty(t, res.Anomalies)
	assert.Equal(t, AnomalyIncomplete, res.Anomalies[0].Kind)
	assert.Equal(t, "2025-12", res.Anomalies[0].Month)

	// Naive uses the last usable month; forecasts still start after the last
	// observed month.
	assert.InDelta(t, 1300, res.Forecasts[0].Naive, 1e-9)
	assert.Equal(t, "2026-01", res.Forecasts[0].Month)
	assert.Equal(t, TrendGrowing, res.Trend)
}

func TestProject_OutlierFlagged(t *testing.T) {
	t.Parallel()

	res := testEngine().Project(model.BranchConut, monthly(model.BranchConut, 100, 102, 98, 101, 400), 1)
	var outliers []Anomaly
	for _, a := range res.Anomalies {
		if a.Kind == AnomalyOutlier {
			outliers = append(outliers, a)
		}
	}
	require.Len(t, outliers, 1)
	assert.Equal(t, "2025-12", outliers[0].Month)
	assert.Greater(t, outliers[0].ZScore, 2.0)
	assert.Contains(t, outliers[0].Note, "above the trailing mean")
}

func TestProject_InsufficientAndMissing(t *testing.T) {
	t.Parallel()

	e := testEngine()

	none := e.Project(model.BranchConutTyre, nil, 3)
	assert.Equal(t, model.StatusDataUnavailable, none.Status)
	assert.Empty(t, none.Forecasts)
	assert.NotNil(t, none.Anomalies)

	one := e.Project(model.BranchConutTyre, monthly(model.BranchConutTyre, 500), 3)
	assert.Equal(t, model.StatusInsufficientHistory, one.Status)
	assert.Equal(t, model.ConfidenceLow, one.Confidence)
	assert.Len(t, one.History, 1)
	assert.Empty(t, one.Forecasts)
	assert.Empty(t, one.Trend)
}

func TestProject_Confidence(t *testing.T) {
	t.Parallel()

	e := testEngine()
	tests := []struct {
		name string
		vals []float64
		want model.Confidence
	}{
		{"short series", []float64{100, 110, 120}, model.ConfidenceLow},
		{"four clean months", []float64{100, 110, 120, 130}, model.ConfidenceMedium},
		{"six clean months", []float64{100, 110, 120, 130, 140, 150}, model.ConfidenceHigh},
		{"six noisy months", []float64{100, 200, 90, 210, 80, 220}, model.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := e.Project(model.BranchConut, monthly(model.BranchConut, tt.vals...), 1)
			assert.Equal(t, tt.want, res.Confidence)
		})
	}
}

func TestWMA_TruncatesAndRenormalises(t *testing.T) {
	t.Parallel()

	e := testEngine()
	// Two points: weights 0.5 and 0.3 renormalised to 0.625 / 0.375.
	assert.InDelta(t, 0.625*200+0.375*100, e.wma([]float64{100, 200}), 1e-9)
	// Older points beyond the window are ignored.
	assert.InDelta(t, 113, e.wma([]float64{5000, 100, 110, 120}), 1e-9)
}

func TestClassifyChange(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TrendGrowing, ClassifyChange(0.06, 0.05))
	assert.Equal(t, TrendStable, ClassifyChange(0.05, 0.05))
	assert.Equal(t, TrendStable, ClassifyChange(-0.05, 0.05))
	assert.Equal(t, TrendDeclining, ClassifyChange(-0.2, 0.05))
}

func TestDemandFactor(t *testing.T) {
	t.Parallel()

	e := testEngine()

	// next = (140 + 133 + 150) / 3 = 141; mean = 120.
	f := e.DemandFactor(monthly(model.BranchConut, 100, 110, 120, 130, 140))
	assert.InDelta(t, 141.0/120, f, 1e-6)

	assert.Equal(t, 1.0, e.DemandFactor(nil))
	assert.Equal(t, 1.0, e.DemandFactor(monthly(model.BranchConut, 80)))
	assert.Equal(t, 1.0, e.DemandFactor(monthly(model.BranchConut, 0, 0, 0)))

	// Explosive growth is clamped.
	assert.Equal(t, 2.0, e.DemandFactor(monthly(model.BranchConut, 1, 1, 1, 100, 1000)))
}

func TestCompute(t *testing.T) {
	t.Parallel()

	var rows []model.MonthlySalesRecord
	rows = append(rows, monthly(model.BranchConut, 100, 110, 120)...)
	rows = append(rows, monthly(model.BranchConutJnah, 100, 110, 120)...)
	snap, err := model.NewSnapshot(model.Tables{MonthlySales: rows}, "test", time.Now())
	require.NoError(t, err)

	res, err := testEngine().Compute(snap, Params{Branch: model.BranchConut, HorizonMonths: 2})
	require.NoError(t, err)
	assert.Len(t, res.Forecasts, 2)
	assert.InDelta(t, 0.5, res.DemandIndex, 1e-9)

	_, err = testEngine().Compute(snap, Params{Branch: model.BranchConut, HorizonMonths: 13})
	require.Error(t, err)
	ie, ok := model.AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, "horizon_months", ie.Field)

	_, err = testEngine().Compute(snap, Params{Branch: model.AllBranches, HorizonMonths: 3})
	require.Error(t, err)
	assert.True(t, model.IsInputError(err))
}
