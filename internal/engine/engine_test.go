package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/branch-insights/internal/combo"
	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/expansion"
	"github.com/sells-group/branch-insights/internal/forecast"
	"github.com/sells-group/branch-insights/internal/growth"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/staffing"
	"github.com/sells-group/branch-insights/internal/synth"
)

type staticProvider struct{ snap *model.Snapshot }

func (p staticProvider) Current() *model.Snapshot { return p.snap }

func demoRegistry(t *testing.T) *Registry {
	t.Helper()
	snap, err := model.NewSnapshot(synth.Generate(synth.DefaultOptions(5)), "demo", time.Now())
	require.NoError(t, err)
	r, err := NewRegistry(config.Defaults(), staticProvider{snap})
	require.NoError(t, err)
	return r
}

func intPtr(v int) *int { return &v }

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"combo", KindCombo, false},
		{"Combos", KindCombo, false},
		{" forecast ", KindForecast, false},
		{"staffing", KindStaffing, false},
		{"EXPANSION", KindExpansion, false},
		{"growth", KindGrowth, false},
		{"weather", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, model.IsInputError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistryHasOneEnginePerKind(t *testing.T) {
	r := demoRegistry(t)
	for _, k := range Kinds() {
		e, ok := r.Engine(k)
		require.True(t, ok, k)
		assert.Equal(t, k, e.Kind())
	}
}

func TestRunEveryKind(t *testing.T) {
	r := demoRegistry(t)
	ctx := context.Background()
	req := Request{Branch: model.BranchConut}

	res, err := r.Run(ctx, KindCombo, req)
	require.NoError(t, err)
	assert.IsType(t, &combo.Result{}, res)

	res, err = r.Run(ctx, KindForecast, req)
	require.NoError(t, err)
	fr := res.(*forecast.Result)
	assert.Len(t, fr.Forecasts, 3, "configured default horizon")

	res, err = r.Run(ctx, KindStaffing, req)
	require.NoError(t, err)
	sr := res.(*staffing.Result)
	assert.Equal(t, model.ShiftMorning, sr.Shift, "configured default shift")

	res, err = r.Run(ctx, KindExpansion, req)
	require.NoError(t, err)
	assert.IsType(t, &expansion.Result{}, res)

	res, err = r.Run(ctx, KindGrowth, Request{})
	require.NoError(t, err)
	gr := res.(*growth.Result)
	assert.Len(t, gr.Profiles, 4, "growth defaults to every branch")

	assert.NotEmpty(t, res.Summary().Explanation)
	assert.Equal(t, int64(5), r.Runs())
}

func TestRunAppliesOverrides(t *testing.T) {
	r := demoRegistry(t)
	ctx := context.Background()

	res, err := r.Run(ctx, KindForecast, Request{Branch: model.BranchConutJnah, HorizonMonths: intPtr(6)})
	require.NoError(t, err)
	assert.Len(t, res.(*forecast.Result).Forecasts, 6)

	res, err = r.Run(ctx, KindCombo, Request{Branch: model.AllBranches, TopK: intPtr(1)})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.(*combo.Result).Recommendations), 1)

	factor := 1.0
	res, err = r.Run(ctx, KindStaffing, Request{Branch: model.BranchConut, Shift: "evening", DemandFactor: &factor})
	require.NoError(t, err)
	sr := res.(*staffing.Result)
	assert.Equal(t, model.ShiftEvening, sr.Shift)
	assert.Equal(t, staffing.FactorFromCaller, sr.DemandFactorSource)
}

func TestRunRejectsInvalidInput(t *testing.T) {
	r := demoRegistry(t)
	ctx := context.Background()

	_, err := r.Run(ctx, KindForecast, Request{Branch: model.AllBranches})
	require.Error(t, err)
	assert.True(t, model.IsInputError(err))

	_, err = r.Run(ctx, KindCombo, Request{Branch: model.AllBranches, TopK: intPtr(50)})
	require.Error(t, err)
	assert.True(t, model.IsInputError(err))

	_, err = r.Run(ctx, KindStaffing, Request{Branch: model.BranchConut, Shift: "night"})
	require.Error(t, err)
	ie, ok := model.AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindUnknownShift, ie.Kind)

	_, err = r.Run(ctx, Kind("weather"), Request{})
	assert.True(t, model.IsInputError(err))
}

func TestRunWithoutSnapshot(t *testing.T) {
	r, err := NewRegistry(config.Defaults(), staticProvider{})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), KindGrowth, Request{})
	assert.True(t, errors.Is(err, ErrNoSnapshot))
	_, err = r.RunAllBranches(context.Background(), KindForecast, Request{})
	assert.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestRunCancelled(t *testing.T) {
	r := demoRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, KindCombo, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAllBranches(t *testing.T) {
	r := demoRegistry(t)
	results, err := r.RunAllBranches(context.Background(), KindForecast, Request{HorizonMonths: intPtr(2)})
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, b := range model.Branches() {
		assert.Equal(t, b, results[i].Branch)
		fr := results[i].Result.(*forecast.Result)
		assert.Equal(t, b, fr.Branch)
		assert.Len(t, fr.Forecasts, 2)
	}
}

func TestRunAllBranchesMatchesSequentialRuns(t *testing.T) {
	r := demoRegistry(t)
	ctx := context.Background()
	results, err := r.RunAllBranches(ctx, KindStaffing, Request{Shift: "midday"})
	require.NoError(t, err)
	for i, b := range model.Branches() {
		single, err := r.Run(ctx, KindStaffing, Request{Branch: b, Shift: "midday"})
		require.NoError(t, err)
		assert.Equal(t, single, results[i].Result)
	}
}

func TestRunAllBranchesFailsFast(t *testing.T) {
	r := demoRegistry(t)
	_, err := r.RunAllBranches(context.Background(), KindForecast, Request{HorizonMonths: intPtr(40)})
	require.Error(t, err)
	assert.True(t, model.IsInputError(err))
}
