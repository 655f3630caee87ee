package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/branch-insights/internal/engine"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/tables"
)

func TestCombosCommand_Demo(t *testing.T) {
	out, err := execute(t, "--source", "demo", "combos", "--branch", "conut", "--top-k", "3")
	require.NoError(t, err)

	var res struct {
		Status          string           `json:"status"`
		Recommendations []map[string]any `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.Status)
	assert.LessOrEqual(t, len(res.Recommendations), 3)
}

func TestForecastCommand_Demo(t *testing.T) {
	out, err := execute(t, "--source", "demo", "forecast", "--branch", "jnah", "--horizon", "2")
	require.NoError(t, err)

	var res struct {
		Branch    string           `json:"branch"`
		Forecasts []map[string]any `json:"forecasts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, string(model.BranchConutJnah), res.Branch)
	assert.Len(t, res.Forecasts, 2)
}

func TestStaffingCommand_UnknownShift(t *testing.T) {
	_, err := execute(t, "--source", "demo", "staffing", "--branch", "conut", "--shift", "night")
	require.Error(t, err)
	assert.True(t, model.IsInputError(err))
}

func TestGrowthCommand_UnknownBranch(t *testing.T) {
	_, err := execute(t, "--source", "demo", "growth", "--branch", "Beirut")
	require.Error(t, err)

	ie, ok := model.AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindUnknownBranch, ie.Kind)
}

func TestAnalyzeCommand_Demo(t *testing.T) {
	out, err := execute(t, "--source", "demo", "analyze", "--kinds", "forecast,growth")
	require.NoError(t, err)

	var res []struct {
		Kind     string            `json:"kind"`
		Branches []json.RawMessage `json:"branches"`
		Result   json.RawMessage   `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 2)
	assert.Equal(t, "forecast", res[0].Kind)
	assert.Len(t, res[0].Branches, len(model.Branches()))
	assert.Equal(t, "growth", res[1].Kind)
	assert.NotEmpty(t, res[1].Result)
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		in      string
		want    []engine.Kind
		wantErr bool
	}{
		{"", engine.Kinds(), false},
		{"all", engine.Kinds(), false},
		{"combos, growth", []engine.Kind{engine.KindCombo, engine.KindGrowth}, false},
		{"forecast,pricing", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseKinds(tt.in)
			if tt.wantErr {
				assert.True(t, model.IsInputError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportCommand_CSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "--source", "demo", "--demo-seed", "9", "export", "--format", "csv", "--out", dir)
	require.NoError(t, err)

	got, err := (&tables.CSVSource{Dir: dir}).Load(context.Background())
	require.NoError(t, err)
	for _, name := range model.TableNames() {
		assert.NotEmpty(t, tables.Rows(got)[name], "table %s", name)
	}

	// The exported directory is itself a valid source.
	out, err := execute(t, "--source", "csv", "--dir", dir, "growth", "--branch", "all")
	require.NoError(t, err)
	assert.Contains(t, out, `"branches"`)
}

func TestExportCommand_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.db")
	_, err := execute(t, "--source", "demo", "export", "--format", "sqlite", "--out", path)
	require.NoError(t, err)

	out, err := execute(t, "--source", "sqlite", "--sqlite", path, "expansion", "--candidates=false")
	require.NoError(t, err)
	assert.Contains(t, out, `"status"`)
}

func TestExportCommand_UnknownFormat(t *testing.T) {
	_, err := execute(t, "--source", "demo", "export", "--format", "parquet", "--out", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
