// Package forecast projects monthly branch sales with a naive, weighted
// moving average and linear trend ensemble.
package forecast

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/stats"
)

// Trend labels the direction of a series.
type Trend string

const (
	TrendGrowing   Trend = "growing"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Anomaly kinds.
const (
	AnomalyOutlier    = "outlier"
	AnomalyIncomplete = "incomplete"
)

// Params are the per-request inputs of a forecast.
type Params struct {
	Branch        model.Branch `json:"branch"`
	HorizonMonths int          `json:"horizon_months"`
}

// Validate rejects unknown branches and out-of-range horizons.
func (p Params) Validate() error {
	if !p.Branch.Valid() {
		return &model.InputError{Kind: model.KindUnknownBranch, Field: "branch", Value: p.Branch, Reason: "a single canonical branch is required"}
	}
	if p.HorizonMonths < 1 || p.HorizonMonths > 12 {
		return model.InvalidParam("horizon_months", p.HorizonMonths, "must be between 1 and 12")
	}
	return nil
}

// HistoryPoint is one observed month. Excluded months are not used for
// fitting.
type HistoryPoint struct {
	Month    string  `json:"month"`
	Value    float64 `json:"value"`
	Excluded bool    `json:"excluded,omitempty"`
}

// ForecastPoint holds the three component forecasts and their ensemble for
// one future month.
type ForecastPoint struct {
	Month    string  `json:"month"`
	Naive    float64 `json:"naive"`
	WMA      float64 `json:"wma"`
	Trend    float64 `json:"trend"`
	Ensemble float64 `json:"ensemble"`
}

// Anomaly flags a historical month.
type Anomaly struct {
	Month  string  `json:"month"`
	Value  float64 `json:"value"`
	ZScore float64 `json:"z_score,omitempty"`
	Kind   string  `json:"kind"`
	Note   string  `json:"note"`
}

// Result is the forecast of one branch.
type Result struct {
	model.Assessment
	Branch          model.Branch    `json:"branch"`
	HorizonMonths   int             `json:"horizon_months"`
	History         []HistoryPoint  `json:"history"`
	Forecasts       []ForecastPoint `json:"forecasts"`
	Trend           Trend           `json:"trend,omitempty"`
	Slope           float64         `json:"slope"`
	RelativeSlope   float64         `json:"relative_slope"`
	AvgMoMGrowthPct *float64        `json:"avg_mom_growth_pct"`
	DemandIndex     float64         `json:"demand_index"`
	Anomalies       []Anomaly       `json:"anomalies"`
}

// Engine produces forecasts. It is safe for concurrent use.
type Engine struct {
	cfg config.ForecastConfig
}

// New creates a forecast engine.
func New(cfg config.ForecastConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Compute forecasts one branch of the snapshot.
func (e *Engine) Compute(snap *model.Snapshot, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, eris.Wrap(err, "forecast: validate params")
	}
	r := e.Project(p.Branch, snap.MonthlySales(p.Branch), p.HorizonMonths)
	if r.Status == model.StatusOK {
		r.DemandIndex = e.DemandIndex(snap, p.Branch)
	}
	zap.L().Debug("forecast: computed",
		zap.String("branch", string(p.Branch)),
		zap.String("trend", string(r.Trend)),
		zap.String("confidence", string(r.Confidence)),
	)
	return r, nil
}

// series is a monthly sales series split into the fitted part and the
// months left out as incomplete.
type series struct {
	labels  []string
	values  []float64
	skipped []int // indexes into the raw records
}

// prepare drops incomplete months: with at least three months and a positive
// median, any month below IncompleteRatio of the median is excluded.
func (e *Engine) prepare(records []model.MonthlySalesRecord) series {
	raw := make([]float64, len(records))
	for i, r := range records {
		raw[i] = r.SalesValue
	}
	var s series
	median := stats.Median(raw)
	for i, r := range records {
		if e.cfg.IncompleteRatio > 0 && len(raw) >= 3 && median > 0 && raw[i] < e.cfg.IncompleteRatio*median {
			s.skipped = append(s.skipped, i)
			continue
		}
		s.labels = append(s.labels, r.MonthLabel())
		s.values = append(s.values, raw[i])
	}
	return s
}

// Project forecasts records (ascending by month) horizon months ahead.
func (e *Engine) Project(branch model.Branch, records []model.MonthlySalesRecord, horizon int) *Result {
	res := &Result{
		Branch:        branch,
		HorizonMonths: horizon,
		History:       make([]HistoryPoint, len(records)),
		Forecasts:     []ForecastPoint{},
		Anomalies:     []Anomaly{},
	}
	if len(records) == 0 {
		res.Assessment = model.Unavailable(fmt.Sprintf("No monthly sales history is available for %s.", branch))
		return res
	}

	s := e.prepare(records)
	skipped := make(map[int]bool, len(s.skipped))
	for _, i := range s.skipped {
		skipped[i] = true
	}
	for i, r := range records {
		res.History[i] = HistoryPoint{Month: r.MonthLabel(), Value: stats.Round(r.SalesValue, 2), Excluded: skipped[i]}
		if skipped[i] {
			res.Anomalies = append(res.Anomalies, Anomaly{
				Month: r.MonthLabel(),
				Value: r.SalesValue,
				Kind:  AnomalyIncomplete,
				Note: fmt.Sprintf("%s (%.0f) is below %.0f%% of the median month and looks incomplete; excluded from the forecast.",
					r.MonthLabel(), r.SalesValue, e.cfg.IncompleteRatio*100),
			})
		}
	}
	res.Anomalies = append(res.Anomalies, e.outliers(s)...)

	if len(s.values) < 2 {
		res.Assessment = model.Assessment{
			Status:     model.StatusInsufficientHistory,
			Confidence: model.ConfidenceLow,
			Explanation: fmt.Sprintf("%s has %d usable month(s) of sales; at least 2 are needed to fit a trend.",
				branch, len(s.values)),
		}
		return res
	}

	fit := stats.LinearFit(s.values)
	mean := stats.Mean(s.values)
	res.Slope = stats.Round(fit.Slope, 4)
	if rel, ok := stats.Ratio(fit.Slope, mean); ok {
		res.RelativeSlope = stats.Round(rel, 4)
		res.Trend = ClassifyChange(rel, e.cfg.StableBand)
	} else {
		res.Trend = TrendStable
	}

	last := records[len(records)-1].Month
	naive, wma, trend, ensemble := e.components(s.values, fit, horizon)
	for i := 0; i < horizon; i++ {
		res.Forecasts = append(res.Forecasts, ForecastPoint{
			Month:    last.AddDate(0, i+1, 0).Format("2006-01"),
			Naive:    naive[i],
			WMA:      wma[i],
			Trend:    trend[i],
			Ensemble: ensemble[i],
		})
	}

	if g, ok := avgMoMGrowth(s.values); ok {
		g = stats.Round(g, 2)
		res.AvgMoMGrowthPct = &g
	}

	res.Assessment = model.Assessment{
		Status:      model.StatusOK,
		Confidence:  e.confidence(len(s.values), fit, mean),
		Explanation: e.explain(res, len(s.values)),
	}
	return res
}

// components returns the naive, WMA, trend and ensemble forecasts for the
// next horizon months, rounded to cents. The ensemble is a convex
// combination of the rounded components.
func (e *Engine) components(values []float64, fit stats.Fit, horizon int) (naive, wma, trend, ensemble []float64) {
	wn, ww, wt := e.ensembleWeights()
	last := stats.Round(values[len(values)-1], 2)
	avg := stats.Round(e.wma(values), 2)
	n := float64(len(values))
	for i := 0; i < horizon; i++ {
		t := stats.Round(math.Max(0, fit.At(n+float64(i))), 2)
		naive = append(naive, last)
		wma = append(wma, avg)
		trend = append(trend, t)
		ensemble = append(ensemble, stats.Round(wn*last+ww*avg+wt*t, 2))
	}
	return naive, wma, trend, ensemble
}

// wma applies the configured most-recent-first weights, truncated to the
// available history and renormalised.
func (e *Engine) wma(values []float64) float64 {
	n := min(len(e.cfg.WMAWeights), len(values))
	var sum, wsum float64
	for k := 0; k < n; k++ {
		w := e.cfg.WMAWeights[k]
		sum += w * values[len(values)-1-k]
		wsum += w
	}
	if wsum == 0 {
		return values[len(values)-1]
	}
	return sum / wsum
}

func (e *Engine) ensembleWeights() (naive, wma, trend float64) {
	w := e.cfg.EnsembleWeights
	total := w.Naive + w.WMA + w.Trend
	if total <= 0 {
		return 1.0 / 3, 1.0 / 3, 1.0 / 3
	}
	return w.Naive / total, w.WMA / total, w.Trend / total
}

// outliers flags months that sit more than AnomalySigma trailing standard
// deviations away from the trailing mean.
func (e *Engine) outliers(s series) []Anomaly {
	var out []Anomaly
	minTrailing := max(e.cfg.AnomalyMinTrailing, 2)
	for i := minTrailing; i < len(s.values); i++ {
		trailing := s.values[:i]
		sd := stats.StdDev(trailing)
		if sd == 0 {
			continue
		}
		m := stats.Mean(trailing)
		z := (s.values[i] - m) / sd
		if math.Abs(z) <= e.cfg.AnomalySigma {
			continue
		}
		dir := "above"
		if z < 0 {
			dir = "below"
		}
		out = append(out, Anomaly{
			Month:  s.labels[i],
			Value:  s.values[i],
			ZScore: stats.Round(z, 2),
			Kind:   AnomalyOutlier,
			Note: fmt.Sprintf("%s (%.0f) is %.1f standard deviations %s the trailing mean of %.0f.",
				s.labels[i], s.values[i], math.Abs(z), dir, m),
		})
	}
	return out
}

func (e *Engine) confidence(n int, fit stats.Fit, mean float64) model.Confidence {
	rel, ok := stats.Ratio(fit.RMSE, mean)
	if !ok {
		return model.ConfidenceLow
	}
	switch {
	case n >= 6 && rel <= 0.10:
		return model.ConfidenceHigh
	case n >= 4 && rel <= 0.25:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func (e *Engine) explain(r *Result, used int) string {
	wn, ww, wt := e.ensembleWeights()
	parts := []string{
		fmt.Sprintf("Forecast for %s over the next %d month(s) from %d usable month(s) of history.", r.Branch, r.HorizonMonths, used),
		fmt.Sprintf("Ensemble = %.2f x naive + %.2f x weighted moving average + %.2f x linear trend.", wn, ww, wt),
		fmt.Sprintf("Trend is %s: the fitted slope is %.1f%% of the mean month (stable within +/-%.0f%%).",
			r.Trend, r.RelativeSlope*100, e.cfg.StableBand*100),
	}
	if r.AvgMoMGrowthPct != nil {
		parts = append(parts, fmt.Sprintf("Average month-over-month growth is %.2f%%.", *r.AvgMoMGrowthPct))
	}
	for _, a := range r.Anomalies {
		parts = append(parts, a.Note)
	}
	return strings.Join(parts, " ")
}

// ClassifyChange labels a relative change against a symmetric stable band.
// It depends only on the ratio, so scaling a series does not change it.
func ClassifyChange(rel, band float64) Trend {
	switch {
	case rel > band:
		return TrendGrowing
	case rel < -band:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// avgMoMGrowth averages month-over-month growth in percent, skipping zero
// predecessors.
func avgMoMGrowth(values []float64) (float64, bool) {
	var growth []float64
	for i := 1; i < len(values); i++ {
		if g, ok := stats.Ratio(values[i]-values[i-1], values[i-1]); ok {
			growth = append(growth, g*100)
		}
	}
	if len(growth) == 0 {
		return 0, false
	}
	return stats.Mean(growth), true
}

// NextMonth returns the one-month-ahead ensemble of records, or false when
// fewer than two usable months exist.
func (e *Engine) NextMonth(records []model.MonthlySalesRecord) (float64, bool) {
	s := e.prepare(records)
	if len(s.values) < 2 {
		return 0, false
	}
	_, _, _, ens := e.components(s.values, stats.LinearFit(s.values), 1)
	return ens[0], true
}

// AvgMoMGrowth returns the average month-over-month growth in percent over
// the usable months of records.
func (e *Engine) AvgMoMGrowth(records []model.MonthlySalesRecord) (float64, bool) {
	return avgMoMGrowth(e.prepare(records).values)
}

// DemandFactor is the next-month ensemble divided by the mean usable month,
// clamped to the configured bounds. It is 1 when history is insufficient.
func (e *Engine) DemandFactor(records []model.MonthlySalesRecord) float64 {
	next, ok := e.NextMonth(records)
	if !ok {
		return 1
	}
	f, ok := stats.Ratio(next, stats.Mean(e.prepare(records).values))
	if !ok {
		return 1
	}
	return stats.Clamp(f, e.cfg.MinDemandFactor, e.cfg.MaxDemandFactor)
}

// DemandIndex is the branch's share of the next-month ensemble summed over
// every branch.
func (e *Engine) DemandIndex(snap *model.Snapshot, b model.Branch) float64 {
	var total, own float64
	for _, br := range model.Branches() {
		next, ok := e.NextMonth(snap.MonthlySales(br))
		if !ok {
			continue
		}
		total += next
		if br == b {
			own = next
		}
	}
	idx, ok := stats.Ratio(own, total)
	if !ok {
		return 0
	}
	return stats.Round(idx, 4)
}
