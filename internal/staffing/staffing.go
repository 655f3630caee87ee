// Package staffing estimates per-shift headcount from attendance history,
// adjusted by forecast demand.
package staffing

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/forecast"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/stats"
)

// Demand factor sources.
const (
	FactorFromForecast = "forecast"
	FactorFromCaller   = "caller"
)

// MaxDemandFactor is the largest demand multiplier a caller may pass.
const MaxDemandFactor = 10.0

// Params are the per-request inputs of a staffing estimate. A zero
// DemandFactor asks the engine to derive it from the branch forecast.
type Params struct {
	Branch       model.Branch `json:"branch"`
	Shift        model.Shift  `json:"shift"`
	DemandFactor float64      `json:"demand_factor,omitempty"`
}

// Validate rejects unknown branches and shifts, and factors outside
// [0, MaxDemandFactor].
func (p Params) Validate() error {
	if !p.Branch.Valid() {
		return &model.InputError{Kind: model.KindUnknownBranch, Field: "branch", Value: p.Branch, Reason: "a single canonical branch is required"}
	}
	if _, err := model.ParseShift(string(p.Shift)); err != nil {
		return err
	}
	if p.DemandFactor < 0 || math.IsNaN(p.DemandFactor) || math.IsInf(p.DemandFactor, 0) {
		return model.InvalidParam("demand_factor", p.DemandFactor, "must be a positive number")
	}
	if p.DemandFactor > MaxDemandFactor {
		return model.InvalidParam("demand_factor", p.DemandFactor, fmt.Sprintf("must be at most %g", MaxDemandFactor))
	}
	return nil
}

// Scenario is a low/base/high headcount range with Low <= Base <= High.
type Scenario struct {
	Low  int `json:"low"`
	Base int `json:"base"`
	High int `json:"high"`
}

// ShiftSummary describes the observed staffing of one shift.
type ShiftSummary struct {
	Shift               model.Shift `json:"shift"`
	DaysObserved        int         `json:"days_observed"`
	MedianHeadcount     float64     `json:"median_headcount"`
	PeakHeadcount       int         `json:"peak_headcount"`
	AvgHoursPerStaffDay float64     `json:"avg_hours_per_staff_day"`
}

// Result is the staffing estimate for one branch and shift.
type Result struct {
	model.Assessment
	Branch             model.Branch   `json:"branch"`
	Shift              model.Shift    `json:"shift"`
	BaselineHeadcount  float64        `json:"baseline_headcount"`
	DemandFactor       float64        `json:"demand_factor"`
	DemandFactorSource string         `json:"demand_factor_source"`
	RecommendedStaff   int            `json:"recommended_staff"`
	Scenarios          Scenario       `json:"scenarios"`
	DaysObserved       int            `json:"days_observed"`
	PeakHeadcount      int            `json:"peak_headcount"`
	AvgHoursPerStaff   float64        `json:"avg_hours_per_staff_day"`
	Overview           []ShiftSummary `json:"overview"`
}

// Engine estimates staffing. It is safe for concurrent use.
type Engine struct {
	cfg      config.StaffingConfig
	forecast *forecast.Engine
}

// New creates a staffing engine that takes demand factors from fc.
func New(cfg config.StaffingConfig, fc *forecast.Engine) *Engine {
	return &Engine{cfg: cfg, forecast: fc}
}

// Compute estimates headcount for one branch and shift of the snapshot.
func (e *Engine) Compute(snap *model.Snapshot, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, eris.Wrap(err, "staffing: validate params")
	}
	p.Shift, _ = model.ParseShift(string(p.Shift))

	factor, source := p.DemandFactor, FactorFromCaller
	if factor == 0 {
		factor, source = e.forecast.DemandFactor(snap.MonthlySales(p.Branch)), FactorFromForecast
	}

	r := e.Estimate(p.Branch, p.Shift, snap.Attendance(p.Branch), factor)
	r.DemandFactorSource = source
	zap.L().Debug("staffing: computed",
		zap.String("branch", string(p.Branch)),
		zap.String("shift", string(p.Shift)),
		zap.Float64("demand_factor", factor),
		zap.Int("recommended", r.RecommendedStaff),
	)
	return r, nil
}

// shiftDays is the attendance of one shift bucketed by calendar day.
type shiftDays struct {
	staff map[string]map[string]bool // date -> employee set
	hours float64
}

func (d *shiftDays) counts() []float64 {
	out := make([]float64, 0, len(d.staff))
	for _, emps := range d.staff {
		out = append(out, float64(len(emps)))
	}
	sort.Float64s(out)
	return out
}

func (d *shiftDays) staffDays() int {
	n := 0
	for _, emps := range d.staff {
		n += len(emps)
	}
	return n
}

func bucket(records []model.AttendanceRecord) map[model.Shift]*shiftDays {
	out := make(map[model.Shift]*shiftDays, 3)
	for _, s := range model.Shifts() {
		out[s] = &shiftDays{staff: make(map[string]map[string]bool)}
	}
	for _, r := range records {
		d := out[r.Shift()]
		key := r.DateKey()
		if d.staff[key] == nil {
			d.staff[key] = make(map[string]bool)
		}
		d.staff[key][r.EmployeeID] = true
		d.hours += r.HoursWorked
	}
	return out
}

func summarize(s model.Shift, d *shiftDays) ShiftSummary {
	counts := d.counts()
	sum := ShiftSummary{Shift: s, DaysObserved: len(counts)}
	if len(counts) == 0 {
		return sum
	}
	sum.MedianHeadcount = stats.Median(counts)
	sum.PeakHeadcount = int(counts[len(counts)-1])
	if h, ok := stats.Ratio(d.hours, float64(d.staffDays())); ok {
		sum.AvgHoursPerStaffDay = stats.Round(h, 2)
	}
	return sum
}

// Estimate derives the headcount scenario of shift from attendance records
// of one branch and a demand factor.
func (e *Engine) Estimate(branch model.Branch, shift model.Shift, records []model.AttendanceRecord, factor float64) *Result {
	buckets := bucket(records)
	res := &Result{Branch: branch, Shift: shift, DemandFactor: stats.Round(factor, 4)}
	for _, s := range model.Shifts() {
		res.Overview = append(res.Overview, summarize(s, buckets[s]))
	}

	var target ShiftSummary
	for _, o := range res.Overview {
		if o.Shift == shift {
			target = o
		}
	}
	res.DaysObserved = target.DaysObserved
	res.PeakHeadcount = target.PeakHeadcount
	res.AvgHoursPerStaff = target.AvgHoursPerStaffDay
	res.BaselineHeadcount = target.MedianHeadcount

	if target.DaysObserved == 0 {
		res.Assessment = model.Unavailable(fmt.Sprintf(
			"No %s attendance is recorded for %s, so no headcount can be recommended.", shift, branch))
		return res
	}

	res.Scenarios = e.scenario(target.MedianHeadcount, factor)
	res.RecommendedStaff = res.Scenarios.Base
	res.Assessment = model.Assessment{
		Status:     model.StatusOK,
		Confidence: e.confidence(target.DaysObserved),
		Explanation: fmt.Sprintf(
			"Median %s headcount at %s over %d observed day(s) is %g. "+
				"Demand factor %.2f gives a base of round(%g x %.2f) = %d. "+
				"Low = max(1, round(base x %.2f)) = %d, high = round(base x %.2f) = %d. "+
				"Peak observed headcount was %d with %.1f hours per staff-day on average.",
			shift, branch, target.DaysObserved, target.MedianHeadcount,
			factor, target.MedianHeadcount, factor, res.Scenarios.Base,
			e.cfg.LowRatio, res.Scenarios.Low, e.cfg.HighRatio, res.Scenarios.High,
			target.PeakHeadcount, target.AvgHoursPerStaffDay,
		),
	}
	return res
}

// scenario scales the baseline by the demand factor and spreads it into a
// low/base/high range. A positive baseline never yields fewer than one person.
func (e *Engine) scenario(baseline, factor float64) Scenario {
	base := int(math.Round(baseline * factor))
	if baseline > 0 && base < 1 {
		base = 1
	}
	low := int(math.Round(float64(base) * e.cfg.LowRatio))
	if baseline > 0 {
		low = max(1, low)
	}
	high := int(math.Round(float64(base) * e.cfg.HighRatio))
	return Scenario{Low: min(low, base), Base: base, High: max(high, base)}
}

func (e *Engine) confidence(days int) model.Confidence {
	switch {
	case days >= e.cfg.HighDays:
		return model.ConfidenceHigh
	case days >= e.cfg.MediumDays:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}
