// Package engine dispatches requests to the analytics engines through one
// closed set of kinds.
package engine

import (
	"context"
	"strings"

	"github.com/sells-group/branch-insights/internal/combo"
	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/expansion"
	"github.com/sells-group/branch-insights/internal/forecast"
	"github.com/sells-group/branch-insights/internal/growth"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/staffing"
)

// Kind names an engine.
type Kind string

const (
	KindCombo     Kind = "combo"
	KindForecast  Kind = "forecast"
	KindStaffing  Kind = "staffing"
	KindExpansion Kind = "expansion"
	KindGrowth    Kind = "growth"
)

// Kinds returns every engine kind in display order.
func Kinds() []Kind {
	return []Kind{KindCombo, KindForecast, KindStaffing, KindExpansion, KindGrowth}
}

// ParseKind validates an engine name. "combos" is accepted for combo.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "combos" {
		return KindCombo, nil
	}
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", model.InvalidParam("kind", s, "expected combo, forecast, staffing, expansion or growth")
}

// Request carries the parameters of every engine. Unset optional fields
// fall back to the configured defaults.
type Request struct {
	Branch model.Branch `json:"branch"`

	// combo
	TopK             *int     `json:"top_k,omitempty"`
	MinSupport       *float64 `json:"min_support,omitempty"`
	MinConfidence    *float64 `json:"min_confidence,omitempty"`
	MinLift          *float64 `json:"min_lift,omitempty"`
	IncludeModifiers *bool    `json:"include_modifiers,omitempty"`

	// forecast
	HorizonMonths *int `json:"horizon_months,omitempty"`

	// staffing
	Shift        string   `json:"shift,omitempty"`
	DemandFactor *float64 `json:"demand_factor,omitempty"`

	// expansion
	IncludeCandidates *bool `json:"include_candidates,omitempty"`
	TopCandidates     *int  `json:"top_candidates,omitempty"`
}

// Result is any engine result. Every result carries an assessment.
type Result interface {
	Summary() model.Assessment
}

// Engine computes one kind of result from a snapshot.
type Engine interface {
	Kind() Kind
	Compute(ctx context.Context, snap *model.Snapshot, req Request) (Result, error)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

type comboEngine struct {
	e        *combo.Engine
	defaults combo.Params
}

func (c *comboEngine) Kind() Kind { return KindCombo }

func (c *comboEngine) Compute(ctx context.Context, snap *model.Snapshot, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := c.defaults
	if req.Branch != "" {
		p.Branch = req.Branch
	}
	setInt(&p.TopK, req.TopK)
	setFloat(&p.MinSupport, req.MinSupport)
	setFloat(&p.MinConfidence, req.MinConfidence)
	setFloat(&p.MinLift, req.MinLift)
	setBool(&p.IncludeModifiers, req.IncludeModifiers)
	r, err := c.e.Compute(snap, p)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type forecastEngine struct {
	e       *forecast.Engine
	horizon int
}

func (f *forecastEngine) Kind() Kind { return KindForecast }

func (f *forecastEngine) Compute(ctx context.Context, snap *model.Snapshot, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := forecast.Params{Branch: req.Branch, HorizonMonths: f.horizon}
	setInt(&p.HorizonMonths, req.HorizonMonths)
	r, err := f.e.Compute(snap, p)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type staffingEngine struct {
	e     *staffing.Engine
	shift string
}

func (s *staffingEngine) Kind() Kind { return KindStaffing }

func (s *staffingEngine) Compute(ctx context.Context, snap *model.Snapshot, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shift := req.Shift
	if shift == "" {
		shift = s.shift
	}
	p := staffing.Params{Branch: req.Branch, Shift: model.Shift(shift)}
	setFloat(&p.DemandFactor, req.DemandFactor)
	r, err := s.e.Compute(snap, p)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type expansionEngine struct {
	e        *expansion.Engine
	defaults expansion.Params
}

func (x *expansionEngine) Kind() Kind { return KindExpansion }

func (x *expansionEngine) Compute(ctx context.Context, snap *model.Snapshot, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := x.defaults
	if req.Branch != "" {
		p.Branch = req.Branch
	}
	setBool(&p.IncludeCandidates, req.IncludeCandidates)
	setInt(&p.TopCandidates, req.TopCandidates)
	r, err := x.e.Compute(snap, p)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type growthEngine struct {
	e *growth.Engine
}

func (g *growthEngine) Kind() Kind { return KindGrowth }

func (g *growthEngine) Compute(ctx context.Context, snap *model.Snapshot, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := growth.Params{Branch: req.Branch}
	if p.Branch == "" {
		p.Branch = model.AllBranches
	}
	r, err := g.e.Compute(snap, p)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// build creates one engine per kind from configuration. The staffing and
// expansion engines share the forecast engine.
func build(cfg *config.Config) (map[Kind]Engine, error) {
	fc := forecast.New(cfg.Forecast)
	exp, err := expansion.New(cfg.Expansion, fc)
	if err != nil {
		return nil, err
	}
	return map[Kind]Engine{
		KindCombo:     &comboEngine{e: combo.New(cfg.Combo), defaults: combo.DefaultParams(cfg.Combo)},
		KindForecast:  &forecastEngine{e: fc, horizon: cfg.Forecast.HorizonMonths},
		KindStaffing:  &staffingEngine{e: staffing.New(cfg.Staffing, fc), shift: cfg.Staffing.DefaultShift},
		KindExpansion: &expansionEngine{e: exp, defaults: expansion.DefaultParams(cfg.Expansion)},
		KindGrowth:    &growthEngine{e: growth.New(cfg.Growth, cfg.Forecast.StableBand)},
	}, nil
}
