package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/engine"
	"github.com/sells-group/branch-insights/internal/model"
)

var (
	analyzeKinds   string
	analyzeHorizon int
	analyzeShift   string
)

// analysis is the output of one engine in an analyze run. Per-branch engines
// fill Branches; cross-branch engines fill Result.
type analysis struct {
	Kind     engine.Kind           `json:"kind"`
	Branches []engine.BranchResult `json:"branches,omitempty"`
	Result   engine.Result         `json:"result,omitempty"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run several engines across every branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := parseKinds(analyzeKinds)
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		req := engine.Request{Shift: analyzeShift}
		if cmd.Flags().Changed("horizon") {
			req.HorizonMonths = &analyzeHorizon
		}
		out, err := analyze(cmd.Context(), env.Registry, kinds, req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func parseKinds(s string) ([]engine.Kind, error) {
	if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), "all") {
		return engine.Kinds(), nil
	}
	var kinds []engine.Kind
	for _, part := range strings.Split(s, ",") {
		k, err := engine.ParseKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// analyze runs forecast, staffing and combo once per branch and the
// cross-branch engines once over all branches.
func analyze(ctx context.Context, reg *engine.Registry, kinds []engine.Kind, req engine.Request) ([]analysis, error) {
	out := make([]analysis, 0, len(kinds))
	for _, k := range kinds {
		a := analysis{Kind: k}
		switch k {
		case engine.KindForecast, engine.KindStaffing, engine.KindCombo:
			res, err := reg.RunAllBranches(ctx, k, req)
			if err != nil {
				return nil, err
			}
			a.Branches = res
		default:
			all := req
			all.Branch = model.AllBranches
			res, err := reg.Run(ctx, k, all)
			if err != nil {
				return nil, err
			}
			a.Result = res
		}
		zap.L().Debug("analyze: engine complete", zap.String("kind", string(k)))
		out = append(out, a)
	}
	return out, nil
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeKinds, "kinds", "all", "comma-separated engines: combo, forecast, staffing, expansion, growth")
	f.IntVar(&analyzeHorizon, "horizon", 3, "forecast horizon in months")
	f.StringVar(&analyzeShift, "shift", "", "staffing shift (default from config)")
	rootCmd.AddCommand(analyzeCmd)
}
