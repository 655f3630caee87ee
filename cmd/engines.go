package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/branch-insights/internal/engine"
	"github.com/sells-group/branch-insights/internal/model"
)

// engineFlags holds the flag values of one engine command.
type engineFlags struct {
	branch            string
	topK              int
	minSupport        float64
	minConfidence     float64
	minLift           float64
	includeModifiers  bool
	horizon           int
	shift             string
	demandFactor      float64
	includeCandidates bool
	topCandidates     int
}

// request converts the flags that were set into an engine request.
func (f *engineFlags) request(cmd *cobra.Command) (engine.Request, error) {
	var req engine.Request
	if f.branch != "" {
		b, err := model.ParseBranch(f.branch)
		if err != nil {
			return req, err
		}
		req.Branch = b
	}
	flags := cmd.Flags()
	if flags.Changed("top-k") {
		req.TopK = &f.topK
	}
	if flags.Changed("min-support") {
		req.MinSupport = &f.minSupport
	}
	if flags.Changed("min-confidence") {
		req.MinConfidence = &f.minConfidence
	}
	if flags.Changed("min-lift") {
		req.MinLift = &f.minLift
	}
	if flags.Changed("include-modifiers") {
		req.IncludeModifiers = &f.includeModifiers
	}
	if flags.Changed("horizon") {
		req.HorizonMonths = &f.horizon
	}
	req.Shift = f.shift
	if flags.Changed("demand-factor") {
		req.DemandFactor = &f.demandFactor
	}
	if flags.Changed("candidates") {
		req.IncludeCandidates = &f.includeCandidates
	}
	if flags.Changed("top-candidates") {
		req.TopCandidates = &f.topCandidates
	}
	return req, nil
}

// newEngineCmd builds a command that runs one engine and prints its result.
func newEngineCmd(kind engine.Kind, use, short string, flags *engineFlags, register func(*cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}
			env, err := initEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.Registry.Run(cmd.Context(), kind, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	register(cmd)
	return cmd
}

var (
	comboFlags     engineFlags
	forecastFlags  engineFlags
	staffingFlags  engineFlags
	expansionFlags engineFlags
	growthFlags    engineFlags
)

var combosCmd = newEngineCmd(engine.KindCombo, "combos", "Mine frequently co-purchased item pairs", &comboFlags, func(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&comboFlags.branch, "branch", "all", "branch name or all")
	f.IntVar(&comboFlags.topK, "top-k", 5, "number of pairs to return (1-20)")
	f.Float64Var(&comboFlags.minSupport, "min-support", 0.05, "minimum pair support")
	f.Float64Var(&comboFlags.minConfidence, "min-confidence", 0.2, "minimum confidence in either direction")
	f.Float64Var(&comboFlags.minLift, "min-lift", 1.0, "minimum lift")
	f.BoolVar(&comboFlags.includeModifiers, "include-modifiers", false, "keep modifier and add-on lines")
})

var forecastCmd = newEngineCmd(engine.KindForecast, "forecast", "Forecast monthly sales for a branch", &forecastFlags, func(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&forecastFlags.branch, "branch", "", "branch name (required)")
	f.IntVar(&forecastFlags.horizon, "horizon", 3, "months to forecast (1-12)")
	_ = c.MarkFlagRequired("branch")
})

var staffingCmd = newEngineCmd(engine.KindStaffing, "staffing", "Estimate headcount for a branch shift", &staffingFlags, func(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&staffingFlags.branch, "branch", "", "branch name (required)")
	f.StringVar(&staffingFlags.shift, "shift", "", "morning, midday or evening (default from config)")
	f.Float64Var(&staffingFlags.demandFactor, "demand-factor", 0, "demand multiplier up to 10; 0 derives it from the forecast")
	_ = c.MarkFlagRequired("branch")
})

var expansionCmd = newEngineCmd(engine.KindExpansion, "expansion", "Score expansion feasibility and rank candidate areas", &expansionFlags, func(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&expansionFlags.branch, "branch", "all", "focus branch or all")
	f.BoolVar(&expansionFlags.includeCandidates, "candidates", true, "rank candidate areas")
	f.IntVar(&expansionFlags.topCandidates, "top-candidates", 10, "number of candidate areas (1-20)")
})

var growthCmd = newEngineCmd(engine.KindGrowth, "growth", "Analyse beverage performance and propose growth actions", &growthFlags, func(c *cobra.Command) {
	c.Flags().StringVar(&growthFlags.branch, "branch", "all", "branch name or all")
})

func init() {
	rootCmd.AddCommand(combosCmd, forecastCmd, staffingCmd, expansionCmd, growthCmd)
}
