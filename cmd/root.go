package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/config"
)

var cfg *config.Config

// Data source overrides shared by every command.
var (
	sourceFlag  string
	dirFlag     string
	xlsxFlag    string
	sqliteFlag  string
	demoSeedFlg uint64
)

var rootCmd = &cobra.Command{
	Use:   "branch-insights",
	Short: "Decision engines for café branch analytics",
	Long:  "Mines product combos, forecasts demand, estimates shift staffing, scores expansion feasibility and proposes beverage growth actions from branch sales, basket and attendance tables.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyDataFlags(cmd, c)
		if err := c.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// applyDataFlags lets explicit flags win over file and environment settings.
func applyDataFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		c.Data.Source = sourceFlag
	}
	if flags.Changed("dir") {
		c.Data.Dir = dirFlag
	}
	if flags.Changed("xlsx") {
		c.Data.XLSXPath = xlsxFlag
	}
	if flags.Changed("sqlite") {
		c.Data.SQLiteDSN = sqliteFlag
	}
	if flags.Changed("demo-seed") {
		c.Data.DemoSeed = demoSeedFlg
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&sourceFlag, "source", "", "table source: csv, xlsx, sqlite, postgres or demo (default from config)")
	pf.StringVar(&dirFlag, "dir", "", "directory of <table>.csv files")
	pf.StringVar(&xlsxFlag, "xlsx", "", "workbook with one sheet per table")
	pf.StringVar(&sqliteFlag, "sqlite", "", "SQLite database path")
	pf.Uint64Var(&demoSeedFlg, "demo-seed", 0, "seed for the demo source")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
