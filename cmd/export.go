package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/tables"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the loaded tables to CSV files, a workbook or a SQLite database",
	Long:  "Loads the configured source and writes its tables in another format. Combined with --source demo it produces sample data.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		snap := env.Holder.Current()
		t := snapshotTables(snap)
		switch exportFormat {
		case "csv":
			err = tables.WriteCSV(exportOut, t)
		case "xlsx":
			err = tables.WriteXLSX(exportOut, t)
		case "sqlite":
			var db *tables.SQLiteSource
			db, err = tables.NewSQLite(exportOut)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck
			err = db.Save(cmd.Context(), t)
		default:
			return eris.Errorf("export: unknown format %q", exportFormat)
		}
		if err != nil {
			return eris.Wrap(err, "export: write")
		}
		zap.L().Info("export complete",
			zap.String("format", exportFormat),
			zap.String("out", exportOut),
			zap.String("snapshot", snap.Version),
			zap.Any("rows", snap.RowCounts()),
		)
		return nil
	},
}

// snapshotTables reassembles the published rows of every table.
func snapshotTables(s *model.Snapshot) *model.Tables {
	all := model.AllBranches
	return &model.Tables{
		MonthlySales:    s.MonthlySales(all),
		BasketLines:     s.BasketLines(all),
		Attendance:      s.Attendance(all),
		ItemSales:       s.ItemSales(all),
		CategoryChannel: s.CategoryChannel(all),
		CustomerOrders:  s.CustomerOrders(all),
		MenuChannel:     s.MenuChannel(all),
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv, xlsx or sqlite")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output directory (csv) or file (xlsx, sqlite)")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}
