package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"alpaca-trader/internal/store"
)

func newExportCmd(app *App) *cobra.Command {
	var days int
	var outDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trade history to CSV",
		Long:  "Export trades, signals and performance snapshots from the local database to CSV files.",
		Example: `  trader export
  trader export --days 7 --out ./reports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.NewSQLiteStore(app.Config.Logging.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			dir := outDir
			if dir == "" {
				dir = app.Config.Logging.CSVDir
			}
			if dir == "" {
				dir = "."
			}

			since := time.Now().AddDate(0, 0, -days)
			files, err := store.NewExporter(db, dir).ExportAll(since)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Println(f)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "number of days of history to export")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default: logging.csv_dir or current directory)")
	return cmd
}
