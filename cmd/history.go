// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jalverson/ovation-cli/internal/config"
	"github.com/jalverson/ovation-cli/internal/observability"
	"github.com/jalverson/ovation-cli/internal/runlog"
)

var flagHistoryCount int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs and their same-day cumulative totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}

		ctx := context.Background()
		store, closeStore, err := buildStore(ctx, observability.GetLogger(), cfg.RunLog)
		if err != nil {
			return err
		}
		defer closeStore()

		records, err := store.Recent(ctx, flagHistoryCount)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}
		printHistory(records)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryCount, "count", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(records []runlog.Record) {
	fmt.Printf("%-25s %6s %6s %12s %8s %9s\n",
		"RECORDED", "GIVEN", "ERRORS", "RATE_LIMITED", "DRY_RUN", "DAY_TOTAL")
	for _, rec := range records {
		fmt.Printf("%-25s %6d %6d %12t %8t %9d\n",
			rec.RecordedAt.Format("2006-01-02T15:04:05Z"),
			rec.Given, rec.Errors, rec.RateLimited, rec.DryRun, rec.DayTotal)
	}
}
