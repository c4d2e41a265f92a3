package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <product name>",
	Short: "List stored analyses for a product, newest first",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "number of analyses to show (default from config)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	limit := historyLimit
	if limit <= 0 {
		limit = rt.cfg.Analysis.HistoryLimit
	}

	item, results, err := rt.pipeline.History(cmd.Context(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d analyses\n", item.DisplayName(), len(results))
	for _, r := range results {
		fmt.Fprintf(out, "  %s  %-5s  confidence %.2f  avg $%.2f  %d points\n",
			r.ComputedAt.Local().Format("2006-01-02 15:04"),
			r.Recommendation.Action, r.ConfidenceScore,
			r.Metrics.PriceStats.Average, r.Metrics.TotalPoints)
	}
	return nil
}
