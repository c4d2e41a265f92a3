package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/newthinker/cardquant/internal/config"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/insights"
	"github.com/newthinker/cardquant/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	forceRefresh  bool
	forceAnalysis bool
	maxAgeDays    int
	cacheHours    int
	useLLM        bool
	withInsights  bool
	jsonOutput    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <product name>",
	Short: "Analyze a card or sealed product",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "collect every source regardless of freshness")
	analyzeCmd.Flags().BoolVar(&forceAnalysis, "force-analysis", false, "ignore a cached analysis")
	analyzeCmd.Flags().IntVar(&maxAgeDays, "max-age-days", -1, "freshness window in days (default from config)")
	analyzeCmd.Flags().IntVar(&cacheHours, "cache-hours", -1, "analysis cache lifetime in hours (default from config)")
	analyzeCmd.Flags().BoolVar(&useLLM, "use-llm", false, "enable semantic listing classification")
	analyzeCmd.Flags().BoolVar(&withInsights, "insights", false, "add a narrative commentary (default from config)")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full report as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

// analyzeOutput is the JSON shape of the analyze command.
type analyzeOutput struct {
	*pipeline.Report
	Insights *insights.Insights `json:"insights,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	req := analyzeRequest(cmd, rt.cfg.Analysis, strings.Join(args, " "))
	report, runErr := rt.pipeline.Analyze(cmd.Context(), req)

	out := analyzeOutput{Report: report}
	if report.Success && flagOr(cmd, "insights", withInsights, rt.cfg.Analysis.Insights) {
		in := rt.insights.Generate(cmd.Context(), report.Result)
		out.Insights = &in
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		printReport(w, report)
		if out.Insights != nil {
			printInsights(w, out.Insights)
		}
	}
	return runErr
}

// analyzeRequest builds a request from the config defaults and the flags the
// user actually set.
func analyzeRequest(cmd *cobra.Command, cfg config.AnalysisConfig, product string) pipeline.Request {
	req := pipeline.Request{
		Product:       product,
		ForceRefresh:  forceRefresh,
		ForceAnalysis: forceAnalysis,
		MaxAgeDays:    cfg.MaxAgeDays,
		CacheHours:    cfg.CacheHours,
		UseLLM:        flagOr(cmd, "use-llm", useLLM, cfg.UseLLM),
	}
	if maxAgeDays >= 0 {
		req.MaxAgeDays = maxAgeDays
	}
	if cacheHours >= 0 {
		req.CacheHours = cacheHours
	}
	return req
}

// flagOr returns the flag value when it was given on the command line and the
// configured value otherwise.
func flagOr(cmd *cobra.Command, name string, flag, configured bool) bool {
	if cmd.Flags().Changed(name) {
		return flag
	}
	return configured
}

func printReport(w io.Writer, r *pipeline.Report) {
	if !r.Success {
		fmt.Fprintf(w, "Analysis of %q failed in %s\n", r.Product, r.FinalState)
		fmt.Fprintf(w, "  %s\n", r.Error)
		printStages(w, r.Stages)
		return
	}

	res := r.Result
	m, rec := res.Metrics, res.Recommendation
	source := "fresh analysis"
	if r.UsedCache {
		source = "cached analysis from " + res.ComputedAt.Format("2006-01-02 15:04 MST")
	}

	fmt.Fprintf(w, "%s (%s)\n", res.Item.DisplayName(), source)
	fmt.Fprintf(w, "  Recommendation: %s  risk %s  confidence %.0f%%  score %.0f\n",
		rec.Action, rec.Risk, rec.Confidence*100, rec.Score)
	fmt.Fprintf(w, "  Targets:        buy $%.2f  sell $%.2f\n", rec.TargetBuyPrice, rec.TargetSellPrice)
	fmt.Fprintf(w, "  Price:          avg $%.2f  min $%.2f  max $%.2f  volatility %.1f%%\n",
		m.PriceStats.Average, m.PriceStats.Minimum, m.PriceStats.Maximum, m.PriceStats.VolatilityPercent)
	fmt.Fprintf(w, "  Current:        $%.2f  (%.0f%% of max)\n", m.Position.CurrentPrice, m.Position.CurrentVsMax)
	fmt.Fprintf(w, "  Trend:          %s %.1f%%\n", m.Trend.Direction, m.Trend.Strength*100)
	fmt.Fprintf(w, "  Data:           %d points from %d sources, %s to %s, quality %.2f\n",
		m.TotalPoints, m.SourceCount(),
		m.Coverage.Start.Format(core.DateLayout), m.Coverage.End.Format(core.DateLayout),
		m.DataQualityScore)
	if adv := m.Advanced; adv != nil {
		fmt.Fprintf(w, "  Grade:          %s (%d/100)  return %.1f%%  sharpe %.2f  max drawdown %.1f%%\n",
			adv.Grade.Grade, adv.Grade.Score, adv.Returns.TotalReturn, adv.Risk.SharpeRatio, adv.Risk.MaxDrawdown)
	}
	for _, reason := range rec.Reasoning {
		fmt.Fprintf(w, "    - %s\n", reason)
	}
	if !r.UsedCache {
		printStages(w, r.Stages)
	}
}

func printStages(w io.Writer, stages []pipeline.StageReport) {
	fmt.Fprintln(w, "  Stages:")
	for _, s := range stages {
		fmt.Fprintf(w, "    %-18s %-18s %s\n", s.Stage, s.Event, s.Duration.Round(time.Microsecond))
		for _, d := range s.Degraded {
			fmt.Fprintf(w, "      degraded: %s\n", d)
		}
	}
}

func printInsights(w io.Writer, in *insights.Insights) {
	fmt.Fprintf(w, "  Insights (%s):\n", in.Source)
	fmt.Fprintf(w, "    %s. Risk %s.\n", strings.TrimSuffix(in.Assessment, "."), in.RiskLevel)
	for _, h := range in.Highlights {
		fmt.Fprintf(w, "    - %s\n", h)
	}
	if in.Thesis != "" {
		fmt.Fprintf(w, "    %s\n", in.Thesis)
	}
	if in.EntryTiming != "" {
		fmt.Fprintf(w, "    %s\n", in.EntryTiming)
	}
	if in.Outlook != "" {
		fmt.Fprintf(w, "    %s\n", in.Outlook)
	}
}
