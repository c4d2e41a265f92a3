package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/cardquant/internal/config"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/insights"
	"github.com/newthinker/cardquant/internal/llm"
	"github.com/newthinker/cardquant/internal/metrics"
	"github.com/newthinker/cardquant/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildCollectors(t *testing.T) {
	cfg := config.Defaults()
	cfg.Collectors = map[string]config.CollectorConfig{
		"sold":     {Enabled: true, Source: "marketplace_sold", Path: t.TempDir()},
		"index":    {Enabled: true, Source: "price_index", Path: t.TempDir()},
		"disabled": {Source: "price_index"},
	}

	registry, err := buildCollectors(cfg)
	require.NoError(t, err)

	all := registry.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "index", all[0].Name())
	assert.Len(t, registry.ForSource(core.SourceMarketplaceSold), 1)
}

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("offline")
}

func TestBuildChain(t *testing.T) {
	assert.False(t, buildChain(config.Defaults(), nil, zap.NewNop()).HasSemantic())
	assert.True(t, buildChain(config.Defaults(), stubProvider{}, zap.NewNop()).HasSemantic())
}

// analyzeFlags binds a fresh flag set to the analyze variables and parses args.
func analyzeFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "analyze"}
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "")
	cmd.Flags().BoolVar(&forceAnalysis, "force-analysis", false, "")
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", -1, "")
	cmd.Flags().IntVar(&cacheHours, "cache-hours", -1, "")
	cmd.Flags().BoolVar(&useLLM, "use-llm", false, "")
	cmd.Flags().BoolVar(&withInsights, "insights", false, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestAnalyzeRequest(t *testing.T) {
	tests := []struct {
		name      string
		configLLM bool
		args      []string
		wantLLM   bool
		wantAge   int
	}{
		{"config default off", false, nil, false, 7},
		{"config default on", true, nil, true, 7},
		{"flag enables", false, []string{"--use-llm"}, true, 7},
		{"flag disables config", true, []string{"--use-llm=false"}, false, 7},
		{"max age override", false, []string{"--max-age-days", "0"}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults().Analysis
			cfg.UseLLM = tt.configLLM

			req := analyzeRequest(analyzeFlags(t, tt.args...), cfg, "evolving skies")
			assert.Equal(t, "evolving skies", req.Product)
			assert.Equal(t, tt.wantLLM, req.UseLLM)
			assert.Equal(t, tt.wantAge, req.MaxAgeDays)
			assert.Equal(t, 24, req.CacheHours)
		})
	}
}

func TestFlagOr_Insights(t *testing.T) {
	assert.True(t, flagOr(analyzeFlags(t), "insights", withInsights, true))
	assert.False(t, flagOr(analyzeFlags(t, "--insights=false"), "insights", withInsights, true))
	assert.True(t, flagOr(analyzeFlags(t, "--insights"), "insights", withInsights, false))
}

func TestPrintInsights(t *testing.T) {
	result := &core.AnalysisResult{
		Item:           core.Item{Type: core.ItemSealed, ID: "1", Name: "Evolving Skies Booster Box"},
		Metrics:        core.Metrics{PriceStats: core.PriceStats{Average: 640}, TotalPoints: 3},
		Recommendation: core.Recommendation{Action: core.ActionHold, Risk: core.RiskMedium},
	}

	in := insights.New(stubProvider{}, zap.NewNop()).Generate(context.Background(), result)
	assert.Equal(t, core.ActionHold, result.Recommendation.Action)

	var buf bytes.Buffer
	printInsights(&buf, &in)
	out := buf.String()
	assert.Contains(t, out, "Insights (rules)")
	assert.Contains(t, out, "Limited price history. Risk MEDIUM.")
	assert.Contains(t, out, "- Average price: $640.00")
}

func TestBuildNotifiers(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notifiers = map[string]config.NotifierConfig{
		"webhook":  {Enabled: true, URL: "http://example.com/hook"},
		"telegram": {Enabled: false},
	}

	registry, err := buildNotifiers(cfg)
	require.NoError(t, err)
	all := registry.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, "webhook", all[0].Name())

	cfg.Notifiers["telegram"] = config.NotifierConfig{Enabled: true, BotToken: "token"}
	_, err = buildNotifiers(cfg)
	assert.Error(t, err)
}

func TestRouterConfig(t *testing.T) {
	rc := routerConfig(config.RouterConfig{
		CooldownHours:  2,
		MinConfidence:  0.6,
		EnabledActions: []string{"buy", "AVOID"},
		OnlyChanges:    true,
	})
	assert.Equal(t, 2*time.Hour, rc.CooldownDuration)
	assert.Equal(t, []core.Action{core.ActionBuy, core.ActionAvoid}, rc.EnabledActions)
	assert.True(t, rc.OnlyChanges)
}

func TestMetricsServer(t *testing.T) {
	reg := metrics.NewRegistry()
	server := newMetricsServer(":0", "", reg, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestPrintReport(t *testing.T) {
	computed := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	report := &pipeline.Report{
		Success:    true,
		Product:    "evolving skies",
		FinalState: pipeline.StateDone,
		UsedCache:  true,
		Result: &core.AnalysisResult{
			Item:       core.Item{Type: core.ItemSealed, ID: "1", Name: "Evolving Skies Booster Box"},
			ComputedAt: computed,
			Recommendation: core.Recommendation{
				Action:     core.ActionBuy,
				Risk:       core.RiskLow,
				Confidence: 0.95,
				Reasoning:  []string{"Low volatility (4.0%) indicates stable pricing"},
			},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()
	assert.Contains(t, out, "Evolving Skies Booster Box")
	assert.Contains(t, out, "cached analysis")
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "- Low volatility")
	assert.NotContains(t, out, "Stages:")

	buf.Reset()
	printReport(&buf, &pipeline.Report{
		Product:    "mewtwo",
		FinalState: pipeline.StateNotFound,
		Error:      "[ITEM_NOT_FOUND] item not found",
		Stages:     []pipeline.StageReport{{Stage: pipeline.StateIdentifyItem, Event: pipeline.EventNotFound}},
	})
	assert.Contains(t, buf.String(), "failed in not_found")
	assert.Contains(t, buf.String(), "identify_item")
}
