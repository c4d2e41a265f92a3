package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	content string
	err     error
	req     llm.ChatRequest
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.ChatResponse{Content: m.content}, nil
}

func analysisResult() *core.AnalysisResult {
	return &core.AnalysisResult{
		ID:   "a1",
		Item: core.Item{Type: core.ItemSealed, ID: "7", Name: "Evolving Skies Booster Box"},
		Metrics: core.Metrics{
			PriceStats:  core.PriceStats{Average: 640, Minimum: 590, Maximum: 700, VolatilityPercent: 4.2},
			Trend:       core.Trend{Direction: core.TrendRising, Strength: 0.08},
			Position:    core.MarketPosition{CurrentPrice: 680},
			TotalPoints: 40,
			Advanced: &core.AdvancedMetrics{
				Returns: core.ReturnMetrics{TotalReturn: 12, CAGR: 31.5, DaysHeld: 150},
				Risk:    core.RiskMetrics{SharpeRatio: 1.8, MaxDrawdown: -9.5},
				Timing:  &core.MarketTiming{Position90: 0.4, Support: 610, Resistance: 675, EntrySignal: core.SignalHold},
				Grade:   core.InvestmentGrade{Grade: "A-", Score: 75},
			},
		},
		Recommendation: core.Recommendation{
			Action:    core.ActionBuy,
			Risk:      core.RiskMedium,
			Score:     72,
			Reasoning: []string{"Price near historical low"},
		},
		ComputedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerate_UsesModel(t *testing.T) {
	provider := &mockProvider{content: "```json\n" + `{
		"overall_assessment": "Steady appreciation",
		"key_highlights": ["CAGR above 30%"],
		"investment_thesis": "Supply keeps shrinking.",
		"risk_level": "low",
		"key_risks": ["Reprint"],
		"outlook": "Flat near term"
	}` + "\n```"}
	result := analysisResult()
	before := result.Recommendation

	got := New(provider, nil).Generate(context.Background(), result)

	assert.Equal(t, "llm:mock", got.Source)
	assert.Equal(t, "Steady appreciation", got.Assessment)
	assert.Equal(t, core.RiskLow, got.RiskLevel)
	assert.Equal(t, []string{"Reprint"}, got.KeyRisks)
	assert.Equal(t, before, result.Recommendation)

	assert.True(t, provider.req.JSONMode)
	prompt := provider.req.Messages[0].Content
	assert.Contains(t, prompt, "Evolving Skies Booster Box")
	assert.Contains(t, prompt, "RECOMMENDATION: BUY")
	assert.Contains(t, prompt, "GRADE: A- (75/100)")
	assert.Contains(t, prompt, "support $610.00")
}

func TestGenerate_FallsBack(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
	}{
		{"no provider", nil},
		{"provider error", &mockProvider{err: core.WrapError(core.ErrLLMTimeout, errors.New("deadline"))}},
		{"not json", &mockProvider{content: "The market looks fine."}},
		{"missing fields", &mockProvider{content: `{"overall_assessment": "ok", "key_highlights": []}`}},
		{"bad risk level", &mockProvider{content: `{"overall_assessment": "ok", "key_highlights": ["x"], "risk_level": "EXTREME"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.provider, nil).Generate(context.Background(), analysisResult())
			assert.Equal(t, SourceRules, got.Source)
			assert.Equal(t, "Strong performance with acceptable risk", got.Assessment)
		})
	}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name       string
		cagr       float64
		sharpe     float64
		drawdown   float64
		assessment string
		risk       core.RiskLevel
	}{
		{"strong", 20, 1.2, -10, "Strong performance with acceptable risk", core.RiskLow},
		{"strong returns deep drawdown", 20, 1.2, -22, "Moderate performance with balanced risk", core.RiskMedium},
		{"weak", 3, 0.2, -40, "Poor risk-adjusted returns", core.RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := analysisResult()
			result.Metrics.Advanced.Returns.CAGR = tt.cagr
			result.Metrics.Advanced.Risk.SharpeRatio = tt.sharpe
			result.Metrics.Advanced.Risk.MaxDrawdown = tt.drawdown

			got := Fallback(result)
			assert.Equal(t, tt.assessment, got.Assessment)
			assert.Equal(t, tt.risk, got.RiskLevel)
			assert.Contains(t, got.Highlights, "Investment grade: A-")
			assert.Contains(t, got.EntryTiming, "40% of its recent range")
		})
	}
}

func TestFallback_WithoutAdvancedMetrics(t *testing.T) {
	result := analysisResult()
	result.Metrics.Advanced = nil

	got := Fallback(result)
	require.NotEmpty(t, got.Highlights)
	assert.Equal(t, "Limited price history", got.Assessment)
	assert.Equal(t, core.RiskMedium, got.RiskLevel)
	assert.Empty(t, got.EntryTiming)
}
