// Package insights writes a narrative commentary for a finished analysis.
// The commentary is informational and carries no action of its own.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/llm"
	"go.uber.org/zap"
)

// SourceRules marks commentary produced without a language model.
const SourceRules = "rules"

// Insights is the narrative attached to an analysis.
type Insights struct {
	Source      string         `json:"source"`
	Assessment  string         `json:"overall_assessment" validate:"required"`
	Highlights  []string       `json:"key_highlights" validate:"required,min=1,dive,required"`
	Thesis      string         `json:"investment_thesis"`
	RiskLevel   core.RiskLevel `json:"risk_level" validate:"required,oneof=LOW MEDIUM HIGH"`
	KeyRisks    []string       `json:"key_risks"`
	EntryTiming string         `json:"entry_timing,omitempty"`
	Outlook     string         `json:"outlook,omitempty"`
}

const systemPrompt = `You are a quantitative analyst covering Pokemon cards and sealed products.
You receive the computed metrics and the final recommendation for one product.
Explain the numbers for a collector. Be specific about figures. Do not propose a different action.

Respond with JSON:
{
  "overall_assessment": "one sentence",
  "key_highlights": ["short bullet"],
  "investment_thesis": "two or three sentences",
  "risk_level": "LOW|MEDIUM|HIGH",
  "key_risks": ["short bullet"],
  "entry_timing": "one sentence",
  "outlook": "one sentence"
}`

// Generator produces insights with an optional language model.
type Generator struct {
	provider llm.Provider
	validate *validator.Validate
	logger   *zap.Logger
}

// New creates a generator. A nil provider always uses the rule-based text.
func New(provider llm.Provider, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{provider: provider, validate: validator.New(), logger: logger}
}

// Generate returns commentary for result. Model failures fall back to the
// rule-based text and are only logged.
func (g *Generator) Generate(ctx context.Context, result *core.AnalysisResult) Insights {
	if g.provider == nil {
		return Fallback(result)
	}

	out, err := g.ask(ctx, result)
	if err != nil {
		g.logger.Warn("insight generation failed, using rules",
			zap.String("provider", g.provider.Name()),
			zap.String("item", result.Item.Key()),
			zap.Error(err),
		)
		return Fallback(result)
	}
	return out
}

func (g *Generator) ask(ctx context.Context, result *core.AnalysisResult) (Insights, error) {
	resp, err := g.provider.Chat(ctx, llm.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: Prompt(result)}},
		MaxTokens:    800,
		Temperature:  0.3,
		JSONMode:     true,
	})
	if err != nil {
		return Insights{}, err
	}

	raw, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		return Insights{}, fmt.Errorf("malformed insight response: %w", err)
	}
	var out Insights
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Insights{}, fmt.Errorf("malformed insight response: %w", err)
	}
	out.RiskLevel = core.RiskLevel(strings.ToUpper(string(out.RiskLevel)))
	if err := g.validate.Struct(out); err != nil {
		return Insights{}, fmt.Errorf("incomplete insight response: %w", err)
	}
	out.Source = "llm:" + g.provider.Name()
	return out, nil
}

// Prompt renders the figures the model is asked to explain.
func Prompt(result *core.AnalysisResult) string {
	m, rec := result.Metrics, result.Recommendation

	var b strings.Builder
	fmt.Fprintf(&b, "PRODUCT: %s (%s)\n", result.Item.DisplayName(), result.Item.Type)
	fmt.Fprintf(&b, "RECOMMENDATION: %s, risk %s, confidence %.0f%%, score %.0f\n",
		rec.Action, rec.Risk, rec.Confidence*100, rec.Score)
	fmt.Fprintf(&b, "TARGETS: buy $%.2f, sell $%.2f\n", rec.TargetBuyPrice, rec.TargetSellPrice)
	fmt.Fprintf(&b, "PRICES: avg $%.2f, min $%.2f, max $%.2f, current $%.2f, volatility %.1f%%\n",
		m.PriceStats.Average, m.PriceStats.Minimum, m.PriceStats.Maximum,
		m.Position.CurrentPrice, m.PriceStats.VolatilityPercent)
	fmt.Fprintf(&b, "TREND: %s %.1f%%\n", m.Trend.Direction, m.Trend.Strength*100)
	fmt.Fprintf(&b, "DATA: %d points from %d sources, quality %.2f\n",
		m.TotalPoints, m.SourceCount(), m.DataQualityScore)

	if adv := m.Advanced; adv != nil {
		fmt.Fprintf(&b, "RETURNS: total %.2f%%, CAGR %.2f%% over %d days\n",
			adv.Returns.TotalReturn, adv.Returns.CAGR, adv.Returns.DaysHeld)
		fmt.Fprintf(&b, "RISK: Sharpe %.2f, Sortino %.2f, max drawdown %.2f%%\n",
			adv.Risk.SharpeRatio, adv.Risk.SortinoRatio, adv.Risk.MaxDrawdown)
		fmt.Fprintf(&b, "PERFORMANCE: win rate %.1f%%, profit factor %.2f\n",
			adv.Performance.WinRate, adv.Performance.ProfitFactor)
		if t := adv.Technical; t != nil {
			fmt.Fprintf(&b, "TECHNICAL: RSI %.1f (%s), SMA20 %s, momentum 20 %.2f%% (%s)\n",
				t.RSI, t.RSISignal, t.SMA20Signal, t.Momentum20, t.TrendStrength)
		}
		if t := adv.Timing; t != nil {
			fmt.Fprintf(&b, "TIMING: support $%.2f, resistance $%.2f, entry %s\n",
				t.Support, t.Resistance, t.EntrySignal)
		}
		fmt.Fprintf(&b, "GRADE: %s (%d/100)\n", adv.Grade.Grade, adv.Grade.Score)
	}
	for _, r := range rec.Reasoning {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return b.String()
}

// Fallback derives commentary from the metrics alone.
func Fallback(result *core.AnalysisResult) Insights {
	m, rec := result.Metrics, result.Recommendation
	out := Insights{
		Source:    SourceRules,
		RiskLevel: rec.Risk,
		KeyRisks:  []string{"Quantitative analysis only", "Limited market context"},
	}

	adv := m.Advanced
	if adv == nil {
		out.Assessment = "Limited price history"
		out.Highlights = []string{
			fmt.Sprintf("Average price: $%.2f", m.PriceStats.Average),
			fmt.Sprintf("Trend: %s", m.Trend.Direction),
		}
		out.Thesis = fmt.Sprintf("%d data points are too few for return and risk figures.", m.TotalPoints)
		return out
	}

	cagr, sharpe, drawdown := adv.Returns.CAGR, adv.Risk.SharpeRatio, adv.Risk.MaxDrawdown
	switch {
	case cagr > 15 && sharpe > 1.0 && drawdown > -20:
		out.Assessment = "Strong performance with acceptable risk"
	case cagr > 8 && sharpe > 0.5:
		out.Assessment = "Moderate performance with balanced risk"
	default:
		out.Assessment = "Poor risk-adjusted returns"
	}
	switch {
	case drawdown < -25:
		out.RiskLevel = core.RiskHigh
	case drawdown < -15:
		out.RiskLevel = core.RiskMedium
	default:
		out.RiskLevel = core.RiskLow
	}

	out.Highlights = []string{
		fmt.Sprintf("CAGR: %.1f%%", cagr),
		fmt.Sprintf("Sharpe ratio: %.2f", sharpe),
		fmt.Sprintf("Max drawdown: %.1f%%", drawdown),
		fmt.Sprintf("Investment grade: %s", adv.Grade.Grade),
	}
	out.Thesis = fmt.Sprintf("Based on quantitative metrics this product shows %s.", strings.ToLower(out.Assessment))
	if t := adv.Timing; t != nil {
		out.EntryTiming = fmt.Sprintf("Price sits at %.0f%% of its recent range, support $%.2f, resistance $%.2f.",
			t.Position90*100, t.Support, t.Resistance)
	}
	return out
}
