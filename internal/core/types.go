package core

import "time"

// ItemType distinguishes single cards from sealed product
type ItemType string

const (
	ItemCard   ItemType = "card"
	ItemSealed ItemType = "sealed"
)

// Item identifies a catalogued card or sealed product
type Item struct {
	Type    ItemType `json:"type"`
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	SetName string   `json:"set_name,omitempty"`
}

// Key returns the stable identity used by storage and caching.
func (i Item) Key() string {
	return string(i.Type) + ":" + i.ID
}

// DisplayName returns the name with its set, if known.
func (i Item) DisplayName() string {
	if i.SetName == "" || i.Type == ItemSealed {
		return i.Name
	}
	return i.Name + " - " + i.SetName
}

// Source is the origin of a price observation
type Source string

const (
	SourceMarketplaceSold Source = "marketplace_sold"
	SourcePriceIndex      Source = "price_index"
)

// AllSources lists every source the freshness check tracks, in evaluation order.
var AllSources = []Source{SourceMarketplaceSold, SourcePriceIndex}

// Condition groups observations with comparable pricing regimes
type Condition string

const (
	ConditionRaw    Condition = "raw"
	ConditionGraded Condition = "graded"
	ConditionSealed Condition = "sealed"
)

// Observation is one normalized price data point
type Observation struct {
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	Source     Source    `json:"source"`
	Condition  Condition `json:"condition_category"`
	Title      string    `json:"sample_title,omitempty"`
	Confidence float64   `json:"confidence"`
}

// SeriesKey is the deduplication key of an observation within one item.
type SeriesKey struct {
	Date      string
	Source    Source
	Condition Condition
}

// Key returns the observation's deduplication key.
func (o Observation) Key() SeriesKey {
	return SeriesKey{Date: o.Date.Format(DateLayout), Source: o.Source, Condition: o.Condition}
}

// DateLayout is the calendar-day layout used for series dates.
const DateLayout = "2006-01-02"

// Removal records an observation dropped by a filter tier
type Removal struct {
	Observation Observation `json:"observation"`
	Tier        string      `json:"tier"`
	Reason      string      `json:"reason"`
}

// DateRange is an inclusive span of series dates
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the number of whole days covered.
func (r DateRange) Days() int {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// SourceStats summarizes the observations of one source
type SourceStats struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Series is the cleaned, deduplicated price history of one item
type Series struct {
	Item      Item                   `json:"item"`
	Points    []Observation          `json:"points"`
	Sources   []Source               `json:"sources"`
	Coverage  DateRange              `json:"date_coverage"`
	Breakdown map[Source]SourceStats `json:"source_breakdown"`
}

// TrendDirection is the coarse direction of a price series
type TrendDirection string

const (
	TrendRising  TrendDirection = "rising"
	TrendFalling TrendDirection = "falling"
	TrendStable  TrendDirection = "stable"
)

// PriceStats holds the basic price distribution figures
type PriceStats struct {
	Average           float64 `json:"average"`
	Minimum           float64 `json:"minimum"`
	Maximum           float64 `json:"maximum"`
	Volatility        float64 `json:"volatility"`
	VolatilityPercent float64 `json:"volatility_percent"`
}

// Trend compares the early and late thirds of a series
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Strength  float64        `json:"strength"`
	Sample    int            `json:"sample"`
}

// MarketPosition places the most recent price within the observed range
type MarketPosition struct {
	CurrentPrice float64 `json:"current_price"`
	CurrentVsMax float64 `json:"current_vs_max"`
	CurrentVsMin float64 `json:"current_vs_min"`
}

// Metrics is the calculator output consumed by the recommendation engine
type Metrics struct {
	PriceStats       PriceStats             `json:"price_stats"`
	Trend            Trend                  `json:"trend"`
	Position         MarketPosition         `json:"market_position"`
	Breakdown        map[Source]SourceStats `json:"source_breakdown"`
	Coverage         DateRange              `json:"date_coverage"`
	TotalPoints      int                    `json:"total_points"`
	DataQualityScore float64                `json:"data_quality_score"`
	Advanced         *AdvancedMetrics       `json:"advanced,omitempty"`
}

// SourceCount returns the number of contributing sources.
func (m Metrics) SourceCount() int {
	return len(m.Breakdown)
}

// Signal is a qualitative reading of an indicator
type Signal string

const (
	SignalBullish    Signal = "bullish"
	SignalBearish    Signal = "bearish"
	SignalOverbought Signal = "overbought"
	SignalOversold   Signal = "oversold"
	SignalNeutral    Signal = "neutral"
	SignalBuy        Signal = "buy"
	SignalSell       Signal = "sell"
	SignalHold       Signal = "hold"
	SignalStrong     Signal = "strong"
	SignalModerate   Signal = "moderate"
	SignalWeak       Signal = "weak"
)

// AdvancedMetrics are investment figures computed from the daily mean price
// line. They are informational and never feed the recommendation score.
// Percentages are expressed as 0-100 values.
type AdvancedMetrics struct {
	Returns     ReturnMetrics        `json:"returns"`
	Risk        RiskMetrics          `json:"risk"`
	Performance PerformanceMetrics   `json:"performance"`
	Technical   *TechnicalIndicators `json:"technical,omitempty"`
	VaR         *ValueAtRisk         `json:"value_at_risk,omitempty"`
	Timing      *MarketTiming        `json:"market_timing,omitempty"`
	Grade       InvestmentGrade      `json:"investment_grade"`
}

type ReturnMetrics struct {
	TotalReturn          float64 `json:"total_return_pct"`
	CAGR                 float64 `json:"cagr_pct"`
	AnnualizedVolatility float64 `json:"annualized_volatility_pct"`
	DailyReturnAvg       float64 `json:"daily_return_avg_pct"`
	BestPeriod           float64 `json:"best_period_pct"`
	WorstPeriod          float64 `json:"worst_period_pct"`
	DaysHeld             int     `json:"days_held"`
	YearsHeld            float64 `json:"years_held"`
}

type RiskMetrics struct {
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown_pct"`
	DrawdownDays int     `json:"max_drawdown_duration_days"`
	// RecoveryDays is nil when the series never regained the pre-drawdown peak.
	RecoveryDays *int `json:"recovery_to_peak_days"`
}

type PerformanceMetrics struct {
	WinRate        float64 `json:"win_rate_pct"`
	AverageWin     float64 `json:"avg_win_pct"`
	AverageLoss    float64 `json:"avg_loss_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
	PriceStability float64 `json:"price_stability"`
	Periods        int     `json:"total_periods"`
}

type TechnicalIndicators struct {
	SMA10             float64 `json:"sma_10"`
	SMA20             float64 `json:"sma_20"`
	EMA10             float64 `json:"ema_10"`
	EMA20             float64 `json:"ema_20"`
	SMA20Signal       Signal  `json:"sma_20_signal"`
	EMA20Signal       Signal  `json:"ema_20_signal"`
	BollingerPosition float64 `json:"bollinger_position"`
	BollingerSignal   Signal  `json:"bollinger_signal"`
	RSI               float64 `json:"rsi"`
	RSISignal         Signal  `json:"rsi_signal"`
	Momentum10        float64 `json:"momentum_10_pct"`
	Momentum20        float64 `json:"momentum_20_pct"`
	TrendStrength     Signal  `json:"trend_strength"`
}

type ValueAtRisk struct {
	Historical95        float64 `json:"var_95_pct"`
	Historical99        float64 `json:"var_99_pct"`
	Parametric95        float64 `json:"parametric_var_95_pct"`
	Parametric99        float64 `json:"parametric_var_99_pct"`
	ExpectedShortfall95 float64 `json:"expected_shortfall_95_pct"`
	ExpectedShortfall99 float64 `json:"expected_shortfall_99_pct"`
	DollarVaR95         float64 `json:"dollar_var_95"`
	DollarVaR99         float64 `json:"dollar_var_99"`
}

type MarketTiming struct {
	Position30           float64 `json:"position_30_range"`
	Position90           float64 `json:"position_90_range"`
	Support              float64 `json:"support_level"`
	Resistance           float64 `json:"resistance_level"`
	DistanceToSupport    float64 `json:"distance_to_support_pct"`
	DistanceToResistance float64 `json:"distance_to_resistance_pct"`
	EntrySignal          Signal  `json:"entry_signal"`
	TimingScore          float64 `json:"timing_score"`
}

// InvestmentGrade is a letter grade over four 25 point components.
type InvestmentGrade struct {
	Grade      string   `json:"grade"`
	Score      int      `json:"score"`
	Reasoning  []string `json:"reasoning"`
	Suggestion Action   `json:"suggestion"`
}

// Action represents a recommended position
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionHold  Action = "HOLD"
	ActionSell  Action = "SELL"
	ActionAvoid Action = "AVOID"
)

// RiskLevel is the coarse risk tier attached to a recommendation
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Recommendation is the scored, explainable output of the engine
type Recommendation struct {
	Action          Action    `json:"action"`
	Confidence      float64   `json:"confidence"`
	Risk            RiskLevel `json:"risk_level"`
	Score           float64   `json:"score"`
	Reasoning       []string  `json:"reasoning"`
	TargetBuyPrice  float64   `json:"target_buy_price"`
	TargetSellPrice float64   `json:"target_sell_price"`
}

// AnalysisResult is the immutable record of one successful pipeline run
type AnalysisResult struct {
	ID              string         `json:"id"`
	Item            Item           `json:"item"`
	Metrics         Metrics        `json:"metrics"`
	Recommendation  Recommendation `json:"recommendation"`
	ConfidenceScore float64        `json:"confidence_score"`
	ComputedAt      time.Time      `json:"computed_at"`
}
