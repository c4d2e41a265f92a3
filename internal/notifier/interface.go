package notifier

import (
	"context"
	"time"

	"github.com/newthinker/cardquant/internal/core"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Alert is a recommendation worth telling someone about.
type Alert struct {
	Product        string         `json:"product"`
	Item           core.Item      `json:"item"`
	Action         core.Action    `json:"action"`
	PreviousAction core.Action    `json:"previous_action,omitempty"`
	Risk           core.RiskLevel `json:"risk_level"`
	Confidence     float64        `json:"confidence"`
	CurrentPrice   float64        `json:"current_price"`
	TargetBuy      float64        `json:"target_buy_price"`
	TargetSell     float64        `json:"target_sell_price"`
	Reasoning      []string       `json:"reasoning"`
	ComputedAt     time.Time      `json:"computed_at"`
}

// NewAlert builds an alert from an analysis result.
func NewAlert(product string, result core.AnalysisResult) Alert {
	rec := result.Recommendation
	return Alert{
		Product:      product,
		Item:         result.Item,
		Action:       rec.Action,
		Risk:         rec.Risk,
		Confidence:   rec.Confidence,
		CurrentPrice: result.Metrics.Position.CurrentPrice,
		TargetBuy:    rec.TargetBuyPrice,
		TargetSell:   rec.TargetSellPrice,
		Reasoning:    rec.Reasoning,
		ComputedAt:   result.ComputedAt,
	}
}

// Notifier defines the interface for alert delivery
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Send delivers a single alert
	Send(ctx context.Context, alert Alert) error

	// SendBatch delivers several alerts in one message
	SendBatch(ctx context.Context, alerts []Alert) error
}
