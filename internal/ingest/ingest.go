// Package ingest turns loosely typed listing records into validated observations.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/shopspring/decimal"
)

// RawPrice accepts both JSON numbers and formatted strings such as "$1,234.50".
type RawPrice string

// UnmarshalJSON implements json.Unmarshaler.
func (p *RawPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = RawPrice(s)
		return nil
	}
	*p = RawPrice(data)
	return nil
}

// RawListing is a record as supplied by a listing source.
type RawListing struct {
	Date       string   `json:"date" validate:"required"`
	Price      RawPrice `json:"price" validate:"required"`
	Source     string   `json:"source" validate:"required,oneof=marketplace_sold price_index"`
	Condition  string   `json:"condition_category" validate:"omitempty,oneof=raw graded sealed"`
	Graded     bool     `json:"is_graded"`
	Title      string   `json:"title" validate:"max=500"`
	Confidence *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	core.DateLayout,
	"Jan 2, 2006",
	"01/02/2006",
}

// Normalizer validates raw listings at the ingestion boundary.
type Normalizer struct {
	validate *validator.Validate
}

// NewNormalizer creates a normalizer with the struct-tag validator.
func NewNormalizer() *Normalizer {
	return &Normalizer{validate: validator.New()}
}

// Normalize converts one raw listing into an observation for the given item.
func (n *Normalizer) Normalize(raw RawListing, item core.Item) (core.Observation, error) {
	if err := n.validate.Struct(raw); err != nil {
		return core.Observation{}, core.WrapError(core.ErrInvalidObservation, err)
	}

	price, err := ParsePrice(string(raw.Price))
	if err != nil {
		return core.Observation{}, core.WrapError(core.ErrInvalidObservation, err)
	}

	date, err := ParseDate(raw.Date)
	if err != nil {
		return core.Observation{}, core.WrapError(core.ErrInvalidObservation, err)
	}

	confidence := 1.0
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}

	return core.Observation{
		Date:       date,
		Price:      price,
		Source:     core.Source(raw.Source),
		Condition:  conditionFor(raw, item),
		Title:      strings.TrimSpace(raw.Title),
		Confidence: confidence,
	}, nil
}

// NormalizeAll converts a batch, returning the valid observations and the per-record errors.
func (n *Normalizer) NormalizeAll(raws []RawListing, item core.Item) ([]core.Observation, []error) {
	obs := make([]core.Observation, 0, len(raws))
	var errs []error
	for i, raw := range raws {
		o, err := n.Normalize(raw, item)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		obs = append(obs, o)
	}
	return obs, errs
}

// ParsePrice parses a positive price and rounds it to cents.
func ParsePrice(s string) (float64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", "USD", "", " ", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parsing price %q: %w", s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("price must be positive, got %s", d.String())
	}
	return d.Round(2).InexactFloat64(), nil
}

// ParseDate parses a listing date and truncates it to the UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func conditionFor(raw RawListing, item core.Item) core.Condition {
	switch {
	case raw.Graded:
		return core.ConditionGraded
	case raw.Condition != "":
		return core.Condition(raw.Condition)
	case item.Type == core.ItemSealed:
		return core.ConditionSealed
	default:
		return core.ConditionRaw
	}
}
