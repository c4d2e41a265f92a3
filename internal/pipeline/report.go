package pipeline

import (
	"time"

	"github.com/newthinker/cardquant/internal/core"
)

// Request is one analysis request.
type Request struct {
	Product       string `json:"product"`
	ForceRefresh  bool   `json:"force_refresh"`  // collect every source regardless of freshness
	ForceAnalysis bool   `json:"force_analysis"` // ignore a cached result
	MaxAgeDays    int    `json:"max_age_days"`
	CacheHours    int    `json:"cache_hours"`
	UseLLM        bool   `json:"use_llm"`
}

// StageReport is one entry of the diagnostic trail.
type StageReport struct {
	Stage    State          `json:"stage"`
	Event    Event          `json:"event"`
	Duration time.Duration  `json:"duration"`
	Error    string         `json:"error,omitempty"`
	Degraded []string       `json:"degraded,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func (s *StageReport) set(key string, value any) {
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	s.Data[key] = value
}

func (s *StageReport) degrade(err error) {
	s.Degraded = append(s.Degraded, err.Error())
}

// Report is the structured outcome of a run, returned on success and failure.
type Report struct {
	RunID      string               `json:"run_id"`
	Success    bool                 `json:"success"`
	Product    string               `json:"product"`
	Item       *core.Item           `json:"item,omitempty"`
	Result     *core.AnalysisResult `json:"result,omitempty"`
	UsedCache  bool                 `json:"used_cache"`
	FinalState State                `json:"final_state"`
	Error      string               `json:"error,omitempty"`
	Stages     []StageReport        `json:"stages"`
}

// Stage returns the trail entry for a stage, or nil if it did not run.
func (r *Report) Stage(s State) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Stage == s {
			return &r.Stages[i]
		}
	}
	return nil
}
