package pipeline

import "fmt"

// State is a pipeline stage or terminal outcome.
type State string

const (
	StateIdentifyItem   State = "identify_item"
	StateCheckCache     State = "check_cache"
	StateCheckFreshness State = "check_freshness"
	StateCollectIfStale State = "collect_if_stale"
	StatePrepareSeries  State = "prepare_series"
	StateComputeMetrics State = "compute_metrics"
	StateRecommend      State = "recommend"
	StateStoreResult    State = "store_result"

	// Terminal states
	StateDone             State = "done"
	StateNotFound         State = "not_found"
	StateInsufficientData State = "insufficient_data"
	StateFailed           State = "failed"
)

// Event is the outcome of running one stage.
type Event string

const (
	EventOK               Event = "ok"
	EventNotFound         Event = "not_found"
	EventCacheHit         Event = "cache_hit"
	EventCacheMiss        Event = "cache_miss"
	EventFresh            Event = "fresh"
	EventStale            Event = "stale"
	EventInsufficientData Event = "insufficient_data"
	EventError            Event = "error"
)

// transitions is the complete state machine. Any stage may also fail with
// EventError, which always leads to StateFailed.
var transitions = map[State]map[Event]State{
	StateIdentifyItem: {
		EventOK:       StateCheckCache,
		EventNotFound: StateNotFound,
	},
	StateCheckCache: {
		EventCacheHit:  StateDone,
		EventCacheMiss: StateCheckFreshness,
	},
	StateCheckFreshness: {
		EventFresh: StatePrepareSeries,
		EventStale: StateCollectIfStale,
	},
	StateCollectIfStale: {
		EventOK: StatePrepareSeries,
	},
	StatePrepareSeries: {
		EventOK:               StateComputeMetrics,
		EventInsufficientData: StateInsufficientData,
	},
	StateComputeMetrics: {
		EventOK:               StateRecommend,
		EventInsufficientData: StateInsufficientData,
	},
	StateRecommend: {
		EventOK: StateStoreResult,
	},
	StateStoreResult: {
		EventOK: StateDone,
	},
}

// Next returns the state reached from s on event e.
func Next(s State, e Event) (State, error) {
	if s.Terminal() {
		return s, fmt.Errorf("no transitions out of terminal state %s", s)
	}
	if e == EventError {
		return StateFailed, nil
	}
	next, ok := transitions[s][e]
	if !ok {
		return StateFailed, fmt.Errorf("undefined transition %s --%s-->", s, e)
	}
	return next, nil
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateNotFound, StateInsufficientData, StateFailed:
		return true
	}
	return false
}

// outcome is the metrics label of a terminal state.
func outcome(s State, usedCache bool) string {
	switch {
	case s == StateDone && usedCache:
		return "cached"
	case s == StateDone:
		return "success"
	default:
		return string(s)
	}
}
