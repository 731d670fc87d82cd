package engine

import (
	"time"

	"github.com/namikmesic/claude-tether/internal/config"
)

// Options are the engine's tunable budgets. Zero values fall back to
// defaults, so a zero Options is usable.
type Options struct {
	// BackoffCap bounds the exponential retry delay.
	BackoffCap time.Duration
	// ReadTimeout is the per-event guard against a connection that stops
	// emitting entirely, pings included.
	ReadTimeout time.Duration
	// DecodeErrorThreshold is how many malformed events one attempt
	// tolerates before the attempt is aborted.
	DecodeErrorThreshold int

	// Catch-up poller schedule: PollShortInterval between the first
	// PollShortCount polls, PollLongInterval after, bounded by PollBudget.
	PollShortInterval time.Duration
	PollShortCount    int
	PollLongInterval  time.Duration
	PollBudget        time.Duration
	// FreshnessWindow is how recent the trailing user message must be for
	// resume to trigger catch-up polling at all.
	FreshnessWindow time.Duration
}

func DefaultOptions() Options {
	return Options{
		BackoffCap:           30 * time.Second,
		ReadTimeout:          30 * time.Second,
		DecodeErrorThreshold: 3,
		PollShortInterval:    3 * time.Second,
		PollShortCount:       5,
		PollLongInterval:     5 * time.Second,
		PollBudget:           30 * time.Second,
		FreshnessWindow:      5 * time.Minute,
	}
}

// OptionsFromConfig maps the environment-backed config onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BackoffCap:           time.Duration(cfg.BackoffCapSec) * time.Second,
		ReadTimeout:          time.Duration(cfg.ReadTimeoutSec) * time.Second,
		DecodeErrorThreshold: cfg.DecodeErrorThreshold,
		PollShortInterval:    time.Duration(cfg.PollShortIntervalSec) * time.Second,
		PollShortCount:       cfg.PollShortCount,
		PollLongInterval:     time.Duration(cfg.PollLongIntervalSec) * time.Second,
		PollBudget:           time.Duration(cfg.PollBudgetSec) * time.Second,
		FreshnessWindow:      time.Duration(cfg.FreshnessWindowSec) * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BackoffCap <= 0 {
		o.BackoffCap = def.BackoffCap
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.DecodeErrorThreshold <= 0 {
		o.DecodeErrorThreshold = def.DecodeErrorThreshold
	}
	if o.PollShortInterval <= 0 {
		o.PollShortInterval = def.PollShortInterval
	}
	if o.PollShortCount <= 0 {
		o.PollShortCount = def.PollShortCount
	}
	if o.PollLongInterval <= 0 {
		o.PollLongInterval = def.PollLongInterval
	}
	if o.PollBudget <= 0 {
		o.PollBudget = def.PollBudget
	}
	if o.FreshnessWindow <= 0 {
		o.FreshnessWindow = def.FreshnessWindow
	}
	return o
}
