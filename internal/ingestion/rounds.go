package ingestion

import (
	"github.com/rs/zerolog"

	"MarketLedger/internal/observability"
)

// RoundTracker guards against out-of-order redelivery of driver rounds.
// The driver numbers its pushes; a round lower than the highest seen on a
// subject is stale and is silently dropped (counted, logged at debug).
// Re-pushing the current round is allowed — the driver uses it to recover
// from its own crashes, and all round applications are idempotent
// overwrites. Gaps are tolerated: the ledger is a consumer of round
// state, not its source of truth.
type RoundTracker struct {
	lastRound map[string]int64
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewRoundTracker(metrics *observability.Metrics, log zerolog.Logger) *RoundTracker {
	return &RoundTracker{
		lastRound: make(map[string]int64),
		metrics:   metrics,
		log:       log,
	}
}

// Observe reports whether the round should be applied, advancing the
// high-water mark when it is.
func (rt *RoundTracker) Observe(subject string, round int64) bool {
	last, seen := rt.lastRound[subject]
	if seen && round < last {
		if rt.metrics != nil {
			rt.metrics.StaleRounds.WithLabelValues(subject).Inc()
		}
		rt.log.Debug().
			Str("subject", subject).
			Int64("round", round).
			Int64("last_round", last).
			Msg("stale round ignored")
		return false
	}
	rt.lastRound[subject] = round
	return true
}

// Resume seeds the high-water mark for a subject, typically from the last
// persisted round at startup.
func (rt *RoundTracker) Resume(subject string, round int64) {
	rt.lastRound[subject] = round
}
