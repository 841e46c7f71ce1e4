package synth

import (
	"time"

	"github.com/skeinhq/skein/internal/store"
)

// recentWindow splits dump mentions into recent vs older buckets.
const recentWindow = 7 * 24 * time.Hour

// staleAfterDays is the no-mention span after which momentum is stale.
const staleAfterDays = 14

// TemporalContext summarizes how often a thread has been mentioned over
// time, derived from the creation timestamps of contributing dumps.
type TemporalContext struct {
	TotalDumps           int       `json:"total_dumps"`
	FirstMentioned       time.Time `json:"first_mentioned"`
	LastMentioned        time.Time `json:"last_mentioned"`
	DaysSinceLastMention int       `json:"days_since_last_mention"`
	RecentDumpCount      int       `json:"recent_dump_count"` // last 7 days
	OlderDumpCount       int       `json:"older_dump_count"`  // before last 7 days
}

// ComputeTemporalContext derives mention statistics from distinct dump
// timestamps, assumed ascending. An empty slice yields now-stamped zero
// defaults rather than an error: a thread with no dumps should not occur,
// but must not break synthesis.
func ComputeTemporalContext(dates []time.Time, now time.Time) TemporalContext {
	if len(dates) == 0 {
		return TemporalContext{
			FirstMentioned: now,
			LastMentioned:  now,
		}
	}

	cutoff := now.Add(-recentWindow)
	last := dates[len(dates)-1]

	tc := TemporalContext{
		TotalDumps:           len(dates),
		FirstMentioned:       dates[0],
		LastMentioned:        last,
		DaysSinceLastMention: int(now.Sub(last).Hours() / 24),
	}

	for _, d := range dates {
		if !d.Before(cutoff) {
			tc.RecentDumpCount++
		} else {
			tc.OlderDumpCount++
		}
	}

	return tc
}

// ComputeMomentum is the deterministic momentum rule. It is both the
// cross-check on model output and the sole fallback when generation fails.
func ComputeMomentum(tc TemporalContext) store.Momentum {
	switch {
	case tc.DaysSinceLastMention >= staleAfterDays:
		return store.MomentumStale
	case tc.RecentDumpCount > tc.OlderDumpCount:
		return store.MomentumRising
	case tc.RecentDumpCount < tc.OlderDumpCount && tc.OlderDumpCount > 0:
		return store.MomentumDeclining
	default:
		return store.MomentumSteady
	}
}
