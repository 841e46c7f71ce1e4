package synth

import (
	"testing"
	"time"

	"github.com/skeinhq/skein/internal/store"
)

func TestComputeTemporalContext(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	dates := []time.Time{
		now.AddDate(0, 0, -20), // older
		now.AddDate(0, 0, -10), // older
		now.AddDate(0, 0, -3),  // recent
		now.AddDate(0, 0, -1),  // recent
	}

	tc := ComputeTemporalContext(dates, now)
	if tc.TotalDumps != 4 {
		t.Errorf("TotalDumps = %d, want 4", tc.TotalDumps)
	}
	if !tc.FirstMentioned.Equal(dates[0]) || !tc.LastMentioned.Equal(dates[3]) {
		t.Errorf("First/last mismatch: %v / %v", tc.FirstMentioned, tc.LastMentioned)
	}
	if tc.DaysSinceLastMention != 1 {
		t.Errorf("DaysSinceLastMention = %d, want 1", tc.DaysSinceLastMention)
	}
	if tc.RecentDumpCount != 2 || tc.OlderDumpCount != 2 {
		t.Errorf("Recent/older split = %d/%d, want 2/2", tc.RecentDumpCount, tc.OlderDumpCount)
	}
}

func TestComputeTemporalContextBoundary(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// Exactly 7 days ago sits on the cutoff and counts as recent.
	tc := ComputeTemporalContext([]time.Time{now.Add(-7 * 24 * time.Hour)}, now)
	if tc.RecentDumpCount != 1 || tc.OlderDumpCount != 0 {
		t.Errorf("Boundary date split = %d/%d, want 1/0", tc.RecentDumpCount, tc.OlderDumpCount)
	}
}

func TestComputeTemporalContextEmpty(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	tc := ComputeTemporalContext(nil, now)
	if tc.TotalDumps != 0 {
		t.Errorf("TotalDumps = %d, want 0", tc.TotalDumps)
	}
	if !tc.FirstMentioned.Equal(now) || !tc.LastMentioned.Equal(now) {
		t.Error("Empty context should be stamped with now")
	}
}

func TestComputeMomentum(t *testing.T) {
	tests := []struct {
		name string
		tc   TemporalContext
		want store.Momentum
	}{
		{
			name: "stale wins over everything",
			tc:   TemporalContext{DaysSinceLastMention: 15, RecentDumpCount: 0, OlderDumpCount: 3},
			want: store.MomentumStale,
		},
		{
			name: "stale at exactly 14 days",
			tc:   TemporalContext{DaysSinceLastMention: 14, RecentDumpCount: 1, OlderDumpCount: 0},
			want: store.MomentumStale,
		},
		{
			name: "rising when recent outnumbers older",
			tc:   TemporalContext{DaysSinceLastMention: 2, RecentDumpCount: 5, OlderDumpCount: 1},
			want: store.MomentumRising,
		},
		{
			name: "declining needs older history",
			tc:   TemporalContext{DaysSinceLastMention: 5, RecentDumpCount: 1, OlderDumpCount: 4},
			want: store.MomentumDeclining,
		},
		{
			name: "steady on equal counts",
			tc:   TemporalContext{DaysSinceLastMention: 3, RecentDumpCount: 2, OlderDumpCount: 2},
			want: store.MomentumSteady,
		},
		{
			name: "brand new thread is steady, not declining",
			tc:   TemporalContext{DaysSinceLastMention: 0, RecentDumpCount: 0, OlderDumpCount: 0},
			want: store.MomentumSteady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeMomentum(tt.tc); got != tt.want {
				t.Errorf("ComputeMomentum = %s, want %s", got, tt.want)
			}
		})
	}
}
