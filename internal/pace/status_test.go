package pace

import (
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	t.Parallel()
	rules := RuleSet{
		MilestoneNether: {Enabled: true},
		MilestoneFinish: {Enabled: true},
	}
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	t.Run("live run mid progress", func(t *testing.T) {
		snap := Snapshot{"nether": float64(175000)}
		st := Summarize("alpha", rules, snap, nil, true, now.Add(-time.Minute), now, 3*time.Minute)
		if !st.Active || !st.Live || !st.HasSplit {
			t.Fatalf("unexpected status: %+v", st)
		}
		if st.LastMilestone != MilestoneNether || st.RecentFinish {
			t.Fatalf("unexpected status: %+v", st)
		}
	})

	t.Run("recent finish", func(t *testing.T) {
		snap := Snapshot{"nether": float64(175000), "finish": float64(1420000)}
		st := Summarize("alpha", rules, snap, nil, false, now.Add(-time.Minute), now, 3*time.Minute)
		if st.LastMilestone != MilestoneFinish || !st.RecentFinish {
			t.Fatalf("unexpected status: %+v", st)
		}
	})

	t.Run("stale finish", func(t *testing.T) {
		snap := Snapshot{"finish": float64(1420000)}
		st := Summarize("alpha", rules, snap, nil, false, now.Add(-10*time.Minute), now, 3*time.Minute)
		if st.RecentFinish {
			t.Fatalf("finish outside grace must not be recent: %+v", st)
		}
	})

	t.Run("no splits", func(t *testing.T) {
		st := Summarize("alpha", rules, Snapshot{}, nil, false, time.Time{}, now, 3*time.Minute)
		if st.HasSplit || st.Active {
			t.Fatalf("unexpected status: %+v", st)
		}
	})
}
