package pace

import "time"

// LatestSplit returns the milestone with the maximum resolved elapsed time
// across the rule set's key space. This is the "how far along is this run"
// primitive used by status reporting.
func LatestSplit(snap Snapshot, live LiveEvents, rules RuleSet, primary, fallback Clock) (Milestone, Sample, bool) {
	var (
		bestM Milestone
		best  Sample
		found bool
	)
	for m := range rules {
		s, ok := ResolveSplit(snap, live, m, primary, fallback)
		if !ok {
			continue
		}
		if !found || s.MS > best.MS {
			bestM, best, found = m, s, true
		}
	}
	return bestM, best, found
}

// StreamerStatus is the per-streamer summary consumed by status reporters.
type StreamerStatus struct {
	Streamer      string
	Active        bool // a run is currently being watched
	Live          bool
	LastMilestone Milestone
	LastSample    Sample
	HasSplit      bool
	RecentFinish  bool
}

// Summarize computes a streamer's status from its current run view.
// lastUpdate is the snapshot's update time; a finished run counts as a recent
// finish while now is within finishGrace of that update.
func Summarize(streamer string, rules RuleSet, snap Snapshot, live LiveEvents, isLive bool, lastUpdate time.Time, now time.Time, finishGrace time.Duration) StreamerStatus {
	st := StreamerStatus{Streamer: streamer, Active: len(snap) > 0, Live: isLive}
	m, s, ok := LatestSplit(snap, live, rules, ClockIGT, ClockRTA)
	if !ok {
		return st
	}
	st.LastMilestone = m
	st.LastSample = s
	st.HasSplit = true
	if m == MilestoneFinish && !isLive && !lastUpdate.IsZero() && now.Sub(lastUpdate) <= finishGrace {
		st.RecentFinish = true
	}
	return st
}
