package pace

// Decision is the full input to ShouldNotify.
type Decision struct {
	Split    Sample
	HasSplit bool
	Rule     Rule
	Force    bool
}

// ShouldNotify decides whether a resolved split is notification-worthy.
//
// Rules, in order, first match wins:
//  1. Disabled milestones never notify. This wins over Force.
//  2. No resolved split never notifies.
//  3. Force notifies regardless of threshold.
//  4. Otherwise notify iff whole seconds are strictly below the threshold.
//     A split exactly at the threshold is not notify-worthy. A rule with no
//     threshold never notifies on this path.
//
// The predicate is pure and safe to call on every poll tick; deduplication of
// actual delivery is the caller's job.
func ShouldNotify(d Decision) bool {
	if !d.Rule.Enabled {
		return false
	}
	if !d.HasSplit {
		return false
	}
	if d.Force {
		return true
	}
	if !d.Rule.HasThreshold {
		return false
	}
	return d.Split.Seconds() < int64(d.Rule.ThresholdSec)
}
