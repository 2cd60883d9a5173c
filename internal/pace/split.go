package pace

import (
	"encoding/json"
	"math"
)

// Clock identifies which timer a split value was taken from.
type Clock string

const (
	ClockIGT Clock = "IGT" // in-game time, pauses excluded
	ClockRTA Clock = "RTA" // real-time attempt, wall clock
)

// Source identifies which upstream feed supplied a split value.
type Source string

const (
	SourceWorld Source = "world" // committed run snapshot
	SourceLive  Source = "live"  // in-progress live event feed
)

// Sample is one resolved split: the elapsed milliseconds at which the run
// reached a milestone, under one clock, from one source.
type Sample struct {
	MS     int64
	Clock  Clock
	Source Source
}

// Seconds returns the sample's whole elapsed seconds (truncated).
func (s Sample) Seconds() int64 { return s.MS / 1000 }

// Snapshot is the world-state view of one run: raw upstream fields keyed by
// their wire names, split values in milliseconds. Kept untyped so unknown
// milestone keys survive decoding.
type Snapshot map[string]any

// LiveTimes holds one live event's elapsed times. Zero means "not supplied".
type LiveTimes struct {
	IGT int64
	RTA int64
}

// LiveEvents maps a live-feed event identifier to its times.
type LiveEvents map[string]LiveTimes

// ResolveSplit resolves a milestone's elapsed time under a requested clock.
//
// Resolution order is strict: snapshot under the primary clock, snapshot under
// the fallback clock, live feed under the primary clock, live feed under the
// fallback clock. A committed snapshot value always wins over a live event,
// regardless of clock, so evaluation doesn't flap between clocks once the
// snapshot has caught up.
func ResolveSplit(snap Snapshot, live LiveEvents, m Milestone, primary, fallback Clock) (Sample, bool) {
	for _, c := range []Clock{primary, fallback} {
		if ms, ok := snapshotMS(snap, m, c); ok {
			return Sample{MS: ms, Clock: c, Source: SourceWorld}, true
		}
	}
	for _, c := range []Clock{primary, fallback} {
		if ms, ok := liveMS(live, m, c); ok {
			return Sample{MS: ms, Clock: c, Source: SourceLive}, true
		}
	}
	return Sample{}, false
}

func snapshotMS(snap Snapshot, m Milestone, clock Clock) (int64, bool) {
	if len(snap) == 0 {
		return 0, false
	}
	kv := splitKeysFor(m)
	keys := kv.igt
	if clock == ClockRTA {
		keys = kv.rta
	}
	for _, k := range keys {
		if ms, ok := validMS(snap[k]); ok {
			return ms, true
		}
	}
	return 0, false
}

func liveMS(live LiveEvents, m Milestone, clock Clock) (int64, bool) {
	if len(live) == 0 {
		return 0, false
	}
	id, ok := LiveEventID(m)
	if !ok {
		// Unrecognized milestones have no live fallback.
		return 0, false
	}
	t, ok := live[id]
	if !ok {
		return 0, false
	}
	v := t.IGT
	if clock == ClockRTA {
		v = t.RTA
	}
	if v <= 0 {
		return 0, false
	}
	return v, true
}

// validMS accepts the numeric shapes a JSON decode can produce. A null or
// zero value is the upstream's "not reached yet" sentinel and counts as
// absent, never as zero elapsed time.
func validMS(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
			return 0, false
		}
		return int64(x), true
	case int64:
		if x <= 0 {
			return 0, false
		}
		return x, true
	case int:
		if x <= 0 {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return validMS(f)
	default:
		return 0, false
	}
}
