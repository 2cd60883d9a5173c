package watch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pacewatch/internal/notify"
	"pacewatch/internal/pace"
	"pacewatch/internal/paceman"
)

// Source is the upstream data dependency, satisfied by *paceman.Client.
type Source interface {
	RecentRunID(ctx context.Context, streamer string) (int64, bool, error)
	RunSnapshot(ctx context.Context, runID int64) (*paceman.RunSnapshot, error)
	LiveEvents(ctx context.Context, streamer string) (pace.LiveEvents, bool, error)
}

// Deliverer is the notification delivery collaborator.
type Deliverer interface {
	Deliver(ctx context.Context, n notify.Notification) (notify.Outcome, error)
}

// RulesFunc returns the streamer's current merged rule set, rebuilt from live
// configuration. ok=false means the streamer was removed from configuration
// and its watcher must stop promptly.
type RulesFunc func() (rules pace.RuleSet, ok bool)

// Options tune the watch loops. The boolean toggles are independently
// combinable (ops/test surface).
type Options struct {
	DiscoveryInterval time.Duration // default 20s
	RunInterval       time.Duration // default 5s
	GracePeriod       time.Duration // default 2m

	Once  bool // single discovery-to-notify iteration, then exit
	Force bool // bypass thresholds (not disabled flags)
}

func (o Options) withDefaults() Options {
	if o.DiscoveryInterval <= 0 {
		o.DiscoveryInterval = 20 * time.Second
	}
	if o.RunInterval <= 0 {
		o.RunInterval = 5 * time.Second
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 2 * time.Minute
	}
	return o
}

// DedupeKeys returns the idempotency keys for one notification event: the
// canonical key first, then the historically-valid aliases. The store checks
// and records the whole set atomically, so records written under the legacy
// format keep suppressing duplicates after the schema change.
func DedupeKeys(streamer string, runID int64, m pace.Milestone, r pace.Rule) []string {
	canonical := fmt.Sprintf("notify:%s:%d:%s", streamer, runID, m)

	threshold := "none"
	if r.HasThreshold {
		threshold = strconv.Itoa(r.ThresholdSec)
	}
	legacy := fmt.Sprintf("%s|%d|%s|%s", streamer, runID, m, threshold)

	return []string{canonical, legacy}
}

// formatMS renders elapsed milliseconds as m:ss or h:mm:ss.
func formatMS(ms int64) string {
	sec := ms / 1000
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func milestoneLabel(m pace.Milestone) string {
	return strings.ReplaceAll(string(m), "_", " ")
}
