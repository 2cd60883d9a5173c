package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"pacewatch/internal/notify"
	"pacewatch/internal/pace"
	"pacewatch/internal/paceman"
	"pacewatch/internal/storage"
	logx "pacewatch/pkg/logx"
)

// Watcher runs one streamer's discovery and run-watch loops. It is owned by a
// single supervisor goroutine; ticks for one streamer are strictly
// sequential.
type Watcher struct {
	streamer string
	src      Source
	store    storage.Store // nil when persistence is disabled
	deliver  Deliverer
	rules    RulesFunc
	opts     Options
	log      logx.Logger
	now      func() time.Time

	lastRunID int64
}

func NewWatcher(streamer string, src Source, store storage.Store, deliver Deliverer, rules RulesFunc, opts Options, log logx.Logger) *Watcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		streamer: streamer,
		src:      src,
		store:    store,
		deliver:  deliver,
		rules:    rules,
		opts:     opts.withDefaults(),
		log:      log.With(logx.String("streamer", streamer)),
		now:      time.Now,
	}
}

// Run drives the discovery loop until the context is canceled or the
// streamer is removed from configuration. In Once mode it performs a single
// discovery-to-notify iteration and returns.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		if _, ok := w.rules(); !ok {
			w.log.Info("streamer removed from configuration; stopping")
			return nil
		}

		w.discoverOnce(ctx)

		if w.opts.Once {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.opts.DiscoveryInterval):
		}
	}
}

// discoverOnce asks upstream for the streamer's most recent run and opens a
// watch loop for it if it is new and confirmed live. Confirming liveness at
// discovery prevents a notification burst for a run that already ended
// before this process started watching.
func (w *Watcher) discoverOnce(ctx context.Context) {
	runID, ok, err := w.src.RecentRunID(ctx, w.streamer)
	if err != nil {
		w.log.Warn("run discovery failed", logx.Err(err))
		return
	}
	if !ok || runID == w.lastRunID {
		return
	}

	snap, err := w.src.RunSnapshot(ctx, runID)
	if errors.Is(err, paceman.ErrNotFound) {
		w.log.Debug("discovered run has no snapshot", logx.Int64("run", runID))
		return
	}
	if err != nil {
		w.log.Warn("run snapshot fetch failed at discovery", logx.Int64("run", runID), logx.Err(err))
		return
	}
	if !snap.IsLive {
		w.log.Debug("discovered run is not live; skipping", logx.Int64("run", runID))
		return
	}

	w.lastRunID = runID
	w.watchRun(ctx, runID, snap)
}

// watchRun polls one run until it ends (plus a grace window for late splits),
// the data is retracted, or the streamer is removed from configuration.
func (w *Watcher) watchRun(ctx context.Context, runID int64, first *paceman.RunSnapshot) {
	log := w.log.With(logx.Int64("run", runID))
	log.Info("watching run")

	everLive := false
	var graceStart time.Time

	for tick := 0; ; tick++ {
		rules, ok := w.rules()
		if !ok {
			log.Info("streamer removed from configuration; ending run watch")
			return
		}

		var (
			snap *paceman.RunSnapshot
			err  error
		)
		if tick == 0 && first != nil {
			snap = first
		} else {
			snap, err = w.src.RunSnapshot(ctx, runID)
		}

		switch {
		case errors.Is(err, paceman.ErrNotFound):
			log.Warn("run data retracted upstream; ending run watch")
			return
		case err != nil:
			// Transient: abandon this tick, keep the loop alive.
			log.Warn("run snapshot fetch failed", logx.Err(err))
		default:
			if snap.IsLive {
				everLive = true
				graceStart = time.Time{}
			}
			if !everLive {
				// Discovery said live but the first fetch already shows
				// ended: don't evaluate a run we never saw alive.
				log.Debug("run never observed live; abandoning")
				return
			}

			missingEnabled := w.evaluateTick(ctx, runID, rules, snap, log)

			if !snap.IsLive {
				now := w.now()
				if graceStart.IsZero() {
					graceStart = now
					log.Debug("run no longer live; starting grace period",
						logx.Duration("grace", w.opts.GracePeriod),
						logx.Bool("missing_enabled_split", missingEnabled),
					)
				}
				if !missingEnabled || now.Sub(graceStart) >= w.opts.GracePeriod {
					log.Info("run watch complete")
					return
				}
			}
		}

		if w.opts.Once {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.RunInterval):
		}
	}
}

// evaluateTick resolves and evaluates every milestone in the rule set for one
// poll tick. It reports whether any enabled milestone still has no resolved
// split (which keeps the post-run grace period alive). Per-milestone failures
// are isolated: one milestone's delivery failing never aborts the tick.
func (w *Watcher) evaluateTick(ctx context.Context, runID int64, rules pace.RuleSet, snap *paceman.RunSnapshot, log logx.Logger) (missingEnabled bool) {
	liveEvents, _, err := w.src.LiveEvents(ctx, w.streamer)
	if err != nil {
		// Best-effort fallback feed; the snapshot still drives evaluation.
		log.Debug("live event feed unavailable", logx.Err(err))
		liveEvents = nil
	}

	milestones := make([]pace.Milestone, 0, len(rules))
	for m := range rules {
		milestones = append(milestones, m)
	}
	sort.Slice(milestones, func(i, j int) bool { return milestones[i] < milestones[j] })

	for _, m := range milestones {
		rule := rules[m]

		sample, ok := pace.ResolveSplit(snap.Data, liveEvents, m, pace.ClockIGT, pace.ClockRTA)
		if !ok {
			if rule.Enabled {
				missingEnabled = true
			}
			continue
		}

		d := pace.Decision{Split: sample, HasSplit: true, Rule: rule, Force: w.opts.Force}
		if !pace.ShouldNotify(d) {
			continue
		}

		w.fire(ctx, runID, m, rule, sample, log)
	}

	if log.Enabled(logx.LevelDebug) {
		st := pace.Summarize(w.streamer, rules, snap.Data, liveEvents, snap.IsLive,
			snap.UpdateTime(), w.now(), w.opts.GracePeriod)
		if st.HasSplit {
			log.Debug("pace status",
				logx.String("latest", string(st.LastMilestone)),
				logx.String("split", formatMS(st.LastSample.MS)),
				logx.Bool("live", st.Live),
				logx.Bool("recent_finish", st.RecentFinish),
			)
		}
	}
	return missingEnabled
}

// fire attempts one deduplicated notification delivery. The dedupe key set is
// consumed before delivery, so an outcome of suppressed-quiet or dry-run is
// final for this (run, milestone).
func (w *Watcher) fire(ctx context.Context, runID int64, m pace.Milestone, rule pace.Rule, sample pace.Sample, log logx.Logger) {
	keys := DedupeKeys(w.streamer, runID, m, rule)

	if w.store != nil {
		fresh, err := w.store.CheckAndRecord(ctx, keys)
		if err != nil {
			// A duplicate beats a silent miss: deliver anyway, but loudly.
			log.Error("dedupe store write failed; attempting delivery anyway",
				logx.String("milestone", string(m)), logx.Err(err))
		} else if !fresh {
			return
		}
	}

	n := notify.Notification{
		Streamer:  w.streamer,
		RunID:     runID,
		Milestone: m,
		Split:     sample,
		Title:     fmt.Sprintf("%s: %s in %s", w.streamer, milestoneLabel(m), formatMS(sample.MS)),
		Body:      fmt.Sprintf("%s %s, run %d", sample.Clock, formatMS(sample.MS), runID),
	}

	outcome, err := w.deliver.Deliver(ctx, n)
	if err != nil {
		log.Warn("notification delivery failed",
			logx.String("milestone", string(m)),
			logx.String("outcome", string(outcome)),
			logx.Err(err),
		)
	} else {
		log.Info("notification delivered",
			logx.String("milestone", string(m)),
			logx.String("outcome", string(outcome)),
			logx.Int64("split_ms", sample.MS),
			logx.String("clock", string(sample.Clock)),
			logx.String("source", string(sample.Source)),
		)
	}

	if w.store != nil {
		e := storage.NotificationEntry{
			At:        w.now(),
			Streamer:  w.streamer,
			RunID:     runID,
			Milestone: string(m),
			SplitMS:   sample.MS,
			Outcome:   string(outcome),
		}
		if err != nil {
			e.Error = err.Error()
		}
		if aerr := w.store.AppendNotification(ctx, e); aerr != nil {
			log.Debug("notification journal append failed", logx.Err(aerr))
		}
	}
}
