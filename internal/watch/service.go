package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"pacewatch/internal/pace"
	"pacewatch/internal/runtime/supervisor"
	"pacewatch/internal/schedule"
	"pacewatch/internal/storage"
	logx "pacewatch/pkg/logx"
)

// ConfigView is the slice of live configuration the watch service consumes.
// It is re-read on every resync and on every watcher tick, so config edits
// take effect within one polling cadence.
type ConfigView struct {
	Streamers []string
	Defaults  map[pace.Milestone]pace.RawRule
	Profiles  map[string]map[pace.Milestone]pace.RawRule
}

// ConfigFunc returns the current configuration view.
type ConfigFunc func() ConfigView

// Service reconciles one Watcher per configured streamer and runs the
// periodic store-maintenance job.
type Service struct {
	src     Source
	store   storage.Store
	deliver Deliverer
	cfg     ConfigFunc
	opts    Options
	resync  time.Duration
	maint   *schedule.ParsedSpec
	log     logx.Logger

	mu      sync.Mutex
	running map[string]bool
}

func NewService(src Source, store storage.Store, deliver Deliverer, cfg ConfigFunc, opts Options, resync time.Duration, maint *schedule.ParsedSpec, log logx.Logger) *Service {
	if resync <= 0 {
		resync = 5 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		src:     src,
		store:   store,
		deliver: deliver,
		cfg:     cfg,
		opts:    opts.withDefaults(),
		resync:  resync,
		maint:   maint,
		log:     log,
		running: map[string]bool{},
	}
}

// Run blocks until ctx is canceled (or, in Once mode, until every watcher has
// finished its single iteration).
func (s *Service) Run(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(s.log))

	s.logWarnings()
	s.reconcile(sup)

	// No maintenance in Once mode: the loop only exits on cancellation and
	// would keep Wait blocked long after every watcher finished.
	if s.maint != nil && s.store != nil && !s.opts.Once {
		sup.Go0("store.maintenance", func(ctx context.Context) { s.maintenanceLoop(ctx) })
	}

	if s.opts.Once {
		// Watchers exit on their own after one iteration.
		waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return sup.Wait(waitCtx)
	}

	ticker := time.NewTicker(s.resync)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = sup.Stop(stopCtx)
			return ctx.Err()
		case <-ticker.C:
			s.reconcile(sup)
		}
	}
}

// reconcile starts a watcher for every configured streamer that doesn't have
// one. Removed streamers are not stopped here: their RulesFunc reports them
// gone and the watcher exits at the top of its next tick.
func (s *Service) reconcile(sup *supervisor.Supervisor) {
	cv := s.cfg()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range cv.Streamers {
		if s.running[name] {
			continue
		}
		s.running[name] = true
		name := name
		w := NewWatcher(name, s.src, s.store, s.deliver, s.rulesFor(name), s.opts, s.log)
		sup.GoRestart("watch."+name, func(ctx context.Context) error {
			err := w.Run(ctx)
			// Only mark stopped when the restart loop is done with this
			// watcher (clean exit or shutdown). On error or panic the loop
			// restarts the same watcher after backoff; clearing the slot
			// there would let reconcile start a concurrent duplicate.
			if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.markStopped(name)
			}
			return err
		})
		s.log.Info("watcher started", logx.String("streamer", name))
	}
}

func (s *Service) markStopped(name string) {
	s.mu.Lock()
	delete(s.running, name)
	s.mu.Unlock()
}

// rulesFor builds one streamer's merged rule set from the current config.
// Rebuilt on every call so live config edits apply on the next tick.
func (s *Service) rulesFor(name string) RulesFunc {
	return func() (pace.RuleSet, bool) {
		cv := s.cfg()
		found := false
		for _, n := range cv.Streamers {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
		sets, _ := pace.BuildRuleSets([]string{name}, cv.Defaults, profileFor(cv.Profiles, name))
		return sets[name], true
	}
}

// profileFor narrows the profile map to one streamer so single-streamer rule
// builds don't warn about every other profile entry.
func profileFor(profiles map[string]map[pace.Milestone]pace.RawRule, name string) map[string]map[pace.Milestone]pace.RawRule {
	p, ok := profiles[name]
	if !ok {
		return nil
	}
	return map[string]map[pace.Milestone]pace.RawRule{name: p}
}

// logWarnings surfaces advisory configuration inconsistencies once at
// startup (and after reloads via App). They never block evaluation.
func (s *Service) logWarnings() {
	cv := s.cfg()
	_, warns := pace.BuildRuleSets(cv.Streamers, cv.Defaults, cv.Profiles)
	for _, w := range warns {
		s.log.Warn("configuration inconsistency", logx.String("detail", w.String()))
	}
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	for {
		next := s.maint.Next(time.Now())
		if next.IsZero() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := s.store.Compact(cctx)
		cancel()
		if err != nil {
			s.log.Warn("store maintenance failed", logx.Err(err))
		} else {
			s.log.Debug("store maintenance complete")
		}
	}
}
