package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pacewatch/internal/pace"
	logx "pacewatch/pkg/logx"
)

// Sink delivers one rendered notification to one channel (desktop command,
// Telegram, ...). Sinks must be safe for concurrent use.
type Sink interface {
	Name() string
	Send(ctx context.Context, title, body string) error
}

type Config struct {
	RatePerSec int
	QuietSpans []string

	// Operational toggles, independently combinable.
	DryRun      bool
	IgnoreQuiet bool
}

// Service gates and fans out notifications.
//
// Quiet-hours gating happens here, at delivery time: callers are told the
// outcome but are expected to consume their dedupe key regardless, so a
// suppressed notification is never retried once quiet hours end.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sinks []Sink
	log   logx.Logger
	now   func() time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sinks []Sink, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sinks: sinks, log: log, now: time.Now}
	s.applyLocked(cfg)
	return s
}

// Apply swaps gating config at runtime (hot reload).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Deliver attempts delivery of one notification and reports the outcome.
// A non-nil error accompanies OutcomeSent when one or more sinks failed.
func (s *Service) Deliver(ctx context.Context, n Notification) (Outcome, error) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	now := s.now()

	if pace.InQuietHours(cfg.QuietSpans, now, cfg.IgnoreQuiet) {
		s.log.Info("notification suppressed by quiet hours",
			logx.String("streamer", n.Streamer),
			logx.Int64("run", n.RunID),
			logx.String("milestone", string(n.Milestone)),
		)
		s.record(n, OutcomeSuppressedQuiet, nil)
		return OutcomeSuppressedQuiet, nil
	}

	if cfg.DryRun {
		s.log.Info("notification dry-run",
			logx.String("streamer", n.Streamer),
			logx.Int64("run", n.RunID),
			logx.String("milestone", string(n.Milestone)),
			logx.String("title", n.Title),
		)
		s.record(n, OutcomeDryRun, nil)
		return OutcomeDryRun, nil
	}

	if err := lim.Wait(ctx); err != nil {
		// Nothing was invoked; don't let the journal claim otherwise.
		s.record(n, OutcomeFailed, err)
		return OutcomeFailed, err
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, n.Title, n.Body); err != nil {
			s.log.Warn("notification sink failed",
				logx.String("sink", sink.Name()),
				logx.String("streamer", n.Streamer),
				logx.Err(err),
			)
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	s.record(n, OutcomeSent, err)
	if err == nil {
		s.log.Debug("notification sent",
			logx.String("streamer", n.Streamer),
			logx.Int64("run", n.RunID),
			logx.String("milestone", string(n.Milestone)),
		)
	}
	return OutcomeSent, err
}

// History returns a copy of the recent delivery records, newest last.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) record(n Notification, outcome Outcome, err error) {
	it := HistoryItem{
		At:        s.now(),
		Streamer:  n.Streamer,
		RunID:     n.RunID,
		Milestone: n.Milestone,
		Outcome:   outcome,
	}
	if err != nil {
		it.Err = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}
