package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"pacewatch/internal/pace"
	logx "pacewatch/pkg/logx"
)

type fakeSink struct {
	sends atomic.Int64
	fail  bool
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Send(ctx context.Context, title, body string) error {
	f.sends.Add(1)
	if f.fail {
		return errors.New("sink down")
	}
	return nil
}

func fixedClock(hh, mm int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 14, hh, mm, 0, 0, time.UTC)
	}
}

func testNotification() Notification {
	return Notification{
		Streamer:  "alpha",
		RunID:     91273,
		Milestone: pace.MilestoneNether,
		Split:     pace.Sample{MS: 179852, Clock: pace.ClockIGT, Source: pace.SourceWorld},
		Title:     "alpha nether pace",
		Body:      "2:59 IGT",
	}
}

func TestDeliverSent(t *testing.T) {
	sink := &fakeSink{}
	s := New(Config{RatePerSec: 100}, []Sink{sink}, logx.Nop())

	out, err := s.Deliver(context.Background(), testNotification())
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if out != OutcomeSent {
		t.Fatalf("outcome = %s, want %s", out, OutcomeSent)
	}
	if sink.sends.Load() != 1 {
		t.Fatalf("sink called %d times, want 1", sink.sends.Load())
	}
}

func TestDeliverSuppressedByQuietHours(t *testing.T) {
	sink := &fakeSink{}
	s := New(Config{RatePerSec: 100, QuietSpans: []string{"00:30-07:15"}}, []Sink{sink}, logx.Nop())
	s.now = fixedClock(1, 0) // inside the window

	out, err := s.Deliver(context.Background(), testNotification())
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if out != OutcomeSuppressedQuiet {
		t.Fatalf("outcome = %s, want %s", out, OutcomeSuppressedQuiet)
	}
	if sink.sends.Load() != 0 {
		t.Fatal("sink must not be called during quiet hours")
	}
}

func TestDeliverIgnoreQuietOverride(t *testing.T) {
	sink := &fakeSink{}
	s := New(Config{RatePerSec: 100, QuietSpans: []string{"00:30-07:15"}, IgnoreQuiet: true}, []Sink{sink}, logx.Nop())
	s.now = fixedClock(1, 0)

	out, _ := s.Deliver(context.Background(), testNotification())
	if out != OutcomeSent {
		t.Fatalf("outcome = %s, want %s", out, OutcomeSent)
	}
}

func TestDeliverDryRun(t *testing.T) {
	sink := &fakeSink{}
	s := New(Config{RatePerSec: 100, DryRun: true}, []Sink{sink}, logx.Nop())

	out, err := s.Deliver(context.Background(), testNotification())
	if err != nil || out != OutcomeDryRun {
		t.Fatalf("outcome = %s err = %v, want %s nil", out, err, OutcomeDryRun)
	}
	if sink.sends.Load() != 0 {
		t.Fatal("sink must not be called in dry-run mode")
	}
}

func TestDeliverSinkFailureIsReportedNotFatal(t *testing.T) {
	bad := &fakeSink{fail: true}
	good := &fakeSink{}
	s := New(Config{RatePerSec: 100}, []Sink{bad, good}, logx.Nop())

	out, err := s.Deliver(context.Background(), testNotification())
	if out != OutcomeSent {
		t.Fatalf("outcome = %s, want %s", out, OutcomeSent)
	}
	if err == nil {
		t.Fatal("expected sink error to surface")
	}
	// A failing sink never blocks the others.
	if good.sends.Load() != 1 {
		t.Fatal("healthy sink must still be called")
	}
}

func TestHistoryBounded(t *testing.T) {
	s := New(Config{RatePerSec: 1000, DryRun: true}, nil, logx.Nop())
	for i := 0; i < 350; i++ {
		_, _ = s.Deliver(context.Background(), testNotification())
	}
	if n := len(s.History()); n != 300 {
		t.Fatalf("history length = %d, want 300", n)
	}
}

func TestDeliverLimiterErrorNotRecordedAsSent(t *testing.T) {
	sink := &fakeSink{}
	s := New(Config{RatePerSec: 100}, []Sink{sink}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := s.Deliver(ctx, testNotification())
	if err == nil {
		t.Fatal("Deliver with canceled context must return an error")
	}
	if out == OutcomeSent {
		t.Fatalf("outcome = %s for a delivery that never reached a sink", out)
	}
	if out != OutcomeFailed {
		t.Fatalf("outcome = %s, want %s", out, OutcomeFailed)
	}
	if sink.sends.Load() != 0 {
		t.Fatal("sink must not be called when the limiter wait fails")
	}

	hist := s.History()
	if len(hist) != 1 || hist[0].Outcome != OutcomeFailed {
		t.Fatalf("history = %+v, want one failed record", hist)
	}
}
