package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pacewatch/internal/notify"
	"pacewatch/internal/pace"
	"pacewatch/internal/paceman"
	"pacewatch/internal/storage"
	logx "pacewatch/pkg/logx"
)

type snapStep struct {
	snap *paceman.RunSnapshot
	err  error
}

// fakeSource scripts the upstream: one recent run and a sequence of snapshot
// responses, one per RunSnapshot call. The last step repeats.
type fakeSource struct {
	mu    sync.Mutex
	runID int64
	steps []snapStep
	calls int
	live  pace.LiveEvents
}

func (f *fakeSource) RecentRunID(ctx context.Context, streamer string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runID == 0 {
		return 0, false, nil
	}
	return f.runID, true, nil
}

func (f *fakeSource) RunSnapshot(ctx context.Context, runID int64) (*paceman.RunSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	return f.steps[i].snap, f.steps[i].err
}

func (f *fakeSource) LiveEvents(ctx context.Context, streamer string) (pace.LiveEvents, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, len(f.live) > 0, nil
}

func (f *fakeSource) snapshotCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu      sync.Mutex
	seen    map[string]bool
	journal []storage.NotificationEntry
	failure error
}

func newFakeStore() *fakeStore { return &fakeStore{seen: map[string]bool{}} }

func (f *fakeStore) CheckAndRecord(ctx context.Context, keys []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return false, f.failure
	}
	for _, k := range keys {
		if f.seen[k] {
			return false, nil
		}
	}
	for _, k := range keys {
		f.seen[k] = true
	}
	return true, nil
}

func (f *fakeStore) AppendNotification(ctx context.Context, e storage.NotificationEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journal = append(f.journal, e)
	return nil
}

func (f *fakeStore) Compact(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                      { return nil }

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[key]
}

type fakeDeliverer struct {
	mu      sync.Mutex
	sent    []notify.Notification
	outcome notify.Outcome
}

func (f *fakeDeliverer) Deliver(ctx context.Context, n notify.Notification) (notify.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	if f.outcome == "" {
		return notify.OutcomeSent, nil
	}
	return f.outcome, nil
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func fixedRules(rs pace.RuleSet) RulesFunc {
	return func() (pace.RuleSet, bool) { return rs, true }
}

func liveSnap(data pace.Snapshot) *paceman.RunSnapshot {
	return &paceman.RunSnapshot{IsLive: true, Data: data}
}

func endedSnap(data pace.Snapshot) *paceman.RunSnapshot {
	return &paceman.RunSnapshot{IsLive: false, Data: data}
}

func fastOptions() Options {
	return Options{
		DiscoveryInterval: time.Millisecond,
		RunInterval:       time.Millisecond,
		GracePeriod:       25 * time.Millisecond,
	}
}

func TestWatcherOnceDeliversAndRecords(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		runID: 42,
		steps: []snapStep{{snap: liveSnap(pace.Snapshot{"nether": float64(300000)})}},
	}
	store := newFakeStore()
	del := &fakeDeliverer{}
	rules := pace.RuleSet{
		pace.MilestoneNether: {ThresholdSec: 360, HasThreshold: true, Enabled: true},
	}

	opts := fastOptions()
	opts.Once = true
	w := NewWatcher("feinberg", src, store, del, fixedRules(rules), opts, logx.Nop())

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := del.count(); got != 1 {
		t.Fatalf("deliveries = %d, want 1", got)
	}
	n := del.sent[0]
	if n.Streamer != "feinberg" || n.RunID != 42 || n.Milestone != pace.MilestoneNether {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.Split.MS != 300000 || n.Split.Clock != pace.ClockIGT || n.Split.Source != pace.SourceWorld {
		t.Fatalf("unexpected split: %+v", n.Split)
	}

	if !store.has("notify:feinberg:42:nether") {
		t.Error("canonical dedupe key not recorded")
	}
	if !store.has("feinberg|42|nether|360") {
		t.Error("legacy dedupe key not recorded")
	}
	if len(store.journal) != 1 || store.journal[0].Outcome != string(notify.OutcomeSent) {
		t.Errorf("journal = %+v, want one sent entry", store.journal)
	}
}

func TestWatcherDedupeAcrossTicks(t *testing.T) {
	t.Parallel()

	data := pace.Snapshot{"nether": float64(300000)}
	src := &fakeSource{
		runID: 7,
		steps: []snapStep{
			{snap: liveSnap(data)},  // discovery, reused on tick 0
			{snap: liveSnap(data)},  // tick 1: same split, still notifiable
			{snap: endedSnap(data)}, // tick 2: run over, nothing missing
		},
	}
	store := newFakeStore()
	del := &fakeDeliverer{}
	rules := pace.RuleSet{
		pace.MilestoneNether: {ThresholdSec: 360, HasThreshold: true, Enabled: true},
	}

	w := NewWatcher("couriway", src, store, del, fixedRules(rules), fastOptions(), logx.Nop())
	w.discoverOnce(context.Background())

	if got := del.count(); got != 1 {
		t.Fatalf("deliveries = %d, want exactly 1 despite repeated ticks", got)
	}
}

func TestWatcherLegacyKeySuppresses(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		runID: 7,
		steps: []snapStep{{snap: liveSnap(pace.Snapshot{"nether": float64(300000)})}},
	}
	store := newFakeStore()
	store.seen["couriway|7|nether|360"] = true // record from before the key change
	del := &fakeDeliverer{}
	rules := pace.RuleSet{
		pace.MilestoneNether: {ThresholdSec: 360, HasThreshold: true, Enabled: true},
	}

	opts := fastOptions()
	opts.Once = true
	w := NewWatcher("couriway", src, store, del, fixedRules(rules), opts, logx.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := del.count(); got != 0 {
		t.Fatalf("deliveries = %d, want 0 (legacy key already seen)", got)
	}
}

func TestWatcherRetractionEndsRun(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		runID: 9,
		steps: []snapStep{
			{snap: liveSnap(pace.Snapshot{"nether": float64(300000)})},
			{err: paceman.ErrNotFound},
		},
	}
	del := &fakeDeliverer{}
	rules := pace.RuleSet{
		pace.MilestoneNether: {ThresholdSec: 360, HasThreshold: true, Enabled: true},
	}

	w := NewWatcher("k4yfour", src, newFakeStore(), del, fixedRules(rules), fastOptions(), logx.Nop())

	done := make(chan struct{})
	go func() {
		w.discoverOnce(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run watch did not end after upstream retraction")
	}

	if got := del.count(); got != 1 {
		t.Errorf("deliveries = %d, want 1 (from the tick before retraction)", got)
	}
}

func TestWatcherSkipsRunNotLiveAtDiscovery(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		runID: 11,
		steps: []snapStep{{snap: endedSnap(pace.Snapshot{"nether": float64(300000)})}},
	}
	del := &fakeDeliverer{}
	rules := pace.RuleSet{
		pace.MilestoneNether: {ThresholdSec: 360, HasThreshold: true, Enabled: true},
	}

	w := NewWatcher("feinberg", src, newFakeStore(), del, fixedRules(rules), fastOptions(), logx.Nop())
	w.discoverOnce(context.Background())

	if got := del.count(); got != 0 {
		t.Errorf("deliveries = %d, want 0 for a run that was never live", got)
	}
	if w.lastRunID != 0 {
		t.Errorf("lastRunID = %d, want 0 so the run can be re-checked later", w.lastRunID)
	}
}

func TestWatcherGracePeriod(t *testing.T) {
	t.Parallel()

	t.Run("ends early with no missing enabled splits", func(t *testing.T) {
		t.Parallel()
		data := pace.Snapshot{"nether": float64(300000)}
		src := &fakeSource{
			runID: 3,
			steps: []snapStep{
				{snap: liveSnap(data)},
				{snap: endedSnap(data)},
			},
		}
		rules := pace.RuleSet{
			pace.MilestoneNether: {ThresholdSec: 360, HasThreshold: true, Enabled: true},
		}
		opts := fastOptions()
		opts.GracePeriod = time.Hour // must not matter

		w := NewWatcher("feinberg", src, newFakeStore(), &fakeDeliverer{}, fixedRules(rules), opts, logx.Nop())

		done := make(chan struct{})
		go func() {
			w.discoverOnce(context.Background())
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("watch did not end despite having no outstanding splits")
		}
	})

	t.Run("keeps polling for missing splits until grace elapses", func(t *testing.T) {
		t.Parallel()
		data := pace.Snapshot{"nether": float64(300000)}
		src := &fakeSource{
			runID: 4,
			steps: []snapStep{
				{snap: liveSnap(data)},
				{snap: endedSnap(data)}, // finish split never arrives
			},
		}
		rules := pace.RuleSet{
			pace.MilestoneNether: {ThresholdSec: 360, HasThreshold: true, Enabled: true},
			pace.MilestoneFinish: {ThresholdSec: 900, HasThreshold: true, Enabled: true},
		}

		w := NewWatcher("feinberg", src, newFakeStore(), &fakeDeliverer{}, fixedRules(rules), fastOptions(), logx.Nop())

		done := make(chan struct{})
		go func() {
			w.discoverOnce(context.Background())
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("watch did not end after grace period")
		}

		// Discovery fetch plus several in-grace polls.
		if calls := src.snapshotCalls(); calls < 3 {
			t.Errorf("snapshot calls = %d, want repeated polling during grace", calls)
		}
	})
}

func TestWatcherStoreFailureDeliversAnyway(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		runID: 5,
		steps: []snapStep{{snap: liveSnap(pace.Snapshot{"nether": float64(300000)})}},
	}
	store := newFakeStore()
	store.failure = errors.New("disk full")
	del := &fakeDeliverer{}
	rules := pace.RuleSet{
		pace.MilestoneNether: {ThresholdSec: 360, HasThreshold: true, Enabled: true},
	}

	opts := fastOptions()
	opts.Once = true
	w := NewWatcher("feinberg", src, store, del, fixedRules(rules), opts, logx.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := del.count(); got != 1 {
		t.Errorf("deliveries = %d, want 1 even when the dedupe store fails", got)
	}
}

func TestWatcherLiveFallbackFeed(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		runID: 6,
		steps: []snapStep{{snap: liveSnap(pace.Snapshot{})}},
		live: pace.LiveEvents{
			"rsg.enter_nether": {IGT: 280000, RTA: 291000},
		},
	}
	del := &fakeDeliverer{}
	rules := pace.RuleSet{
		pace.MilestoneNether: {ThresholdSec: 360, HasThreshold: true, Enabled: true},
	}

	opts := fastOptions()
	opts.Once = true
	w := NewWatcher("feinberg", src, newFakeStore(), del, fixedRules(rules), opts, logx.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := del.count(); got != 1 {
		t.Fatalf("deliveries = %d, want 1", got)
	}
	if s := del.sent[0].Split; s.Source != pace.SourceLive || s.Clock != pace.ClockIGT || s.MS != 280000 {
		t.Errorf("split = %+v, want live IGT 280000", s)
	}
}

func TestWatcherForceBypassesThreshold(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		runID: 8,
		steps: []snapStep{{snap: liveSnap(pace.Snapshot{
			"nether":  float64(900000), // far over pace
			"bastion": float64(999000),
		})}},
	}
	del := &fakeDeliverer{}
	rules := pace.RuleSet{
		pace.MilestoneNether:  {ThresholdSec: 360, HasThreshold: true, Enabled: true},
		pace.MilestoneBastion: {ThresholdSec: 360, HasThreshold: true, Enabled: false},
	}

	opts := fastOptions()
	opts.Once = true
	opts.Force = true
	w := NewWatcher("feinberg", src, newFakeStore(), del, fixedRules(rules), opts, logx.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Force overrides the threshold but never a disabled milestone.
	if got := del.count(); got != 1 {
		t.Fatalf("deliveries = %d, want 1", got)
	}
	if del.sent[0].Milestone != pace.MilestoneNether {
		t.Errorf("milestone = %s, want nether only", del.sent[0].Milestone)
	}
}

func TestDedupeKeys(t *testing.T) {
	t.Parallel()

	got := DedupeKeys("feinberg", 42, pace.MilestoneFirstPortal,
		pace.Rule{ThresholdSec: 600, HasThreshold: true, Enabled: true})
	want := []string{"notify:feinberg:42:first_portal", "feinberg|42|first_portal|600"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("DedupeKeys = %v, want %v", got, want)
	}

	got = DedupeKeys("feinberg", 42, pace.MilestoneFinish, pace.Rule{Enabled: true})
	if got[1] != "feinberg|42|finish|none" {
		t.Errorf("legacy key without threshold = %q, want trailing none", got[1])
	}
}

func TestFormatMS(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ms   int64
		want string
	}{
		{0, "0:00"},
		{61000, "1:01"},
		{300000, "5:00"},
		{3723000, "1:02:03"},
	}
	for _, tc := range cases {
		if got := formatMS(tc.ms); got != tc.want {
			t.Errorf("formatMS(%d) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}
