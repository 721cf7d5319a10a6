package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flathound/flathound/app/harvest"
	"github.com/flathound/flathound/app/match"
	"github.com/flathound/flathound/app/notify"
	"github.com/flathound/flathound/app/retention"
	"github.com/flathound/flathound/app/scheduler"
)

type fakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

type fakeHarvestRunner struct {
	mu       sync.Mutex
	result   *harvest.Result
	runs     int
	lastOpts harvest.Options
	panicMsg string
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeHarvestRunner) Run(_ context.Context, opts harvest.Options) *harvest.Result {
	f.mu.Lock()
	f.runs++
	f.lastOpts = opts
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result
}

func (f *fakeHarvestRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fakeMatchRunner struct {
	mu     sync.Mutex
	result *match.Result
	runs   int
}

func (f *fakeMatchRunner) Run(_ context.Context) *match.Result {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return f.result
}

func (f *fakeMatchRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fakeNotifyRunner struct {
	mu       sync.Mutex
	result   *notify.Result
	runs     int
	lastOpts notify.Options
}

func (f *fakeNotifyRunner) Run(_ context.Context, opts notify.Options) *notify.Result {
	f.mu.Lock()
	f.runs++
	f.lastOpts = opts
	f.mu.Unlock()
	return f.result
}

func (f *fakeNotifyRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fakeCleanupRunner struct {
	mu     sync.Mutex
	result *retention.Result
	runs   int
}

func (f *fakeCleanupRunner) Run(_ context.Context) *retention.Result {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return f.result
}

type fakeHealthChecker struct {
	mu     sync.Mutex
	result *HealthResult
	runs   int
}

func (f *fakeHealthChecker) Run(_ context.Context) *HealthResult {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return f.result
}

type orchestratorFixture struct {
	orch      *Orchestrator
	sched     *scheduler.Scheduler
	clock     *fakeClock
	harvester *fakeHarvestRunner
	matcher   *fakeMatchRunner
	notifier  *fakeNotifyRunner
	cleaner   *fakeCleanupRunner
	health    *fakeHealthChecker
}

func testConfig() Config {
	return Config{
		HarvestInterval:  time.Hour,
		HarvestJitter:    0.25,
		RecencyMinutes:   45,
		DetailDepth:      harvest.DepthEnhanced,
		CleanupInterval:  24 * time.Hour,
		CleanupEnabled:   true,
		HealthInterval:   5 * time.Minute,
		HealthEnabled:    true,
		MaxNotifications: 50,
		JobTimeout:       time.Minute,
		ShutdownGrace:    100 * time.Millisecond,
	}
}

func newOrchestratorFixture(config Config, random func() float64) *orchestratorFixture {
	clock := &fakeClock{current: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	fixture := &orchestratorFixture{
		clock:     clock,
		sched:     scheduler.New(clock, random),
		harvester: &fakeHarvestRunner{result: &harvest.Result{Success: true, NewListings: 2}},
		matcher:   &fakeMatchRunner{result: &match.Result{Success: true, MatchesFound: 2}},
		notifier:  &fakeNotifyRunner{result: &notify.Result{Success: true}},
		cleaner:   &fakeCleanupRunner{result: &retention.Result{Success: true}},
		health:    &fakeHealthChecker{result: &HealthResult{Success: true, DatabaseOK: true}},
	}
	fixture.orch = NewOrchestrator(fixture.sched, fixture.harvester, fixture.matcher,
		fixture.notifier, fixture.cleaner, fixture.health, config)
	return fixture
}

func pendingNames(sched *scheduler.Scheduler) map[string]bool {
	names := make(map[string]bool)
	for _, task := range sched.Pending() {
		names[task.Name] = true
	}
	return names
}

func TestChainRunsMatcherOnNewListings(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	fixture.orch.runChain(context.Background())

	if got := fixture.harvester.count(); got != 1 {
		t.Errorf("expected 1 harvest run, got %d", got)
	}
	if got := fixture.matcher.count(); got != 1 {
		t.Errorf("expected 1 match run, got %d", got)
	}
	if got := fixture.notifier.count(); got != 1 {
		t.Errorf("expected 1 notify run, got %d", got)
	}

	if fixture.harvester.lastOpts.RecencyMinutes != 45 {
		t.Errorf("expected recency window 45, got %d", fixture.harvester.lastOpts.RecencyMinutes)
	}
	if !fixture.harvester.lastOpts.Persist {
		t.Error("expected scheduled harvests to persist")
	}
	if fixture.notifier.lastOpts.MaxNotifications != 50 {
		t.Errorf("expected notify batch limit 50, got %d", fixture.notifier.lastOpts.MaxNotifications)
	}

	status := fixture.orch.Status()
	if status.TotalJobsRun != 3 {
		t.Errorf("expected 3 jobs recorded, got %d", status.TotalJobsRun)
	}
}

func TestChainSkipsMatcherWithoutNewListings(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })
	fixture.harvester.result = &harvest.Result{Success: true, NewListings: 0, Duplicates: 7}

	fixture.orch.runChain(context.Background())

	if got := fixture.matcher.count(); got != 0 {
		t.Errorf("expected matcher skipped, got %d runs", got)
	}
	// The notifier still drains whatever earlier cycles left pending.
	if got := fixture.notifier.count(); got != 1 {
		t.Errorf("expected 1 notify run, got %d", got)
	}
}

func TestChainSkippedWhenHarvestInFlight(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })
	fixture.harvester.started = make(chan struct{}, 1)
	fixture.harvester.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		fixture.orch.runChain(context.Background())
		close(done)
	}()
	<-fixture.harvester.started

	// Second chain overlaps the first harvest and must bail out whole.
	fixture.orch.runChain(context.Background())
	if got := fixture.notifier.count(); got != 0 {
		t.Errorf("expected overlapping chain to skip notifier, got %d runs", got)
	}

	close(fixture.harvester.release)
	<-done

	if got := fixture.harvester.count(); got != 1 {
		t.Errorf("expected 1 harvest run, got %d", got)
	}
	status := fixture.orch.Status()
	if status.SkippedRuns != 1 {
		t.Errorf("expected 1 skipped run, got %d", status.SkippedRuns)
	}
}

func TestChainSurvivesPanic(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })
	fixture.harvester.panicMsg = "feed parser blew up"

	fixture.orch.runChain(context.Background())

	if got := fixture.matcher.count(); got != 0 {
		t.Errorf("expected matcher skipped after panic, got %d runs", got)
	}
	if got := fixture.notifier.count(); got != 1 {
		t.Errorf("expected notifier to run after panic, got %d runs", got)
	}

	status := fixture.orch.Status()
	if len(status.RecentErrors) != 1 {
		t.Fatalf("expected 1 recorded error, got %d", len(status.RecentErrors))
	}
	if !strings.Contains(status.RecentErrors[0].Message, "panic") {
		t.Errorf("expected panic recorded, got %q", status.RecentErrors[0].Message)
	}
	if status.RecentErrors[0].Job != JobScraper {
		t.Errorf("expected error attributed to %q, got %q", JobScraper, status.RecentErrors[0].Job)
	}

	// The slot must be released so the next cycle can run.
	fixture.harvester.panicMsg = ""
	fixture.orch.runChain(context.Background())
	if got := fixture.harvester.count(); got != 2 {
		t.Errorf("expected harvest slot released after panic, got %d runs", got)
	}
}

func TestChainRecordsResultErrors(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })
	fixture.harvester.result = &harvest.Result{
		Success:     false,
		NewListings: 1,
		Errors:      []string{"region east: connection refused"},
	}

	fixture.orch.runChain(context.Background())

	status := fixture.orch.Status()
	if len(status.RecentErrors) != 1 {
		t.Fatalf("expected 1 recorded error, got %d", len(status.RecentErrors))
	}
	if status.RecentErrors[0].Message != "region east: connection refused" {
		t.Errorf("unexpected error message %q", status.RecentErrors[0].Message)
	}

	// A failed harvest never feeds the matcher, even with rows persisted.
	if got := fixture.matcher.count(); got != 0 {
		t.Errorf("expected matcher skipped after failed harvest, got %d runs", got)
	}
	if got := fixture.notifier.count(); got != 1 {
		t.Errorf("expected notifier still run, got %d runs", got)
	}
}

func TestScheduledChainReschedulesWithJitter(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0 })
	fixture.orch.tracker.MarkStarted()

	fixture.orch.runScheduledChain(context.Background())

	pending := fixture.sched.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(pending))
	}
	if pending[0].Name != taskHarvestChain {
		t.Fatalf("expected pending %q, got %q", taskHarvestChain, pending[0].Name)
	}

	// random() == 0 with factor 0.25 lands at 0.75 of the base interval.
	want := fixture.clock.Now().Add(45 * time.Minute)
	if !pending[0].NextRun.Equal(want) {
		t.Errorf("expected next run %v, got %v", want, pending[0].NextRun)
	}
}

func TestScheduledChainStopsReschedulingWhenStopped(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	// Tracker never started, as after Stop. The chain runs but must not re-arm.
	fixture.orch.runScheduledChain(context.Background())

	if pending := fixture.sched.Pending(); len(pending) != 0 {
		t.Errorf("expected no pending tasks after stop, got %d", len(pending))
	}
}

func TestStartArmsTimers(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	fixture.orch.Start()
	defer fixture.orch.Stop()

	if !fixture.orch.Status().IsRunning {
		t.Error("expected orchestrator running after start")
	}

	names := pendingNames(fixture.sched)
	for _, name := range []string{taskHarvestChain, taskCleanup, taskHealthcheck} {
		if !names[name] {
			t.Errorf("expected task %q armed after start", name)
		}
	}
}

func TestStartHonorsDisabledTimers(t *testing.T) {
	config := testConfig()
	config.CleanupEnabled = false
	config.HealthEnabled = false
	fixture := newOrchestratorFixture(config, func() float64 { return 0.5 })

	fixture.orch.Start()
	defer fixture.orch.Stop()

	names := pendingNames(fixture.sched)
	if names[taskCleanup] {
		t.Error("expected cleanup timer absent when disabled")
	}
	if names[taskHealthcheck] {
		t.Error("expected healthcheck timer absent when disabled")
	}
	if !names[taskHarvestChain] {
		t.Error("expected harvest chain armed regardless of optional timers")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	fixture.orch.Start()
	defer fixture.orch.Stop()
	first := fixture.orch.Status()

	fixture.orch.Start()
	second := fixture.orch.Status()

	if first.StartTime == nil || second.StartTime == nil {
		t.Fatal("expected start time set")
	}
	if !first.StartTime.Equal(*second.StartTime) {
		t.Error("expected second start to be a no-op")
	}
}

func TestStopClearsTimers(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	fixture.orch.Start()
	fixture.orch.Stop()

	if fixture.orch.Status().IsRunning {
		t.Error("expected orchestrator stopped")
	}
	if pending := fixture.sched.Pending(); len(pending) != 0 {
		t.Errorf("expected no pending tasks after stop, got %d", len(pending))
	}

	// Stopping again must not panic or block.
	fixture.orch.Stop()
}

func TestStopStartCycle(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	fixture.orch.Start()
	fixture.orch.Stop()
	fixture.orch.Start()
	defer fixture.orch.Stop()

	if !fixture.orch.Status().IsRunning {
		t.Error("expected orchestrator running after restart")
	}
	if !pendingNames(fixture.sched)[taskHarvestChain] {
		t.Error("expected harvest chain re-armed after restart")
	}
}

func TestTriggerScraperRunsFullChain(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	result, err := fixture.orch.Trigger(context.Background(), "scraper")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	harvestResult, ok := result.(*harvest.Result)
	if !ok {
		t.Fatalf("expected *harvest.Result, got %T", result)
	}
	if harvestResult.NewListings != 2 {
		t.Errorf("expected harvest result passed through, got %+v", harvestResult)
	}
	if got := fixture.matcher.count(); got != 1 {
		t.Errorf("expected trigger to chain matcher, got %d runs", got)
	}
	if got := fixture.notifier.count(); got != 1 {
		t.Errorf("expected trigger to chain notifier, got %d runs", got)
	}
}

func TestTriggerMatcherChainsNotifier(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	result, err := fixture.orch.Trigger(context.Background(), "matcher")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.(*match.Result); !ok {
		t.Fatalf("expected *match.Result, got %T", result)
	}
	if got := fixture.harvester.count(); got != 0 {
		t.Errorf("expected no harvest on matcher trigger, got %d runs", got)
	}
	if got := fixture.notifier.count(); got != 1 {
		t.Errorf("expected notifier chained, got %d runs", got)
	}
}

func TestTriggerSingleJobs(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	if _, err := fixture.orch.Trigger(context.Background(), "notifier"); err != nil {
		t.Fatalf("unexpected notifier error: %v", err)
	}
	if _, err := fixture.orch.Trigger(context.Background(), "cleanup"); err != nil {
		t.Fatalf("unexpected cleanup error: %v", err)
	}
	if _, err := fixture.orch.Trigger(context.Background(), "healthcheck"); err != nil {
		t.Fatalf("unexpected healthcheck error: %v", err)
	}

	status := fixture.orch.Status()
	if status.TotalJobsRun != 3 {
		t.Errorf("expected 3 jobs recorded, got %d", status.TotalJobsRun)
	}
	if got := fixture.matcher.count(); got != 0 {
		t.Errorf("expected matcher untouched, got %d runs", got)
	}
}

func TestTriggerUnknownJob(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })

	_, err := fixture.orch.Trigger(context.Background(), "defragment")
	if !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestTriggerRejectsOverlap(t *testing.T) {
	fixture := newOrchestratorFixture(testConfig(), func() float64 { return 0.5 })
	fixture.harvester.started = make(chan struct{}, 1)
	fixture.harvester.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		fixture.orch.runChain(context.Background())
		close(done)
	}()
	<-fixture.harvester.started

	_, err := fixture.orch.Trigger(context.Background(), "scraper")
	if !errors.Is(err, ErrJobRunning) {
		t.Fatalf("expected ErrJobRunning, got %v", err)
	}

	close(fixture.harvester.release)
	<-done
}
