package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flathound/flathound/app/harvest"
	"github.com/flathound/flathound/app/match"
	"github.com/flathound/flathound/app/notify"
	"github.com/flathound/flathound/app/retention"
	"github.com/flathound/flathound/app/scheduler"
)

const (
	taskHarvestChain = "harvest_chain"
	taskCleanup      = "cleanup"
	taskHealthcheck  = "healthcheck"

	defaultJobTimeout = 10 * time.Minute
)

var (
	ErrJobRunning = errors.New("job is already running")
	ErrUnknownJob = errors.New("unknown job type")
)

type HarvestRunner interface {
	Run(ctx context.Context, opts harvest.Options) *harvest.Result
}

type MatchRunner interface {
	Run(ctx context.Context) *match.Result
}

type NotifyRunner interface {
	Run(ctx context.Context, opts notify.Options) *notify.Result
}

type CleanupRunner interface {
	Run(ctx context.Context) *retention.Result
}

// Config carries the resolved scheduling knobs.
type Config struct {
	HarvestInterval  time.Duration
	HarvestJitter    float64
	RecencyMinutes   int
	DetailDepth      harvest.Depth
	CleanupInterval  time.Duration
	CleanupEnabled   bool
	HealthInterval   time.Duration
	HealthEnabled    bool
	MaxNotifications int
	JobTimeout       time.Duration
	ShutdownGrace    time.Duration
}

// Orchestrator owns the job timers and sequences the
// harvest, match, notify chain. One instance per process.
type Orchestrator struct {
	sched     *scheduler.Scheduler
	tracker   *StatusTracker
	harvester HarvestRunner
	matcher   MatchRunner
	notifier  NotifyRunner
	cleaner   CleanupRunner
	health    HealthChecker
	config    Config
}

func NewOrchestrator(sched *scheduler.Scheduler, harvester HarvestRunner, matcher MatchRunner,
	notifier NotifyRunner, cleaner CleanupRunner, health HealthChecker, config Config) *Orchestrator {
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaultJobTimeout
	}
	return &Orchestrator{
		sched:     sched,
		tracker:   NewStatusTracker(),
		harvester: harvester,
		matcher:   matcher,
		notifier:  notifier,
		cleaner:   cleaner,
		health:    health,
		config:    config,
	}
}

// Start arms all timers and launches the dispatch loop. Calling Start
// on a running orchestrator is a logged no-op.
func (o *Orchestrator) Start() {
	if o.tracker.IsRunning() {
		slog.Warn("Orchestrator already running, ignoring start")
		return
	}
	o.tracker.MarkStarted()

	slog.Info("Starting orchestrator",
		"harvest_interval", o.config.HarvestInterval,
		"harvest_jitter", o.config.HarvestJitter,
		"detail_depth", o.config.DetailDepth,
		"cleanup_enabled", o.config.CleanupEnabled,
		"cleanup_interval", o.config.CleanupInterval,
		"health_enabled", o.config.HealthEnabled,
		"health_interval", o.config.HealthInterval)

	// First chain fires immediately; subsequent cycles self-reschedule
	// with jitter after each run.
	o.sched.Schedule(taskHarvestChain, 0, o.runScheduledChain)

	if o.config.CleanupEnabled {
		o.sched.ScheduleEvery(taskCleanup, o.config.CleanupInterval, func(ctx context.Context) {
			o.runCleanup(ctx)
		})
	}
	if o.config.HealthEnabled {
		o.sched.ScheduleEvery(taskHealthcheck, o.config.HealthInterval, func(ctx context.Context) {
			o.runHealth(ctx)
		})
	}

	o.sched.Start()
}

// Stop cancels all timers, waits out the grace period for in-flight
// jobs and transitions to stopped. Calling Stop on a stopped
// orchestrator is a logged no-op.
func (o *Orchestrator) Stop() {
	if !o.tracker.IsRunning() {
		slog.Warn("Orchestrator not running, ignoring stop")
		return
	}

	slog.Info("Stopping orchestrator")

	// Marking stopped first keeps a chain that finishes during the
	// grace period from re-arming itself behind CancelAll.
	o.tracker.MarkStopped()
	o.sched.CancelAll()
	o.sched.Stop(o.config.ShutdownGrace)
	slog.Info("Orchestrator stopped")
}

func (o *Orchestrator) Status() Status {
	return o.tracker.Snapshot()
}

func (o *Orchestrator) PendingTasks() []scheduler.PendingTask {
	return o.sched.Pending()
}

// Trigger runs one job type out of band and returns its structured
// result synchronously. Triggering the scraper runs the full chain;
// a matcher trigger still chains the notifier so fresh matches drain.
func (o *Orchestrator) Trigger(ctx context.Context, jobType string) (any, error) {
	slog.Info("Manual trigger", "job", jobType)

	switch JobType(jobType) {
	case JobScraper:
		result, ran := o.runHarvest(ctx)
		if !ran {
			return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobType)
		}
		if result == nil {
			return nil, fmt.Errorf("job %s terminated abnormally", jobType)
		}
		if result.Success && result.NewListings > 0 {
			o.runMatch(ctx)
		}
		o.runNotify(ctx)
		return result, nil

	case JobMatcher:
		result, ran := o.runMatch(ctx)
		if !ran {
			return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobType)
		}
		if result == nil {
			return nil, fmt.Errorf("job %s terminated abnormally", jobType)
		}
		o.runNotify(ctx)
		return result, nil

	case JobNotifier:
		result, ran := o.runNotify(ctx)
		if !ran {
			return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobType)
		}
		if result == nil {
			return nil, fmt.Errorf("job %s terminated abnormally", jobType)
		}
		return result, nil

	case JobCleanup:
		result, ran := o.runCleanup(ctx)
		if !ran {
			return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobType)
		}
		if result == nil {
			return nil, fmt.Errorf("job %s terminated abnormally", jobType)
		}
		return result, nil

	case JobHealthcheck:
		result, ran := o.runHealth(ctx)
		if !ran {
			return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobType)
		}
		if result == nil {
			return nil, fmt.Errorf("job %s terminated abnormally", jobType)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobType)
	}
}

// runScheduledChain is the task body for the self-rescheduling harvest
// cycle: run the chain, then arm the next cycle with fresh jitter.
func (o *Orchestrator) runScheduledChain(ctx context.Context) {
	o.runChain(ctx)
	o.scheduleNextHarvest()
}

func (o *Orchestrator) scheduleNextHarvest() {
	if !o.tracker.IsRunning() {
		return
	}
	delay := o.sched.Jitter(o.config.HarvestInterval, o.config.HarvestJitter)
	o.sched.Schedule(taskHarvestChain, delay, o.runScheduledChain)
	slog.Info("Next harvest scheduled", "delay", delay)
}

// runChain executes one harvest, match, notify sequence. An
// overlapping harvest skips the whole chain. The matcher only runs on
// a successful harvest that produced new listings; the notifier
// otherwise always runs so backlog from earlier partial failures
// drains.
func (o *Orchestrator) runChain(ctx context.Context) {
	harvestResult, ran := o.runHarvest(ctx)
	if !ran {
		return
	}

	if harvestResult != nil && harvestResult.Success && harvestResult.NewListings > 0 {
		o.runMatch(ctx)
	} else {
		slog.Info("No new listings, skipping matcher")
	}

	o.runNotify(ctx)
}

func (o *Orchestrator) runHarvest(ctx context.Context) (*harvest.Result, bool) {
	if !o.tracker.TryBegin(JobScraper) {
		slog.Warn("Job already running, skipping", "job", JobScraper)
		return nil, false
	}
	defer o.tracker.End(JobScraper)

	var result *harvest.Result
	o.runGuarded(ctx, JobScraper, func(jobCtx context.Context) {
		result = o.harvester.Run(jobCtx, harvest.Options{
			RecencyMinutes: o.config.RecencyMinutes,
			DetailDepth:    o.config.DetailDepth,
			Persist:        true,
		})
	})

	o.tracker.RecordRun(JobScraper)
	if result != nil {
		o.tracker.RecordErrors(JobScraper, result.Errors)
	}
	return result, true
}

func (o *Orchestrator) runMatch(ctx context.Context) (*match.Result, bool) {
	if !o.tracker.TryBegin(JobMatcher) {
		slog.Warn("Job already running, skipping", "job", JobMatcher)
		return nil, false
	}
	defer o.tracker.End(JobMatcher)

	var result *match.Result
	o.runGuarded(ctx, JobMatcher, func(jobCtx context.Context) {
		result = o.matcher.Run(jobCtx)
	})

	o.tracker.RecordRun(JobMatcher)
	if result != nil {
		o.tracker.RecordErrors(JobMatcher, result.Errors)
	}
	return result, true
}

func (o *Orchestrator) runNotify(ctx context.Context) (*notify.Result, bool) {
	if !o.tracker.TryBegin(JobNotifier) {
		slog.Warn("Job already running, skipping", "job", JobNotifier)
		return nil, false
	}
	defer o.tracker.End(JobNotifier)

	var result *notify.Result
	o.runGuarded(ctx, JobNotifier, func(jobCtx context.Context) {
		result = o.notifier.Run(jobCtx, notify.Options{
			MaxNotifications: o.config.MaxNotifications,
		})
	})

	o.tracker.RecordRun(JobNotifier)
	if result != nil {
		o.tracker.RecordErrors(JobNotifier, result.Errors)
	}
	return result, true
}

func (o *Orchestrator) runCleanup(ctx context.Context) (*retention.Result, bool) {
	if !o.tracker.TryBegin(JobCleanup) {
		slog.Warn("Job already running, skipping", "job", JobCleanup)
		return nil, false
	}
	defer o.tracker.End(JobCleanup)

	var result *retention.Result
	o.runGuarded(ctx, JobCleanup, func(jobCtx context.Context) {
		result = o.cleaner.Run(jobCtx)
	})

	o.tracker.RecordRun(JobCleanup)
	if result != nil {
		o.tracker.RecordErrors(JobCleanup, result.Errors)
	}
	return result, true
}

func (o *Orchestrator) runHealth(ctx context.Context) (*HealthResult, bool) {
	if !o.tracker.TryBegin(JobHealthcheck) {
		slog.Warn("Job already running, skipping", "job", JobHealthcheck)
		return nil, false
	}
	defer o.tracker.End(JobHealthcheck)

	var result *HealthResult
	o.runGuarded(ctx, JobHealthcheck, func(jobCtx context.Context) {
		result = o.health.Run(jobCtx)
	})

	o.tracker.RecordRun(JobHealthcheck)
	if result != nil {
		o.tracker.RecordErrors(JobHealthcheck, result.Errors)
	}
	return result, true
}

// runGuarded runs one job body with a per-run timeout and converts any
// escaped panic into a recorded error so a bad cycle never takes the
// process down.
func (o *Orchestrator) runGuarded(ctx context.Context, job JobType, fn func(context.Context)) {
	jobCtx, cancel := context.WithTimeout(ctx, o.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Job panicked", "job", job, "panic", r)
			o.tracker.RecordError(job, fmt.Sprintf("panic: %v", r))
		}
	}()

	fn(jobCtx)
}
