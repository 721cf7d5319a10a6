package jobs

import (
	"sync"
	"time"
)

type JobType string

const (
	JobScraper     JobType = "scraper"
	JobMatcher     JobType = "matcher"
	JobNotifier    JobType = "notifier"
	JobCleanup     JobType = "cleanup"
	JobHealthcheck JobType = "healthcheck"
)

const (
	errorBufferMax  = 100
	errorBufferKeep = 50
)

// ErrorEntry is one recorded job failure.
type ErrorEntry struct {
	Job     JobType   `json:"job"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Status is the orchestrator's aggregate state snapshot.
type Status struct {
	IsRunning      bool         `json:"is_running"`
	StartTime      *time.Time   `json:"start_time,omitempty"`
	LastHarvestRun *time.Time   `json:"last_harvest_run,omitempty"`
	LastMatchRun   *time.Time   `json:"last_match_run,omitempty"`
	LastNotifyRun  *time.Time   `json:"last_notify_run,omitempty"`
	LastCleanupRun *time.Time   `json:"last_cleanup_run,omitempty"`
	TotalJobsRun   int          `json:"total_jobs_run"`
	SkippedRuns    int          `json:"skipped_runs"`
	RecentErrors   []ErrorEntry `json:"recent_errors"`
}

// StatusTracker accumulates run bookkeeping across job types. All
// methods are safe for concurrent use.
type StatusTracker struct {
	mu        sync.Mutex
	isRunning bool
	startTime *time.Time
	inFlight  map[JobType]bool
	lastRun   map[JobType]time.Time
	totalRuns int
	skipped   int
	errors    []ErrorEntry

	now func() time.Time
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		inFlight: make(map[JobType]bool),
		lastRun:  make(map[JobType]time.Time),
		now:      time.Now,
	}
}

// TryBegin claims the in-flight slot for a job type. It reports false,
// and counts a skip, when an invocation of the same type is running.
func (t *StatusTracker) TryBegin(job JobType) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inFlight[job] {
		t.skipped++
		return false
	}
	t.inFlight[job] = true
	return true
}

// End releases the in-flight slot claimed by TryBegin.
func (t *StatusTracker) End(job JobType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, job)
}

// RecordRun stamps a completed invocation of the job type.
func (t *StatusTracker) RecordRun(job JobType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRun[job] = t.now()
	t.totalRuns++
}

// RecordError appends one failure to the error buffer. The buffer holds
// at most 100 entries; on overflow only the most recent 50 are kept.
func (t *StatusTracker) RecordError(job JobType, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendError(job, message)
}

// RecordErrors appends every message from a job result.
func (t *StatusTracker) RecordErrors(job JobType, messages []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, message := range messages {
		if message == "" {
			continue
		}
		t.appendError(job, message)
	}
}

func (t *StatusTracker) appendError(job JobType, message string) {
	t.errors = append(t.errors, ErrorEntry{
		Job:     job,
		Time:    t.now(),
		Message: message,
	})
	if len(t.errors) > errorBufferMax {
		t.errors = append([]ErrorEntry(nil), t.errors[len(t.errors)-errorBufferKeep:]...)
	}
}

func (t *StatusTracker) MarkStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isRunning = true
	now := t.now()
	t.startTime = &now
}

func (t *StatusTracker) MarkStopped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isRunning = false
}

func (t *StatusTracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

// Snapshot returns a copy of the current status.
func (t *StatusTracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := Status{
		IsRunning:      t.isRunning,
		StartTime:      t.startTime,
		LastHarvestRun: t.lastRunPtr(JobScraper),
		LastMatchRun:   t.lastRunPtr(JobMatcher),
		LastNotifyRun:  t.lastRunPtr(JobNotifier),
		LastCleanupRun: t.lastRunPtr(JobCleanup),
		TotalJobsRun:   t.totalRuns,
		SkippedRuns:    t.skipped,
		RecentErrors:   make([]ErrorEntry, len(t.errors)),
	}
	copy(status.RecentErrors, t.errors)
	return status
}

func (t *StatusTracker) lastRunPtr(job JobType) *time.Time {
	if at, ok := t.lastRun[job]; ok {
		return &at
	}
	return nil
}
