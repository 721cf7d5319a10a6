package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const tickResolution = time.Second

type TaskFunc func(ctx context.Context)

type task struct {
	name    string
	nextRun time.Time
	every   time.Duration // zero means one-shot
	fn      TaskFunc
}

// PendingTask is a read-only snapshot row for the status surface.
type PendingTask struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	Repeats bool      `json:"repeats"`
}

// Scheduler runs named tasks at their due times. Tasks are inspectable
// by name, one-shot or repeating, and rescheduling an existing name
// replaces the earlier entry.
type Scheduler struct {
	clock  Clock
	random func() float64

	loop    sync.WaitGroup
	running sync.WaitGroup

	mu         sync.Mutex
	tasks      map[string]*task
	loopCancel context.CancelFunc
}

func New(clock Clock, random func() float64) *Scheduler {
	return &Scheduler{
		clock:  clock,
		random: random,
		tasks:  make(map[string]*task),
	}
}

// Schedule arms a one-shot task to fire after delay.
func (s *Scheduler) Schedule(name string, delay time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = &task{
		name:    name,
		nextRun: s.clock.Now().Add(delay),
		fn:      fn,
	}
	slog.Debug("Task scheduled", "task", name, "delay", delay)
}

// ScheduleEvery arms a repeating task; the first run fires after one
// full interval.
func (s *Scheduler) ScheduleEvery(name string, every time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = &task{
		name:    name,
		nextRun: s.clock.Now().Add(every),
		every:   every,
		fn:      fn,
	}
	slog.Debug("Repeating task scheduled", "task", name, "every", every)
}

func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}

// CancelAll drops every armed task without touching in-flight runs.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*task)
}

// Pending returns the armed tasks ordered by due time.
func (s *Scheduler) Pending() []PendingTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]PendingTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		pending = append(pending, PendingTask{
			Name:    t.name,
			NextRun: t.nextRun,
			Repeats: t.every > 0,
		})
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].NextRun.Equal(pending[j].NextRun) {
			return pending[i].Name < pending[j].Name
		}
		return pending[i].NextRun.Before(pending[j].NextRun)
	})
	return pending
}

// Jitter scales base by a random value in [1-factor, 1+factor] so
// repeated cycles do not hit the upstream source in lockstep.
func (s *Scheduler) Jitter(base time.Duration, factor float64) time.Duration {
	scale := 1 - factor + 2*factor*s.random()
	return time.Duration(float64(base) * scale)
}

// Start launches the dispatch loop. Start after Stop resumes
// dispatching whatever tasks are armed.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.loopCancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	s.mu.Unlock()

	s.loop.Add(1)
	go func() {
		defer s.loop.Done()

		ticker := time.NewTicker(tickResolution)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.dispatchDue()
			}
		}
	}()
}

// Stop halts future dispatching immediately and waits up to grace for
// in-flight task functions. Running tasks are not aborted; one that
// outlives the grace period finishes on its own goroutine.
func (s *Scheduler) Stop(grace time.Duration) {
	s.mu.Lock()
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
	s.mu.Unlock()
	s.loop.Wait()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		slog.Warn("Grace period elapsed with tasks still running")
	}
}

// dispatchDue fires every task whose due time has arrived. One-shot
// tasks are consumed; repeating tasks are re-armed relative to now.
func (s *Scheduler) dispatchDue() {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*task
	for name, t := range s.tasks {
		if t.nextRun.After(now) {
			continue
		}
		due = append(due, t)
		if t.every > 0 {
			t.nextRun = now.Add(t.every)
		} else {
			delete(s.tasks, name)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].name < due[j].name })

	for _, t := range due {
		s.running.Add(1)
		go func(t *task) {
			defer s.running.Done()
			t.fn(context.Background())
		}(t)
	}
}
