// Package scheduling runs the periodic maintenance jobs of a wingman process.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds one run of a job.
const DefaultJobTimeout = 5 * time.Minute

// Job is one maintenance task. Run reports how many items it affected
// (files pruned, orchestrators closed).
type Job struct {
	Name     string
	Schedule string // cron expression ("*/5 * * * *", "@hourly") or duration ("30m")
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs jobs on cron schedules. A run that is still in progress
// when its next tick fires is skipped; a panicking job is recovered.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	jobs   map[string]Job
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler with no jobs.
func NewScheduler(logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: DefaultJobTimeout,
		jobs:    make(map[string]Job),
	}
}

// SetJobTimeout overrides DefaultJobTimeout. Non-positive values are ignored.
func (s *Scheduler) SetJobTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Add schedules job. Names are unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run func")
	}
	schedule, err := ParseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("scheduler: duplicate job %q", job.Name)
	}
	s.jobs[job.Name] = job
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.tick(job) }))

	s.logger.Info("maintenance job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// Jobs lists the scheduled job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNow runs the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.run(ctx, job)
}

// Start begins firing schedules. Jobs run under a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	// Ticks take s.mu to read the context; wait outside the lock.
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	switch {
	case err != nil:
		s.logger.Warn("maintenance job failed", "job", job.Name, "error", err, "duration", time.Since(start))
	case n > 0:
		s.logger.Info("maintenance job done", "job", job.Name, "affected", n, "duration", time.Since(start))
	default:
		s.logger.Debug("maintenance job done", "job", job.Name, "duration", time.Since(start))
	}
	return n, err
}

// ParseSchedule parses a cron expression (including descriptors such as
// "@hourly") and falls back to a positive duration.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(expr); err == nil {
		return sched, nil
	}

	every, err := time.ParseDuration(expr)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a cron expression nor a duration", expr)
	}
	if every <= 0 {
		return nil, fmt.Errorf("interval must be positive: %q", expr)
	}
	return fixedInterval(every), nil
}

// fixedInterval fires every d. cron.Every rounds to whole seconds; this
// does not.
type fixedInterval time.Duration

func (d fixedInterval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
