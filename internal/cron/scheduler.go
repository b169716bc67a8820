package cron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Scheduler defaults.
const (
	defaultMaxConcurrent    = 5
	defaultExecutionTimeout = 5 * time.Minute
	defaultMaxRetries       = 3
	defaultBackoff          = time.Minute

	// httpBodyLimit truncates HTTP target responses.
	httpBodyLimit = 1000
)

// ErrCommandNotAllowed is returned for shell commands outside the
// whitelist.
var ErrCommandNotAllowed = errors.New("Command not allowed")

// shellWhitelist bounds what a cron shell command may run.
var shellWhitelist = []*regexp.Regexp{
	regexp.MustCompile(`^echo\s`),
	regexp.MustCompile(`^date$`),
	regexp.MustCompile(`^pwd$`),
	regexp.MustCompile(`^whoami$`),
}

// AgentRunner dispatches "agent:" commands to the agent runtime.
type AgentRunner func(ctx context.Context, job *Job, command string) (string, error)

// ShellRunner executes a whitelisted shell command (typically via the
// sandbox manager).
type ShellRunner func(ctx context.Context, job *Job, command string) (string, error)

// Notifier observes execution outcomes (for event broadcast).
type Notifier func(job *Job, status string)

// Options tune the scheduler.
type Options struct {
	MaxConcurrent    int
	ExecutionTimeout time.Duration
	MaxRetries       int
	Backoff          time.Duration
}

type scheduled struct {
	timer *time.Timer
	next  time.Time
	gen   uint64
}

// Scheduler arms one timer per enabled job and executes on fire, bounded by
// a process-wide concurrency cap.
type Scheduler struct {
	store Store
	opts  Options
	gron  gronx.Gronx

	agentRunner AgentRunner
	shellRunner ShellRunner
	notifier    Notifier
	httpClient  *http.Client

	mu               sync.Mutex
	tasks            map[string]*scheduled
	activeExecutions int
	closed           bool
	now              func() time.Time
}

// NewScheduler creates a scheduler over the given store.
func NewScheduler(store Store, opts Options) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.ExecutionTimeout <= 0 {
		opts.ExecutionTimeout = defaultExecutionTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	return &Scheduler{
		store:      store,
		opts:       opts,
		gron:       gronx.New(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tasks:      make(map[string]*scheduled),
		now:        time.Now,
	}
}

// SetAgentRunner installs the "agent:" command dispatcher.
func (s *Scheduler) SetAgentRunner(r AgentRunner) { s.agentRunner = r }

// SetShellRunner installs the whitelisted shell executor.
func (s *Scheduler) SetShellRunner(r ShellRunner) { s.shellRunner = r }

// SetNotifier installs the execution observer.
func (s *Scheduler) SetNotifier(n Notifier) { s.notifier = n }

// Start schedules every enabled persisted job.
func (s *Scheduler) Start() error {
	jobs, err := s.store.List()
	if err != nil {
		return fmt.Errorf("load cron jobs: %w", err)
	}
	for _, job := range jobs {
		s.Schedule(job)
	}
	slog.Info("cron scheduler started", "jobs", len(jobs))
	return nil
}

// location resolves the job's timezone, defaulting to UTC.
func location(job *Job) *time.Location {
	if job.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(job.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// nextTick computes the next fire time after from, in the job's timezone.
func (s *Scheduler) nextTick(job *Job, from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(job.CronExpression, from.In(location(job)), false)
}

// Schedule arms the job's timer. Disabled jobs are ignored; an already
// scheduled job is unscheduled first. An invalid expression persists
// last_error and does not schedule.
func (s *Scheduler) Schedule(job *Job) {
	if !job.Enabled {
		return
	}
	s.Unschedule(job.ID)

	if !s.gron.IsValid(job.CronExpression) {
		job.LastError = fmt.Sprintf("invalid cron expression: %s", job.CronExpression)
		job.UpdatedAt = s.now()
		if err := s.store.Save(job); err != nil {
			slog.Error("cron job save failed", "job", job.ID, "error", err)
		}
		slog.Warn("cron expression invalid", "job", job.ID, "expr", job.CronExpression)
		return
	}

	next, err := s.nextTick(job, s.now())
	if err != nil {
		job.LastError = err.Error()
		job.UpdatedAt = s.now()
		s.store.Save(job)
		return
	}
	s.armAt(job.ID, next)

	nextUTC := next.UTC()
	job.NextExecutionAt = &nextUTC
	job.UpdatedAt = s.now()
	if err := s.store.Save(job); err != nil {
		slog.Error("cron job save failed", "job", job.ID, "error", err)
	}
}

// armAt arms (or re-arms) the job timer for the given time.
func (s *Scheduler) armAt(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	t, ok := s.tasks[id]
	if !ok {
		t = &scheduled{}
		s.tasks[id] = t
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	t.next = at
	gen := t.gen

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	t.timer = time.AfterFunc(delay, func() {
		s.fire(id, gen)
	})
}

// fire runs the job unless capacity is exhausted, in which case it re-arms
// immediately (requeue without execution).
func (s *Scheduler) fire(id string, gen uint64) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	if s.activeExecutions >= s.opts.MaxConcurrent {
		s.mu.Unlock()
		slog.Debug("cron at capacity, requeueing", "job", id)
		s.armAt(id, s.now())
		return
	}
	s.activeExecutions++
	s.mu.Unlock()

	go s.execute(id)
}

// execute runs one job tick and handles success/failure rescheduling.
// activeExecutions decrements on every path.
func (s *Scheduler) execute(id string) {
	defer func() {
		s.mu.Lock()
		s.activeExecutions--
		s.mu.Unlock()
	}()

	job, err := s.store.Get(id)
	if err != nil {
		slog.Warn("cron job vanished before execution", "job", id)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ExecutionTimeout)
	defer cancel()

	output, execErr := s.dispatch(ctx, job)
	now := s.now().UTC()

	if execErr == nil {
		job.LastExecutedAt = &now
		job.LastError = ""
		job.ExecutionCount++
		job.FailureCount = 0
		job.UpdatedAt = now
		slog.Info("cron job completed", "job", id, "output_len", len(output))
		if s.notifier != nil {
			s.notifier(job, "completed")
		}
		s.Schedule(job) // persists and advances past this tick
		return
	}

	job.FailureCount++
	job.LastError = execErr.Error()
	job.UpdatedAt = now
	if err := s.store.Save(job); err != nil {
		slog.Error("cron job save failed", "job", id, "error", err)
	}
	slog.Warn("cron job failed", "job", id, "failures", job.FailureCount, "error", execErr)
	if s.notifier != nil {
		s.notifier(job, "failed")
	}

	if job.FailureCount <= s.opts.MaxRetries {
		backoff := time.Duration(job.FailureCount) * s.opts.Backoff
		s.armAt(id, s.now().Add(backoff))
		return
	}
	s.Schedule(job)
}

// dispatch routes on the command shape: HTTP targets, agent commands, or a
// whitelisted shell pattern.
func (s *Scheduler) dispatch(ctx context.Context, job *Job) (string, error) {
	cmd := strings.TrimSpace(job.Command)
	switch {
	case strings.HasPrefix(cmd, "http://"), strings.HasPrefix(cmd, "https://"):
		return s.runHTTP(ctx, cmd)
	case strings.HasPrefix(cmd, "agent:"):
		if s.agentRunner == nil {
			return "", errors.New("agent runner not configured")
		}
		return s.agentRunner(ctx, job, strings.TrimPrefix(cmd, "agent:"))
	default:
		for _, re := range shellWhitelist {
			if re.MatchString(cmd) {
				if s.shellRunner == nil {
					return "", errors.New("shell runner not configured")
				}
				return s.shellRunner(ctx, job, cmd)
			}
		}
		return "", ErrCommandNotAllowed
	}
}

// runHTTP GETs the target and returns the truncated body.
func (s *Scheduler) runHTTP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, httpBodyLimit))
	if resp.StatusCode >= 400 {
		return string(body), fmt.Errorf("http status %d", resp.StatusCode)
	}
	return string(body), nil
}

// Unschedule cancels the job's timer and removes the entry.
func (s *Scheduler) Unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		if t.timer != nil {
			t.timer.Stop()
		}
		t.gen++
		delete(s.tasks, id)
	}
}

// UnscheduleAll clears every timer and stops accepting fires.
func (s *Scheduler) UnscheduleAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.tasks {
		if t.timer != nil {
			t.timer.Stop()
		}
		t.gen++
		delete(s.tasks, id)
	}
}

// ActiveExecutions reports the current in-flight execution count.
func (s *Scheduler) ActiveExecutions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeExecutions
}

// NextExecution returns the armed fire time for a job, if scheduled.
func (s *Scheduler) NextExecution(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return t.next, true
	}
	return time.Time{}, false
}

// RunNow executes the job immediately, outside its schedule, still counting
// against the concurrency cap.
func (s *Scheduler) RunNow(id string) error {
	if _, err := s.store.Get(id); err != nil {
		return err
	}
	s.mu.Lock()
	if s.activeExecutions >= s.opts.MaxConcurrent {
		s.mu.Unlock()
		return errors.New("scheduler at capacity")
	}
	s.activeExecutions++
	s.mu.Unlock()

	go s.execute(id)
	return nil
}
