package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// SchedulerRepository defines the interface for scheduler operations
type SchedulerRepository interface {
	CreateTask(ctx context.Context, task *Task) error

	// GetPendingTaskByName returns a pending or running task with the name,
	// or ErrTaskNotFound.
	GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error)
}

// Scheduler turns periodic registrations into queue tasks. A run is enqueued
// only when no pending or running task with the same name exists, so every
// replica may run a Scheduler against the same repository.
type Scheduler struct {
	repo     SchedulerRepository
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	periodic map[string]*periodic
}

type periodic struct {
	name       string
	schedule   Schedule
	queue      string
	priority   Priority
	maxRetries int8
	// next is the run time of the last enqueued instance; zero until the
	// first check.
	next time.Time
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithCheckInterval sets how often due tasks are checked (default 30s).
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerLogger sets the scheduler logger
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSchedulerClock replaces time.Now, mostly for tests
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// SchedulerTaskOption configures a periodic task registration
type SchedulerTaskOption func(*periodic)

// WithTaskQueue sets the queue periodic runs are enqueued to
func WithTaskQueue(queue string) SchedulerTaskOption {
	return func(p *periodic) {
		if queue != "" {
			p.queue = queue
		}
	}
}

// WithTaskPriority sets the priority of periodic runs
func WithTaskPriority(priority Priority) SchedulerTaskOption {
	return func(p *periodic) {
		if priority.Valid() {
			p.priority = priority
		}
	}
}

// WithTaskMaxRetries sets the retry budget of each run (0-10).
func WithTaskMaxRetries(n int8) SchedulerTaskOption {
	return func(p *periodic) {
		if n >= 0 && n <= 10 {
			p.maxRetries = n
		}
	}
}

// NewScheduler creates a new periodic task scheduler
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	s := &Scheduler{
		repo:     repo,
		interval: 30 * time.Second,
		now:      time.Now,
		logger:   slog.Default(),
		periodic: make(map[string]*periodic),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("queue.scheduler"))
	return s, nil
}

// AddTask registers a periodic task. A worker consuming the task's queue
// needs a handler built by NewPeriodicTaskHandler under the same name.
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	if schedule == nil {
		return ErrInvalidSchedule
	}
	p := &periodic{
		name:       name,
		schedule:   schedule,
		queue:      DefaultQueueName,
		priority:   PriorityDefault,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.periodic[name]; ok {
		return ErrTaskAlreadyRegistered
	}
	s.periodic[name] = p

	s.logger.Info("periodic task registered",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()),
		logger.Queue(p.queue),
	)
	return nil
}

// RemoveTask unregisters a periodic task. Tasks already enqueued still run.
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.periodic, name)
}

// ListTasks returns the registered names in sorted order.
func (s *Scheduler) ListTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.periodic))
}

// Start checks due tasks right away and then every interval. It blocks until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	empty := len(s.periodic) == 0
	s.mu.Unlock()
	if empty {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run adapts Start to errgroup.Go. Cancellation is not an error.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// Tick enqueues every registered task whose next run is due.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	due := make([]*periodic, 0, len(s.periodic))
	for _, p := range s.periodic {
		// The first instance is enqueued immediately for its next run time.
		if p.next.IsZero() || !p.schedule.Next(p.next).After(now) {
			due = append(due, p)
		}
	}
	s.mu.Unlock()

	for _, p := range due {
		if err := s.enqueue(ctx, p, now); err != nil {
			s.logger.ErrorContext(ctx, "periodic task not enqueued",
				slog.String("task_name", p.name),
				logger.Error(err),
			)
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, p *periodic, now time.Time) error {
	existing, err := s.repo.GetPendingTaskByName(ctx, p.name)
	switch {
	case err == nil:
		s.setNext(p, existing.ScheduledAt)
		return nil
	case !errors.Is(err, ErrTaskNotFound):
		return fmt.Errorf("lookup pending %s: %w", p.name, err)
	}

	s.mu.Lock()
	from := p.next
	s.mu.Unlock()
	if from.IsZero() {
		from = now
	}
	runAt := p.schedule.Next(from)

	task := &Task{
		ID:          uuid.New(),
		Queue:       p.queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    p.name,
		Status:      TaskStatusPending,
		Priority:    p.priority,
		MaxRetries:  p.maxRetries,
		ScheduledAt: runAt,
		CreatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create %s: %w", p.name, err)
	}
	s.setNext(p, runAt)

	s.logger.DebugContext(ctx, "periodic task enqueued",
		slog.String("task_name", p.name),
		slog.Time("scheduled_at", runAt),
	)
	return nil
}

func (s *Scheduler) setNext(p *periodic, at time.Time) {
	s.mu.Lock()
	p.next = at
	s.mu.Unlock()
}
