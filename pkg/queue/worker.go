package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// WorkerRepository defines the interface for worker operations
type WorkerRepository interface {
	// ClaimTask atomically locks the next due task from queues. It returns
	// ErrNoTaskToClaim when nothing is due.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks a processing task completed.
	CompleteTask(ctx context.Context, taskID uuid.UUID) error

	// FailTask records the error and increments the retry count. While the
	// budget lasts the task returns to pending with a backoff; otherwise it is
	// left failed for MoveToDLQ.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error

	// MoveToDLQ copies a failed task into the dead letter queue and removes it.
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error

	// ExtendLock pushes the lock of a processing task forward.
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// DeadLetterHook is called after a task lands in the dead letter queue.
type DeadLetterHook func(ctx context.Context, task *Task, err error)

// Worker processes tasks from the queue
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger
	onDeadLetter []DeadLetterHook

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new task worker
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger.With(logger.Component("queue.worker")),
		onDeadLetter: options.onDeadLetter,
	}, nil
}

// RegisterHandler registers a single task handler. A handler with the same
// name replaces the previous one.
func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[handler.Name()] = handler
	return nil
}

// RegisterHandlers registers multiple task handlers at once
func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start begins polling in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerAlreadyStarted
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels polling and waits for in-flight tasks.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run returns a function suitable for errgroup.Go.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// wg.Add must not race with Stop's wg.Wait.
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil && !errors.Is(err, ErrHandlerNotFound) {
						w.logger.Error("failed to process task",
							slog.String("worker_id", w.workerID.String()),
							logger.Error(err))
					}
				}()
			default:
			}
		}
	}
}

func (w *Worker) pullAndProcess() error {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) {
			return nil
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return nil
	}
	return w.ProcessTask(task)
}

// ProcessTask runs one claimed task through its handler and records the
// outcome. Exposed so callers can drain a queue synchronously in tests.
func (w *Worker) ProcessTask(task *Task) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = w.handleTaskFailure(task, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		return w.handleMissingHandler(task)
	}

	// Not derived from the worker context, so shutdown lets the task finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	if err := handler.Handle(withTaskInfo(ctx, task), task.Payload); err != nil {
		return w.handleTaskFailure(task, err, time.Since(start))
	}
	return w.handleTaskSuccess(task, time.Since(start))
}

// handleMissingHandler sends the task straight to the DLQ.
//
// Why direct to DLQ: a task without a handler fails on every retry attempt,
// wasting worker slots until its budget is spent. Parking it in the DLQ right
// away lets operators deploy the missing handler and requeue the task by hand.
func (w *Worker) handleMissingHandler(task *Task) error {
	errorMsg := "no handler registered for task type: " + task.TaskName
	w.logger.Error(errorMsg, logger.TaskID(task.ID), logger.Queue(task.Queue))

	if err := w.repo.FailTask(w.context(), task.ID, errorMsg); err != nil {
		return fmt.Errorf("failed to mark task %s as failed: %w", task.ID, err)
	}
	if err := w.repo.MoveToDLQ(w.context(), task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}
	w.deadLettered(task, ErrHandlerNotFound)
	return ErrHandlerNotFound
}

// handleTaskFailure records a failed run. FailTask always runs first so the
// error and retry count are persisted; the repository then returns the task to
// pending with a backoff. Once this run spends the retry budget the task is
// moved to the DLQ and the dead letter hooks fire.
func (w *Worker) handleTaskFailure(task *Task, execErr error, duration time.Duration) error {
	w.logger.Error("task failed",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		logger.Queue(task.Queue),
		logger.RetryCount(int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		logger.Duration(duration),
		logger.Error(execErr))

	if err := w.repo.FailTask(w.context(), task.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to update task %s status to failed: %w", task.ID, err)
	}

	if !task.lastAttempt() {
		return nil
	}

	if err := w.repo.MoveToDLQ(w.context(), task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ after max retries: %w", task.ID, err)
	}
	w.logger.Warn("task moved to dead letter queue",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		logger.Queue(task.Queue))
	w.deadLettered(task, execErr)
	return nil
}

func (w *Worker) handleTaskSuccess(task *Task, duration time.Duration) error {
	if err := w.repo.CompleteTask(w.context(), task.ID); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}
	w.logger.Debug("task completed",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		logger.Queue(task.Queue),
		logger.Duration(duration))
	return nil
}

func (w *Worker) deadLettered(task *Task, err error) {
	for _, h := range w.onDeadLetter {
		h(w.context(), task, err)
	}
}

// context returns the worker context, or Background when ProcessTask is
// called on a worker that was never started.
func (w *Worker) context() context.Context {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.ctx == nil {
		return context.Background()
	}
	// Bookkeeping must outlive shutdown so an in-flight task is not left locked.
	return context.WithoutCancel(w.ctx)
}

// ExtendLockForTask pushes the lock of a long-running task forward.
func (w *Worker) ExtendLockForTask(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, extension)
}

// ID returns the worker id recorded in task locks
func (w *Worker) ID() uuid.UUID {
	return w.workerID
}
