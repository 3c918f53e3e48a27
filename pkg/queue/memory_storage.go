package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements every repository interface in process. It backs
// tests and single-binary development setups.
type MemoryStorage struct {
	mu      sync.RWMutex
	tasks   map[uuid.UUID]*Task
	dlq     []*TasksDlq
	backoff time.Duration

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// MemoryStorageOption configures a MemoryStorage
type MemoryStorageOption func(*MemoryStorage)

// WithMemoryBackoff sets the per-retry backoff step (default 30s).
// Zero makes failed tasks immediately claimable again.
func WithMemoryBackoff(d time.Duration) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if d >= 0 {
			ms.backoff = d
		}
	}
}

// NewMemoryStorage creates an in-memory storage and starts its lock expiration loop.
// Call Close to stop it.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	ms := &MemoryStorage{
		tasks:   make(map[uuid.UUID]*Task),
		backoff: 30 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}

	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()
	return ms
}

// Close stops the lock expiration loop. It is idempotent.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// Ping fails once the storage is closed
func (ms *MemoryStorage) Ping(context.Context) error {
	select {
	case <-ms.done:
		return errors.New("memory storage closed")
	default:
		return nil
	}
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	// Ids that already reached the DLQ stay taken as well.
	for _, d := range ms.dlq {
		if d.TaskID == task.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
		}
	}

	taskCopy := *task
	ms.tasks[task.ID] = &taskCopy
	return nil
}

// ClaimTask picks the highest priority due task, oldest scheduled first.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Task
	for _, task := range ms.tasks {
		if task.Status != TaskStatusPending || !slices.Contains(queues, task.Queue) {
			continue
		}
		if task.ScheduledAt.After(now) {
			continue
		}
		if best == nil ||
			task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.ScheduledAt.Before(best.ScheduledAt)) {
			best = task
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	taskCopy := *best
	return &taskCopy, nil
}

// CompleteTask marks a processing task completed
func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	now := time.Now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.RetryCount >= task.MaxRetries {
		task.Status = TaskStatusFailed
		return nil
	}
	task.Status = TaskStatusPending
	task.ScheduledAt = time.Now().Add(time.Duration(task.RetryCount) * ms.backoff)
	return nil
}

// MoveToDLQ moves a failed task to the dead letter queue
func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	now := time.Now()
	entry := &TasksDlq{
		ID:         uuid.New(),
		TaskID:     task.ID,
		Queue:      task.Queue,
		TaskType:   task.TaskType,
		TaskName:   task.TaskName,
		Payload:    task.Payload,
		Priority:   task.Priority,
		RetryCount: task.RetryCount,
		FailedAt:   now,
		CreatedAt:  now,
	}
	if task.Error != nil {
		entry.Error = *task.Error
	}
	ms.dlq = append(ms.dlq, entry)
	delete(ms.tasks, taskID)
	return nil
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	lockUntil := time.Now().Add(duration)
	task.LockedUntil = &lockUntil
	return nil
}

// GetPendingTaskByName implements SchedulerRepository.
func (ms *MemoryStorage) GetPendingTaskByName(_ context.Context, taskName string) (*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, task := range ms.tasks {
		if task.TaskName == taskName && (task.Status == TaskStatusPending || task.Status == TaskStatusProcessing) {
			taskCopy := *task
			return &taskCopy, nil
		}
	}
	return nil, ErrTaskNotFound
}

// PurgeCompleted drops completed tasks processed before the cutoff.
func (ms *MemoryStorage) PurgeCompleted(_ context.Context, before time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var purged int64
	for id, task := range ms.tasks {
		if task.Status == TaskStatusCompleted && task.ProcessedAt != nil && task.ProcessedAt.Before(before) {
			delete(ms.tasks, id)
			purged++
		}
	}
	return purged, nil
}

// GetTask returns a copy of a live (not dead-lettered) task.
func (ms *MemoryStorage) GetTask(_ context.Context, taskID uuid.UUID) (*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	taskCopy := *task
	return &taskCopy, nil
}

// ListTasks returns copies of live tasks in queue, ordered by creation.
func (ms *MemoryStorage) ListTasks(_ context.Context, queue string) []*Task {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]*Task, 0)
	for _, task := range ms.tasks {
		if task.Queue == queue {
			taskCopy := *task
			out = append(out, &taskCopy)
		}
	}
	slices.SortFunc(out, func(a, b *Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// ListDLQ returns copies of the dead letter entries
func (ms *MemoryStorage) ListDLQ(context.Context) []*TasksDlq {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]*TasksDlq, len(ms.dlq))
	for i, d := range ms.dlq {
		entry := *d
		out[i] = &entry
	}
	return out
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, exists := ms.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return task, nil
}

// lockExpirationManager returns tasks held by crashed workers to pending.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, task := range ms.tasks {
		if task.Status == TaskStatusProcessing && task.LockedUntil != nil && task.LockedUntil.Before(now) {
			task.Status = TaskStatusPending
			task.LockedUntil = nil
			task.LockedBy = nil
		}
	}
}
