package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a constructor gets a nil repository.
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when Enqueue is called with a nil payload.
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrInvalidPriority is returned when a priority is outside 0..100.
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrDuplicateTask is returned when a task with the same id is already stored.
	ErrDuplicateTask = errors.New("task with this id already exists")

	// ErrTaskNotFound is returned when a task lookup matches nothing.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotProcessing is returned when a task update requires a lock the task no longer holds.
	ErrTaskNotProcessing = errors.New("task is not in processing state")

	// ErrNoTaskToClaim is returned by ClaimTask when no task is due.
	ErrNoTaskToClaim = errors.New("no task to claim")

	// ErrHandlerNotFound is returned when a claimed task has no registered handler.
	ErrHandlerNotFound = errors.New("no handler registered for task type")

	// ErrNoHandlers is returned when a worker is started without handlers.
	ErrNoHandlers = errors.New("no task handlers registered")

	// ErrInvalidSchedule is returned when a cron expression cannot be parsed.
	ErrInvalidSchedule = errors.New("invalid schedule format")

	// ErrTaskAlreadyRegistered is returned when a periodic task name is registered twice.
	ErrTaskAlreadyRegistered = errors.New("task already registered")

	// ErrSchedulerNotConfigured is returned when a scheduler is started without tasks.
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered tasks")

	// ErrWorkerAlreadyStarted is returned when Start is called on a running worker.
	ErrWorkerAlreadyStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when Stop is called on a worker that is not running.
	ErrWorkerNotStarted = errors.New("worker not started")
)
