package queue

import (
	"log/slog"
	"time"
)

// WorkerOption configures a Worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues             []string
	pullInterval       time.Duration
	lockTimeout        time.Duration
	maxConcurrentTasks int
	logger             *slog.Logger
	onDeadLetter       []DeadLetterHook
}

// WithQueues sets the queues the worker claims from
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithPullInterval sets how often the worker polls for tasks
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout bounds how long a claimed task stays locked, and therefore
// how long its handler may run.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithMaxConcurrentTasks caps the number of tasks processed at once
func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

// WithWorkerLogger sets the worker logger
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDeadLetterHook adds a hook called after a task is dead lettered
func WithDeadLetterHook(h DeadLetterHook) WorkerOption {
	return func(o *workerOptions) {
		if h != nil {
			o.onDeadLetter = append(o.onDeadLetter, h)
		}
	}
}
