package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements the queue repositories on the queue_tasks and
// queue_tasks_dlq tables. Claims use FOR UPDATE SKIP LOCKED, so concurrent
// workers in any number of processes never receive the same task.
type PostgresStorage struct {
	pool    *pgxpool.Pool
	backoff time.Duration
}

// NewPostgresStorage creates a storage on pool. backoff is the per-retry delay step.
func NewPostgresStorage(pool *pgxpool.Pool, backoff time.Duration) *PostgresStorage {
	if backoff < 0 {
		backoff = 0
	}
	return &PostgresStorage{pool: pool, backoff: backoff}
}

const taskColumns = `id, queue, task_type, task_name, payload, status, priority, retry_count,
	max_retries, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateTask inserts the task unless its id is already used by a live or
// dead-lettered task, in which case ErrDuplicateTask is returned.
func (s *PostgresStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO queue_tasks (`+taskColumns+`)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, NULL, NULL, NULL, $11
		WHERE NOT EXISTS (SELECT 1 FROM queue_tasks_dlq WHERE task_id = $1)
		ON CONFLICT (id) DO NOTHING`,
		task.ID, task.Queue, string(task.TaskType), task.TaskName, nullableJSON(task.Payload),
		string(task.Status), int16(task.Priority), int16(task.RetryCount), int16(task.MaxRetries),
		task.ScheduledAt, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	return nil
}

// ClaimTask locks the highest priority due task. Tasks whose lock expired
// (worker crashed mid-run) are claimable again.
func (s *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	now := time.Now()
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_tasks SET status = 'processing', locked_until = $3, locked_by = $2
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($1)
			  AND scheduled_at <= $4
			  AND (status = 'pending' OR (status = 'processing' AND locked_until < $4))
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		queues, workerID, now.Add(lockDuration), now,
	)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// CompleteTask marks a processing task completed
func (s *PostgresStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks
		SET status = 'completed', processed_at = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`,
		taskID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return nil
}

func (s *PostgresStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks SET
			retry_count = retry_count + 1,
			error = $2,
			locked_until = NULL,
			locked_by = NULL,
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
			scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
				ELSE $3::timestamptz + make_interval(secs => (retry_count + 1) * $4::double precision) END
		WHERE id = $1 AND status = 'processing'`,
		taskID, errorMsg, time.Now(), s.backoff.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return nil
}

// MoveToDLQ moves the row in a single statement so a crash cannot lose it.
func (s *PostgresStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		WITH moved AS (DELETE FROM queue_tasks WHERE id = $1 RETURNING *)
		INSERT INTO queue_tasks_dlq
			(id, task_id, queue, task_type, task_name, payload, priority, error, retry_count, failed_at, created_at)
		SELECT $2, id, queue, task_type, task_name, payload, priority, COALESCE(error, ''), retry_count, $3, $3
		FROM moved`,
		taskID, uuid.New(), now,
	)
	if err != nil {
		return fmt.Errorf("move task to dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return nil
}

// ExtendLock pushes locked_until of a processing task forward
func (s *PostgresStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_tasks SET locked_until = $2 WHERE id = $1 AND status = 'processing'`,
		taskID, time.Now().Add(duration),
	)
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return nil
}

func (s *PostgresStorage) GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM queue_tasks
		WHERE task_name = $1 AND status IN ('pending', 'processing')
		ORDER BY scheduled_at
		LIMIT 1`,
		taskName,
	)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// PurgeCompleted deletes completed tasks processed before the cutoff. Their
// ids stop acting as idempotency keys afterwards, so the cutoff should be
// well past any realistic redelivery window.
func (s *PostgresStorage) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM queue_tasks WHERE status = 'completed' AND processed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge completed tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTask(row pgx.Row) (*Task, error) {
	var (
		t                       Task
		taskType, status        string
		priority, retry, maxRet int16
	)
	err := row.Scan(
		&t.ID, &t.Queue, &taskType, &t.TaskName, &t.Payload, &status, &priority, &retry,
		&maxRet, &t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TaskType = TaskType(taskType)
	t.Status = TaskStatus(status)
	t.Priority = Priority(priority)
	t.RetryCount = int8(retry)
	t.MaxRetries = int8(maxRet)
	return &t, nil
}

// nullableJSON stores empty payloads as NULL; jsonb rejects an empty string.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
