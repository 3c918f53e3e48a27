package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

type testPayload struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

func newMemoryStorage(t *testing.T, opts ...queue.MemoryStorageOption) *queue.MemoryStorage {
	t.Helper()
	store := queue.NewMemoryStorage(opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnqueuer(t *testing.T) {
	t.Parallel()

	t.Run("nil repository", func(t *testing.T) {
		t.Parallel()
		_, err := queue.NewEnqueuer(nil)
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
	})

	t.Run("applies defaults and options", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStorage(t)
		enq, err := queue.NewEnqueuer(store, queue.WithDefaultQueue("notifications.email"), queue.WithDefaultMaxRetries(5))
		require.NoError(t, err)

		id := uuid.New()
		err = enq.Enqueue(context.Background(), testPayload{Message: "hi"},
			queue.WithTaskID(id),
			queue.WithPriority(queue.PriorityHigh),
			queue.WithDelay(time.Minute),
		)
		require.NoError(t, err)

		task, err := store.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "notifications.email", task.Queue)
		assert.Equal(t, queue.PriorityHigh, task.Priority)
		assert.Equal(t, int8(5), task.MaxRetries)
		assert.Equal(t, "queue_test.testPayload", task.TaskName)
		assert.Equal(t, queue.TaskStatusPending, task.Status)
		assert.True(t, task.ScheduledAt.After(time.Now().Add(50*time.Second)))
		assert.JSONEq(t, `{"message":"hi","value":0}`, string(task.Payload))
	})

	t.Run("same task id is rejected as duplicate", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStorage(t)
		enq, err := queue.NewEnqueuer(store)
		require.NoError(t, err)

		id := uuid.New()
		require.NoError(t, enq.Enqueue(context.Background(), testPayload{}, queue.WithTaskID(id)))
		err = enq.Enqueue(context.Background(), testPayload{}, queue.WithTaskID(id))
		assert.ErrorIs(t, err, queue.ErrDuplicateTask)
		assert.Len(t, store.ListTasks(context.Background(), queue.DefaultQueueName), 1)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		enq, err := queue.NewEnqueuer(newMemoryStorage(t))
		require.NoError(t, err)

		assert.ErrorIs(t, enq.Enqueue(context.Background(), nil), queue.ErrPayloadNil)
		assert.ErrorIs(t, enq.Enqueue(context.Background(), testPayload{}, queue.WithPriority(101)), queue.ErrInvalidPriority)
	})

	t.Run("healthy follows repository ping", func(t *testing.T) {
		t.Parallel()
		store := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(store)
		require.NoError(t, err)

		assert.True(t, enq.Healthy(context.Background()))
		require.NoError(t, store.Close())
		assert.False(t, enq.Healthy(context.Background()))
	})
}
