package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

type (
	// Handler processes the payload of tasks whose TaskName equals Name.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// TaskHandlerFunc handles a decoded one-time task payload
	TaskHandlerFunc[T any]  func(ctx context.Context, payload T) error
	// PeriodicTaskHandlerFunc handles a periodic task run
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

// NewTaskHandler binds fn to tasks enqueued with a T payload. The task name
// is the payload's qualified type name, matching what Enqueue derives.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var payload T
	return &oneTimeTaskHandler[T]{name: qualifiedStructName(payload), handler: fn}
}

// NewPeriodicTaskHandler binds fn to periodic tasks registered under name
func NewPeriodicTaskHandler(name string, fn PeriodicTaskHandlerFunc) Handler {
	return &periodicTaskHandler{name: name, handler: fn}
}

type oneTimeTaskHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *oneTimeTaskHandler[T]) Name() string { return h.name }

func (h *oneTimeTaskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.handler(ctx, t)
}

type periodicTaskHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
}

func (h *periodicTaskHandler) Name() string { return h.name }

func (h *periodicTaskHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.handler(ctx)
}
