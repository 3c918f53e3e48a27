package audit

import (
	"context"
	"fmt"
	"time"
)

type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultError   Result = "error"
)

type Event struct {
	ID         string         `json:"id" bson:"_id"`
	TenantID   string         `json:"tenant_id" bson:"tenant_id"`
	UserID     string         `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Action     string         `json:"action" bson:"action"`
	Resource   string         `json:"resource,omitempty" bson:"resource,omitempty"`
	ResourceID string         `json:"resource_id,omitempty" bson:"resource_id,omitempty"`
	Result     Result         `json:"result" bson:"result"`
	Error      string         `json:"error,omitempty" bson:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
}

func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

type EventOption func(*Event)

func WithResource(resource, id string) EventOption {
	return func(e *Event) {
		e.Resource = resource
		e.ResourceID = id
	}
}

func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

func WithResult(result Result) EventOption {
	return func(e *Event) {
		e.Result = result
	}
}

// WithUserID overrides the user taken from the context.
func WithUserID(userID string) EventOption {
	return func(e *Event) {
		e.UserID = userID
	}
}

// Criteria filters Find and Count. Zero fields match everything.
type Criteria struct {
	TenantID   string
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	Result     Result
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
	Offset     int
}

func (c Criteria) matches(e Event) bool {
	switch {
	case c.TenantID != "" && e.TenantID != c.TenantID,
		c.UserID != "" && e.UserID != c.UserID,
		c.Action != "" && e.Action != c.Action,
		c.Resource != "" && e.Resource != c.Resource,
		c.ResourceID != "" && e.ResourceID != c.ResourceID,
		c.Result != "" && e.Result != c.Result,
		!c.StartTime.IsZero() && e.CreatedAt.Before(c.StartTime),
		!c.EndTime.IsZero() && !e.CreatedAt.Before(c.EndTime):
		return false
	}
	return true
}

type Storage interface {
	Store(ctx context.Context, event Event) error
	// Query returns matching events, newest first.
	Query(ctx context.Context, criteria Criteria) ([]Event, error)
}

// BatchStorage is implemented by storages that insert many events at once.
type BatchStorage interface {
	StoreBatch(ctx context.Context, events []Event) error
}

// Counter is implemented by storages with a native count.
type Counter interface {
	Count(ctx context.Context, criteria Criteria) (int64, error)
}

type Logger interface {
	Log(ctx context.Context, action string, opts ...EventOption) error
	LogError(ctx context.Context, action string, err error, opts ...EventOption) error
}

type Reader interface {
	Find(ctx context.Context, criteria Criteria) ([]Event, error)
	Count(ctx context.Context, criteria Criteria) (int64, error)
}
