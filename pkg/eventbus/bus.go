package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Event is anything with a stable name.
type Event interface {
	EventName() string
}

type Handler func(ctx context.Context, event Event) error

// Publisher is the side of the bus producers depend on.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
	logger   *slog.Logger
}

type Option func(*Bus)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string][]Handler),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(logger.Component("eventbus"))
	return b
}

// Subscribe registers h for events named name.
func (b *Bus) Subscribe(name string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// SubscribeAll registers h for every event. Such handlers run after the
// named ones.
func (b *Bus) SubscribeAll(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// On registers a handler for the event type E.
func On[E Event](b *Bus, fn func(ctx context.Context, event E) error) {
	var zero E
	b.Subscribe(zero.EventName(), func(ctx context.Context, event Event) error {
		e, ok := event.(E)
		if !ok {
			return fmt.Errorf("eventbus: unexpected payload %T for %s", event, event.EventName())
		}
		return fn(ctx, e)
	})
}

func (b *Bus) Publish(ctx context.Context, event Event) {
	if event == nil {
		return
	}
	name := event.EventName()

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[name])+len(b.all))
	hs = append(hs, b.handlers[name]...)
	hs = append(hs, b.all...)
	b.mu.RUnlock()

	for _, h := range hs {
		if err := b.invoke(ctx, h, event); err != nil {
			b.logger.ErrorContext(ctx, "event handler failed",
				logger.Event(name),
				logger.Error(err))
		}
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in event handler: %v", r)
		}
	}()
	return h(ctx, event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
