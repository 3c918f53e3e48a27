// Package eventbus is a typed, synchronous in-process event bus.
//
// Handlers are registered by event name and run in registration order in the
// publisher's goroutine. A failing or panicking handler is logged and does
// not stop the remaining handlers, and Publish never returns handler errors.
//
//	bus := eventbus.New(eventbus.WithLogger(log))
//	eventbus.On(bus, func(ctx context.Context, e DeliverySucceeded) error {
//		return index(ctx, e)
//	})
//	bus.Publish(ctx, DeliverySucceeded{...})
package eventbus
