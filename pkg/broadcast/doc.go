// Package broadcast fans typed messages out to in-process subscribers.
//
// Delivery never blocks the publisher: a subscriber whose buffer is full
// misses the message and is dropped, so transports must drain promptly and
// resubscribe after their channel closes.
//
//	b := broadcast.NewMemoryBroadcaster[Event](16)
//	sub := b.Subscribe(ctx)
//	for ev := range sub.C() {
//		write(ev)
//	}
package broadcast
