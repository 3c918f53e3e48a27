package audit

import (
	"context"
	"sync"
	"time"
)

type AsyncOptions struct {
	BufferSize     int           // queued events before Store falls back to a direct write
	BatchSize      int           // events per StoreBatch call
	BatchTimeout   time.Duration // max wait for a partial batch
	StorageTimeout time.Duration // per-batch write timeout
}

func (o *AsyncOptions) defaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 100 * time.Millisecond
	}
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = 5 * time.Second
	}
}

type pending struct {
	event  Event
	result chan error
}

// AsyncWriter collects events from concurrent Store calls into batches.
// Store still waits for its batch to be written.
type AsyncWriter struct {
	storage BatchStorage
	queue   chan pending
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	opts    AsyncOptions
}

func NewAsyncWriter(bs BatchStorage, opts AsyncOptions) (*AsyncWriter, func(context.Context) error) {
	if bs == nil {
		panic("audit: batch storage cannot be nil")
	}
	opts.defaults()

	w := &AsyncWriter{
		storage: bs,
		queue:   make(chan pending, opts.BufferSize),
		done:    make(chan struct{}),
		opts:    opts,
	}
	w.wg.Add(1)
	go w.loop()
	return w, w.Close
}

func (w *AsyncWriter) Store(ctx context.Context, event Event) error {
	select {
	case <-w.done:
		return ErrStorageNotAvailable
	default:
	}

	p := pending{event: event, result: make(chan error, 1)}
	select {
	case w.queue <- p:
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Buffer full: write through rather than drop.
		return w.storage.StoreBatch(ctx, []Event{event})
	}

	select {
	case err := <-p.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query is not supported on the writer; read through the underlying storage.
func (w *AsyncWriter) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	if s, ok := w.storage.(Storage); ok {
		return s.Query(ctx, criteria)
	}
	return nil, ErrStorageNotAvailable
}

func (w *AsyncWriter) loop() {
	defer w.wg.Done()

	batch := make([]pending, 0, w.opts.BatchSize)
	ticker := time.NewTicker(w.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		events := make([]Event, len(batch))
		for i, p := range batch {
			events[i] = p.event
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.opts.StorageTimeout)
		err := w.storage.StoreBatch(ctx, events)
		cancel()

		for _, p := range batch {
			p.result <- err
		}
		batch = batch[:0]
	}

	for {
		select {
		case p := <-w.queue:
			batch = append(batch, p)
			if len(batch) >= w.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			for {
				select {
				case p := <-w.queue:
					batch = append(batch, p)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes queued events. ctx bounds the wait.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.once.Do(func() { close(w.done) })

	flushed := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
