// Package queue is a storage-agnostic task queue used for asynchronous
// notification delivery.
//
// Three components talk to storage only through small repository interfaces:
//
//   - Enqueuer adds one-time tasks. WithTaskID gives a task a deterministic id
//     so enqueueing the same logical job twice yields ErrDuplicateTask instead
//     of a second delivery.
//   - Worker claims pending tasks from its queues, highest priority first, and
//     dispatches them to a Handler. A failing handler puts the task back with a
//     linear backoff; once the retry budget is spent the task moves to the dead
//     letter queue.
//   - Scheduler turns a Schedule (intervals, daily/weekly times, cron specs)
//     into periodic tasks.
//
// MemoryStorage backs tests and local development. PostgresStorage claims
// with FOR UPDATE SKIP LOCKED so any number of worker processes can share one
// database.
//
//	enq, _ := queue.NewEnqueuer(store)
//	_ = enq.Enqueue(ctx, EmailJob{...},
//	    queue.WithQueue("notifications.email"),
//	    queue.WithPriority(queue.PriorityHigh),
//	    queue.WithTaskID(id),
//	)
//
//	w, _ := queue.NewWorker(store, queue.WithQueues("notifications.email"))
//	_ = w.RegisterHandler(queue.NewTaskHandler(sendEmail))
//	g.Go(w.Run(ctx))
package queue
