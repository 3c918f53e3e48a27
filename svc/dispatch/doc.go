// Package dispatch composes the notification engine into a runnable service.
//
// New builds every component by constructor from Config and the connections
// passed as options. Connections that are not supplied fall back to the
// in-memory implementations, which keeps tests and local runs free of
// infrastructure:
//
//	app, err := dispatch.New(ctx, cfg,
//		dispatch.WithLogger(log),
//		dispatch.WithPostgres(pool),
//		dispatch.WithRedis(rdb),
//	)
//	if err != nil { ... }
//	defer app.Close(context.Background())
//
//	n, err := app.Manager().Create(tenant.WithID(ctx, tenantID), notifications.CreateInput{...})
//
// Run starts the email and SMS workers, the scheduler that purges
// notifications past their retention date and the ops HTTP server, and blocks
// until ctx is cancelled or one of them fails.
package dispatch
