// Package httpserver runs the operational HTTP endpoints of a service:
// health checks, metrics and any internal routes mounted by the caller.
//
// Server wraps http.Server with context driven shutdown. Run blocks until the
// context is cancelled and then shuts down within the configured timeout, so
// it fits an errgroup next to queue workers:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// LivenessHandler answers as long as the process serves requests.
// ReadinessHandler runs named dependency checks and reports each result as
// JSON, returning 503 when any of them fails.
//
// Run wraps listen errors with ErrStart and Shutdown wraps shutdown errors
// with ErrShutdown.
package httpserver
