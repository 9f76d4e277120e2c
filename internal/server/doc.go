// Package server runs the exact-line query listener.
//
// Architecture:
//   - Server: binds the listener and runs the accept loop
//   - Dispatcher: schedules each accepted connection (goroutine per
//     connection, or a fixed worker pool with a bounded queue)
//   - RateLimiter: optional token bucket per remote IP, checked at accept
//   - Handler: one query per connection, one response line, then close
//   - Metrics: prometheus collectors plus verdict totals for the admin API
//
// Usage:
//
//	srv, err := server.New(server.Options{
//	    Config:    cfg,
//	    Store:     store,
//	    Auth:      authenticator,
//	    Transport: wrapper,
//	    Metrics:   server.NewMetrics(prometheus.DefaultRegisterer),
//	    Logger:    logger,
//	})
//	if err := srv.Listen(); err != nil { ... }
//	go srv.Serve(ctx)
//	...
//	srv.Shutdown(shutdownCtx)
//
// A connection rejected by the rate limiter or by admission control receives
// the busy response on plain TCP and is closed without a response under TLS.
package server
