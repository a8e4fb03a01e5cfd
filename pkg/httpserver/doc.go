// Package httpserver runs the notifyd HTTP surface with context-driven
// graceful shutdown, env-driven timeouts and a JSON health check handler.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("http server stopped", logger.Error(err))
//	}
//
// Run returns when ctx is cancelled and in-flight requests have drained or
// the shutdown timeout elapsed. Listen errors are joined with ErrStart and
// shutdown errors with ErrShutdown.
package httpserver
