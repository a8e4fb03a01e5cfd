// Package logger builds slog loggers for notifykit processes.
//
// New applies functional options and wraps the chosen handler (JSON or text)
// with LogHandlerDecorator, which adds attributes pulled from the context of
// each log call:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.AppEnv, "notifyd"),
//		logger.WithContextExtractors(logger.RecordExtractor()),
//	)
//
//	ctx = logger.WithRecord(ctx, logger.RecordID(rec.ID), logger.Channel(rec.Channel))
//	log.InfoContext(ctx, "notification sent", logger.Duration(d))
//
// Attribute helpers (RecordID, NotificationType, Channel, Attempts, Error, ...)
// keep key names consistent across packages. Error and Errors return an empty
// Attr for nil errors so they can be passed unconditionally.
package logger
