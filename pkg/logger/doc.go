// Package logger builds *slog.Logger instances for notifykit services.
//
// New returns a logger whose handler is wrapped by LogHandlerDecorator, so any
// ContextExtractor registered with WithContextExtractors contributes attributes
// (for example the tenant id) to every record logged with a context.
//
// Attribute helpers in attr.go keep key names consistent across packages:
//
//	log.InfoContext(ctx, "channel.success",
//	    logger.Channel("EMAIL"),
//	    logger.NotificationID(n.ID),
//	    logger.Duration(time.Since(start)),
//	)
//
// Error and the id helpers return an empty slog.Attr for zero values, which
// slog silently drops.
package logger
