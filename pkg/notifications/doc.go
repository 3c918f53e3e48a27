// Package notifications delivers tenant-scoped notifications over in-app,
// email and SMS channels.
//
// # Architecture
//
//   - Channel: one delivery mechanism with Send, Validate, IsAvailable and Type
//   - Registry: static lookup from ChannelType to Channel
//   - PreferenceResolver: which channels a user wants for a category
//   - Manager: creates the notification and fans out to enabled channels
//   - DeliveryWorker: consumes email and SMS jobs and calls the provider
//
// Email and SMS are asynchronous. Their Send creates a PENDING delivery log,
// enqueues a job and reports the notification as accepted. The worker later
// moves the log to SENT or FAILED and returns the provider error so the queue
// retries. A retry reuses the same delivery log row and bumps Attempts.
//
// # Basic Usage
//
//	storage := notifications.NewMemoryStorage()
//	registry := notifications.NewRegistry(
//	    notifications.NewInAppChannel(storage, emitter),
//	    notifications.NewEmailChannel(storage, recipients, enqueuer),
//	)
//	manager := notifications.NewManager(storage, registry,
//	    notifications.NewPreferenceResolver(storage),
//	)
//
//	ctx = tenant.WithID(ctx, tenantID)
//	n, err := manager.Create(ctx, notifications.CreateInput{
//	    UserID:   "user-1",
//	    Category: notifications.CategorySecurity,
//	    Type:     notifications.TypeWarning,
//	    Title:    "New sign-in",
//	    Message:  "We noticed a sign-in from a new device.",
//	})
//
// Create fails only when the tenant is missing from the context, the rate
// limit is exceeded or the notification row cannot be written. Channel
// failures are reported per channel by CreateWithResults and never undo the
// notification.
//
// # Transport Integration
//
// BroadcastEmitter keeps an in-memory broadcaster per tenant user. SSE or
// WebSocket handlers call Subscribe and forward RealtimeEvent values.
package notifications
