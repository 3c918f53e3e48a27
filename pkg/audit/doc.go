// Package audit records who did what to which resource, scoped by tenant.
//
// A Logger fills tenant and user ids from the context through extractors and
// writes Events to a Storage. MemoryStorage serves tests; MongoStorage keeps
// the trail in a MongoDB collection. WithAsync batches writes through an
// AsyncWriter when the storage supports StoreBatch.
//
//	l := audit.NewLogger(store,
//		audit.WithTenantIDExtractor(tenantIDFromContext),
//	)
//	_ = l.Log(ctx, "notification.deleted", audit.WithResource("notification", id))
package audit
