// Package tenant carries the tenant identity through context.Context.
//
// Every delivery operation is tenant scoped. Callers attach the tenant with
// WithTenant or WithID before invoking the engine; storage and channels read it
// back with RequireID, which fails with ErrNoTenantInContext instead of falling
// back to any ambient default. Queue workers re-establish the context from the
// tenant id stored in each job.
package tenant
