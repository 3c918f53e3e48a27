// Package ratelimit implements a sliding window rate limiter over an ordered
// per-key set.
//
// Each check trims entries older than the window, counts what remains, adds
// the new request and refreshes the key TTL in one pipelined round trip. A
// request is allowed when the count measured before the add is below the
// limit; denied requests are removed again so they do not count against later
// windows.
//
// The limiter fails open: if the store is unreachable the request is allowed
// and the error is logged. Guard layers named domains (tenant creation,
// tenant join, invitation acceptance, notification category) on top of one
// SlidingWindow and reports denials as *ExceededError carrying retry-after.
//
//	store := ratelimit.NewRedisStore(rdb)
//	sw, _ := ratelimit.NewSlidingWindow(store, ratelimit.WithLogger(log))
//	guard := ratelimit.NewGuard(sw, ratelimit.WithRule(ratelimit.DomainTenantJoin,
//	    ratelimit.Rule{Window: time.Hour, MaxRequests: 10}))
//
//	if err := guard.Enforce(ctx, ratelimit.DomainTenantJoin, userID); err != nil {
//	    var exceeded *ratelimit.ExceededError
//	    if errors.As(err, &exceeded) { ... exceeded.RetryAfterSeconds() ... }
//	}
package ratelimit
