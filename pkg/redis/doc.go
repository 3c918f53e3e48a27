// Package redis connects to the Redis instance that holds the shared rate
// limit windows. It only handles connection setup and health checks; the
// sorted set logic lives in pkg/ratelimit.
package redis
