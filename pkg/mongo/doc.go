// Package mongo connects to MongoDB with retries and exposes a readiness
// check. The audit trail is its main consumer.
package mongo
