// Package metrics exposes delivery metrics in Prometheus format.
//
// A Recorder owns its collectors and registers them on the given registerer,
// so tests can use a private registry. Wiring code feeds it from delivery
// events, queue dead-letter hooks and rate-limit rejections.
package metrics
