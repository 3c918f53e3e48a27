package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notifykit"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

type Recorder struct {
	gatherer prometheus.Gatherer

	notificationsCreated *prometheus.CounterVec
	channelAttempts      *prometheus.CounterVec
	channelSkips         *prometheus.CounterVec
	deliveries           *prometheus.CounterVec
	providerDuration     *prometheus.HistogramVec
	jobDuration          *prometheus.HistogramVec
	deadLetters          *prometheus.CounterVec
	rateLimitRejections  *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		notificationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Notifications persisted, by category.",
		}, []string{"category"}),
		channelAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_attempts_total",
			Help:      "Channel send attempts during dispatch, by channel and status.",
		}, []string{"channel", "status"}),
		channelSkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_skips_total",
			Help:      "Channels skipped during dispatch, by channel and reason.",
		}, []string{"channel", "reason"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Provider deliveries by channel, provider and status.",
		}, []string{"channel", "provider", "status"}),
		providerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_send_duration_seconds",
			Help:      "Latency of provider send calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel", "provider"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_job_duration_seconds",
			Help:      "Time spent processing one delivery job.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel", "status"}),
		deadLetters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dead_letters_total",
			Help:      "Tasks moved to the dead letter queue.",
		}, []string{"queue"}),
		rateLimitRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter, by domain.",
		}, []string{"domain"}),
	}
}

func (r *Recorder) NotificationCreated(category string) {
	r.notificationsCreated.WithLabelValues(category).Inc()
}

func (r *Recorder) ChannelAttempt(channel string, success bool) {
	r.channelAttempts.WithLabelValues(channel, status(success)).Inc()
}

func (r *Recorder) ChannelSkipped(channel, reason string) {
	r.channelSkips.WithLabelValues(channel, reason).Inc()
}

// Delivery records one provider call.
func (r *Recorder) Delivery(channel, provider string, success bool, took time.Duration) {
	r.deliveries.WithLabelValues(channel, provider, status(success)).Inc()
	if took > 0 {
		r.providerDuration.WithLabelValues(channel, provider).Observe(took.Seconds())
	}
}

func (r *Recorder) JobProcessed(channel string, success bool, took time.Duration) {
	r.jobDuration.WithLabelValues(channel, status(success)).Observe(took.Seconds())
}

func (r *Recorder) DeadLettered(queue string) {
	r.deadLetters.WithLabelValues(queue).Inc()
}

func (r *Recorder) RateLimitRejected(domain string) {
	r.rateLimitRejections.WithLabelValues(domain).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func status(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusFailure
}
