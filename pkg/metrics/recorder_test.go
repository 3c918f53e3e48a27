package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/metrics"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	rec := metrics.New(prometheus.NewRegistry())
	rec.NotificationCreated("billing")
	rec.ChannelAttempt("EMAIL", true)
	rec.ChannelAttempt("SMS", false)
	rec.ChannelSkipped("SMS", "unavailable")
	rec.Delivery("EMAIL", "postmark", true, 120*time.Millisecond)
	rec.JobProcessed("EMAIL", true, 150*time.Millisecond)
	rec.DeadLettered("notifications.sms")
	rec.RateLimitRejected("notification")

	srv := httptest.NewServer(rec.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `notifykit_notifications_created_total{category="billing"} 1`)
	assert.Contains(t, out, `notifykit_channel_attempts_total{channel="EMAIL",status="success"} 1`)
	assert.Contains(t, out, `notifykit_channel_attempts_total{channel="SMS",status="failure"} 1`)
	assert.Contains(t, out, `notifykit_channel_skips_total{channel="SMS",reason="unavailable"} 1`)
	assert.Contains(t, out, `notifykit_deliveries_total{channel="EMAIL",provider="postmark",status="success"} 1`)
	assert.Contains(t, out, `notifykit_provider_send_duration_seconds_count{channel="EMAIL",provider="postmark"} 1`)
	assert.Contains(t, out, `notifykit_queue_dead_letters_total{queue="notifications.sms"} 1`)
	assert.Contains(t, out, `notifykit_rate_limit_rejections_total{domain="notification"} 1`)
}
