package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	authRegistrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Total number of user registrations",
		},
	)

	authOTPVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_verifications_total",
			Help: "OTP verification attempts by result",
		},
		[]string{"result"},
	)

	authOTPSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_sent_total",
			Help: "OTP deliveries handed to the SMS sender by outcome",
		},
		[]string{"outcome"},
	)

	authLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRegistration increments registration counter
func RecordRegistration() {
	authRegistrationsTotal.Inc()
}

// RecordOTPVerification counts a verify-otp outcome ("success", "invalid", "expired", "locked", ...)
func RecordOTPVerification(result string) {
	authOTPVerificationsTotal.WithLabelValues(result).Inc()
}

// RecordOTPSent counts an OTP handed to the sender
func RecordOTPSent(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	authOTPSentTotal.WithLabelValues(outcome).Inc()
}

// RecordLogin counts a login attempt
func RecordLogin(ok bool) {
	result := "success"
	if !ok {
		result = "failed"
	}
	authLoginsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimited counts a rejected request
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
