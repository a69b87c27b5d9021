package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOTPVerification(t *testing.T) {
	before := testutil.ToFloat64(authOTPVerificationsTotal.WithLabelValues("invalid"))
	RecordOTPVerification("invalid")
	assert.Equal(t, before+1, testutil.ToFloat64(authOTPVerificationsTotal.WithLabelValues("invalid")))
}

func TestRecordLogin(t *testing.T) {
	before := testutil.ToFloat64(authLoginsTotal.WithLabelValues("failed"))
	RecordLogin(false)
	assert.Equal(t, before+1, testutil.ToFloat64(authLoginsTotal.WithLabelValues("failed")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	RecordHTTPRequest("POST", "/api/v1/auth/register", 201, 10*time.Millisecond)
	RecordRegistration()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "auth_registrations_total")
	assert.Contains(t, body, `http_requests_total{endpoint="/api/v1/auth/register",method="POST",status="201"}`)
}
