package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDispatch(t *testing.T) {
	before := testutil.ToFloat64(DispatchTotal.WithLabelValues("metrics-test", "success"))
	delivered := testutil.ToFloat64(RecipientsDelivered.WithLabelValues("metrics-test"))

	RecordDispatch("metrics-test", "success", 2, 150*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(DispatchTotal.WithLabelValues("metrics-test", "success")))
	assert.Equal(t, delivered+2, testutil.ToFloat64(RecipientsDelivered.WithLabelValues("metrics-test")))
}

func TestRecordWebhook(t *testing.T) {
	before := testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("metrics-test", "unknown"))
	RecordWebhookEvent("metrics-test", "")
	assert.Equal(t, before+1, testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("metrics-test", "unknown")))

	rejected := testutil.ToFloat64(WebhookRejectionsTotal.WithLabelValues("metrics-test", "signature"))
	RecordWebhookRejection("metrics-test", "signature")
	assert.Equal(t, rejected+1, testutil.ToFloat64(WebhookRejectionsTotal.WithLabelValues("metrics-test", "signature")))
}

func TestGauges(t *testing.T) {
	SetJobsScheduled(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(JobsScheduled))

	SetBreakerState("metrics-test", 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(BreakerState.WithLabelValues("metrics-test")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordJob("sent")

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sms_jobs_total")
}
