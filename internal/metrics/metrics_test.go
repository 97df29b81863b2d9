package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/promotions", "200"))
	RecordHTTPRequest("GET", "/api/v1/promotions", "200", 0.05)

	count := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/promotions", "200"))
	assert.Equal(t, before+1, count)
}

func TestRecordSettlementBatch(t *testing.T) {
	accept := testutil.ToFloat64(SettledIntentsTotal.WithLabelValues("accept"))
	reject := testutil.ToFloat64(SettledIntentsTotal.WithLabelValues("reject"))

	RecordSettlementBatch("confirmed", 2, 1, 0)

	assert.Equal(t, accept+2, testutil.ToFloat64(SettledIntentsTotal.WithLabelValues("accept")))
	assert.Equal(t, reject+1, testutil.ToFloat64(SettledIntentsTotal.WithLabelValues("reject")))
}

func TestRecordVerifierDecision(t *testing.T) {
	before := testutil.ToFloat64(VerifierDecisionsTotal.WithLabelValues("heuristic", "true"))
	RecordVerifierDecision("heuristic", true)
	assert.Equal(t, before+1, testutil.ToFloat64(VerifierDecisionsTotal.WithLabelValues("heuristic", "true")))
}
