package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIngestCounters(t *testing.T) {
	before := testutil.ToFloat64(TradesStored.WithLabelValues("TESTUSDT"))
	TradesStored.WithLabelValues("TESTUSDT").Inc()
	TradesStored.WithLabelValues("TESTUSDT").Inc()
	if got := testutil.ToFloat64(TradesStored.WithLabelValues("TESTUSDT")) - before; got != 2 {
		t.Errorf("expected 2 stored trades, got %f", got)
	}

	PipelineErrors.WithLabelValues("TESTUSDT", "parse").Inc()
	if testutil.ToFloat64(PipelineErrors.WithLabelValues("TESTUSDT", "parse")) < 1 {
		t.Errorf("parse error counter not incremented")
	}
}

func TestRecordJoin(t *testing.T) {
	RecordJoin(5, 2, 1)
	if testutil.ToFloat64(RegressionJoinedRows) != 5 {
		t.Errorf("joined rows = %f, want 5", testutil.ToFloat64(RegressionJoinedRows))
	}
	if testutil.ToFloat64(RegressionDroppedRows.WithLabelValues("dependent")) != 2 {
		t.Errorf("dropped dependent rows mismatch")
	}
	if testutil.ToFloat64(RegressionDroppedRows.WithLabelValues("independent")) != 1 {
		t.Errorf("dropped independent rows mismatch")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RegressionSlope.Set(2)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "pairregress_regression_slope 2") {
		t.Errorf("slope gauge missing from exposition")
	}
}

func TestNewServer(t *testing.T) {
	if srv := NewServer(""); srv != nil {
		t.Errorf("empty addr should not build a server")
	}
	srv := NewServer("127.0.0.1:9100")
	if srv == nil || srv.Addr != "127.0.0.1:9100" {
		t.Fatalf("unexpected server: %+v", srv)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "pairregress_") {
		t.Errorf("/metrics not served: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != 404 {
		t.Errorf("only /metrics should be mounted, got %d", rec.Code)
	}
}
