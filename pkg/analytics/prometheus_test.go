package analytics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSessionMetricsSource struct {
	values SessionMetricsValues
}

func (f *fakeSessionMetricsSource) Snapshot() SessionMetricsValues {
	return f.values
}

func TestSessionMetricsExporterExport(t *testing.T) {
	collector := NewInMemoryMetricsCollector()
	source := &fakeSessionMetricsSource{values: SessionMetricsValues{
		BytesSent:              1024,
		DatagramsSent:          10,
		DatagramsRetransmitted: 2,
		NacksServed:            2,
		NacksDroppedStale:      1,
		ControllerAccepted:     5,
		ControllerDropped:      1,
		ClipboardSends:         3,
		ClipboardRetries:       1,
		ClipboardAbandons:      0,
		EstimatedBandwidthKbps: 4000,
		LossX100:               150,
		JitterUs:               800,
	}}

	exporter := NewSessionMetricsExporter("sess-1", source, collector)
	exporter.Export()

	snapshot := collector.GetSnapshot()
	metric, ok := snapshot.Get("deskstream_bytes_sent_total_session_id:sess-1")
	if !ok {
		t.Fatal("expected bytes_sent metric to be recorded")
	}
	if metric.Value != 1024 {
		t.Fatalf("bytes_sent = %v, want 1024", metric.Value)
	}

	nackMetric, ok := snapshot.Get("deskstream_nacks_served_total_session_id:sess-1")
	if !ok {
		t.Fatal("expected nacks_served metric to be recorded")
	}
	if nackMetric.Value != 2 {
		t.Fatalf("nacks_served = %v, want 2", nackMetric.Value)
	}
}

func TestPrometheusExporterServeHTTP(t *testing.T) {
	registry := NewMetricsRegistry()
	collector := NewInMemoryMetricsCollector()
	collector.RecordCounter("deskstream_bytes_sent_total", 42, map[string]string{"session_id": "sess-1"})
	registry.Register("session", collector)

	exporter := NewPrometheusExporter(registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exporter.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "deskstream_bytes_sent_total") {
		t.Fatalf("expected body to contain metric name, got: %s", body)
	}
	if !strings.Contains(body, `session_id="sess-1"`) {
		t.Fatalf("expected body to contain session_id label, got: %s", body)
	}
}
