package analytics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// PrometheusExporter exports metrics in Prometheus format
type PrometheusExporter struct {
	registry *MetricsRegistry
	mu       sync.RWMutex
}

// NewPrometheusExporter creates a new Prometheus exporter
func NewPrometheusExporter(registry *MetricsRegistry) *PrometheusExporter {
	return &PrometheusExporter{
		registry: registry,
	}
}

// ServeHTTP serves metrics in Prometheus format
func (pe *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics := pe.collectMetrics()
	output := pe.formatPrometheusMetrics(metrics)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(output))
}

// collectMetrics collects all metrics from the registry
func (pe *PrometheusExporter) collectMetrics() []Metric {
	pe.mu.RLock()
	defer pe.mu.RUnlock()

	var allMetrics []Metric

	if pe.registry != nil {
		snapshots := pe.registry.GetAllSnapshots()
		for _, snapshot := range snapshots {
			for _, metric := range snapshot.GetAll() {
				allMetrics = append(allMetrics, metric)
			}
		}
	}

	return allMetrics
}

// formatPrometheusMetrics formats metrics in Prometheus exposition format
func (pe *PrometheusExporter) formatPrometheusMetrics(metrics []Metric) string {
	var sb strings.Builder

	// Group metrics by name
	metricsByName := make(map[string][]Metric)
	for _, metric := range metrics {
		metricsByName[metric.Name] = append(metricsByName[metric.Name], metric)
	}

	// Sort metric names for consistent output
	names := make([]string, 0, len(metricsByName))
	for name := range metricsByName {
		names = append(names, name)
	}
	sort.Strings(names)

	// Format each metric group
	for _, name := range names {
		metricsGroup := metricsByName[name]
		if len(metricsGroup) == 0 {
			continue
		}

		// Write HELP line (if available)
		if metricsGroup[0].Help != "" {
			sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, metricsGroup[0].Help))
		}

		// Write TYPE line
		prometheusType := pe.convertMetricType(metricsGroup[0].Type)
		sb.WriteString(fmt.Sprintf("# TYPE %s %s\n", name, prometheusType))

		// Write metric lines
		for _, metric := range metricsGroup {
			sb.WriteString(pe.formatMetricLine(metric))
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

// convertMetricType converts internal metric type to Prometheus type
func (pe *PrometheusExporter) convertMetricType(metricType MetricType) string {
	switch metricType {
	case MetricTypeCounter:
		return "counter"
	case MetricTypeGauge:
		return "gauge"
	case MetricTypeHistogram:
		return "histogram"
	case MetricTypeSummary:
		return "summary"
	default:
		return "untyped"
	}
}

// formatMetricLine formats a single metric line in Prometheus format
func (pe *PrometheusExporter) formatMetricLine(metric Metric) string {
	var sb strings.Builder

	// Metric name
	sb.WriteString(metric.Name)

	// Labels
	if len(metric.Labels) > 0 {
		sb.WriteString(pe.formatLabels(metric.Labels))
	}

	// Value
	sb.WriteString(fmt.Sprintf(" %v", metric.Value))

	// Timestamp (optional, in milliseconds)
	if !metric.Timestamp.IsZero() {
		sb.WriteString(fmt.Sprintf(" %d", metric.Timestamp.UnixMilli()))
	}

	sb.WriteString("\n")

	// For histogram/summary, also output additional metrics
	if metric.Type == MetricTypeHistogram && metric.Metadata != nil {
		if count, ok := metric.Metadata["count"].(int); ok {
			sb.WriteString(fmt.Sprintf("%s_count", metric.Name))
			if len(metric.Labels) > 0 {
				sb.WriteString(pe.formatLabels(metric.Labels))
			}
			sb.WriteString(fmt.Sprintf(" %d\n", count))
		}

		if sum, ok := metric.Metadata["sum"].(float64); ok {
			sb.WriteString(fmt.Sprintf("%s_sum", metric.Name))
			if len(metric.Labels) > 0 {
				sb.WriteString(pe.formatLabels(metric.Labels))
			}
			sb.WriteString(fmt.Sprintf(" %v\n", sum))
		}
	}

	return sb.String()
}

// formatLabels formats labels in Prometheus format
func (pe *PrometheusExporter) formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("{")

	// Sort labels for consistent output
	labelKeys := make([]string, 0, len(labels))
	for k := range labels {
		labelKeys = append(labelKeys, k)
	}
	sort.Strings(labelKeys)

	first := true
	for _, k := range labelKeys {
		if !first {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf("%s=\"%s\"", k, escapeString(labels[k])))
		first = false
	}

	sb.WriteString("}")
	return sb.String()
}

// escapeString escapes special characters in label values
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
func (pe *PrometheusExporter) PrometheusHandler() http.Handler {
	return http.HandlerFunc(pe.ServeHTTP)
}

// SessionMetricsExporter exports the running Session's transport, controller,
// and clipboard counters to a MetricsCollector, for Prometheus scraping.
type SessionMetricsExporter struct {
	source    SessionMetricsSource
	collector MetricsCollector
	sessionID string
	exported  SessionMetricsValues // counter values already recorded
}

// SessionMetricsSource is the subset of Session the exporter needs. Defined
// here (rather than imported) so this package has no dependency on the
// transport/gamepad/clipboard packages.
type SessionMetricsSource interface {
	Snapshot() SessionMetricsValues
}

// SessionMetricsValues is one point-in-time read of a session's counters.
type SessionMetricsValues struct {
	BytesSent              uint64
	DatagramsSent          uint64
	DatagramsRetransmitted uint64
	NacksServed            uint64
	NacksDroppedStale      uint64
	ControllerAccepted     uint64
	ControllerDropped      uint64
	ClipboardSends         uint64
	ClipboardRetries       uint64
	ClipboardAbandons      uint64
	EstimatedBandwidthKbps int32
	LossX100               int32
	JitterUs               int32
}

// NewSessionMetricsExporter creates an exporter for one session, labeling
// every emitted metric with session_id.
func NewSessionMetricsExporter(sessionID string, source SessionMetricsSource, collector MetricsCollector) *SessionMetricsExporter {
	return &SessionMetricsExporter{
		source:    source,
		collector: collector,
		sessionID: sessionID,
	}
}

// Export reads the current snapshot and records it into the collector.
func (e *SessionMetricsExporter) Export() {
	v := e.source.Snapshot()
	labels := map[string]string{"session_id": e.sessionID}

	// The snapshot holds cumulative totals and RecordCounter adds, so only
	// the growth since the previous Export is recorded.
	p := e.exported
	e.exported = v

	e.collector.RecordCounter("deskstream_bytes_sent_total", float64(v.BytesSent-p.BytesSent), labels)
	e.collector.RecordCounter("deskstream_datagrams_sent_total", float64(v.DatagramsSent-p.DatagramsSent), labels)
	e.collector.RecordCounter("deskstream_datagrams_retransmitted_total", float64(v.DatagramsRetransmitted-p.DatagramsRetransmitted), labels)
	e.collector.RecordCounter("deskstream_nacks_served_total", float64(v.NacksServed-p.NacksServed), labels)
	e.collector.RecordCounter("deskstream_nacks_dropped_stale_total", float64(v.NacksDroppedStale-p.NacksDroppedStale), labels)
	e.collector.RecordCounter("deskstream_controller_accepted_total", float64(v.ControllerAccepted-p.ControllerAccepted), labels)
	e.collector.RecordCounter("deskstream_controller_dropped_total", float64(v.ControllerDropped-p.ControllerDropped), labels)
	e.collector.RecordCounter("deskstream_clipboard_sends_total", float64(v.ClipboardSends-p.ClipboardSends), labels)
	e.collector.RecordCounter("deskstream_clipboard_retries_total", float64(v.ClipboardRetries-p.ClipboardRetries), labels)
	e.collector.RecordCounter("deskstream_clipboard_abandons_total", float64(v.ClipboardAbandons-p.ClipboardAbandons), labels)
	e.collector.RecordGauge("deskstream_estimated_bandwidth_kbps", float64(v.EstimatedBandwidthKbps), labels)
	e.collector.RecordGauge("deskstream_loss_x100", float64(v.LossX100), labels)
	e.collector.RecordGauge("deskstream_jitter_us", float64(v.JitterUs), labels)
}

// StartPeriodicExport runs Export on a fixed interval until the returned
// channel is closed.
func (e *SessionMetricsExporter) StartPeriodicExport(interval time.Duration) chan struct{} {
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.Export()
			case <-stop:
				return
			}
		}
	}()

	return stop
}
