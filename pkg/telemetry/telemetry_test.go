package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetricsIdempotent(t *testing.T) {
	InitMetrics()
	InitMetrics()

	AlertsEmitted.WithLabelValues("heart_rate").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "vitals_alerts_emitted_total" {
			found = true
			assert.GreaterOrEqual(t, mf.GetMetric()[0].GetCounter().GetValue(), 1.0)
		}
	}
	assert.True(t, found)

	err = prometheus.DefaultRegisterer.Register(AlertsEmitted)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}

func TestInitTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer(&buf)
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "monitor.apply")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "monitor.apply")
	assert.Contains(t, buf.String(), ServiceName)
}
