package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Togather-Foundation/eventproxy/internal/config"
)

func resetGlobals(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestInitTracing_Disabled(t *testing.T) {
	resetGlobals(t)
	otel.SetTracerProvider(noop.NewTracerProvider())

	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestInitTracing_StdoutWriter(t *testing.T) {
	resetGlobals(t)
	var buf bytes.Buffer

	shutdown, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		ServiceName: "eventproxy-test",
		SampleRate:  1.0,
	}, "test", WithStdoutWriter(&buf))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "traced")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"traced"`)
}

func TestInitTracing_Errors(t *testing.T) {
	resetGlobals(t)

	_, err := InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: 2}, "test")
	assert.ErrorContains(t, err, "invalid sample rate")

	_, err = InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "zipkin", SampleRate: 1}, "test")
	assert.ErrorContains(t, err, "unsupported exporter")

	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: 0.5}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
