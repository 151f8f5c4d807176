package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitializeDisabled(t *testing.T) {
	shutdown, err := Initialize(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{Enabled: true, Protocol: "grpc", SampleRate: 1}.Validate())
	assert.Error(t, Config{Enabled: true, Protocol: "udp", SampleRate: 1}.Validate())
	assert.Error(t, Config{Enabled: true, Protocol: "http", SampleRate: 1.5}.Validate())
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders("authorization=Bearer abc, x-tenant=lab ,broken,=empty")
	assert.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "lab",
	}, got)
	assert.Empty(t, ParseHeaders(""))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestStartSpanUsesGlobalProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "snapshot.Assemble")
	SetStatusError(span, "2 sections failed")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "snapshot.Assemble", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}
