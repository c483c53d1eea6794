package telemetry

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(original) })
	return recorder
}

func TestWithSpan(t *testing.T) {
	recorder := withRecorder(t)

	err := WithSpan(context.Background(), "fetch", func(ctx context.Context) error {
		AddEvent(ctx, "attempt")
		SetAttributes(ctx, attribute.Int("attempts", 1))
		return nil
	}, attribute.String("location", "base.md"))
	require.NoError(t, err)

	failure := errors.New("boom")
	err = WithSpan(context.Background(), "write", func(context.Context) error { return failure })
	assert.Equal(t, failure, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "fetch", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
	assert.Contains(t, spans[0].Attributes(), attribute.String("location", "base.md"))

	assert.Equal(t, "write", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), DefaultConfig("dev"))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), newSampler(Config{SamplerType: "never"}).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), newSampler(Config{}).Description())
	assert.Contains(t, newSampler(Config{SamplerType: "ratio", SamplerRatio: 0.5}).Description(), "TraceIDRatioBased")
}
