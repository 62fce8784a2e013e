package kokoro

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/haivivi/kokoro/pkg/kokoro"

type synthMetrics struct {
	requests metric.Int64Counter
	elapsed  metric.Float64Histogram
	audio    metric.Float64Histogram
}

func newSynthMetrics(meter metric.Meter, logger *slog.Logger) *synthMetrics {
	m := &synthMetrics{}
	var err error
	if m.requests, err = meter.Int64Counter("kokoro.synthesis.requests",
		metric.WithDescription("Synthesis requests by outcome")); err != nil {
		logger.Warn("failed to initialize metric", slog.String("metric", "kokoro.synthesis.requests"), slog.String("error", err.Error()))
	}
	if m.elapsed, err = meter.Float64Histogram("kokoro.synthesis.duration",
		metric.WithDescription("Wall-clock synthesis time"), metric.WithUnit("s")); err != nil {
		logger.Warn("failed to initialize metric", slog.String("metric", "kokoro.synthesis.duration"), slog.String("error", err.Error()))
	}
	if m.audio, err = meter.Float64Histogram("kokoro.synthesis.audio_duration",
		metric.WithDescription("Duration of synthesized audio"), metric.WithUnit("s")); err != nil {
		logger.Warn("failed to initialize metric", slog.String("metric", "kokoro.synthesis.audio_duration"), slog.String("error", err.Error()))
	}
	return m
}

func (m *synthMetrics) record(ctx context.Context, device Device, elapsed, audio time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("device", string(device)),
	)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if err != nil {
		return
	}
	if m.elapsed != nil {
		m.elapsed.Record(ctx, elapsed.Seconds(), attrs)
	}
	if m.audio != nil {
		m.audio.Record(ctx, audio.Seconds(), attrs)
	}
}
