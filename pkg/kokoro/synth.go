package kokoro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Phonemizer converts text in a language to phoneme symbols.
type Phonemizer interface {
	Phonemize(ctx context.Context, text, language string) ([]string, error)
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// WithInferenceTimeout bounds each model call. Zero means no deadline.
func WithInferenceTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.timeout = d }
}

// WithMeterProvider sets the meter provider. The default is the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Synthesizer) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider. The default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Synthesizer) { s.tracerProvider = tp }
}

// Synthesizer turns text into audio. It is safe for concurrent use; the
// voice table and session it holds are shared read-only.
type Synthesizer struct {
	phonemizer Phonemizer
	voices     *VoiceTable
	session    *Session

	timeout        time.Duration
	logger         *slog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	tracer  trace.Tracer
	metrics *synthMetrics
}

// NewSynthesizer returns a Synthesizer. A nil session is accepted and makes
// every synthesis fail with ErrSessionNotReady.
func NewSynthesizer(p Phonemizer, voices *VoiceTable, session *Session, opts ...Option) (*Synthesizer, error) {
	if p == nil {
		return nil, errors.New("kokoro: nil phonemizer")
	}
	if voices == nil {
		return nil, fmt.Errorf("%w: nil voice table", ErrLoad)
	}
	s := &Synthesizer{
		phonemizer: p,
		voices:     voices,
		session:    session,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	s.metrics = newSynthMetrics(s.meterProvider.Meter(instrumentationName), s.logger)
	return s, nil
}

// Voices returns the voice table.
func (s *Synthesizer) Voices() *VoiceTable {
	return s.voices
}

// Session returns the model session, which may be nil.
func (s *Synthesizer) Session() *Session {
	return s.session
}

// Result describes a synthesized file.
type Result struct {
	Path          string
	Samples       int
	AudioDuration time.Duration
	Elapsed       time.Duration
	Phonemes      string
}

// Synthesize renders text spoken in language with the given style, which is
// a voice name or a blend such as "af_sarah.4+af_nicole.6". Any failure
// after input validation is returned; no audio is produced without a
// successful model run.
func (s *Synthesizer) Synthesize(ctx context.Context, text, language, style string) (*AudioBuffer, error) {
	buf, _, err := s.synthesize(ctx, text, language, style)
	return buf, err
}

// SynthesizeToFile synthesizes and writes the audio to path as WAV.
func (s *Synthesizer) SynthesizeToFile(ctx context.Context, text, language, style, path string) (*Result, error) {
	start := time.Now()
	buf, phonemes, err := s.synthesize(ctx, text, language, style)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(buf, path); err != nil {
		return nil, err
	}
	return &Result{
		Path:          path,
		Samples:       buf.Len(),
		AudioDuration: buf.Duration(),
		Elapsed:       time.Since(start),
		Phonemes:      phonemes,
	}, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, text, language, style string) (buf *AudioBuffer, phonemes string, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", ErrEmptyInput
	}

	ctx, span := s.tracer.Start(ctx, "kokoro.Synthesize", trace.WithAttributes(
		attribute.String("kokoro.language", language),
		attribute.String("kokoro.style", style),
		attribute.Int("kokoro.text_length", len(text)),
	))
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		var audio time.Duration
		if buf != nil {
			audio = buf.Duration()
		}
		s.metrics.record(ctx, s.device(), elapsed, audio, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Float64("kokoro.audio_seconds", audio.Seconds()))
		}
		span.End()
	}()

	symbols, err := s.phonemizer.Phonemize(ctx, text, language)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrPhonemize, err)
	}
	phonemes = NormalizePhonemes(strings.Join(symbols, ""))
	if strings.TrimSpace(phonemes) == "" {
		return nil, "", fmt.Errorf("%w: no phonemes for %q input", ErrPhonemize, language)
	}

	tokens, err := Tokenize(WrapPhonemes(phonemes))
	if err != nil {
		return nil, phonemes, err
	}
	if len(tokens) > MaxTokens {
		return nil, phonemes, fmt.Errorf("%w: %d tokens exceeds limit of %d", ErrTensorShape, len(tokens), MaxTokens)
	}

	styles, err := s.voices.Resolve(style)
	if err != nil {
		return nil, phonemes, err
	}

	inferCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.session.Infer(inferCtx, InferenceRequest{
		Tokens: [][]int64{tokens},
		Styles: styles,
		Speed:  DefaultSpeed,
	})
	if err != nil {
		return nil, phonemes, err
	}

	buf = Render(out)
	if buf.Len() == 0 {
		return nil, phonemes, fmt.Errorf("%w: model returned no samples", ErrInference)
	}

	elapsed := time.Since(start)
	audio := buf.Duration()
	s.logger.Info("kokoro: synthesized",
		slog.Int("tokens", len(tokens)),
		slog.Duration("audio", audio),
		slog.Duration("elapsed", elapsed),
		slog.Float64("rtf", elapsed.Seconds()/audio.Seconds()),
	)
	return buf, phonemes, nil
}

func (s *Synthesizer) device() Device {
	if s.session == nil {
		return ""
	}
	return s.session.Device()
}
