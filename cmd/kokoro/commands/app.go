package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/kokoro/cmd/kokoro/internal/build"
	"github.com/haivivi/kokoro/cmd/kokoro/internal/config"
	"github.com/haivivi/kokoro/pkg/artifact"
	"github.com/haivivi/kokoro/pkg/cli"
	"github.com/haivivi/kokoro/pkg/kokoro"
	"github.com/haivivi/kokoro/pkg/kv"
	"github.com/haivivi/kokoro/pkg/logging"
	"github.com/haivivi/kokoro/pkg/onnx"
	"github.com/haivivi/kokoro/pkg/phonemize"
	"github.com/haivivi/kokoro/pkg/telemetry"
)

// app holds the configuration and resources of one command invocation.
// Resources are opened on demand and released by close in reverse order.
type app struct {
	paths   *cli.Paths
	cfg     *config.Config
	log     *slog.Logger
	printer *cli.Printer

	closers []func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	paths, err := cli.NewPaths()
	if err != nil {
		return nil, fmt.Errorf("resolve kokoro home: %w", err)
	}
	path := configFile
	if path == "" {
		path = paths.ConfigFile()
	}
	cfg, err := config.Load(path, paths)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)

	// logging colours stderr itself when it is a terminal.
	var console io.Writer
	if w := cmd.ErrOrStderr(); w != os.Stderr {
		console = w
	}
	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Console:    console,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{
		paths:   paths,
		cfg:     cfg,
		log:     logger,
		printer: cli.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), cli.DefaultTheme),
	}
	a.onClose(logCloser.Close)
	return a, nil
}

// applyFlags overrides file values with flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.ModelPath = synthModel
	}
	if flags.Changed("voices") {
		cfg.VoicesPath = voicesPath
	}
	if useGPU {
		cfg.Device.UseAccelerator = true
		if cfg.Device.AcceleratorMemoryLimit == 0 {
			cfg.Device.AcceleratorMemoryLimit = config.DefaultGPUMemoryLimit
		}
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveOutputDir != "" {
		cfg.Server.OutputDir = serveOutputDir
	}
}

func (a *app) onClose(f func() error) {
	a.closers = append(a.closers, f)
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) telemetry(ctx context.Context) (*telemetry.Providers, error) {
	t := a.cfg.Telemetry
	p, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  "kokoro",
		Version:      build.Version,
		OTLPEndpoint: t.OTLPEndpoint,
		OTLPInsecure: t.OTLPInsecure,
		TraceStdout:  t.TraceStdout,
		Prometheus:   t.Prometheus,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error { return p.Shutdown(context.Background()) })
	return p, nil
}

func (a *app) voices() (*kokoro.VoiceTable, error) {
	return kokoro.LoadVoices(a.cfg.VoicesPath)
}

func (a *app) session() (*kokoro.Session, error) {
	env, err := onnx.NewEnv("kokoro", a.cfg.ONNXRuntime.LibraryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kokoro.ErrLoad, err)
	}
	a.onClose(env.Close)

	backend := &kokoro.ORTBackend{Env: env, IntraOpThreads: a.cfg.ONNXRuntime.IntraOpThreads}
	s, err := kokoro.Load(backend, a.cfg.ModelPath, a.cfg.Device.Kokoro())
	if err != nil {
		return nil, err
	}
	a.onClose(s.Close)
	return s, nil
}

func (a *app) espeak() *phonemize.Espeak {
	e := a.cfg.Espeak
	opts := []phonemize.EspeakOption{phonemize.WithStress(e.WithStress)}
	if e.Binary != "" {
		opts = append(opts, phonemize.WithBinary(e.Binary))
	}
	if e.Timeout > 0 {
		opts = append(opts, phonemize.WithTimeout(e.Timeout.Std()))
	}
	return phonemize.NewEspeak(opts...)
}

func (a *app) cacheStore() (kv.Store, error) {
	if a.cfg.Cache.InMemory {
		return kv.NewMemory(), nil
	}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: a.cfg.Cache.Dir, Logger: a.log})
	if err != nil {
		return nil, err
	}
	a.onClose(store.Close)
	return store, nil
}

func (a *app) phonemizer() (kokoro.Phonemizer, error) {
	espeak := a.espeak()
	if a.cfg.Cache.Disabled {
		return espeak, nil
	}
	store, err := a.cacheStore()
	if err != nil {
		return nil, err
	}
	return phonemize.NewCache(espeak, store, a.cfg.Cache.TTL.Std(), a.log), nil
}

// ledger returns nil when artifact recording is disabled.
func (a *app) ledger(ctx context.Context) (*artifact.Ledger, error) {
	if a.cfg.Artifacts.Disabled {
		return nil, nil
	}
	l, err := artifact.Open(ctx, a.cfg.Artifacts.Path, a.log)
	if err != nil {
		return nil, err
	}
	a.onClose(l.Close)
	return l, nil
}

// synthesizer wires the full pipeline: voices, model session, phonemizer
// and telemetry.
func (a *app) synthesizer(ctx context.Context) (*kokoro.Synthesizer, *telemetry.Providers, error) {
	voices, err := a.voices()
	if err != nil {
		return nil, nil, err
	}
	tp, err := a.telemetry(ctx)
	if err != nil {
		return nil, nil, err
	}
	session, err := a.session()
	if err != nil {
		return nil, nil, err
	}
	a.log.Info("model loaded",
		slog.String("model", session.ModelPath()),
		slog.String("device", string(session.Device())),
		slog.Int("voices", voices.Len()),
	)
	p, err := a.phonemizer()
	if err != nil {
		return nil, nil, err
	}

	synth, err := kokoro.NewSynthesizer(p, voices, session,
		kokoro.WithLogger(a.log),
		kokoro.WithInferenceTimeout(a.cfg.Inference.Timeout.Std()),
		kokoro.WithMeterProvider(tp.Meter),
		kokoro.WithTracerProvider(tp.Tracer),
	)
	if err != nil {
		return nil, nil, err
	}
	return synth, tp, nil
}

func (a *app) outputFormat() (cli.OutputFormat, error) {
	return cli.ParseFormat(formatOutput)
}
