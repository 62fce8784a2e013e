package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/kokoro/pkg/speechapi"
)

var (
	serveAddr      string
	serveOutputDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OpenAI-compatible speech server",
	Long: `Run an HTTP server exposing the OpenAI speech endpoint.

Routes:
  GET  /                      health check
  POST /v1/audio/speech       {"model", "input", "voice"?, "language"?}
  GET  /v1/audio/files/{id}   download a synthesized file
  GET  /metrics               Prometheus metrics (telemetry.prometheus: true)

Without "language" the language is detected from the input script. Without
"voice" the configured default voice is used.

Example:
  kokoro serve --addr 127.0.0.1:3000
  curl -X POST localhost:3000/v1/audio/speech \
    -d '{"model":"kokoro","input":"Hello world","voice":"af_sky"}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default 0.0.0.0:3000)")
	serveCmd.Flags().StringVar(&serveOutputDir, "output-dir", "", "directory for synthesized files (default tmp)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	synth, tp, err := a.synthesizer(ctx)
	if err != nil {
		return err
	}
	opts := speechapi.Options{
		OutputDir:    a.cfg.Server.OutputDir,
		DefaultVoice: a.cfg.Server.DefaultVoice,
		Metrics:      tp.Metrics,
		MaxBodyBytes: int64(a.cfg.Server.MaxBodyBytes),
		Logger:       a.log,
	}
	ledger, err := a.ledger(ctx)
	if err != nil {
		return err
	}
	if ledger != nil {
		opts.Ledger = ledger
	}

	a.printer.Info("Starting OpenAI-compatible server on http://%s", a.cfg.Server.Addr)
	return speechapi.NewServer(synth, opts).ListenAndServe(ctx, a.cfg.Server.Addr)
}
