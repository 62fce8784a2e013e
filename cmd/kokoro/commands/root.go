package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile   string
	voicesPath   string
	verbose      bool
	formatOutput string

	// Synthesis flags
	synthText   string
	synthLang   string
	synthModel  string
	synthStyle  string
	synthOutput string
	useGPU      bool
	serveOAI    bool
)

// DefaultStyle is the style used when --style is not given.
const DefaultStyle = "af_sarah.4+af_nicole.6"

const defaultText = `Hello, This is Kokoro, your remarkable AI TTS. It's a TTS model with merely 82 million parameters yet delivers incredible audio quality.
This is one of the top notch inference models, and I'm sure you'll love it.
As the night falls, I wish you all a peaceful and restful sleep. May your dreams be filled with joy and happiness. Good night, and sweet dreams!`

var rootCmd = &cobra.Command{
	Use:   "kokoro",
	Short: "Kokoro text-to-speech",
	Long: `kokoro - synthesize speech with the Kokoro acoustic model.

Without a subcommand kokoro synthesizes --text into a WAV file. With --oai it
runs the OpenAI-compatible speech server instead (same as 'kokoro serve').

Styles are voice names or weighted blends of them. A blend weight is a single
digit in tenths:
  af_sky                    a single voice
  af_sarah.4+af_nicole.6    40% af_sarah, 60% af_nicole

Configuration is read from ~/.kokoro/config.yaml, or $KOKORO_HOME/config.yaml
when KOKORO_HOME is set. Flags override file values.

Examples:
  kokoro -t "Hello world" -s af_bella -o hello.wav
  kokoro -t "你好，世界" -l zh-cn -s zf_xiaobei
  kokoro --gpu --oai
  kokoro voices list`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveOAI {
			return runServe(cmd)
		}
		return runSynthesize(cmd)
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default ~/.kokoro/config.yaml)")
	pf.StringVar(&voicesPath, "voices", "", "voice style table (.json or .msgpack)")
	pf.StringVarP(&synthModel, "model", "m", "", "ONNX model path")
	pf.BoolVar(&useGPU, "gpu", false, "enable GPU acceleration")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&formatOutput, "format", "table", "output format: table, yaml, json")

	f := rootCmd.Flags()
	f.StringVarP(&synthText, "text", "t", "", "text to synthesize")
	f.StringVarP(&synthLang, "lan", "l", "en-us", "espeak-ng language, see https://github.com/espeak-ng/espeak-ng/blob/master/docs/languages.md")
	f.StringVarP(&synthStyle, "style", "s", DefaultStyle, "voice name or blend")
	f.StringVarP(&synthOutput, "output", "o", "tmp/output.wav", "output WAV file")
	f.BoolVar(&serveOAI, "oai", false, "run the OpenAI-compatible server")
	f.StringVar(&serveAddr, "addr", "", "server listen address (with --oai)")
}
