package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haivivi/kokoro/pkg/cli"
	"github.com/haivivi/kokoro/pkg/kokoro"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "Inspect and convert voice style tables",
}

var voicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the voices in the style table",
	Long: `List the voices in the configured style table (--voices or voices_path).

Example:
  kokoro voices list
  kokoro voices list --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		format, err := a.outputFormat()
		if err != nil {
			return err
		}
		table, err := a.voices()
		if err != nil {
			return err
		}
		return cli.Output(newVoiceList(table), cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
	},
}

var voicesPackCmd = &cobra.Command{
	Use:   "pack <output>",
	Short: "Convert the style table to the compact msgpack form",
	Long: `Read the configured style table and write it as msgpack. Packed tables load
several times faster than JSON. Use a .msgpack extension so the loader
recognizes the format.

Example:
  kokoro voices pack --voices data/voices.json data/voices.msgpack`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		table, err := a.voices()
		if err != nil {
			return err
		}

		out := args[0]
		if dir := filepath.Dir(out); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		if err := kokoro.PackVoices(f, table); err != nil {
			return err
		}
		a.printer.Success("Packed %d voices into %s", table.Len(), out)
		return nil
	},
}

func init() {
	voicesCmd.AddCommand(voicesListCmd)
	voicesCmd.AddCommand(voicesPackCmd)
	rootCmd.AddCommand(voicesCmd)
}

type voiceInfo struct {
	Name   string `json:"name" yaml:"name"`
	Accent string `json:"accent,omitempty" yaml:"accent,omitempty"`
	Gender string `json:"gender,omitempty" yaml:"gender,omitempty"`
}

type voiceList struct {
	Voices []voiceInfo `json:"voices" yaml:"voices"`
}

// Voice names follow <accent><gender>_<name>, e.g. af_sky.
var (
	voiceAccents = map[byte]string{
		'a': "American English",
		'b': "British English",
		'e': "Spanish",
		'f': "French",
		'h': "Hindi",
		'i': "Italian",
		'j': "Japanese",
		'p': "Brazilian Portuguese",
		'z': "Mandarin Chinese",
	}
	voiceGenders = map[byte]string{'f': "female", 'm': "male"}
)

func newVoiceList(t *kokoro.VoiceTable) voiceList {
	names := t.Names()
	l := voiceList{Voices: make([]voiceInfo, len(names))}
	for i, name := range names {
		v := voiceInfo{Name: name}
		if len(name) > 2 && name[2] == '_' {
			v.Accent = voiceAccents[name[0]]
			v.Gender = voiceGenders[name[1]]
		}
		l.Voices[i] = v
	}
	return l
}

func (l voiceList) Header() []string { return []string{"#", "NAME", "ACCENT", "GENDER"} }

func (l voiceList) Rows() [][]string {
	rows := make([][]string, len(l.Voices))
	for i, v := range l.Voices {
		rows[i] = []string{strconv.Itoa(i + 1), v.Name, v.Accent, v.Gender}
	}
	return rows
}
