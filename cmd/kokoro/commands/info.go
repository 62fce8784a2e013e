package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/kokoro/pkg/cli"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Load the model and show its inputs, outputs and device",
	Args:  cobra.NoArgs,
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
		s, err := a.session()
		if err != nil {
			return err
		}
		return cli.Output(modelInfo{
			Model:   s.ModelPath(),
			Device:  string(s.Device()),
			Inputs:  s.Inputs(),
			Outputs: s.Outputs(),
		}, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

type modelInfo struct {
	Model   string   `json:"model" yaml:"model"`
	Device  string   `json:"device" yaml:"device"`
	Inputs  []string `json:"inputs" yaml:"inputs"`
	Outputs []string `json:"outputs" yaml:"outputs"`
}

func (m modelInfo) Header() []string { return []string{"KIND", "NAME"} }

func (m modelInfo) Rows() [][]string {
	rows := [][]string{{"model", m.Model}, {"device", m.Device}}
	for _, in := range m.Inputs {
		rows = append(rows, []string{"input", in})
	}
	for _, out := range m.Outputs {
		rows = append(rows, []string{"output", out})
	}
	return rows
}
