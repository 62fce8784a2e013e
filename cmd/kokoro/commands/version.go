package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haivivi/kokoro/cmd/kokoro/internal/build"
	"github.com/haivivi/kokoro/pkg/cli"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, build.String())
		if verbose {
			fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
			if paths, err := cli.NewPaths(); err == nil {
				fmt.Fprintf(out, "  config: %s\n", paths.ConfigFile())
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
