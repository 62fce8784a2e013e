// Package main is the kokoro text-to-speech CLI.
//
// Usage:
//
//	kokoro [flags]                 synthesize --text to --output
//	kokoro --oai                   run the OpenAI-compatible speech server
//	kokoro <command> [args]
//
// Commands:
//
//	serve      - OpenAI-compatible speech server
//	voices     - list and pack voice style tables
//	info       - show model inputs, outputs and device
//	cache      - manage the phoneme cache
//	artifacts  - list and delete synthesized files
//	version    - show version information
//
// Configuration is read from ~/.kokoro/config.yaml ($KOKORO_HOME overrides
// the directory). Flags override file values.
package main

import (
	"os"

	"github.com/haivivi/kokoro/cmd/kokoro/commands"
	"github.com/haivivi/kokoro/pkg/cli"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
