// Package cli provides shared helpers for the kokoro command-line tool.
//
// This package includes:
//   - Directory layout under ~/.kokoro (config, cache, logs, artifacts)
//   - Output formatting (YAML, JSON, table)
//   - Styled status lines
//
// Example usage:
//
//	paths, err := cli.NewPaths()
//	cfgFile := paths.ConfigFile()
//
//	cli.Output(voices, cli.OutputOptions{Format: cli.FormatTable})
//	cli.PrintSuccess("wrote %s", path)
package cli
