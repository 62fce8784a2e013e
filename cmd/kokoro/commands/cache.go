package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/kokoro/pkg/phonemize"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the phoneme cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cached phoneme entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		store, err := a.cacheStore()
		if err != nil {
			return err
		}
		n, err := phonemize.NewCache(a.espeak(), store, 0, a.log).Purge(cmd.Context())
		if err != nil {
			return err
		}
		a.printer.Success("Purged %d cached entries", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
