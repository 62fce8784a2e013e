package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/kokoro/pkg/artifact"
	"github.com/haivivi/kokoro/pkg/cli"
)

var artifactsLimit int

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List and delete synthesized files",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List synthesized files, newest first",
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
		ledger, err := requireLedger(a, cmd)
		if err != nil {
			return err
		}
		items, err := ledger.List(cmd.Context(), artifactsLimit)
		if err != nil {
			return err
		}
		return cli.Output(newArtifactList(items), cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
	},
}

var artifactsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a synthesized file and its record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ledger, err := requireLedger(a, cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		item, err := ledger.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if err := os.Remove(item.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", item.Path, err)
		}
		if err := ledger.Delete(ctx, item.ID); err != nil {
			return err
		}
		a.printer.Success("Deleted %s", item.ID)
		return nil
	},
}

func init() {
	artifactsListCmd.Flags().IntVar(&artifactsLimit, "limit", 20, "maximum number of entries")
	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsDeleteCmd)
	rootCmd.AddCommand(artifactsCmd)
}

func requireLedger(a *app, cmd *cobra.Command) (*artifact.Ledger, error) {
	ledger, err := a.ledger(cmd.Context())
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("artifact recording is disabled (artifacts.disabled: true)")
	}
	return ledger, nil
}

type artifactInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Path      string    `json:"path" yaml:"path"`
	Voice     string    `json:"voice" yaml:"voice"`
	Language  string    `json:"language" yaml:"language"`
	Duration  string    `json:"duration" yaml:"duration"`
	Elapsed   string    `json:"elapsed" yaml:"elapsed"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type artifactList struct {
	Artifacts []artifactInfo `json:"artifacts" yaml:"artifacts"`
}

func newArtifactList(items []artifact.Artifact) artifactList {
	l := artifactList{Artifacts: make([]artifactInfo, len(items))}
	for i, it := range items {
		l.Artifacts[i] = artifactInfo{
			ID:        it.ID,
			Path:      it.Path,
			Voice:     it.Voice,
			Language:  it.Language,
			Duration:  cli.FormatDuration(it.Duration),
			Elapsed:   cli.FormatDuration(it.Elapsed),
			CreatedAt: it.CreatedAt,
		}
	}
	return l
}

func (l artifactList) Header() []string {
	return []string{"#", "ID", "VOICE", "LANG", "AUDIO", "CREATED", "PATH"}
}

func (l artifactList) Rows() [][]string {
	rows := make([][]string, len(l.Artifacts))
	for i, it := range l.Artifacts {
		rows[i] = []string{
			strconv.Itoa(i + 1), it.ID, it.Voice, it.Language, it.Duration,
			it.CreatedAt.Local().Format(time.DateTime), it.Path,
		}
	}
	return rows
}
