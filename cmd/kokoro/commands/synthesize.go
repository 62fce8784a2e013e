package commands

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/kokoro/pkg/artifact"
	"github.com/haivivi/kokoro/pkg/cli"
)

func runSynthesize(cmd *cobra.Command) (err error) {
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

	text := synthText
	if strings.TrimSpace(text) == "" {
		text = defaultText
	}

	synth, _, err := a.synthesizer(ctx)
	if err != nil {
		return err
	}
	res, err := synth.SynthesizeToFile(ctx, text, synthLang, synthStyle, synthOutput)
	if err != nil {
		return err
	}

	ledger, err := a.ledger(ctx)
	if err != nil {
		a.log.Warn("artifact ledger unavailable", slog.String("error", err.Error()))
	} else if ledger != nil {
		_, err := ledger.Record(ctx, artifact.Artifact{
			Path:     res.Path,
			Voice:    synthStyle,
			Language: synthLang,
			Chars:    len([]rune(text)),
			Samples:  res.Samples,
			Duration: res.AudioDuration,
			Elapsed:  res.Elapsed,
		})
		if err != nil {
			a.log.Warn("artifact record failed", slog.String("error", err.Error()))
		}
	}

	a.printer.Success("Wrote %s", res.Path)
	a.printer.Info("%s of audio in %s", cli.FormatDuration(res.AudioDuration), cli.FormatDuration(res.Elapsed))
	return nil
}
