package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-model-must-learn/internal/cli"
	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/corpus"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the training corpus as a YAML NLU file",
		Long: `Export every auto-approved and approved example into a timestamped
nlu_YYYYMMDD_HHMMSS.yml file, grouped by intent.

The coordinator uses the same export when the training service cannot
export from the database itself.`,
		RunE: runExport,
	}

	cmd.Flags().String("dir", "", "export directory (default: $HOME/.local/share/learn/exports)")
	_ = viper.BindPFlag("export.dir", cmd.Flags().Lookup("dir"))

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	bar := newExportBar()
	p, err := newPipeline(ctx, settings, corpus.WithProgress(func(done, total int) {
		if bar.GetMax() != total {
			bar.ChangeMax(total)
		}
		if setErr := bar.Set(done); setErr != nil {
			slog.Warn("Failed to update progress bar", "error", setErr)
		}
	}))
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.exporter.Export(ctx)
	if errors.Is(err, common.ErrNoExport) {
		fmt.Println(cli.FormatWarning("Nothing to export yet: no approved examples")) //nolint:forbidigo // User-facing output
		return nil
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	_ = bar.Finish()

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Exported %d samples across %d intents", result.Samples, result.Intents))) //nolint:forbidigo // User-facing output
	fmt.Printf("  %s %s\n", cli.FolderIcon, result.File)                                                                 //nolint:forbidigo // User-facing output
	return nil
}

func newExportBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Building intents...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}
