package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-model-must-learn/internal/cli"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Show repeated correction patterns",
		Long: `List (predicted, actual) pairs that users keep correcting, and the exact
utterances that were corrected more than once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			days, _ := cmd.Flags().GetInt("days")
			minCount, _ := cmd.Flags().GetInt("min")

			p, err := openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			since := time.Now().AddDate(0, 0, -days)
			pairs, err := p.store.GetPatternCounts(ctx, since)
			if err != nil {
				return fmt.Errorf("failed to get pattern counts: %w", err)
			}
			repeated, err := p.store.GetRepeatedCorrections(ctx, since, minCount)
			if err != nil {
				return fmt.Errorf("failed to get repeated corrections: %w", err)
			}

			if len(pairs) == 0 {
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("No unused corrections in the last %d days", days))) //nolint:forbidigo // User-facing output
				return nil
			}

			if err := writePatternTable(os.Stdout, pairs, p.settings.PatternThreshold); err != nil {
				return err
			}
			if len(repeated) > 0 {
				fmt.Println() //nolint:forbidigo // User-facing output
				return writeRepeatedTable(os.Stdout, repeated)
			}
			return nil
		},
	}

	cmd.Flags().IntP("days", "d", 7, "lookback window in days")
	cmd.Flags().IntP("min", "m", 2, "minimum repeats of the same utterance to list it")

	return cmd
}

func writePatternTable(out io.Writer, pairs []model.PatternCount, threshold int) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PREDICTED\tACTUAL\tCOUNT\tFIRST SEEN\tPATTERN")
	_, _ = fmt.Fprintln(w, "─────────\t──────\t─────\t──────────\t───────")
	for _, pc := range pairs {
		mark := ""
		if pc.Count >= threshold {
			mark = cli.WarningIcon
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			pc.PredictedLabel,
			pc.ActualAction,
			pc.Count,
			pc.FirstSeen.Local().Format("2006-01-02"),
			mark)
	}
	return w.Flush()
}

func writeRepeatedTable(out io.Writer, repeated []model.RepeatedCorrection) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TEXT\tPREDICTED\tACTUAL\tCOUNT\tLAST SEEN")
	_, _ = fmt.Fprintln(w, "────\t─────────\t──────\t─────\t─────────")
	for _, rc := range repeated {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			truncateString(rc.Text, 40),
			rc.PredictedLabel,
			rc.ActualAction,
			rc.Count,
			rc.LastSeen.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
