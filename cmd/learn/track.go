package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-model-must-learn/internal/cli"
	"github.com/Veraticus/the-model-must-learn/internal/correction"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

func trackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track <text>",
		Short: "Record a user correction",
		Long: `Record that the user's actual action contradicted the model's prediction.

Once the same (predicted, actual) pair repeats it is reported as a pattern,
and once enough unused corrections accumulate they are folded into the
corpus and a retraining job is requested.

Examples:
  learn track "book a room" --predicted book_flight --actual book_hotel
  learn track "table for 2 at 8" -p order_food -a book_restaurant --type entity --entity time`,
		Args: cobra.MinimumNArgs(1),
		RunE: runTrack,
	}

	cmd.Flags().StringP("predicted", "p", "", "label the model predicted")
	cmd.Flags().StringP("actual", "a", "", "action the user actually took")
	cmd.Flags().Float64P("confidence", "c", 0, "confidence of the prediction")
	cmd.Flags().StringP("session", "s", "cli", "conversation session id")
	cmd.Flags().StringP("type", "t", "explicit", "correction type (explicit, button, mismatch, entity)")
	cmd.Flags().String("message", "", "what the user said (explicit corrections)")
	cmd.Flags().String("entity", "", "missing entity name (entity corrections)")
	cmd.Flags().String("entity-value", "", "missing entity value (entity corrections)")
	_ = cmd.MarkFlagRequired("predicted")
	_ = cmd.MarkFlagRequired("actual")

	return cmd
}

func runTrack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	text := strings.Join(args, " ")
	predicted, _ := cmd.Flags().GetString("predicted")
	actual, _ := cmd.Flags().GetString("actual")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	session, _ := cmd.Flags().GetString("session")
	kind, _ := cmd.Flags().GetString("type")
	message, _ := cmd.Flags().GetString("message")
	entity, _ := cmd.Flags().GetString("entity")
	entityValue, _ := cmd.Flags().GetString("entity-value")

	if message == "" {
		message = text
	}
	detail, err := correctionDetail(kind, message, actual, entity, entityValue, confidence)
	if err != nil {
		return err
	}

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.tracker.Load(ctx); err != nil {
		return fmt.Errorf("failed to load correction counts: %w", err)
	}

	result, err := p.tracker.Track(ctx, model.Correction{
		SessionID:           session,
		OriginalText:        text,
		PredictedLabel:      predicted,
		ActualAction:        actual,
		PredictedConfidence: confidence,
		Detail:              detail,
	})
	if err != nil {
		return err
	}

	fmt.Println(formatTrackResult(predicted, actual, result)) //nolint:forbidigo // User-facing output
	return nil
}

func formatTrackResult(predicted, actual string, r correction.Result) string {
	var b strings.Builder
	b.WriteString(cli.FormatSuccess("Correction recorded"))
	fmt.Fprintf(&b, "\n  %s → %s seen %d time(s) this week", predicted, actual, r.PatternCount)
	if r.IsPattern {
		b.WriteString("\n  " + cli.FormatWarning("repeated correction pattern"))
	}
	fmt.Fprintf(&b, "\n  %d unused correction(s) pending", r.PendingCount)
	if r.RetrainTriggered {
		b.WriteString("\n  " + cli.FormatInfo("retraining requested"))
	}
	return b.String()
}
