package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-model-must-learn/internal/cli"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/triage"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Triage one prediction",
		Long: `Record a live NLU prediction and assign its disposition.

High-confidence predictions join the corpus directly, medium ones wait for
review, and low ones are queued for priority review and sent to the
annotation service when one is configured.

Examples:
  learn classify "order a pizza" --label order_food --confidence 0.92
  learn classify "book me to paris" -l book_flight -c 0.55 -e city=paris`,
		Args: cobra.MinimumNArgs(1),
		RunE: runClassify,
	}

	cmd.Flags().StringP("label", "l", "", "predicted label")
	cmd.Flags().Float64P("confidence", "c", 0, "prediction confidence (0-1)")
	cmd.Flags().StringArrayP("entity", "e", nil, "extracted entity as name=value (repeatable)")
	cmd.Flags().String("source", "cli", "producer name")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("confidence")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	label, _ := cmd.Flags().GetString("label")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	entityFlags, _ := cmd.Flags().GetStringArray("entity")
	source, _ := cmd.Flags().GetString("source")

	entities, err := parseEntities(entityFlags)
	if err != nil {
		return err
	}

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.engine.Classify(ctx, model.Prediction{
		Text:           strings.Join(args, " "),
		PredictedLabel: label,
		Confidence:     confidence,
		Entities:       entities,
		Source:         source,
	})
	if err != nil {
		return err
	}

	fmt.Println(formatTriageResult(result)) //nolint:forbidigo // User-facing output
	return nil
}

func formatTriageResult(r triage.Result) string {
	var b strings.Builder
	switch {
	case r.Duplicate:
		b.WriteString(cli.FormatInfo("Already on file"))
	case r.Disposition == model.DispositionAutoApproved:
		b.WriteString(cli.FormatSuccess("Added to the training corpus"))
	case r.Priority == model.ExamplePriorityPriority:
		b.WriteString(cli.FormatWarning("Queued for priority review"))
	default:
		b.WriteString(cli.FormatInfo("Queued for review"))
	}
	fmt.Fprintf(&b, "\n  id:          %s", r.ExampleID)
	fmt.Fprintf(&b, "\n  disposition: %s", cli.StyleDisposition(r.Disposition))
	if r.Forwarded {
		b.WriteString("\n  " + cli.SubtleStyle.Render("sent to the annotation service"))
	}
	if r.Message != "" {
		b.WriteString("\n  " + cli.SubtleStyle.Render(r.Message))
	}
	return b.String()
}
