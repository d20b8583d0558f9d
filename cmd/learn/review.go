package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-model-must-learn/internal/cli"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/triage"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the human review queue",
		Long: `List, approve and reject examples waiting for human review.

Approved examples join the training corpus; rejected ones never do.`,
		Example: `  # Show the priority queue
  learn review list --priority

  # Approve with a corrected label
  learn review approve 3f2a... --label book_hotel

  # Walk the queue interactively
  learn review walk`,
	}

	cmd.PersistentFlags().String("reviewer", defaultReviewer(), "reviewer identity recorded with each decision")

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewApproveCmd())
	cmd.AddCommand(reviewRejectCmd())
	cmd.AddCommand(reviewWalkCmd())

	return cmd
}

func defaultReviewer() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List examples pending review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			priorityOnly, _ := cmd.Flags().GetBool("priority")
			limit, _ := cmd.Flags().GetInt("limit")

			p, err := openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			examples, err := p.engine.PendingReview(ctx, priorityOnly, limit)
			if err != nil {
				return fmt.Errorf("failed to list pending examples: %w", err)
			}

			if len(examples) == 0 {
				fmt.Println(cli.FormatSuccess("Review queue is empty")) //nolint:forbidigo // User-facing output
				return nil
			}

			return writeExampleTable(os.Stdout, examples)
		},
	}

	cmd.Flags().BoolP("priority", "p", false, "only show priority examples")
	cmd.Flags().IntP("limit", "n", 50, "maximum examples to show (0 = all)")

	return cmd
}

func writeExampleTable(out io.Writer, examples []model.TrainingExample) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTEXT\tLABEL\tCONFIDENCE\tPRIORITY\tCREATED")
	_, _ = fmt.Fprintln(w, "──\t────\t─────\t──────────\t────────\t───────")
	for _, ex := range examples {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ex.ID,
			truncateString(ex.Text, 40),
			ex.PredictedLabel,
			cli.FormatConfidence(ex.Confidence),
			ex.Priority,
			ex.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func reviewApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve an example into the corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reviewer, _ := cmd.Flags().GetString("reviewer")
			label, _ := cmd.Flags().GetString("label")
			entityFlags, _ := cmd.Flags().GetStringArray("entity")

			entities, err := parseEntities(entityFlags)
			if err != nil {
				return err
			}

			p, err := openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			ex, err := p.engine.Approve(ctx, args[0], triage.Approval{
				Reviewer: reviewer,
				Label:    label,
				Entities: entities,
			})
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Approved %q as %s", ex.Text, ex.PredictedLabel))) //nolint:forbidigo // User-facing output
			return nil
		},
	}

	cmd.Flags().StringP("label", "l", "", "corrected label (default: keep the predicted one)")
	cmd.Flags().StringArrayP("entity", "e", nil, "corrected entity as name=value (repeatable)")

	return cmd
}

func reviewRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject an example",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reviewer, _ := cmd.Flags().GetString("reviewer")
			reason, _ := cmd.Flags().GetString("reason")

			p, err := openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			ex, err := p.engine.Reject(ctx, args[0], reviewer, reason)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rejected %q", ex.Text))) //nolint:forbidigo // User-facing output
			return nil
		},
	}

	cmd.Flags().StringP("reason", "r", "", "why the example was rejected")

	return cmd
}

func reviewWalkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Review pending examples one at a time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reviewer, _ := cmd.Flags().GetString("reviewer")
			priorityOnly, _ := cmd.Flags().GetBool("priority")

			handler := cli.NewInterruptHandler(cmd.OutOrStdout())
			ctx := handler.HandleInterrupts(cmd.Context(), "learn review walk")

			p, err := openPipeline(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			examples, err := p.engine.PendingReview(ctx, priorityOnly, 0)
			if err != nil {
				return fmt.Errorf("failed to list pending examples: %w", err)
			}

			prompter := cli.NewReviewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			tally, err := walkQueue(ctx, p.engine, prompter, reviewer, examples)
			if handler.WasInterrupted() {
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf( //nolint:forbidigo // User-facing output
				"Approved %d, rejected %d, skipped %d", tally.approved, tally.rejected, tally.skipped)))
			return nil
		},
	}

	cmd.Flags().BoolP("priority", "p", false, "only walk priority examples")

	return cmd
}

// reviewDecider applies reviewer decisions.
type reviewDecider interface {
	Approve(ctx context.Context, id string, approval triage.Approval) (*model.TrainingExample, error)
	Reject(ctx context.Context, id, reviewer, reason string) (*model.TrainingExample, error)
}

// reviewPrompter asks for one decision.
type reviewPrompter interface {
	Prompt(ctx context.Context, example model.TrainingExample, position, total int) (cli.ReviewAnswer, error)
}

type reviewTally struct {
	approved int
	rejected int
	skipped  int
}

func walkQueue(ctx context.Context, decider reviewDecider, prompter reviewPrompter, reviewer string, examples []model.TrainingExample) (reviewTally, error) {
	var tally reviewTally
	for i, ex := range examples {
		answer, err := prompter.Prompt(ctx, ex, i+1, len(examples))
		if err != nil {
			return tally, err
		}

		switch answer.Action {
		case cli.ReviewQuit:
			return tally, nil
		case cli.ReviewSkip:
			tally.skipped++
		case cli.ReviewApprove:
			if _, err := decider.Approve(ctx, ex.ID, triage.Approval{Reviewer: reviewer, Label: answer.Label}); err != nil {
				return tally, err
			}
			tally.approved++
		case cli.ReviewReject:
			if _, err := decider.Reject(ctx, ex.ID, reviewer, answer.Reason); err != nil {
				return tally, err
			}
			tally.rejected++
		}
	}
	return tally, nil
}

// openPipeline loads settings and wires the pipeline.
func openPipeline(ctx context.Context) (*pipeline, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return newPipeline(ctx, settings)
}
