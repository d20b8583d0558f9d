package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-model-must-learn/internal/cli"
	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

func retrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Request a retraining job",
		Long: `Ask the coordinator to launch a training job on the external training service.

The request passes the same gates as automatic triggers: the cooldown (which
high priority requests bypass), the in-flight check and the training service
health and queue checks. Use --check to only report whether new data
warrants retraining.`,
		RunE: runRetrain,
	}

	cmd.Flags().String("reason", "manual retrain", "reason recorded with the job")
	cmd.Flags().String("priority", "normal", "request priority (low, normal, high)")
	cmd.Flags().Bool("check", false, "only report whether retraining is needed")

	return cmd
}

func runRetrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	reason, _ := cmd.Flags().GetString("reason")
	priorityFlag, _ := cmd.Flags().GetString("priority")
	checkOnly, _ := cmd.Flags().GetBool("check")

	priority, err := model.ParseRetrainPriority(priorityFlag)
	if err != nil {
		return common.NewUserError("--priority must be low, normal or high", err)
	}

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	if checkOnly {
		need, needErr := p.engine.NeedsRetraining(ctx)
		if needErr != nil {
			return needErr
		}
		fmt.Println(formatNeed(need)) //nolint:forbidigo // User-facing output
		return nil
	}

	decision := p.coordinator.RequestRetrain(ctx, model.RetrainingRequest{
		Source:   model.SourceManual,
		Reason:   reason,
		Priority: priority,
	})
	fmt.Println(formatDecision(decision)) //nolint:forbidigo // User-facing output
	return nil
}

func formatNeed(n model.RetrainingNeed) string {
	detail := fmt.Sprintf("\n  %d new trainable example(s), %d emerging pattern(s)", n.NewExampleCount, n.PatternCount)
	if n.Needed {
		return cli.FormatWarning("Retraining needed: "+n.Reason) + detail
	}
	return cli.FormatSuccess("No retraining needed") + detail
}

func formatDecision(d model.RetrainingDecision) string {
	if !d.Accepted {
		msg := "Retraining declined: " + d.Reason
		if d.RejectedBy != "" {
			msg += " [" + d.RejectedBy + "]"
		}
		if errors.Is(d.Cause, common.ErrServiceBusy) {
			msg += "\n  The training service is still working; try again once its current job finishes."
		}
		return cli.FormatWarning(msg)
	}

	var b strings.Builder
	b.WriteString(cli.FormatSuccess(d.Reason))
	fmt.Fprintf(&b, "\n  job:       %s", d.JobID)
	if d.EstimatedTime != "" {
		fmt.Fprintf(&b, "\n  estimate:  %s", d.EstimatedTime)
	}
	if d.DataFile != "" {
		fmt.Fprintf(&b, "\n  data file: %s", d.DataFile)
	}
	return b.String()
}
