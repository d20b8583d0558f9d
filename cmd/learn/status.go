package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-model-must-learn/internal/cli"
	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the learning loop",
		Long: `Summarize the review queue, the last training run, whether new data
warrants retraining and per-label auto-approval statistics.`,
		RunE: runStatus,
	}
}

// statusReport is everything the status screen shows.
type statusReport struct {
	lastRun         *model.TrainingRun
	labels          []model.LabelStats
	need            model.RetrainingNeed
	pending         int
	priority        int
	cooldown        time.Duration
	cooldownElapsed time.Duration
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := collectStatus(ctx, p, time.Now())
	if err != nil {
		return err
	}

	fmt.Println(renderStatus(report)) //nolint:forbidigo // User-facing output
	return nil
}

func collectStatus(ctx context.Context, p *pipeline, now time.Time) (statusReport, error) {
	report := statusReport{cooldown: p.settings.Cooldown}

	pending, err := p.store.ListTrainingExamples(ctx, service.ExampleFilter{Disposition: model.DispositionPendingReview})
	if err != nil {
		return report, fmt.Errorf("failed to count pending examples: %w", err)
	}
	report.pending = len(pending)
	for _, ex := range pending {
		if ex.Priority == model.ExamplePriorityPriority {
			report.priority++
		}
	}

	run, err := p.store.GetLatestTrainingRun(ctx)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return report, fmt.Errorf("failed to read training runs: %w", err)
	default:
		report.lastRun = run
		report.cooldownElapsed = now.Sub(run.SubmittedAt)
	}

	if report.need, err = p.engine.NeedsRetraining(ctx); err != nil {
		return report, err
	}
	if report.labels, err = p.store.GetLabelStats(ctx); err != nil {
		return report, fmt.Errorf("failed to read label statistics: %w", err)
	}
	return report, nil
}

func renderStatus(r statusReport) string {
	queue := fmt.Sprintf("%d pending, %d priority", r.pending, r.priority)

	lastRun := cli.SubtleStyle.Render("no training runs yet")
	if r.lastRun != nil {
		lastRun = fmt.Sprintf("%s (%s, %s ago)\n%s",
			r.lastRun.JobID,
			r.lastRun.Source,
			r.cooldownElapsed.Round(time.Minute),
			cli.SubtleStyle.Render(r.lastRun.Reason))
		if remaining := r.cooldown - r.cooldownElapsed; remaining > 0 {
			lastRun += "\n" + cli.WarningStyle.Render(fmt.Sprintf("cooldown: %s remaining", remaining.Round(time.Minute)))
		}
	}

	need := cli.SuccessStyle.Render("not needed")
	if r.need.Needed {
		need = cli.WarningStyle.Render("needed: " + r.need.Reason)
	}

	sections := []string{
		cli.RenderBox("Review queue", queue),
		cli.RenderBox("Last training run", lastRun),
		cli.RenderBox("Retraining", need),
	}

	if len(r.labels) > 0 {
		rows := make([][]string, 0, len(r.labels))
		for _, s := range r.labels {
			rows = append(rows, []string{s.Label, strconv.Itoa(s.Count), cli.FormatConfidence(s.AvgConfidence)})
		}
		sections = append(sections, cli.RenderBox(cli.ChartIcon+" Auto-approved by label",
			cli.RenderTable([]string{"LABEL", "COUNT", "AVG CONFIDENCE"}, rows)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		cli.FormatTitle("Learning loop status"),
		strings.Join(sections, "\n"))
}
