package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/the-model-must-learn/internal/api"
	"github.com/Veraticus/the-model-must-learn/internal/config"
	"github.com/Veraticus/the-model-must-learn/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sweeps",
		Long: `Serve the pipeline's HTTP API for the conversation layer and run the
background sweeps: the retraining check, the hourly correction sweep and the
daily repeated-correction report.

Triage thresholds are reloaded when the config file changes.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = viper.BindPFlag("server.address", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, settings)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.tracker.Load(ctx); err != nil {
		slog.Warn("Failed to seed correction counter", "error", err)
	}

	sched, err := scheduler.New(sweepJobs(p)...)
	if err != nil {
		return err
	}

	watchThresholds(p)

	server := api.NewServer(api.Deps{
		Classifier:  p.engine,
		Reviewer:    p.engine,
		NeedChecker: p.engine,
		Examples:    p.store,
		LabelStats:  p.store,
		Tracker:     p.tracker,
		Retrainer:   p.coordinator,
		Version:     version,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API listening", "address", settings.ListenAddr, "database", settings.DatabasePath)
		if err := server.Start(settings.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		slog.Info("Shutting down API server")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// sweepJobs are the periodic background tasks of a running pipeline.
func sweepJobs(p *pipeline) []scheduler.Job {
	return []scheduler.Job{
		{
			Name:     "retrain-check",
			Interval: p.settings.TriageCheckInterval,
			Run: func(ctx context.Context) error {
				need, err := p.engine.CheckRetraining(ctx, p.coordinator)
				if err != nil {
					return err
				}
				slog.Info("Retraining check", "needed", need.Needed, "reason", need.Reason)
				return nil
			},
		},
		{
			Name:     "correction-sweep",
			Interval: p.settings.CorrectionSweepPeriod,
			Run: func(ctx context.Context) error {
				_, err := p.tracker.HourlySweep(ctx)
				return err
			},
		},
		{
			Name:     "correction-report",
			Interval: p.settings.CorrectionReportEvery,
			Run: func(ctx context.Context) error {
				_, err := p.tracker.DailyReport(ctx)
				return err
			},
		},
	}
}

// watchThresholds hot-reloads triage thresholds when the config file changes.
func watchThresholds(p *pipeline) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		applyThresholds(p, e, viper.GetViper())
	})
	viper.WatchConfig()
}

func applyThresholds(p *pipeline, e fsnotify.Event, v *viper.Viper) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	settings, err := config.Load(v)
	if err != nil {
		slog.Warn("Ignoring invalid config change", "file", e.Name, "error", err)
		return
	}
	if err := p.engine.SetThresholds(settings.HighConfidence, settings.MediumConfidence); err != nil {
		slog.Warn("Ignoring invalid thresholds", "file", e.Name, "error", err)
		return
	}
	slog.Info("Reloaded triage thresholds",
		"file", e.Name,
		"high", settings.HighConfidence,
		"medium", settings.MediumConfidence)
}
