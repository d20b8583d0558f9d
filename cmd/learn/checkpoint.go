package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-model-must-learn/internal/cli"
	"github.com/Veraticus/the-model-must-learn/internal/storage"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Snapshot the learning database",
		Long: `Create and list consistent snapshots of the database.

Take one before bulk review sessions or a manual retrain so the corpus can be
inspected or restored later.`,
		Example: `  # Snapshot before a large review session
  learn checkpoint create --tag before-review

  # List snapshots
  learn checkpoint list`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())

	return cmd
}

// checkpointDir keeps snapshots next to the database file.
func checkpointDir(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "checkpoints")
}

func createCheckpointCmd() *cobra.Command {
	var tag string
	var description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			info, err := store.CreateCheckpoint(ctx, checkpointDir(settings.DatabasePath), tag, description)
			if err != nil {
				return fmt.Errorf("failed to create checkpoint: %w", err)
			}

			fmt.Printf("%s Created checkpoint %s (%s)\n", //nolint:forbidigo // User-facing output
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(info.ID),
				formatFileSize(info.FileSize))
			fmt.Printf("  %d examples, %d corrections, %d training runs\n", //nolint:forbidigo // User-facing output
				info.RowCounts["training_examples"],
				info.RowCounts["corrections"],
				info.RowCounts["training_runs"])

			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "checkpoint name (auto-generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "description of the checkpoint")

	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		RunE: func(_ *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			checkpoints, err := storage.ListCheckpoints(checkpointDir(settings.DatabasePath))
			if err != nil {
				return err
			}
			if len(checkpoints) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No checkpoints found.")) //nolint:forbidigo // User-facing output
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tCREATED\tSIZE\tEXAMPLES\tCORRECTIONS\tDESCRIPTION")
			for _, cp := range checkpoints {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					cp.ID,
					cp.CreatedAt.Local().Format("2006-01-02 15:04"),
					formatFileSize(cp.FileSize),
					cp.RowCounts["training_examples"],
					cp.RowCounts["corrections"],
					truncateString(cp.Description, 40))
			}
			return w.Flush()
		},
	}
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
