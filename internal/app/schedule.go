package app

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trialdesk/internal/export"
	"trialdesk/internal/logging"
	"trialdesk/internal/pipeline"
	"trialdesk/internal/storage/sqlite"
)

func (c *cli) scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Compare LN schedule dates against the CLB baseline",
	}
	cmd.AddCommand(c.baselineCmd(), c.pivotCmd(), c.compareCmd(), c.watchCmd(), c.historyCmd())
	return cmd
}

func (c *cli) baselineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "baseline <baseline.csv|xlsx>",
		Short: "Keep the max-baseline rows of the CLB file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := pipeline.LoadBaseline(args[0])
			if err != nil {
				return err
			}
			path, err := export.WriteBaseline(c.cfg.ExportOutputDir, rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Baseline: %d rows\n", len(rows))
			printFiles(cmd, []string{path})
			return nil
		},
	}
}

func (c *cli) pivotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pivot <current.xlsx|csv>",
		Short: "Pivot the current LN plan by project and phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := pipeline.LoadPivot(c.cfg, args[0])
			if err != nil {
				return err
			}
			path, err := export.WritePivot(c.cfg.ExportOutputDir, rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pivot: %d rows\n", len(rows))
			printFiles(cmd, []string{path})
			return nil
		},
	}
}

func (c *cli) compareCmd() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "compare <baseline> <current>",
		Short: "Join baseline and pivot, classify variances, and write every export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := pipeline.Compare(c.cfg, db, args[0], args[1], "cli", time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), export.BuildSlackSummary(res.Summary))
			printFiles(cmd, res.Files)

			if !notify {
				return nil
			}
			if !c.cfg.SlackConfigured() {
				return fmt.Errorf("--notify needs slack_bot_token and slack_channel_id")
			}
			return c.publish(cmd.Context(), c.newNotifier(c.cfg), res)
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "post the summary and upload the charts to Slack")
	return cmd
}

// publish posts the summary text and uploads the charts page and the
// categorized table.
func (c *cli) publish(ctx context.Context, n notifier, res pipeline.ComparisonResult) error {
	if err := n.PostSummary(ctx, export.BuildSlackSummary(res.Summary)); err != nil {
		return err
	}
	uploads := map[string]string{
		export.ChartsFile:     "LN vs CLB charts",
		export.ComparisonFile: "LN vs CLB categorized dates",
	}
	for _, path := range res.Files {
		title, ok := uploads[filepath.Base(path)]
		if !ok {
			continue
		}
		if err := n.UploadFile(ctx, path, title, ""); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		since time.Duration
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded comparisons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			runs, err := sqlite.GetComparisonRuns(db, from, limit)
			if err != nil {
				return err
			}
			logging.L().Debugf("schedule history since=%s runs=%d", from.Format(time.RFC3339), len(runs))
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No comparisons recorded.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tSOURCE\tROWS\tPOSITIVE\tNEGATIVE\tCURRENT")
			for _, run := range runs {
				v := run.Summary.Variance
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					run.CreatedAt.In(c.location()).Format("2006-01-02 15:04"), run.Source, v.Total, v.Positive, v.Negative, filepath.Base(run.CurrentPath))
			}
			return w.Flush()
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "only comparisons newer than this (e.g. 168h)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum comparisons to list")
	return cmd
}

func (c *cli) location() *time.Location {
	if c.cfg.Location != nil {
		return c.cfg.Location
	}
	return time.Local
}
