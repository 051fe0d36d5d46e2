package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"trialdesk/internal/config"
	"trialdesk/internal/export"
	"trialdesk/internal/logging"
	"trialdesk/internal/pipeline"
)

type sleepFunc func(ctx context.Context, d time.Duration) error

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run the comparison on the watch_schedule cron expression",
		Long: `Re-run the comparison from watch_baseline_path and watch_current_path on
the 5-field cron expression in watch_schedule (e.g. "0 9 * * 1-5"), posting
each summary to Slack when configured. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			expr := strings.TrimSpace(cfg.WatchSchedule)
			if expr == "" {
				return errors.New("watch_schedule is not set")
			}
			if cfg.WatchBaselinePath == "" || cfg.WatchCurrentPath == "" {
				return errors.New("watch_baseline_path and watch_current_path are required")
			}
			sched, err := config.ParseWatchSchedule(expr)
			if err != nil {
				return fmt.Errorf("invalid watch_schedule '%s': %w", expr, err)
			}

			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var n notifier
			if cfg.SlackConfigured() {
				n = c.newNotifier(cfg)
			}
			logging.L().Infof("watch scheduled cron=%q baseline=%s current=%s slack=%t",
				expr, cfg.WatchBaselinePath, cfg.WatchCurrentPath, n != nil)

			tick := func(ctx context.Context) error {
				res, err := pipeline.Compare(cfg, db, cfg.WatchBaselinePath, cfg.WatchCurrentPath, "watch", time.Now())
				if err != nil {
					if n != nil {
						_ = n.PostSummary(ctx, fmt.Sprintf("Scheduled LN vs CLB comparison failed: %v", err))
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), export.BuildSlackSummary(res.Summary))
				if n != nil {
					return c.publish(ctx, n, res)
				}
				return nil
			}
			return watchLoop(cmd.Context(), sched, c.location(), sleepContext, tick)
		},
	}
}

// watchLoop sleeps until each next cron time and runs tick. A failed tick is
// logged and the loop continues. It returns nil once ctx is cancelled.
func watchLoop(ctx context.Context, sched cron.Schedule, loc *time.Location, sleep sleepFunc, tick func(context.Context) error) error {
	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		logging.L().Infof("watch next run at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		if err := sleep(ctx, wait); err != nil {
			logging.L().Infof("watch stopped: %v", err)
			return nil
		}
		if err := tick(ctx); err != nil {
			logging.L().Warnf("watch comparison error: %v", err)
			continue
		}
		logging.L().Infof("watch comparison done")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
