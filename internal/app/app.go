// Package app is the trialdesk command tree.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trialdesk/internal/config"
	"trialdesk/internal/httpx"
	"trialdesk/internal/integrations/llm"
	slackbot "trialdesk/internal/integrations/slack"
	"trialdesk/internal/logging"
	"trialdesk/internal/pipeline"
	"trialdesk/internal/storage/sqlite"
)

// cli carries the global flags and the config loaded for the running command.
type cli struct {
	configPath string
	verbose    bool
	cfg        config.Config

	// newGenerator is swapped out in tests.
	newGenerator func(ctx context.Context, cfg config.Config) (llm.TextGenerator, error)
	newNotifier  func(cfg config.Config) notifier
}

// notifier is the slice of the Slack client the commands use.
type notifier interface {
	PostSummary(ctx context.Context, text string) error
	UploadFile(ctx context.Context, path, title, comment string) error
}

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newCLI().rootCmd().ExecuteContext(ctx)
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCLI() *cli {
	return &cli{
		newGenerator: llm.NewGenerator,
		newNotifier: func(cfg config.Config) notifier {
			return slackbot.NewNotifier(cfg.SlackBotToken, cfg.SlackChannelID)
		},
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trialdesk",
		Short: "Clinical trial lab-threshold extraction and schedule comparison",
		Long: `trialdesk filters a clinical trial snapshot, extracts lab-value eligibility
thresholds with a generative model, normalizes the ANC range, and compares
LN against CLB schedule dates.

Each trials stage stores its result so the next command can pick it up.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(c.trialsCmd(), c.scheduleCmd())
	return root
}

func (c *cli) setup() error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := logging.Configure(c.verbose); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	logging.L().Debugf("config loaded provider=%s normalize_mode=%s db=%s exports=%s timezone=%s http_timeout=%s",
		cfg.LLMProvider, cfg.NormalizeMode, cfg.DBPath, cfg.ExportOutputDir, cfg.Location, applied)
	c.cfg = cfg
	return nil
}

func (c *cli) openDB() (*sql.DB, error) {
	db, err := sqlite.InitDB(c.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.cfg.DBPath, err)
	}
	return db, nil
}

// runner opens the store and, when withModel is set, the text generator.
func (c *cli) runner(ctx context.Context, withModel bool) (*pipeline.Runner, func(), error) {
	db, err := c.openDB()
	if err != nil {
		return nil, nil, err
	}
	r := &pipeline.Runner{Config: c.cfg, DB: db}
	if withModel {
		gen, err := c.newGenerator(ctx, c.cfg)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		r.Generator = gen
	}
	return r, func() { db.Close() }, nil
}
