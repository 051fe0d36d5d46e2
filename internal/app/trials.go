package app

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trialdesk/internal/config"
	"trialdesk/internal/export"
	"trialdesk/internal/labs"
	"trialdesk/internal/storage/sqlite"
	"trialdesk/internal/trials"
)

func (c *cli) trialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trials",
		Short: "Filter trials and extract lab-value thresholds",
	}
	cmd.AddCommand(c.filterCmd(), c.extractCmd(), c.normalizeCmd(), c.exportCmd(), c.runsCmd())
	return cmd
}

func (c *cli) filterCmd() *cobra.Command {
	var (
		criteria trials.Criteria
		ids      []string
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Select trial records by case-insensitive substring criteria",
		Long: `Select trial records whose fields contain every given pattern.
An empty pattern matches everything. --ids narrows the matches to a subset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := c.runner(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer done()

			res, err := r.Filter(criteria, ids)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Filter run %s: %d records\n", res.RunID, len(res.Records))
			for _, rec := range res.Records {
				fmt.Fprintf(out, "  %s  %s\n", rec.NCTId, rec.BriefTitle.String)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&criteria.NCTId, "nct-id", "", "NCTId pattern")
	f.StringVar(&criteria.Conditions, "conditions", "", "Conditions pattern")
	f.StringVar(&criteria.BriefTitle, "title", "", "BriefTitle pattern")
	f.StringVar(&criteria.EligibilityCriteria, "eligibility", "", "EligibilityCriteria pattern")
	f.StringSliceVar(&ids, "ids", nil, "NCTIds to keep from the matches (comma separated)")
	return cmd
}

func (c *cli) extractCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract lab-value thresholds from a filter run with the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := c.runner(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer done()

			res, err := r.Extract(cmd.Context(), runID)
			if err != nil {
				return err
			}
			files, err := export.WriteLabValues(c.cfg.ExportOutputDir, labs.Parser{StrictRanges: c.cfg.StrictRanges}, res.Entries)
			if err != nil {
				return err
			}
			failed := 0
			for _, e := range res.Entries {
				if e.Failed() {
					failed++
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Extraction run %s (from %s): %d entries, %d failed\n", res.RunID, res.ParentID, len(res.Entries), failed)
			printFiles(cmd, files)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "filter run id (default latest)")
	return cmd
}

func (c *cli) normalizeCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize the ANC threshold of an extraction run into a [lo, hi] range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := c.runner(cmd.Context(), c.cfg.NormalizeMode == config.NormalizeLLM)
			if err != nil {
				return err
			}
			defer done()

			res, err := r.Normalize(cmd.Context(), runID)
			if err != nil {
				return err
			}
			files, err := export.WriteDatabaseReady(c.cfg.ExportOutputDir, labs.Parser{StrictRanges: c.cfg.StrictRanges}, res.Entries)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Normalization run %s (from %s, mode %s): %d entries\n", res.RunID, res.ParentID, res.Mode, len(res.Entries))
			for _, e := range res.Entries {
				if e.Failed() {
					fmt.Fprintf(out, "  %s  %s: %s\n", e.NCTId, e.ErrorKind, e.Error)
				}
			}
			printFiles(cmd, files)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "extraction run id (default latest)")
	return cmd
}

// exportCmd rewrites the database-ready files from a stored normalization
// run without calling the model again.
func (c *cli) exportCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Rewrite the database-ready exports of a normalization run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			run, err := sqlite.GetRun(db, sqlite.StageNormalize, runID)
			if err != nil {
				return err
			}
			entries, err := sqlite.GetDatabaseReady(db, run.ID)
			if err != nil {
				return fmt.Errorf("loading normalization run %s: %w", run.ID, err)
			}
			files, err := export.WriteDatabaseReady(c.cfg.ExportOutputDir, labs.Parser{StrictRanges: c.cfg.StrictRanges}, entries)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Normalization run %s: %d entries\n", run.ID, len(entries))
			printFiles(cmd, files)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "normalization run id (default latest)")
	return cmd
}

func (c *cli) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored stage runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := sqlite.ListRuns(db, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs yet.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTAGE\tPARENT\tCOUNT\tMODEL\tCREATED")
			for _, run := range runs {
				model := strings.Trim(run.LLMProvider+"/"+run.LLMModel, "/")
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					run.ID, run.Stage, orDash(run.ParentID), run.Count, orDash(model), run.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func printFiles(cmd *cobra.Command, files []string) {
	for _, f := range files {
		fmt.Fprintf(cmd.OutOrStdout(), "  wrote %s\n", f)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
