package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/friendcrawl/internal/config"
	"github.com/nao1215/friendcrawl/internal/database"
	"github.com/spf13/cobra"
)

// NewRunsCmd creates the runs command.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded crawl and export runs",
		Long: `Runs lists the run history kept in the SQLite database, newest first.
Crawls are recorded when started with --db; exports are always recorded.`,
		Args: cobra.NoArgs,
		RunE: runRunsCmd,
	}

	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the SQLite database")
	cmd.Flags().IntP("limit", "l", 20, "Number of runs to show")

	return cmd
}

func runRunsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cmd, cfg)

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(cfg.DBDir, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTARTED\tSTATE\tREASON\tEXPANSIONS\tPLAYERS\tOWNERS")
	now := time.Now()
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID[:min(8, len(r.ID))], r.Kind,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.State, r.Reason,
			humanize.Comma(int64(r.Expansions)),
			humanize.Comma(int64(r.Players)),
			humanize.Comma(int64(r.Owners)),
		)
	}
	return tw.Flush()
}
