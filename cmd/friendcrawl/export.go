package main

import (
	"bufio"
	"fmt"
	"time"

	"github.com/nao1215/friendcrawl/internal/config"
	"github.com/nao1215/friendcrawl/internal/database"
	"github.com/nao1215/friendcrawl/internal/store"
	"github.com/spf13/cobra"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a state file to SQLite",
		Long: `Export upserts every player of the state file into the SQLite database and
records the export in the run history.

Examples:
  # Export into the default database
  friendcrawl export

  # Also write the owning accounts, one per line
  friendcrawl export --owners owners.txt`,
		Args: cobra.NoArgs,
		RunE: runExportCmd,
	}

	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the SQLite database")
	cmd.Flags().String("owners", "", "Write the ids of owning accounts to this file")

	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := setupLogger(cmd, cfg)

	ownersPath, err := cmd.Flags().GetString("owners")
	if err != nil {
		return err
	}

	startedAt := time.Now()
	st, err := loadExistingStore(cfg.StatePath, store.WithLogger(logger))
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	n, err := db.UpsertPlayers(ctx, st.Records())
	if err != nil {
		return err
	}

	owners, err := db.Owners(ctx)
	if err != nil {
		return err
	}

	run := &database.Run{
		Kind:       database.RunKindExport,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		State:      "done",
		Players:    n,
		Owners:     len(owners),
		StatePath:  cfg.StatePath,
	}
	if err := db.RecordRun(ctx, run); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Exported %d players (%d owners) to %s\n", n, len(owners), db.Path())

	if ownersPath != "" {
		if err := writeOwners(ownersPath, owners); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d owner ids to %s\n", len(owners), ownersPath)
	}
	return nil
}

func writeOwners(path string, ids []string) (err error) {
	f, err := createOutputFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	for _, id := range ids {
		if _, err := fmt.Fprintln(bw, id); err != nil {
			return err
		}
	}
	return bw.Flush()
}
