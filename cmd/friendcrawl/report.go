package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/friendcrawl/internal/config"
	"github.com/nao1215/friendcrawl/internal/report"
	"github.com/nao1215/friendcrawl/internal/store"
	"github.com/spf13/cobra"
)

// errStateNotFound is returned by commands that read an existing state file.
var errStateNotFound = errors.New("state file not found")

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a state file",
		Long: `Report prints the counters of a state file and the accounts known to own
the target app.

Examples:
  # Human-readable summary
  friendcrawl report

  # JSON for other tools
  friendcrawl report --json

  # Markdown written to a file
  friendcrawl report --markdown -o report.md`,
		Args: cobra.NoArgs,
		RunE: runReportCmd,
	}

	cmd.Flags().Int("app", config.DefaultTargetApp, "App id shown in the report")
	cmd.Flags().BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Write report to specified file path (creates directories if needed)")
	cmd.Flags().Int("max-owners", 20, "Owners listed in the text report (0 = all)")

	return cmd
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := setupLogger(cmd, cfg)

	jsonReport, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownReport, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonReport && markdownReport {
		return config.ErrConflictingReportFormats
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	maxOwners, err := cmd.Flags().GetInt("max-owners")
	if err != nil {
		return err
	}

	st, err := loadExistingStore(cfg.StatePath, store.WithLogger(logger))
	if err != nil {
		return err
	}

	r := report.NewReport(st, cfg.StatePath, cfg.TargetApp, time.Now())
	r.Version = getVersion()

	output := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := createOutputFile(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case jsonReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint())
	case markdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithMaxOwners(maxOwners))
	}
	_, err = w.Write(r)
	return err
}

// loadExistingStore loads a state file that must already exist.
func loadExistingStore(path string, opts ...store.Option) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errStateNotFound, path)
		}
		return nil, err
	}
	return store.Load(path, opts...), nil
}

// createOutputFile creates parent directories and truncates path.
func createOutputFile(path string) (io.WriteCloser, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-chosen output path
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
