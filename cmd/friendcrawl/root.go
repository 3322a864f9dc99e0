package main

import (
	"fmt"
	"os"

	"github.com/nao1215/friendcrawl/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for friendcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friendcrawl",
		Short: "Friends-graph crawler for Steam app ownership",
		Long: `friendcrawl crawls the Steam friends graph outward from a seed account.

Every discovered identity is kept in a JSON state file together with its
profile visibility, whether it owns the target app, and whether its own
friends list has been expanded. A crawl can be stopped at any time with
Ctrl-C and resumed later from the same state file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .friendcrawl in current or home directory)")
	cmd.PersistentFlags().StringP("state", "s", config.DefaultStatePath(), "Player state file")
	cmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "Log format: text or json")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewRunsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
