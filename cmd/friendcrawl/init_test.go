package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/friendcrawl/internal/config"
)

func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()

	flag := cmd.Flags().Lookup("output")
	if flag == nil {
		t.Fatal("expected output flag")
	}
	if flag.Shorthand != "o" {
		t.Errorf("expected shorthand 'o', got %q", flag.Shorthand)
	}
	if flag.DefValue != ".friendcrawl" {
		t.Errorf("expected default %q, got %q", ".friendcrawl", flag.DefValue)
	}
	if f := cmd.Flags().Lookup("force"); f == nil || f.DefValue != "false" {
		t.Error("expected force flag defaulting to false")
	}
}

func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates a loadable config file", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), "nested", ".friendcrawl")
		stdout, _, err := executeRoot(t, "init", "-o", outputPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, outputPath) {
			t.Errorf("expected output to mention %q, got %q", outputPath, stdout)
		}

		info, err := os.Stat(outputPath)
		if err != nil {
			t.Fatalf("expected config file to be created: %v", err)
		}
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			t.Errorf("expected owner-only permissions, got %v", perm)
		}

		file, err := config.LoadConfigFile(outputPath)
		if err != nil {
			t.Fatalf("template does not parse: %v", err)
		}
		cfg := config.NewConfig()
		file.ApplyTo(cfg)
		if err := cfg.Validate(); err != nil {
			t.Errorf("template produces an invalid config: %v", err)
		}
		if cfg.RequestInterval != config.DefaultRequestInterval {
			t.Errorf("expected template interval %v, got %v", config.DefaultRequestInterval, cfg.RequestInterval)
		}
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), ".friendcrawl")
		if err := os.WriteFile(outputPath, []byte("keep"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, _, err := executeRoot(t, "init", "-o", outputPath); err == nil {
			t.Fatal("expected error for existing file")
		}
		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatal(err)
		}
		if string(content) != "keep" {
			t.Error("existing file was modified")
		}

		if _, _, err := executeRoot(t, "init", "-o", outputPath, "-f"); err != nil {
			t.Fatalf("unexpected error with -f: %v", err)
		}
		content, err = os.ReadFile(outputPath)
		if err != nil {
			t.Fatal(err)
		}
		if string(content) == "keep" {
			t.Error("expected -f to overwrite the file")
		}
	})
}
