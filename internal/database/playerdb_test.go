package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/friendcrawl/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *PlayerDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testRecords() []model.PlayerRecord {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return []model.PlayerRecord{
		{
			ID:              "76561197960287930",
			Visibility:      model.VisibilityPublic,
			VisibilityState: 3,
			OwnsTarget:      model.OwnershipTrue,
			Crawled:         true,
			LastUpdated:     base,
			LastProcessed:   base.Add(time.Minute),
			Seq:             0,
		},
		{
			ID:              "76561197960287931",
			Visibility:      model.VisibilityPrivate,
			VisibilityState: 1,
			OwnsTarget:      model.OwnershipUnknown,
			LastUpdated:     base.Add(time.Second),
			Seq:             1,
		},
		{
			ID:             "76561197960287932",
			Visibility:     model.VisibilityPublic,
			OwnsTarget:     model.OwnershipUnknown,
			GamesHidden:    true,
			FriendsHidden:  true,
			ExpandFailures: 2,
			LastUpdated:    base.Add(2 * time.Second),
			Seq:            2,
		},
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := db.UpsertPlayers(context.Background(), testRecords()); err != nil {
			t.Fatal(err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen: %v", err)
		}
		defer db.Close()

		n, err := db.CountPlayers(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if n != 3 {
			t.Errorf("expected 3 players, got %d", n)
		}
	})
}

func TestUpsertPlayers(t *testing.T) {
	t.Parallel()

	t.Run("stores and reads back every field", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		records := testRecords()

		n, err := db.UpsertPlayers(ctx, records)
		if err != nil {
			t.Fatal(err)
		}
		if n != len(records) {
			t.Errorf("expected %d rows, got %d", len(records), n)
		}

		for _, want := range records {
			got, err := db.GetPlayer(ctx, want.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got == nil {
				t.Fatalf("player %s not found", want.ID)
			}
			if diff := cmp.Diff(want, *got); diff != "" {
				t.Errorf("player %s mismatch (-want +got):\n%s", want.ID, diff)
			}
		}
	})

	t.Run("upsert replaces existing rows", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		records := testRecords()
		if _, err := db.UpsertPlayers(ctx, records); err != nil {
			t.Fatal(err)
		}

		records[1].Crawled = true
		records[1].ExpandFailures = 4
		if _, err := db.UpsertPlayers(ctx, records[1:2]); err != nil {
			t.Fatal(err)
		}

		got, err := db.GetPlayer(ctx, records[1].ID)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Crawled || got.ExpandFailures != 4 {
			t.Errorf("expected updated row, got %+v", got)
		}
		if n, _ := db.CountPlayers(ctx); n != 3 {
			t.Errorf("expected 3 rows after upsert, got %d", n)
		}
	})

	t.Run("missing player is nil", func(t *testing.T) {
		t.Parallel()

		got, err := setupTestDB(t).GetPlayer(context.Background(), "nope")
		if err != nil || got != nil {
			t.Errorf("expected nil, nil; got %v, %v", got, err)
		}
	})
}

func TestOwners(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	records := testRecords()
	records[2].OwnsTarget = model.OwnershipTrue
	if _, err := db.UpsertPlayers(ctx, records); err != nil {
		t.Fatal(err)
	}

	owners, err := db.Owners(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"76561197960287930", "76561197960287932"}
	if diff := cmp.Diff(want, owners); diff != "" {
		t.Errorf("owners mismatch (-want +got):\n%s", diff)
	}
}

func TestRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	first := &Run{Kind: RunKindCrawl, StartedAt: start, State: "running", StatePath: "/tmp/p.json"}
	if err := db.RecordRun(ctx, first); err != nil {
		t.Fatal(err)
	}
	if first.ID == "" {
		t.Fatal("expected a generated run id")
	}

	first.FinishedAt = start.Add(time.Hour)
	first.State = "done"
	first.Reason = "exhausted"
	first.Expansions = 12
	first.Players = 40
	first.Owners = 3
	if err := db.RecordRun(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := &Run{ID: NewRunID(), Kind: RunKindExport, StartedAt: start.Add(2 * time.Hour), State: "done", Players: 40}
	if err := db.RecordRun(ctx, second); err != nil {
		t.Fatal(err)
	}

	runs, err := db.Runs(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("expected newest run first, got %s", runs[0].ID)
	}
	if diff := cmp.Diff(*first, runs[1]); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	limited, err := db.Runs(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(limited))
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  time.Time
	}{
		{input: "2026-01-02T03:04:05.000000000Z", want: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{input: "2026-01-02T03:04:05Z", want: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{input: "2026-01-02 03:04:05", want: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{input: "garbage", want: time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
