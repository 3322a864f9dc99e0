package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/nao1215/friendcrawl/internal/config"
	"github.com/nao1215/friendcrawl/internal/model"
	"github.com/nao1215/friendcrawl/internal/report"
	"github.com/nao1215/friendcrawl/internal/store"
)

const (
	seedID  = "76561190000000001"
	ownerID = "76561190000000002"
	privID  = "76561190000000003"
	quietID = "76561190000000004"
)

// newFakeWebAPI serves the three endpoints for a four-account graph:
// the seed befriends an owner and a private profile; the owner befriends
// an account whose own friends list is hidden.
func newFakeWebAPI(t *testing.T) *httptest.Server {
	t.Helper()

	states := map[string]int{
		seedID:  3,
		ownerID: 3,
		privID:  1,
		quietID: 3,
	}
	libraries := map[string]string{
		seedID:  `{"response":{"game_count":1,"games":[{"appid":570}]}}`,
		ownerID: `{"response":{"game_count":2,"games":[{"appid":440},{"appid":570}]}}`,
		quietID: `{"response":{"game_count":0}}`,
	}
	friends := map[string][]string{
		seedID:  {ownerID, privID},
		ownerID: {seedID, quietID},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ISteamUser/GetPlayerSummaries/v2/", func(w http.ResponseWriter, r *http.Request) {
		var players []string
		for _, id := range strings.Split(r.URL.Query().Get("steamids"), ",") {
			if state, ok := states[id]; ok {
				players = append(players, `{"steamid":"`+id+`","communityvisibilitystate":`+strconv.Itoa(state)+`}`)
			}
		}
		_, _ = w.Write([]byte(`{"response":{"players":[` + strings.Join(players, ",") + `]}}`))
	})
	mux.HandleFunc("/IPlayerService/GetOwnedGames/v1/", func(w http.ResponseWriter, r *http.Request) {
		body, ok := libraries[r.URL.Query().Get("steamid")]
		if !ok {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/ISteamUser/GetFriendList/v1/", func(w http.ResponseWriter, r *http.Request) {
		ids, ok := friends[r.URL.Query().Get("steamid")]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		entries := make([]string, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, `{"steamid":"`+id+`","relationship":"friend"}`)
		}
		_, _ = w.Write([]byte(`{"friendslist":{"friends":[` + strings.Join(entries, ",") + `]}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// crawlFixture runs a full crawl against the fake API and returns the
// working directory and the state and config paths.
func crawlFixture(t *testing.T) (dir, statePath, cfgPath string) {
	t.Helper()

	srv := newFakeWebAPI(t)
	dir = t.TempDir()
	statePath = filepath.Join(dir, "data", "players.json")
	cfgPath = writeConfig(t, dir, "{}\n")

	stdout, stderr, err := executeRoot(t, "crawl",
		"--config", cfgPath,
		"--api-key", "0123456789ABCDEF0123456789ABCDEF",
		"--base-url", srv.URL,
		"--seed", seedID,
		"--interval", "0s",
		"--retry-delay", "1ms",
		"--progress", "0s",
		"--metrics-addr", "127.0.0.1:0",
		"--db",
		"--db-dir", dir,
		"-s", statePath,
		"-v",
	)
	if err != nil {
		t.Fatalf("crawl failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "crawl done (exhausted)") {
		t.Errorf("expected exhausted summary, got %q", stdout)
	}
	if strings.Contains(stderr, "0123456789ABCDEF0123456789ABCDEF") {
		t.Errorf("API key leaked into logs: %s", stderr)
	}
	return dir, statePath, cfgPath
}

func TestCrawlEndToEnd(t *testing.T) {
	t.Parallel()

	_, statePath, _ := crawlFixture(t)

	st := store.Load(statePath)
	if st.Len() != 4 {
		t.Fatalf("expected 4 players, got %d", st.Len())
	}

	tests := []struct {
		id    string
		check func(rec model.PlayerRecord) bool
		desc  string
	}{
		{seedID, func(r model.PlayerRecord) bool { return r.Crawled && r.OwnsTarget == model.OwnershipFalse }, "crawled, not owning"},
		{ownerID, func(r model.PlayerRecord) bool { return r.Crawled && r.OwnsTarget == model.OwnershipTrue }, "crawled, owning"},
		{privID, func(r model.PlayerRecord) bool { return r.Visibility == model.VisibilityPrivate && !r.Crawled }, "private, never crawled"},
		{quietID, func(r model.PlayerRecord) bool { return r.FriendsHidden && r.OwnsTarget == model.OwnershipFalse }, "friends hidden, not owning"},
	}
	for _, tt := range tests {
		rec, ok := st.Get(tt.id)
		if !ok {
			t.Errorf("missing record %s", tt.id)
			continue
		}
		if !tt.check(rec) {
			t.Errorf("expected %s to be %s, got %+v", tt.id, tt.desc, rec)
		}
	}
}

func TestReportAndExportAfterCrawl(t *testing.T) {
	t.Parallel()

	dir, statePath, cfgPath := crawlFixture(t)

	t.Run("json report", func(t *testing.T) {
		stdout, _, err := executeRoot(t, "report", "--json", "--config", cfgPath, "-s", statePath)
		if err != nil {
			t.Fatalf("report failed: %v", err)
		}
		var r report.Report
		if err := json.Unmarshal([]byte(stdout), &r); err != nil {
			t.Fatalf("invalid JSON report: %v\n%s", err, stdout)
		}
		if r.Stats.Total != 4 || r.Stats.Owning != 1 {
			t.Errorf("unexpected stats: %+v", r.Stats)
		}
		if len(r.Owners) != 1 || r.Owners[0].ID != ownerID {
			t.Errorf("expected owner %s, got %+v", ownerID, r.Owners)
		}
	})

	t.Run("markdown report to file", func(t *testing.T) {
		out := filepath.Join(dir, "reports", "report.md")
		if _, _, err := executeRoot(t, "report", "--markdown", "-o", out, "--config", cfgPath, "-s", statePath); err != nil {
			t.Fatalf("report failed: %v", err)
		}
		content, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("report file not written: %v", err)
		}
		if !strings.Contains(string(content), ownerID) {
			t.Errorf("expected markdown to list the owner, got:\n%s", content)
		}
	})

	t.Run("export and run history", func(t *testing.T) {
		ownersPath := filepath.Join(dir, "owners.txt")
		stdout, _, err := executeRoot(t, "export", "--db-dir", dir, "--owners", ownersPath, "--config", cfgPath, "-s", statePath)
		if err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if !strings.Contains(stdout, "Exported 4 players (1 owners)") {
			t.Errorf("unexpected export output %q", stdout)
		}
		owners, err := os.ReadFile(ownersPath)
		if err != nil {
			t.Fatalf("owners file not written: %v", err)
		}
		if string(owners) != ownerID+"\n" {
			t.Errorf("expected owners file %q, got %q", ownerID+"\n", owners)
		}

		stdout, _, err = executeRoot(t, "runs", "--db-dir", dir, "--config", cfgPath)
		if err != nil {
			t.Fatalf("runs failed: %v", err)
		}
		for _, kind := range []string{"crawl", "export"} {
			if !strings.Contains(stdout, kind) {
				t.Errorf("expected a %s run in history, got:\n%s", kind, stdout)
			}
		}
	})
}

func TestReportErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "{}\n")

	t.Run("missing state file", func(t *testing.T) {
		t.Parallel()
		_, _, err := executeRoot(t, "report", "--config", cfgPath, "-s", filepath.Join(dir, "none.json"))
		if !errors.Is(err, errStateNotFound) {
			t.Errorf("expected errStateNotFound, got %v", err)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		t.Parallel()
		_, _, err := executeRoot(t, "report", "--json", "--markdown", "--config", cfgPath, "-s", filepath.Join(dir, "none.json"))
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})
}
