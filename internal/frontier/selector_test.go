package frontier

import (
	"testing"
	"time"

	"github.com/nao1215/friendcrawl/internal/clock"
	"github.com/nao1215/friendcrawl/internal/store"
)

func newStore(t *testing.T, c *clock.Fake, public []string, others ...string) *store.Store {
	t.Helper()

	s := store.New(store.WithClock(c))
	for _, id := range public {
		s.Ensure(id)
		if err := s.SetVisibility(id, 3); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range others {
		s.Ensure(id)
	}
	return s
}

func TestNext(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty store yields nothing", func(t *testing.T) {
		t.Parallel()

		if id, ok := NewSelector().Next(store.New()); ok {
			t.Errorf("expected no candidate, got %q", id)
		}
	})

	t.Run("only public uncrawled identities qualify", func(t *testing.T) {
		t.Parallel()

		c := clock.NewFake(start)
		s := newStore(t, c, []string{"crawled", "candidate"}, "unknown")
		if err := s.MarkExpanded("crawled"); err != nil {
			t.Fatal(err)
		}
		s.Ensure("private")
		if err := s.SetVisibility("private", 1); err != nil {
			t.Fatal(err)
		}

		id, ok := NewSelector().Next(s)
		if !ok || id != "candidate" {
			t.Errorf("expected candidate, got %q (%v)", id, ok)
		}
	})

	t.Run("never processed beats processed, ties by insertion", func(t *testing.T) {
		t.Parallel()

		c := clock.NewFake(start)
		s := newStore(t, c, []string{"a", "b", "c"})
		if err := s.MarkExpandFailed("a"); err != nil {
			t.Fatal(err)
		}

		id, ok := NewSelector().Next(s)
		if !ok || id != "b" {
			t.Errorf("expected b, got %q", id)
		}
	})

	t.Run("oldest lastProcessed wins", func(t *testing.T) {
		t.Parallel()

		c := clock.NewFake(start)
		s := newStore(t, c, []string{"a", "b"})
		c.Advance(time.Minute)
		if err := s.MarkExpandFailed("b"); err != nil {
			t.Fatal(err)
		}
		c.Advance(time.Minute)
		if err := s.MarkExpandFailed("a"); err != nil {
			t.Fatal(err)
		}

		id, _ := NewSelector().Next(s)
		if id != "b" {
			t.Errorf("expected b (processed earlier), got %q", id)
		}
	})

	t.Run("identity is not reselected after expansion", func(t *testing.T) {
		t.Parallel()

		c := clock.NewFake(start)
		s := newStore(t, c, []string{"a", "b"})
		sel := NewSelector()

		first, _ := sel.Next(s)
		if err := s.MarkExpanded(first); err != nil {
			t.Fatal(err)
		}
		second, ok := sel.Next(s)
		if !ok || second == first {
			t.Errorf("expected a different identity, got %q after %q", second, first)
		}
	})

	t.Run("failure cap removes the identity", func(t *testing.T) {
		t.Parallel()

		c := clock.NewFake(start)
		s := newStore(t, c, []string{"flaky"})
		for range 2 {
			if err := s.MarkExpandFailed("flaky"); err != nil {
				t.Fatal(err)
			}
		}

		if _, ok := NewSelector(WithMaxFailures(2)).Next(s); ok {
			t.Error("expected capped identity to be skipped")
		}
		if id, ok := NewSelector().Next(s); !ok || id != "flaky" {
			t.Errorf("expected uncapped selector to return flaky, got %q", id)
		}
	})
}
