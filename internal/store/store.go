package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nao1215/friendcrawl/internal/clock"
	"github.com/nao1215/friendcrawl/internal/model"
)

var (
	// ErrUnknownPlayer is returned when a mutation names an identity the
	// store has never seen. Callers must Ensure identities first.
	ErrUnknownPlayer = errors.New("unknown player")

	// ErrOwnershipNotPublic is returned when ownership is set on an identity
	// whose profile is not public at the time of the call.
	ErrOwnershipNotPublic = errors.New("ownership can only be resolved for public profiles")
)

// Store is the single source of truth for everything known about identities.
// It only grows: records are created on first reference and never deleted.
//
// All methods are safe for concurrent use. Stats is lock-free so a progress
// reporter never contends with the crawl loop.
type Store struct {
	mu sync.RWMutex

	// records maps identity to record.
	records map[string]*model.PlayerRecord

	// order lists identities in insertion order.
	order []string

	// nextSeq is the sequence number given to the next inserted record.
	nextSeq int64

	// counters is the mutable aggregate guarded by mu; stats holds its
	// latest published copy.
	counters Stats
	stats    atomic.Pointer[Stats]

	clock             clock.Clock
	logger            *slog.Logger
	maxExpandFailures int
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for lastUpdated and lastProcessed.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the logger used while loading snapshots.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMaxExpandFailures sets the failure cap used by the frontier counter.
// It must match the cap given to the frontier selector.
func WithMaxExpandFailures(n int) Option {
	return func(s *Store) {
		s.maxExpandFailures = n
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*model.PlayerRecord),
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.publish()
	return s
}

// Load reads a snapshot written by Snapshot. A missing file yields an empty
// store (first run). An unreadable or corrupt file also yields an empty store;
// a corrupt file is first moved aside to "<path>.corrupt-<unix>" so the next
// snapshot does not destroy it.
func Load(path string, opts ...Option) *Store {
	s := New(opts...)

	data, err := os.ReadFile(path) //nolint:gosec // state path is chosen by the user
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no snapshot found, starting with an empty store", "path", path)
		return s
	}
	if err != nil {
		s.logger.Warn("snapshot unreadable, starting with an empty store", "path", path, "error", err)
		return s
	}

	records, err := decodeOrdered(data)
	if err != nil {
		aside := path + ".corrupt-" + strconv.FormatInt(s.clock.Now().Unix(), 10)
		if renameErr := os.Rename(path, aside); renameErr != nil {
			s.logger.Warn("failed to move corrupt snapshot aside", "path", path, "error", renameErr)
		}
		s.logger.Warn("snapshot corrupt, starting with an empty store",
			"path", path,
			"movedTo", aside,
			"error", err,
		)
		return s
	}

	s.restore(records)
	s.logger.Info("snapshot loaded", "path", path, "players", len(s.order))
	return s
}

// decodeOrdered decodes the snapshot object keeping document order, which
// is the insertion order for files that predate the seq field.
func decodeOrdered(data []byte) ([]*model.PlayerRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("snapshot must be a JSON object, got %v", tok)
	}

	var records []*model.PlayerRecord
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}

		var rec model.PlayerRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("player %s: %w", id, err)
		}
		rec.ID = id
		records = append(records, &rec)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return records, nil
}

// restore installs decoded records. Sequence numbers are kept when they are
// distinct and reassigned in document order otherwise. Failure counts are
// per run and start at zero.
func (s *Store) restore(records []*model.PlayerRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})

	distinct := true
	for i := 1; i < len(records); i++ {
		if records[i].Seq == records[i-1].Seq {
			distinct = false
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range records {
		if _, dup := s.records[rec.ID]; dup {
			continue
		}
		if !distinct {
			rec.Seq = int64(i)
		}
		if rec.Seq >= s.nextSeq {
			s.nextSeq = rec.Seq + 1
		}
		rec.ExpandFailures = 0
		s.records[rec.ID] = rec
		s.order = append(s.order, rec.ID)
		s.counters.add(rec, 1, s.maxExpandFailures)
	}
	s.publishLocked()
}

// Snapshot atomically writes the whole store to path as a JSON object keyed
// by identity.
func (s *Store) Snapshot(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Ensure inserts a fresh record for id if none exists.
// It reports whether a record was created.
func (s *Store) Ensure(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; ok {
		return false
	}

	rec := model.NewPlayerRecord(id, s.nextSeq, s.clock.Now())
	s.nextSeq++
	s.records[id] = rec
	s.order = append(s.order, id)
	s.counters.add(rec, 1, s.maxExpandFailures)
	s.publishLocked()
	return true
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (model.PlayerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return model.PlayerRecord{}, false
	}
	return *rec, true
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Each calls fn with a copy of every record in insertion order until fn
// returns false. fn must not call mutating Store methods.
func (s *Store) Each(fn func(rec model.PlayerRecord) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if !fn(*s.records[id]) {
			return
		}
	}
}

// Select returns, in insertion order, the identities whose record satisfies pred.
func (s *Store) Select(pred func(rec *model.PlayerRecord) bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, id := range s.order {
		if pred(s.records[id]) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Records returns copies of all records in insertion order.
func (s *Store) Records() []model.PlayerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PlayerRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

// Stats returns the latest aggregate counters without taking the store lock.
func (s *Store) Stats() Stats {
	return *s.stats.Load()
}

// SetVisibility records the raw visibility state reported for id.
func (s *Store) SetVisibility(id string, state int) error {
	return s.update(id, func(rec *model.PlayerRecord) error {
		rec.VisibilityState = state
		rec.Visibility = model.VisibilityFromState(state)
		return nil
	})
}

// SetOwnership records whether id owns the target app. It fails with
// ErrOwnershipNotPublic unless the profile is public right now.
func (s *Store) SetOwnership(id string, owns model.Ownership) error {
	return s.update(id, func(rec *model.PlayerRecord) error {
		if !rec.IsPublic() {
			return fmt.Errorf("%w: %s is %s", ErrOwnershipNotPublic, id, rec.Visibility)
		}
		rec.OwnsTarget = owns
		return nil
	})
}

// MarkGamesHidden records that the library of id cannot be read.
func (s *Store) MarkGamesHidden(id string) error {
	return s.update(id, func(rec *model.PlayerRecord) error {
		rec.GamesHidden = true
		return nil
	})
}

// MarkExpanded records a completed expansion of id: crawled becomes true and
// lastProcessed is set to now.
func (s *Store) MarkExpanded(id string) error {
	now := s.clock.Now()
	return s.update(id, func(rec *model.PlayerRecord) error {
		rec.Crawled = true
		rec.ExpandFailures = 0
		rec.LastProcessed = now
		return nil
	})
}

// MarkExpandFailed records a deferred expansion: crawled stays false,
// lastProcessed moves to now so the identity goes to the back of the frontier.
func (s *Store) MarkExpandFailed(id string) error {
	now := s.clock.Now()
	return s.update(id, func(rec *model.PlayerRecord) error {
		rec.ExpandFailures++
		rec.LastProcessed = now
		return nil
	})
}

// ResetExpandFailures clears every failure count so identities capped by an
// earlier run are eligible again. It returns the number of records changed.
func (s *Store) ResetExpandFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.records {
		if rec.ExpandFailures == 0 {
			continue
		}
		s.counters.add(rec, -1, s.maxExpandFailures)
		rec.ExpandFailures = 0
		s.counters.add(rec, 1, s.maxExpandFailures)
		n++
	}
	if n > 0 {
		s.publishLocked()
	}
	return n
}

// MarkFriendsHidden records that the friends list of id is not readable.
func (s *Store) MarkFriendsHidden(id string) error {
	now := s.clock.Now()
	return s.update(id, func(rec *model.PlayerRecord) error {
		rec.FriendsHidden = true
		rec.LastProcessed = now
		return nil
	})
}

// update applies fn to a copy of the record and commits it when fn succeeds.
// crawled can never be reset and lastUpdated is bumped only on change.
func (s *Store) update(id string, fn func(rec *model.PlayerRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}

	next := *cur
	if err := fn(&next); err != nil {
		return err
	}
	next.Crawled = next.Crawled || cur.Crawled
	if next == *cur {
		return nil
	}
	next.LastUpdated = s.clock.Now()

	s.counters.add(cur, -1, s.maxExpandFailures)
	s.counters.add(&next, 1, s.maxExpandFailures)
	*cur = next
	s.publishLocked()
	return nil
}

func (s *Store) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked()
}

func (s *Store) publishLocked() {
	snapshot := s.counters
	s.stats.Store(&snapshot)
}
