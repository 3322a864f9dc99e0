package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nao1215/friendcrawl/internal/clock"
	"github.com/nao1215/friendcrawl/internal/frontier"
	"github.com/nao1215/friendcrawl/internal/model"
	"github.com/nao1215/friendcrawl/internal/resolver"
	"github.com/nao1215/friendcrawl/internal/steamapi"
	"github.com/nao1215/friendcrawl/internal/store"
)

// DefaultCheckpointInterval is the minimum time between periodic snapshots.
const DefaultCheckpointInterval = 60 * time.Second

// DefaultRetryPause is the wait before an identity whose expansion was just
// deferred is expanded again.
const DefaultRetryPause = 5 * time.Second

// FriendSource fetches friends lists.
type FriendSource interface {
	FriendList(ctx context.Context, id string) ([]steamapi.Friend, error)
}

// Resolver resolves visibility and ownership into the store.
type Resolver interface {
	ResolveVisibility(ctx context.Context, ids []string) (resolver.VisibilityResult, error)
	ResolveOwnership(ctx context.Context, ids []string) (resolver.OwnershipResult, error)
}

// Observer is notified of snapshots and store changes, typically to
// export metrics. Calls happen on the engine goroutine.
type Observer interface {
	ObserveSnapshot(err error)
	ObserveStats(stats store.Stats)
}

// Engine runs the crawl state machine over a store.
// An Engine is meant for a single Run.
type Engine struct {
	store    *store.Store
	friends  FriendSource
	resolver Resolver
	selector *frontier.Selector

	// statePath is where snapshots are written.
	statePath string

	seed               string
	checkpointInterval time.Duration
	maxExpansions      int
	retryPause         time.Duration

	clock    clock.Clock
	observer Observer
	logger   *slog.Logger

	state          atomic.Int32
	expansions     atomic.Int64
	lastCheckpoint time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeed sets an identity that is registered before the run starts.
func WithSeed(id string) Option {
	return func(e *Engine) {
		e.seed = id
	}
}

// WithCheckpointInterval sets the minimum time between periodic snapshots.
// Zero snapshots after every expansion.
func WithCheckpointInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.checkpointInterval = d
	}
}

// WithMaxExpansions stops the run after n expansions. Zero means no limit.
func WithMaxExpansions(n int) Option {
	return func(e *Engine) {
		e.maxExpansions = n
	}
}

// WithRetryPause sets the wait before re-expanding an identity whose
// previous expansion was deferred. Zero disables the wait.
func WithRetryPause(d time.Duration) Option {
	return func(e *Engine) {
		e.retryPause = d
	}
}

// WithSelector sets the frontier selector.
func WithSelector(s *frontier.Selector) Option {
	return func(e *Engine) {
		e.selector = s
	}
}

// WithClock sets the clock used for checkpoint timing.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithObserver sets the observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New returns an Engine that crawls st and snapshots it to statePath.
func New(st *store.Store, friends FriendSource, res Resolver, statePath string, opts ...Option) *Engine {
	e := &Engine{
		store:              st,
		friends:            friends,
		resolver:           res,
		statePath:          statePath,
		checkpointInterval: DefaultCheckpointInterval,
		retryPause:         DefaultRetryPause,
		clock:              clock.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.selector == nil {
		e.selector = frontier.NewSelector()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// State returns the current state. It is safe to call from any goroutine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Expansions returns the number of expansions attempted so far.
// It is safe to call from any goroutine.
func (e *Engine) Expansions() int64 {
	return e.expansions.Load()
}

func (e *Engine) setState(s State) {
	prev := State(e.state.Swap(int32(s)))
	if prev != s {
		e.logger.Debug("state transition", "from", prev.String(), "to", s.String())
	}
}

// Summary describes a finished run.
type Summary struct {
	// State is StateDone or StateAborted.
	State State

	// Reason explains why the run ended.
	Reason StopReason

	// Expansions is the number of identities selected for expansion.
	Expansions int

	// Expanded is the number of expansions that completed.
	Expanded int

	// Deferred is the number of expansions whose friends list fetch failed transiently.
	Deferred int

	// Hidden is the number of friends lists that could not be read.
	Hidden int

	// Discovered is the number of identities first seen during the run.
	Discovered int

	// Checkpoints is the number of snapshots written, including the final one.
	Checkpoints int

	// Err is the unrecoverable error behind ReasonError.
	Err error
}

// Run drives the state machine until the frontier is empty, the expansion
// limit is reached or ctx is cancelled, then writes a final snapshot.
//
// Cancellation is not an error. The returned error is non-nil only when the
// final snapshot could not be written. A panic inside the loop still
// triggers the final snapshot before it propagates.
func (e *Engine) Run(ctx context.Context) (sum Summary, err error) {
	e.lastCheckpoint = e.clock.Now()

	defer func() {
		if p := recover(); p != nil {
			e.setState(StateAborted)
			if snapErr := e.snapshot(); snapErr != nil {
				e.logger.Error("final snapshot failed", "path", e.statePath, "error", snapErr)
			}
			panic(p)
		}

		if snapErr := e.snapshot(); snapErr != nil {
			err = fmt.Errorf("final snapshot: %w", snapErr)
			e.setState(StateAborted)
			sum.State = StateAborted
			return
		}
		sum.Checkpoints++
		e.logger.Info("final snapshot written", "path", e.statePath, "players", e.store.Len())
	}()

	if e.seed != "" && e.store.Ensure(e.seed) {
		sum.Discovered++
		e.logger.Info("seed registered", "seed", e.seed)
	}
	if n := e.store.ResetExpandFailures(); n > 0 {
		e.logger.Info("failure counts cleared", "players", n)
	}

	reason, stepErr := e.loop(ctx, &sum)
	sum.Reason = reason
	sum.Err = stepErr
	if reason == ReasonExhausted || reason == ReasonLimit {
		sum.State = StateDone
	} else {
		sum.State = StateAborted
	}
	e.setState(sum.State)

	e.logger.Info("crawl finished",
		"state", sum.State.String(),
		"reason", reason.String(),
		"expansions", sum.Expansions,
		"discovered", sum.Discovered,
	)
	return sum, nil
}

// loop runs the state machine and returns why it stopped.
func (e *Engine) loop(ctx context.Context, sum *Summary) (StopReason, error) {
	if _, err := e.sweep(ctx); err != nil {
		return stopReason(err)
	}

	var lastDeferred string
	for {
		if ctx.Err() != nil {
			return ReasonCancelled, nil
		}
		if e.maxExpansions > 0 && sum.Expansions >= e.maxExpansions {
			return ReasonLimit, nil
		}

		e.setState(StateSelecting)
		id, ok := e.selector.Next(e.store)
		if !ok {
			// Identities deferred earlier may have become resolvable. Stop
			// only once a sweep makes no progress.
			progressed, err := e.sweep(ctx)
			if err != nil {
				return stopReason(err)
			}
			if !progressed {
				return ReasonExhausted, nil
			}
			continue
		}

		if id == lastDeferred {
			if err := sleep(ctx, e.retryPause); err != nil {
				return stopReason(err)
			}
		}

		deferred := sum.Deferred
		sum.Expansions++
		e.expansions.Add(1)
		if err := e.expand(ctx, id, sum); err != nil {
			return stopReason(err)
		}
		lastDeferred = ""
		if sum.Deferred > deferred {
			lastDeferred = id
		}

		e.setState(StateCheckpointing)
		e.maybeCheckpoint(sum)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// stopReason maps a step error to a reason. Context errors are cancellations.
func stopReason(err error) (StopReason, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonCancelled, nil
	}
	return ReasonError, err
}

// sweep resolves every unknown identity, then probes every public identity
// whose ownership is unknown. It reports whether anything was resolved.
func (e *Engine) sweep(ctx context.Context) (bool, error) {
	e.setState(StateResolvingVisibility)

	unknown := e.store.Select(isUnknown)
	vis, err := e.resolver.ResolveVisibility(ctx, unknown)
	if err != nil {
		return false, err
	}

	pending := e.store.Select(needsOwnership)
	own, err := e.resolver.ResolveOwnership(ctx, pending)
	if err != nil {
		return false, err
	}

	e.observeStats()
	if vis.Requested > 0 || own.Probed > 0 {
		e.logger.Info("sweep finished",
			"unknown", len(unknown),
			"resolved", vis.Resolved,
			"public", vis.Public,
			"probed", own.Probed,
			"owners", own.Owning,
		)
	}
	return vis.Resolved > 0 || own.Owning+own.NotOwning+own.Hidden > 0, nil
}

func isUnknown(rec *model.PlayerRecord) bool {
	return rec.Visibility == model.VisibilityUnknown
}

func needsOwnership(rec *model.PlayerRecord) bool {
	return rec.NeedsOwnership()
}

// expand fetches the friends of id, registers them and resolves the new
// ones. Gateway failures are recorded on the identity and are not errors.
func (e *Engine) expand(ctx context.Context, id string, sum *Summary) error {
	e.setState(StateExpanding)

	friends, err := e.friends.FriendList(ctx, id)
	switch outcome := steamapi.Classify(err); outcome {
	case steamapi.OutcomeOK:
	case steamapi.OutcomeNotFound, steamapi.OutcomeUnauthorized:
		sum.Hidden++
		e.logger.Debug("friends list hidden", "id", id, "outcome", outcome.String())
		return e.store.MarkFriendsHidden(id)
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		sum.Deferred++
		e.logger.Warn("expansion deferred", "id", id, "outcome", outcome.String(), "error", err)
		return e.store.MarkExpandFailed(id)
	}

	ids := make([]string, 0, len(friends))
	fresh := 0
	for _, f := range friends {
		if f.SteamID == "" || f.SteamID == id {
			continue
		}
		if e.store.Ensure(f.SteamID) {
			fresh++
		}
		ids = append(ids, f.SteamID)
	}
	sum.Discovered += fresh

	// Every friend is registered, so the identity counts as crawled even if
	// the resolution below is interrupted; the next sweep finishes it.
	e.setState(StateResolvingNew)
	resolveErr := e.resolveFriends(ctx, ids)

	if err := e.store.MarkExpanded(id); err != nil {
		return err
	}
	sum.Expanded++
	e.observeStats()
	e.logger.Debug("expanded", "id", id, "friends", len(ids), "new", fresh)
	return resolveErr
}

// resolveFriends resolves the visibility of the friends that are still
// unknown, then the ownership of the public ones.
func (e *Engine) resolveFriends(ctx context.Context, ids []string) error {
	if _, err := e.resolver.ResolveVisibility(ctx, ids); err != nil {
		return err
	}
	if _, err := e.resolver.ResolveOwnership(ctx, ids); err != nil {
		return err
	}
	return nil
}

// maybeCheckpoint snapshots the store when the interval has elapsed.
// A failed periodic snapshot is logged; the next one is retried at the
// following checkpoint.
func (e *Engine) maybeCheckpoint(sum *Summary) {
	now := e.clock.Now()
	if now.Sub(e.lastCheckpoint) < e.checkpointInterval {
		return
	}
	if err := e.snapshot(); err != nil {
		e.logger.Warn("checkpoint failed", "path", e.statePath, "error", err)
		return
	}
	e.lastCheckpoint = now
	sum.Checkpoints++
	e.logger.Debug("checkpoint written", "path", e.statePath)
}

func (e *Engine) snapshot() error {
	err := e.store.Snapshot(e.statePath)
	if e.observer != nil {
		e.observer.ObserveSnapshot(err)
	}
	return err
}

func (e *Engine) observeStats() {
	if e.observer != nil {
		e.observer.ObserveStats(e.store.Stats())
	}
}
