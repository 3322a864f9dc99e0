// Package resolver turns Web API answers into Player Record Store updates.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/friendcrawl/internal/model"
	"github.com/nao1215/friendcrawl/internal/steamapi"
	"github.com/nao1215/friendcrawl/internal/store"
)

// DefaultTargetApp is the application whose ownership is tracked.
const DefaultTargetApp = 440

// Gateway is the part of the Web API the resolver needs.
type Gateway interface {
	PlayerSummaries(ctx context.Context, ids []string) ([]steamapi.PlayerSummary, error)
	OwnedGames(ctx context.Context, id string) (steamapi.OwnedGames, error)
}

// Resolver resolves visibility and ownership of identities in a store.
// Gateway failures never escape it: the affected fields stay unknown and
// the work is picked up again on a later pass.
type Resolver struct {
	gateway   Gateway
	store     *store.Store
	targetApp int
	batchSize int
	workers   int
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTargetApp sets the application id looked up in owned-games libraries.
func WithTargetApp(appID int) Option {
	return func(r *Resolver) {
		r.targetApp = appID
	}
}

// WithBatchSize sets the number of identities per summaries call.
// Values outside 1..steamapi.MaxSummaryBatch fall back to the maximum.
func WithBatchSize(n int) Option {
	return func(r *Resolver) {
		r.batchSize = n
	}
}

// WithWorkers sets how many ownership probes may be in flight at once.
// All probes still share the gateway's rate limiter.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		r.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New returns a Resolver writing into st.
func New(gw Gateway, st *store.Store, opts ...Option) *Resolver {
	r := &Resolver{
		gateway:   gw,
		store:     st,
		targetApp: DefaultTargetApp,
		batchSize: steamapi.MaxSummaryBatch,
		workers:   1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.batchSize < 1 || r.batchSize > steamapi.MaxSummaryBatch {
		r.batchSize = steamapi.MaxSummaryBatch
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// VisibilityResult summarises one ResolveVisibility call.
type VisibilityResult struct {
	// Requested is the number of unknown identities sent to the API.
	Requested int
	// Batches is the number of summaries calls issued.
	Batches int
	// Resolved is the number of identities whose visibility became known.
	Resolved int
	// Public is the number of resolved identities that are public.
	Public int
	// Missing is the number of identities absent from successful answers.
	Missing int
	// Deferred is the number of identities in failed batches.
	Deferred int
}

// ResolveVisibility resolves the visibility of every identity in ids that
// is still unknown. Identities not yet in the store are registered first.
// Resolved identities cost no call. The only error returned is the
// context's, when ctx ends before every batch was issued.
func (r *Resolver) ResolveVisibility(ctx context.Context, ids []string) (VisibilityResult, error) {
	var res VisibilityResult

	pending := r.pendingVisibility(ids)
	res.Requested = len(pending)

	for start := 0; start < len(pending); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+r.batchSize, len(pending))
		batch := pending[start:end]

		res.Batches++
		summaries, err := r.gateway.PlayerSummaries(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Deferred += len(batch)
			r.logger.Warn("visibility batch deferred",
				"size", len(batch),
				"outcome", steamapi.Classify(err).String(),
				"error", err,
			)
			continue
		}

		seen := make(map[string]struct{}, len(summaries))
		for _, s := range summaries {
			if s.SteamID == "" {
				continue
			}
			r.store.Ensure(s.SteamID)
			if err := r.store.SetVisibility(s.SteamID, s.CommunityVisibilityState); err != nil {
				r.logger.Error("failed to record visibility", "id", s.SteamID, "error", err)
				continue
			}
			if s.CommunityVisibilityState == 0 {
				continue
			}
			seen[s.SteamID] = struct{}{}
		}

		for _, id := range batch {
			if _, ok := seen[id]; !ok {
				res.Missing++
				continue
			}
			res.Resolved++
			if rec, ok := r.store.Get(id); ok && rec.IsPublic() {
				res.Public++
			}
		}
		r.logger.Debug("visibility batch resolved",
			"size", len(batch),
			"resolved", len(seen),
		)
	}
	return res, nil
}

// pendingVisibility registers ids and returns, deduplicated and in input
// order, those still unknown.
func (r *Resolver) pendingVisibility(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var pending []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		r.store.Ensure(id)
		if rec, ok := r.store.Get(id); ok && rec.Visibility == model.VisibilityUnknown {
			pending = append(pending, id)
		}
	}
	return pending
}

// OwnershipResult summarises one ResolveOwnership call.
type OwnershipResult struct {
	// Probed is the number of owned-games calls issued.
	Probed int
	// Owning is the number of identities found to own the target app.
	Owning int
	// NotOwning is the number of readable libraries without the target app.
	NotOwning int
	// Hidden is the number of libraries that could not be read.
	Hidden int
	// Deferred is the number of probes that failed transiently.
	Deferred int
}

// ResolveOwnership probes the library of every identity in ids that is
// public, has unknown ownership and a library not known to be hidden.
// Every other identity is skipped without a call. Up to the configured
// number of probes run concurrently. The only error returned is the
// context's.
func (r *Resolver) ResolveOwnership(ctx context.Context, ids []string) (OwnershipResult, error) {
	var (
		mu  sync.Mutex
		res OwnershipResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		rec, ok := r.store.Get(id)
		if !ok || !rec.NeedsOwnership() {
			continue
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			outcome, err := r.probe(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			res.Probed++
			switch outcome {
			case model.OwnershipTrue:
				res.Owning++
			case model.OwnershipFalse:
				res.NotOwning++
			}
			switch {
			case errors.Is(err, errHidden):
				res.Hidden++
				return nil
			case err != nil:
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				res.Deferred++
				return nil
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, ctx.Err()
}

// errHidden marks a probe that found the library unreadable.
var errHidden = errors.New("library hidden")

// probe issues one owned-games call and records the answer.
func (r *Resolver) probe(ctx context.Context, id string) (model.Ownership, error) {
	games, err := r.gateway.OwnedGames(ctx, id)
	switch steamapi.Classify(err) {
	case steamapi.OutcomeOK:
	case steamapi.OutcomeNotFound, steamapi.OutcomeUnauthorized:
		r.markHidden(id)
		return model.OwnershipUnknown, errHidden
	default:
		if ctx.Err() == nil {
			r.logger.Warn("ownership probe deferred", "id", id, "error", err)
		}
		return model.OwnershipUnknown, err
	}

	if !games.Readable() {
		r.markHidden(id)
		return model.OwnershipUnknown, errHidden
	}

	owns := model.OwnershipOf(games.Owns(r.targetApp))
	if err := r.store.SetOwnership(id, owns); err != nil {
		r.logger.Error("failed to record ownership", "id", id, "error", err)
		return model.OwnershipUnknown, err
	}
	if owns == model.OwnershipTrue {
		r.logger.Info("owner found", "id", id, "app", r.targetApp)
	}
	return owns, nil
}

func (r *Resolver) markHidden(id string) {
	if err := r.store.MarkGamesHidden(id); err != nil {
		r.logger.Error("failed to record hidden library", "id", id, "error", err)
	}
}
