package report

import (
	"time"

	"github.com/nao1215/friendcrawl/internal/model"
	"github.com/nao1215/friendcrawl/internal/store"
)

// Report is a point-in-time summary of a store.
type Report struct {
	// Version is the friendcrawl version that produced the report.
	Version string `json:"version,omitempty"`

	// StatePath is the snapshot the store was loaded from.
	StatePath string `json:"statePath"`

	// GeneratedAt is when the report was built.
	GeneratedAt time.Time `json:"generatedAt"`

	// TargetApp is the application whose ownership is tracked.
	TargetApp int `json:"targetApp"`

	// Stats are the store counters.
	Stats store.Stats `json:"stats"`

	// LastActivity is the most recent lastUpdated across all records.
	LastActivity time.Time `json:"lastActivity,omitzero"`

	// Owners lists the identities known to own the target app, in
	// discovery order.
	Owners []Owner `json:"owners"`
}

// Owner is an identity confirmed to own the target app.
type Owner struct {
	ID          string    `json:"id"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewReport summarises st.
func NewReport(st *store.Store, statePath string, targetApp int, now time.Time) *Report {
	r := &Report{
		StatePath:   statePath,
		GeneratedAt: now,
		TargetApp:   targetApp,
		Stats:       st.Stats(),
		Owners:      []Owner{},
	}
	st.Each(func(rec model.PlayerRecord) bool {
		if rec.LastUpdated.After(r.LastActivity) {
			r.LastActivity = rec.LastUpdated
		}
		if rec.OwnsTarget == model.OwnershipTrue {
			r.Owners = append(r.Owners, Owner{ID: rec.ID, LastUpdated: rec.LastUpdated})
		}
		return true
	})
	return r
}

// OwnershipRate is the share of read libraries that contain the target app.
// It is zero when no library has been read.
func (r *Report) OwnershipRate() float64 {
	resolved := r.Stats.Owning + r.Stats.NotOwning
	if resolved == 0 {
		return 0
	}
	return float64(r.Stats.Owning) / float64(resolved)
}

// OwnerIDs returns the owner identities.
func (r *Report) OwnerIDs() []string {
	ids := make([]string, 0, len(r.Owners))
	for _, o := range r.Owners {
		ids = append(ids, o.ID)
	}
	return ids
}
