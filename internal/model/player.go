package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// PublicVisibilityState is the platform's communityvisibilitystate code for a
// public profile. Every other resolved code is treated as private.
const PublicVisibilityState = 3

// Visibility is the resolved profile visibility of an identity.
type Visibility int

const (
	// VisibilityUnknown means no profile summary has been received yet.
	VisibilityUnknown Visibility = iota

	// VisibilityPrivate covers every resolved state other than public.
	VisibilityPrivate

	// VisibilityPublic means the profile, friends list and library may be readable.
	VisibilityPublic
)

// VisibilityFromState maps a raw communityvisibilitystate code to a Visibility.
// Zero means the field was absent and maps to VisibilityUnknown.
func VisibilityFromState(state int) Visibility {
	switch state {
	case 0:
		return VisibilityUnknown
	case PublicVisibilityState:
		return VisibilityPublic
	default:
		return VisibilityPrivate
	}
}

// String returns the lowercase name used in snapshots and reports.
func (v Visibility) String() string {
	switch v {
	case VisibilityUnknown:
		return "unknown"
	case VisibilityPrivate:
		return "private"
	case VisibilityPublic:
		return "public"
	default:
		return fmt.Sprintf("visibility(%d)", int(v))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Visibility) MarshalText() ([]byte, error) {
	switch v {
	case VisibilityUnknown, VisibilityPrivate, VisibilityPublic:
		return []byte(v.String()), nil
	default:
		return nil, fmt.Errorf("invalid visibility %d", int(v))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Unrecognised values decode to VisibilityUnknown so the identity is re-resolved.
func (v *Visibility) UnmarshalText(text []byte) error {
	switch string(text) {
	case "public":
		*v = VisibilityPublic
	case "private":
		*v = VisibilityPrivate
	default:
		*v = VisibilityUnknown
	}
	return nil
}

// Ownership is a tri-state answer to "does this identity own the target app".
type Ownership int

const (
	// OwnershipUnknown means the library has not been (or cannot be) inspected.
	OwnershipUnknown Ownership = iota

	// OwnershipFalse means the library was read and the target app is absent.
	OwnershipFalse

	// OwnershipTrue means the library was read and contains the target app.
	OwnershipTrue
)

// OwnershipOf converts a definite answer into an Ownership.
func OwnershipOf(owns bool) Ownership {
	if owns {
		return OwnershipTrue
	}
	return OwnershipFalse
}

// String returns the lowercase name used in snapshots and reports.
func (o Ownership) String() string {
	switch o {
	case OwnershipUnknown:
		return "unknown"
	case OwnershipFalse:
		return "false"
	case OwnershipTrue:
		return "true"
	default:
		return fmt.Sprintf("ownership(%d)", int(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Ownership) MarshalText() ([]byte, error) {
	switch o {
	case OwnershipUnknown, OwnershipFalse, OwnershipTrue:
		return []byte(o.String()), nil
	default:
		return nil, fmt.Errorf("invalid ownership %d", int(o))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Ownership) UnmarshalText(text []byte) error {
	switch string(text) {
	case "true":
		*o = OwnershipTrue
	case "false":
		*o = OwnershipFalse
	default:
		*o = OwnershipUnknown
	}
	return nil
}

// PlayerRecord is everything the crawler knows about one identity.
// Records are created on first reference and never deleted.
type PlayerRecord struct {
	// ID is the platform identity (a 64-bit account id rendered as a string).
	ID string `json:"id"`

	// Visibility is the resolved profile visibility.
	Visibility Visibility `json:"visibility"`

	// VisibilityState is the raw platform code behind Visibility (0 when unresolved).
	VisibilityState int `json:"visibilityState,omitempty"`

	// OwnsTarget may only leave OwnershipUnknown while Visibility is public.
	OwnsTarget Ownership `json:"ownsTarget"`

	// Crawled is set once the friends list has been fetched and every friend
	// registered. It never goes back to false.
	Crawled bool `json:"crawled"`

	// FriendsHidden is set when the friends list answered 401/403/404.
	FriendsHidden bool `json:"friendsHidden,omitempty"`

	// GamesHidden is set when the owned-games library cannot be read.
	GamesHidden bool `json:"gamesHidden,omitempty"`

	// ExpandFailures counts consecutive failed friends-list fetches in the
	// current run. It is cleared when a snapshot is loaded.
	ExpandFailures int `json:"expandFailures,omitempty"`

	// LastUpdated is the time of the most recent field mutation.
	LastUpdated time.Time `json:"lastUpdated"`

	// LastProcessed is the last time this identity was chosen for expansion.
	// The zero value means never.
	LastProcessed time.Time `json:"lastProcessed,omitzero"`

	// Seq is the insertion sequence number; it orders frontier ties.
	Seq int64 `json:"seq"`
}

// NewPlayerRecord returns a freshly discovered record.
func NewPlayerRecord(id string, seq int64, now time.Time) *PlayerRecord {
	return &PlayerRecord{
		ID:          id,
		Visibility:  VisibilityUnknown,
		OwnsTarget:  OwnershipUnknown,
		LastUpdated: now,
		Seq:         seq,
	}
}

// IsPublic reports whether the profile is public.
func (p *PlayerRecord) IsPublic() bool {
	return p.Visibility == VisibilityPublic
}

// NeedsOwnership reports whether an ownership probe may and should be issued.
func (p *PlayerRecord) NeedsOwnership() bool {
	return p.IsPublic() && p.OwnsTarget == OwnershipUnknown && !p.GamesHidden
}

// Expandable reports whether the record belongs to the frontier.
// maxFailures of zero disables the failure cap.
func (p *PlayerRecord) Expandable(maxFailures int) bool {
	if p.Crawled || !p.IsPublic() || p.FriendsHidden {
		return false
	}
	return maxFailures <= 0 || p.ExpandFailures < maxFailures
}

// legacyRecord is the per-id shape written by the earlier players.json
// scripts: {"crawled": bool, "vis": int, "440": bool}.
type legacyRecord struct {
	Vis     *int  `json:"vis"`
	Owns440 *bool `json:"440"`
}

// UnmarshalJSON decodes both the current schema and the legacy script schema.
// Unknown fields are ignored.
func (p *PlayerRecord) UnmarshalJSON(data []byte) error {
	type plain PlayerRecord
	var current plain
	if err := json.Unmarshal(data, &current); err != nil {
		return err
	}

	var legacy legacyRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}

	if legacy.Vis != nil && current.Visibility == VisibilityUnknown {
		current.VisibilityState = *legacy.Vis
		current.Visibility = VisibilityFromState(*legacy.Vis)
	}
	if legacy.Owns440 != nil && *legacy.Owns440 && current.Visibility == VisibilityPublic {
		current.OwnsTarget = OwnershipTrue
	}

	*p = PlayerRecord(current)
	return nil
}
