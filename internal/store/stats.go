package store

import "github.com/nao1215/friendcrawl/internal/model"

// Stats are aggregate counters over every record in a Store.
// A Stats value is an immutable copy; reading it never blocks the crawl.
type Stats struct {
	// Total is the number of known identities.
	Total int `json:"total"`

	// Public, Private and UnknownVisibility partition Total by visibility.
	Public            int `json:"public"`
	Private           int `json:"private"`
	UnknownVisibility int `json:"unknownVisibility"`

	// Owning counts public identities known to own the target app.
	Owning int `json:"owning"`

	// NotOwning counts public identities known not to own it.
	NotOwning int `json:"notOwning"`

	// UnresolvedOwnership counts public identities whose library has not been read.
	UnresolvedOwnership int `json:"unresolvedOwnership"`

	// GamesHidden counts public identities whose library cannot be read.
	GamesHidden int `json:"gamesHidden"`

	// Crawled counts expanded identities.
	Crawled int `json:"crawled"`

	// FriendsHidden counts identities whose friends list is not readable.
	FriendsHidden int `json:"friendsHidden"`

	// Frontier is the queue depth: identities the selector may still pick.
	Frontier int `json:"frontier"`
}

// add applies the contribution of r to s with the given sign (+1 or -1).
func (s *Stats) add(r *model.PlayerRecord, sign, maxFailures int) {
	s.Total += sign
	switch r.Visibility {
	case model.VisibilityPublic:
		s.Public += sign
		switch {
		case r.OwnsTarget == model.OwnershipTrue:
			s.Owning += sign
		case r.OwnsTarget == model.OwnershipFalse:
			s.NotOwning += sign
		case r.GamesHidden:
			s.GamesHidden += sign
		default:
			s.UnresolvedOwnership += sign
		}
	case model.VisibilityPrivate:
		s.Private += sign
	default:
		s.UnknownVisibility += sign
	}
	if r.Crawled {
		s.Crawled += sign
	}
	if r.FriendsHidden {
		s.FriendsHidden += sign
	}
	if r.Expandable(maxFailures) {
		s.Frontier += sign
	}
}
