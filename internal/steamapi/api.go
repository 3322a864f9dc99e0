package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// MaxSummaryBatch is the most identities GetPlayerSummaries accepts per call.
const MaxSummaryBatch = 100

// PlayerSummary is the part of a profile summary the crawler reads.
type PlayerSummary struct {
	SteamID string `json:"steamid"`

	// CommunityVisibilityState is 3 for public profiles. Zero means the
	// field was absent.
	CommunityVisibilityState int `json:"communityvisibilitystate"`

	PersonaName string `json:"personaname,omitempty"`
}

type summariesResponse struct {
	Response struct {
		Players []PlayerSummary `json:"players"`
	} `json:"response"`
}

// PlayerSummaries returns the summaries of up to MaxSummaryBatch identities.
// Identities the platform does not know are simply absent from the result.
func (g *Gateway) PlayerSummaries(ctx context.Context, ids []string) ([]PlayerSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxSummaryBatch {
		return nil, fmt.Errorf("%d ids exceed the batch limit of %d", len(ids), MaxSummaryBatch)
	}

	params := url.Values{}
	params.Set("steamids", strings.Join(ids, ","))

	var resp summariesResponse
	if err := g.get(ctx, EndpointPlayerSummaries, params, &resp); err != nil {
		return nil, err
	}
	return resp.Response.Players, nil
}

// OwnedGame is one entry of an owned-games library.
type OwnedGame struct {
	AppID           int `json:"appid"`
	PlaytimeForever int `json:"playtime_forever,omitempty"`
}

// OwnedGames is an owned-games library.
type OwnedGames struct {
	// GameCount is nil when the response carried no game_count, which is
	// how the platform answers for a hidden library.
	GameCount *int        `json:"game_count"`
	Games     []OwnedGame `json:"games"`
}

// Readable reports whether the response actually described a library.
func (o OwnedGames) Readable() bool {
	return o.GameCount != nil || len(o.Games) > 0
}

// Owns reports whether appID is in the library.
func (o OwnedGames) Owns(appID int) bool {
	for _, game := range o.Games {
		if game.AppID == appID {
			return true
		}
	}
	return false
}

type ownedGamesResponse struct {
	Response OwnedGames `json:"response"`
}

// OwnedGames returns the library of id, including free-to-play titles.
func (g *Gateway) OwnedGames(ctx context.Context, id string) (OwnedGames, error) {
	params := url.Values{}
	params.Set("steamid", id)
	params.Set("include_played_free_games", "true")
	params.Set("include_appinfo", "false")

	var resp ownedGamesResponse
	if err := g.get(ctx, EndpointOwnedGames, params, &resp); err != nil {
		return OwnedGames{}, err
	}
	return resp.Response, nil
}

// Friend is one entry of a friends list.
type Friend struct {
	SteamID      string `json:"steamid"`
	Relationship string `json:"relationship,omitempty"`
	FriendSince  int64  `json:"friend_since,omitempty"`
}

type friendListResponse struct {
	FriendsList struct {
		Friends []Friend `json:"friends"`
	} `json:"friendslist"`
}

// FriendList returns the friends of id. An empty result is a valid answer.
func (g *Gateway) FriendList(ctx context.Context, id string) ([]Friend, error) {
	params := url.Values{}
	params.Set("steamid", id)
	params.Set("relationship", "friend")

	var resp friendListResponse
	if err := g.get(ctx, EndpointFriendList, params, &resp); err != nil {
		return nil, err
	}
	return resp.FriendsList.Friends, nil
}

// get fetches and decodes. A body that is not valid JSON is a transient
// failure: the call can be repeated later.
func (g *Gateway) get(ctx context.Context, endpoint Endpoint, params url.Values, v any) error {
	body, err := g.Fetch(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &Error{
			Endpoint:   endpoint,
			StatusCode: 200,
			Outcome:    OutcomeTransient,
			Attempts:   1,
			Cause:      fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}
