// Package spotify provides the metadata client and catalog expansion against
// the Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"spotgrab/internal/core"
	"spotgrab/pkg/fuzzy"
	"spotgrab/pkg/ref"
)

const (
	// MaxSearchResults is the number of track results returned by a search
	MaxSearchResults = 50
	// PageLimit is the page size used while paging catalog listings
	PageLimit = 50
)

// errNotAuthenticated guards API calls made before Authenticate succeeded.
// Always surfaced wrapped under core.ErrRemoteService.
var errNotAuthenticated = errors.New("client not authenticated")

type Client struct {
	config     *core.SpotifyConfig
	logger     *zap.Logger
	client     *spotify.Client
	normalizer *fuzzy.Normalizer
}

func NewClient(config *core.SpotifyConfig, logger *zap.Logger) *Client {
	return &Client{
		config:     config,
		logger:     logger,
		normalizer: fuzzy.NewNormalizer(),
	}
}

// Authenticate requests a client-credentials token and builds the API client.
func (c *Client) Authenticate(ctx context.Context) error {
	creds := &clientcredentials.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	token, err := creds.Token(ctx)
	if err != nil {
		return core.RemoteError("request token", err)
	}

	c.client = spotify.New(spotifyauth.New().Client(ctx, token))

	c.logger.Info("Authenticated with Spotify",
		zap.String("market", c.config.Market))
	return nil
}

// Resolve fetches the metadata for one canonical reference. Dispatch is
// purely on the reference kind; unknown kinds never reach the network and
// come back as the Other fallback carrying the original reference string.
func (c *Client) Resolve(ctx context.Context, r ref.Reference) (core.ResolvedItem, error) {
	switch r.Kind {
	case ref.KindTrack, ref.KindPlaylist, ref.KindAlbum, ref.KindArtist:
		if c.client == nil {
			return core.ResolvedItem{}, core.RemoteError("resolve", errNotAuthenticated)
		}
	}

	switch r.Kind {
	case ref.KindTrack:
		track, err := c.client.GetTrack(ctx, spotify.ID(r.ID), c.marketOpts()...)
		if err != nil {
			return core.ResolvedItem{}, core.RemoteError("get track", err)
		}
		return core.ResolvedItem{Track: track}, nil

	case ref.KindPlaylist:
		playlist, err := c.client.GetPlaylist(ctx, spotify.ID(r.ID), c.marketOpts()...)
		if err != nil {
			return core.ResolvedItem{}, core.RemoteError("get playlist", err)
		}
		return core.ResolvedItem{Playlist: playlist}, nil

	case ref.KindAlbum:
		album, err := c.client.GetAlbum(ctx, spotify.ID(r.ID), c.marketOpts()...)
		if err != nil {
			return core.ResolvedItem{}, core.RemoteError("get album", err)
		}
		return core.ResolvedItem{Album: album}, nil

	case ref.KindArtist:
		artist, err := c.client.GetArtist(ctx, spotify.ID(r.ID))
		if err != nil {
			return core.ResolvedItem{}, core.RemoteError("get artist", err)
		}
		return core.ResolvedItem{Artist: artist}, nil

	default:
		return core.ResolvedItem{Other: r.String()}, nil
	}
}

// SearchTracks returns up to MaxSearchResults track results for a free-form
// query, ranked by similarity to the query. Non-track result categories
// collapse to an empty slice.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]core.Track, error) {
	if c.client == nil {
		return nil, core.RemoteError("search tracks", errNotAuthenticated)
	}

	opts := append(c.marketOpts(),
		spotify.Limit(MaxSearchResults),
		spotify.Offset(0),
	)

	results, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, opts...)
	if err != nil {
		return nil, core.RemoteError("search tracks", err)
	}

	if results.Tracks == nil {
		return []core.Track{}, nil
	}

	tracks := make([]core.Track, 0, len(results.Tracks.Tracks))
	for i := range results.Tracks.Tracks {
		tracks = append(tracks, fromFullTrack(&results.Tracks.Tracks[i]))
	}

	c.logger.Debug("Search completed",
		zap.String("query", query),
		zap.Int("results", len(tracks)))

	return c.rankTracks(tracks, query), nil
}

// rankTracks orders search results by title similarity to the original
// query, preserving the remote order on ties.
func (c *Client) rankTracks(tracks []core.Track, query string) []core.Track {
	normalizedQuery := c.normalizer.NormalizeTitle(query)

	scores := make([]float64, len(tracks))
	for i := range tracks {
		scores[i] = c.relevanceScore(&tracks[i], normalizedQuery)
	}

	indices := make([]int, len(tracks))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})

	ranked := make([]core.Track, 0, len(tracks))
	for _, idx := range indices {
		ranked = append(ranked, tracks[idx])
	}
	return ranked
}

func (c *Client) relevanceScore(track *core.Track, normalizedQuery string) float64 {
	normalizedTitle := c.normalizer.NormalizeTitle(track.Title)

	combined := normalizedTitle
	if len(track.Artists) > 0 {
		combined = c.normalizer.NormalizeArtist(track.Artists[0]) + " " + normalizedTitle
	}

	titleWeight := 0.7
	combinedWeight := 0.3

	return titleWeight*c.normalizer.CalculateSimilarity(normalizedTitle, normalizedQuery) +
		combinedWeight*c.normalizer.CalculateSimilarity(combined, normalizedQuery)
}

func (c *Client) marketOpts() []spotify.RequestOption {
	if c.config.Market == "" {
		return nil
	}
	return []spotify.RequestOption{spotify.Market(c.config.Market)}
}

func fromFullTrack(t *spotify.FullTrack) core.Track {
	rec := fromSimpleTrack(&t.SimpleTrack)
	rec.Album = t.Album.Name
	if len(t.Album.Artists) > 0 {
		rec.AlbumArtist = t.Album.Artists[0].Name
	}
	rec.ReleaseDate = t.Album.ReleaseDate
	return rec
}

func fromSimpleTrack(t *spotify.SimpleTrack) core.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, artist := range t.Artists {
		artists = append(artists, artist.Name)
	}

	return core.Track{
		ID:          string(t.ID),
		Title:       t.Name,
		Artists:     artists,
		TrackNumber: t.TrackNumber,
		DiscNumber:  t.DiscNumber,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		URL:         t.ExternalURLs["spotify"],
	}
}
