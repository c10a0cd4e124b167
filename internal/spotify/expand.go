package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"spotgrab/internal/core"
	"spotgrab/pkg/ref"
)

// PlaylistTracks returns the complete ordered track listing of a playlist.
// Empty slots and episode items are dropped; playlist order is preserved.
// Any page-fetch failure aborts the whole expansion.
func (c *Client) PlaylistTracks(ctx context.Context, id string) ([]core.Track, error) {
	if c.client == nil {
		return nil, core.RemoteError("playlist tracks", errNotAuthenticated)
	}

	var tracks []core.Track
	offset := 0

	for {
		opts := append(c.marketOpts(),
			spotify.Limit(PageLimit),
			spotify.Offset(offset),
		)
		page, err := c.client.GetPlaylistItems(ctx, spotify.ID(id), opts...)
		if err != nil {
			return nil, core.RemoteError("get playlist items", err)
		}

		for i := range page.Items {
			// Track is nil for removed slots and for episode items.
			if full := page.Items[i].Track.Track; full != nil {
				tracks = append(tracks, fromFullTrack(full))
			}
		}

		if page.Next == "" {
			break
		}
		offset += len(page.Items)
	}

	c.logger.Info("Expanded playlist",
		zap.String("playlistID", id),
		zap.Int("tracks", len(tracks)))

	return tracks, nil
}

// AlbumTracks pages through an album's track listing until exhausted,
// preserving album order. The market restriction applies per page.
func (c *Client) AlbumTracks(ctx context.Context, id string) ([]core.Track, error) {
	if c.client == nil {
		return nil, core.RemoteError("album tracks", errNotAuthenticated)
	}

	var tracks []core.Track
	offset := 0

	for {
		opts := append(c.marketOpts(),
			spotify.Limit(PageLimit),
			spotify.Offset(offset),
		)
		page, err := c.client.GetAlbumTracks(ctx, spotify.ID(id), opts...)
		if err != nil {
			return nil, core.RemoteError("get album tracks", err)
		}

		for i := range page.Tracks {
			tracks = append(tracks, fromSimpleTrack(&page.Tracks[i]))
		}

		if page.Next == "" {
			break
		}
		offset += len(page.Tracks)
	}

	c.logger.Info("Expanded album",
		zap.String("albumID", id),
		zap.Int("tracks", len(tracks)))

	return tracks, nil
}

// ArtistTracks collects every album of an artist in listing order, then
// expands each album sequentially and appends its tracks to one flat
// sequence. Tracks appearing on several albums are kept each time.
func (c *Client) ArtistTracks(ctx context.Context, id string) ([]core.Track, error) {
	albums, err := c.artistAlbums(ctx, id)
	if err != nil {
		return nil, err
	}

	var tracks []core.Track
	for i := range albums {
		albumTracks, err := c.AlbumTracks(ctx, string(albums[i].ID))
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, albumTracks...)
	}

	c.logger.Info("Expanded artist",
		zap.String("artistID", id),
		zap.Int("albums", len(albums)),
		zap.Int("tracks", len(tracks)))

	return tracks, nil
}

// artistAlbums pages through the artist's album listing, unfiltered by
// album type, preserving listing order.
func (c *Client) artistAlbums(ctx context.Context, id string) ([]spotify.SimpleAlbum, error) {
	if c.client == nil {
		return nil, core.RemoteError("artist albums", errNotAuthenticated)
	}

	var albums []spotify.SimpleAlbum
	offset := 0

	for {
		opts := append(c.marketOpts(),
			spotify.Limit(PageLimit),
			spotify.Offset(offset),
		)
		page, err := c.client.GetArtistAlbums(ctx, spotify.ID(id), nil, opts...)
		if err != nil {
			return nil, core.RemoteError("get artist albums", err)
		}

		albums = append(albums, page.Albums...)

		if page.Next == "" {
			break
		}
		offset += len(page.Albums)
	}

	return albums, nil
}

// Tracks expands any collection reference into its flat ordered track list.
// A track reference resolves to a single-element list.
func (c *Client) Tracks(ctx context.Context, r ref.Reference) ([]core.Track, error) {
	switch r.Kind {
	case ref.KindTrack:
		item, err := c.Resolve(ctx, r)
		if err != nil {
			return nil, err
		}
		return []core.Track{fromFullTrack(item.Track)}, nil
	case ref.KindPlaylist:
		return c.PlaylistTracks(ctx, r.ID)
	case ref.KindAlbum:
		return c.AlbumTracks(ctx, r.ID)
	case ref.KindArtist:
		return c.ArtistTracks(ctx, r.ID)
	default:
		return nil, fmt.Errorf("%w: cannot expand kind %q", core.ErrInvalidReference, r.Kind)
	}
}
