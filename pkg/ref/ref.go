// Package ref normalizes Spotify URIs and web-player URLs into canonical
// references.
package ref

import (
	"fmt"
	"net/url"
	"strings"

	"spotgrab/internal/core"
)

const (
	// Scheme is the native URI scheme prefix
	Scheme = "spotify"
	// WebPlayerHost is the Spotify web player host
	WebPlayerHost = "open.spotify.com"
	// MinURISegments is the minimum number of colon-delimited segments in a
	// native URI (scheme:kind:id)
	MinURISegments = 3
)

// Kind is the resource kind of a canonical reference.
type Kind string

const (
	KindTrack    Kind = "track"
	KindPlaylist Kind = "playlist"
	KindAlbum    Kind = "album"
	KindArtist   Kind = "artist"
)

// Reference is the canonical kind:id form all downstream lookups use.
// Immutable once constructed.
type Reference struct {
	Kind Kind
	ID   string
}

// String re-emits the native scheme form, e.g. "spotify:track:<id>".
func (r Reference) String() string {
	return fmt.Sprintf("%s:%s:%s", Scheme, r.Kind, r.ID)
}

// Parse normalizes a native URI or a web-player URL into a Reference.
// Pure string transformation, no network access. Parsing an already
// canonical reference string yields the same reference.
func Parse(input string) (Reference, error) {
	if strings.HasPrefix(input, Scheme+":") {
		parts := strings.Split(input, ":")
		if len(parts) < MinURISegments {
			return Reference{}, fmt.Errorf("%w: %q", core.ErrInvalidReference, input)
		}
		return Reference{Kind: Kind(parts[1]), ID: parts[2]}, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %q: %v", core.ErrInvalidReference, input, err)
	}

	if u.Hostname() != WebPlayerHost {
		return Reference{}, fmt.Errorf("%w: unrecognized host %q", core.ErrInvalidReference, u.Hostname())
	}

	segments := splitPath(u.Path)
	if len(segments) < 2 {
		return Reference{}, fmt.Errorf("%w: %q", core.ErrInvalidReference, input)
	}

	// Only the first two path segments are significant.
	return Reference{Kind: Kind(segments[0]), ID: segments[1]}, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
