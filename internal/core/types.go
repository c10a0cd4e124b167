package core

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
)

// Field identifies a canonical tag slot. The tag encoders map each field to
// the native key of their format.
type Field int

const (
	// FieldTitle is the track title
	FieldTitle Field = iota
	// FieldArtist is the list of performing artists
	FieldArtist
	// FieldAlbum is the album name
	FieldAlbum
	// FieldTrackNumber is the position within the disc
	FieldTrackNumber
	// FieldDiscNumber is the disc index within the release
	FieldDiscNumber
	// FieldAlbumArtist is the release-level artist
	FieldAlbumArtist
	// FieldGenre is the genre name
	FieldGenre
	// FieldLabel is the publishing label
	FieldLabel
)

// Format is the audio container of a local file. The tag writer supports
// exactly two.
type Format int

const (
	// FormatUnknown is any container the tag writer rejects
	FormatUnknown Format = iota
	// FormatMP3 carries ID3v2 tags
	FormatMP3
	// FormatFLAC carries a Vorbis comment block
	FormatFLAC
)

// ParseFormat derives the container format from a file path's extension.
func ParseFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return FormatMP3
	case ".flac":
		return FormatFLAC
	default:
		return FormatUnknown
	}
}

func (f Format) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatFLAC:
		return "flac"
	default:
		return "unknown"
	}
}

// Track is the flat track-level record accumulated during catalog expansion
// and consumed by the tag writer.
type Track struct {
	ID          string
	Title       string
	Artists     []string
	Album       string
	AlbumArtist string
	TrackNumber int
	DiscNumber  int
	ReleaseDate string
	Duration    time.Duration
	URL         string
}

// ResolvedItem is the result of resolving one canonical reference. Exactly
// one payload is populated for the supported kinds; unrecognized kinds keep
// the original input string in Other.
type ResolvedItem struct {
	Track    *spotify.FullTrack
	Album    *spotify.FullAlbum
	Playlist *spotify.FullPlaylist
	Artist   *spotify.FullArtist
	Other    string
}

// IsOther reports whether the item is the unsupported-kind fallback.
func (r ResolvedItem) IsOther() bool {
	return r.Track == nil && r.Album == nil && r.Playlist == nil && r.Artist == nil
}
