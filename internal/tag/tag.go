// Package tag writes canonical track metadata into audio files, selecting
// the tag container format from the file's audio codec: ID3v2 frames for MP3
// and a Vorbis comment block for FLAC.
package tag

import (
	"errors"
	"fmt"
	"time"

	"spotgrab/internal/core"
)

// ufidOwner is the owner namespace of the embedded source identifier.
const ufidOwner = "spotify.com"

// coverDescription is the fixed description of embedded front-cover art.
const coverDescription = "cover"

var errAlreadySaved = errors.New("writer already saved")

// Writer accumulates tag mutations for one open audio file and commits them
// with Save. A writer is bound to one encoding at open time and never mixes
// encodings. After a successful Save the writer is spent; further calls to
// Save fail.
type Writer interface {
	// SetSeparator sets the string used to join multi-valued field inputs
	// before storage. The default is the empty string.
	SetSeparator(sep string)
	// SetField joins values with the separator and stores the result under
	// the encoding's native key for the canonical field. Re-setting a field
	// overwrites it.
	SetField(field core.Field, values []string)
	// SetRaw behaves like SetField but stores under a caller-supplied
	// encoder-native key.
	SetRaw(key string, values []string)
	// SetReleaseDate validates date as a timestamp and stores it in the
	// encoding's release-date representation.
	SetReleaseDate(date string) error
	// AddCover embeds a single front-cover image with the given MIME type.
	AddCover(mime string, data []byte)
	// AddUniqueFileIdentifier embeds the canonical source identifier under
	// the fixed owner namespace.
	AddUniqueFileIdentifier(trackID string)
	// Save commits all accumulated mutations to the backing file.
	Save() error
}

// Open loads the tag structure of the file at path and returns the writer
// matching the container format. A file without a pre-existing tag structure
// gets an empty one. Unsupported formats fail before any tag object is
// constructed.
func Open(path string, format core.Format, cfg *core.TagConfig) (Writer, error) {
	switch format {
	case core.FormatMP3:
		return openID3(path, cfg)
	case core.FormatFLAC:
		return openVorbis(path, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, format)
	}
}

// OpenFile is a convenience wrapper deriving the format from the path.
func OpenFile(path string, cfg *core.TagConfig) (Writer, error) {
	return Open(path, core.ParseFormat(path), cfg)
}

// id3Frames maps canonical fields onto ID3v2 frame IDs.
var id3Frames = map[core.Field]string{
	core.FieldTitle:       "TIT2",
	core.FieldArtist:      "TPE1",
	core.FieldAlbum:       "TALB",
	core.FieldTrackNumber: "TRCK",
	core.FieldDiscNumber:  "TPOS",
	core.FieldGenre:       "TCON",
	core.FieldLabel:       "TPUB",
	core.FieldAlbumArtist: "TPE2",
}

// vorbisKeys maps canonical fields onto Vorbis comment keys.
var vorbisKeys = map[core.Field]string{
	core.FieldTitle:       "TITLE",
	core.FieldArtist:      "ARTIST",
	core.FieldAlbum:       "ALBUM",
	core.FieldTrackNumber: "TRACKNUMBER",
	core.FieldDiscNumber:  "DISCNUMBER",
	core.FieldGenre:       "GENRE",
	core.FieldLabel:       "LABEL",
	core.FieldAlbumArtist: "ALBUMARTIST",
}

// timestampLayouts are the accepted release-date shapes, most precise first.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

func validateTimestamp(date string) error {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, date); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid timestamp %q", core.ErrTagEncoding, date)
}
