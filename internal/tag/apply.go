package tag

import (
	"strconv"

	"spotgrab/internal/core"
)

// Apply stamps a resolved track onto an open writer: every canonical field
// the track carries, the release date, the source identifier, and optionally
// a front cover. The writer is left unsaved so callers can add raw fields
// before committing.
func Apply(w Writer, track *core.Track, separator string, coverMIME string, cover []byte) error {
	w.SetSeparator(separator)
	w.SetField(core.FieldTitle, []string{track.Title})
	if len(track.Artists) > 0 {
		w.SetField(core.FieldArtist, track.Artists)
	}
	if track.Album != "" {
		w.SetField(core.FieldAlbum, []string{track.Album})
	}
	if track.AlbumArtist != "" {
		w.SetField(core.FieldAlbumArtist, []string{track.AlbumArtist})
	}
	if track.TrackNumber > 0 {
		w.SetField(core.FieldTrackNumber, []string{strconv.Itoa(track.TrackNumber)})
	}
	if track.DiscNumber > 0 {
		w.SetField(core.FieldDiscNumber, []string{strconv.Itoa(track.DiscNumber)})
	}
	if track.ReleaseDate != "" {
		if err := w.SetReleaseDate(track.ReleaseDate); err != nil {
			return err
		}
	}
	if len(cover) > 0 {
		w.AddCover(coverMIME, cover)
	}
	if track.ID != "" {
		w.AddUniqueFileIdentifier(track.ID)
	}
	return nil
}
