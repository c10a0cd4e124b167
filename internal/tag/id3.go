package tag

import (
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"

	"spotgrab/internal/core"
)

// id3Writer targets ID3v2 frames inside MP3 files.
type id3Writer struct {
	tag       *id3v2.Tag
	separator string
	saved     bool
}

func openID3(path string, cfg *core.TagConfig) (Writer, error) {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, core.TagError("open id3 tag", err)
	}
	if cfg != nil && cfg.ID3v24 {
		t.SetVersion(4)
		t.SetDefaultEncoding(id3v2.EncodingUTF8)
	} else {
		t.SetVersion(3)
		t.SetDefaultEncoding(id3v2.EncodingUTF16)
	}
	return &id3Writer{tag: t}, nil
}

func (w *id3Writer) SetSeparator(sep string) { w.separator = sep }

func (w *id3Writer) SetField(field core.Field, values []string) {
	id, ok := id3Frames[field]
	if !ok {
		return
	}
	w.SetRaw(id, values)
}

func (w *id3Writer) SetRaw(key string, values []string) {
	text := strings.Join(values, w.separator)
	w.tag.AddTextFrame(key, w.tag.DefaultEncoding(), text)
}

func (w *id3Writer) SetReleaseDate(date string) error {
	if err := validateTimestamp(date); err != nil {
		return err
	}
	w.tag.AddTextFrame("TDRL", w.tag.DefaultEncoding(), date)
	return nil
}

func (w *id3Writer) AddCover(mime string, data []byte) {
	w.tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    w.tag.DefaultEncoding(),
		MimeType:    mime,
		PictureType: id3v2.PTFrontCover,
		Description: coverDescription,
		Picture:     data,
	})
}

func (w *id3Writer) AddUniqueFileIdentifier(trackID string) {
	w.tag.AddUFIDFrame(id3v2.UFIDFrame{
		OwnerIdentifier: ufidOwner,
		Identifier:      []byte(trackID),
	})
}

func (w *id3Writer) Save() error {
	if w.saved {
		return core.TagError("save id3 tag", errAlreadySaved)
	}
	if err := w.tag.Save(); err != nil {
		return core.TagError("save id3 tag", err)
	}
	w.saved = true
	return w.tag.Close()
}
