package tag

import (
	"os"
	"strings"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"spotgrab/internal/core"
)

// vorbisWriter targets the Vorbis comment block inside FLAC files.
type vorbisWriter struct {
	path      string
	file      *flac.File
	fields    []vorbisField
	pictures  []*flac.MetaDataBlock
	separator string
	saved     bool
}

type vorbisField struct {
	key   string
	value string
}

func openVorbis(path string, cfg *core.TagConfig) (Writer, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, core.TagError("open flac stream", err)
	}
	w := &vorbisWriter{path: path, file: f}
	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			return nil, core.TagError("parse vorbis comment", err)
		}
		for _, comment := range cmt.Comments {
			parts := strings.SplitN(comment, "=", 2)
			if len(parts) == 2 {
				w.fields = append(w.fields, vorbisField{key: parts[0], value: parts[1]})
			}
		}
		break
	}
	return w, nil
}

func (w *vorbisWriter) SetSeparator(sep string) { w.separator = sep }

func (w *vorbisWriter) SetField(field core.Field, values []string) {
	key, ok := vorbisKeys[field]
	if !ok {
		return
	}
	w.SetRaw(key, values)
}

func (w *vorbisWriter) SetRaw(key string, values []string) {
	w.set(key, strings.Join(values, w.separator))
}

func (w *vorbisWriter) SetReleaseDate(date string) error {
	if err := validateTimestamp(date); err != nil {
		return err
	}
	w.set(flacvorbis.FIELD_DATE, date)
	return nil
}

func (w *vorbisWriter) AddCover(mime string, data []byte) {
	picture, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, coverDescription, data, mime)
	if err != nil {
		return
	}
	block := picture.Marshal()
	w.pictures = append(w.pictures, &block)
}

func (w *vorbisWriter) AddUniqueFileIdentifier(trackID string) {
	w.set("SPOTIFYTRACKID", trackID)
}

func (w *vorbisWriter) Save() error {
	if w.saved {
		return core.TagError("save vorbis comment", errAlreadySaved)
	}
	cmt := flacvorbis.New()
	for _, field := range w.fields {
		if err := cmt.Add(field.key, field.value); err != nil {
			return core.TagError("encode vorbis comment", err)
		}
	}
	block := cmt.Marshal()

	idx := -1
	for i, m := range w.file.Meta {
		if m.Type == flac.VorbisComment {
			idx = i
			break
		}
	}
	if idx < 0 {
		w.file.Meta = append(w.file.Meta, &block)
	} else {
		w.file.Meta[idx] = &block
	}
	if len(w.pictures) > 0 {
		for i := len(w.file.Meta) - 1; i >= 0; i-- {
			if w.file.Meta[i].Type == flac.Picture {
				w.file.Meta = append(w.file.Meta[:i], w.file.Meta[i+1:]...)
			}
		}
		w.file.Meta = append(w.file.Meta, w.pictures...)
	}

	// Write to a sibling temp file and rename so the original survives a
	// failed save.
	tmp := w.path + ".tmp"
	if err := w.file.Save(tmp); err != nil {
		os.Remove(tmp)
		return core.TagError("save flac stream", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return core.TagError("save flac stream", err)
	}
	w.saved = true
	return nil
}

// set overwrites an existing comment with a matching key or appends a new
// one. Vorbis keys are case-insensitive.
func (w *vorbisWriter) set(key, value string) {
	for i := range w.fields {
		if strings.EqualFold(w.fields[i].key, key) {
			w.fields[i].value = value
			return
		}
	}
	w.fields = append(w.fields, vorbisField{key: key, value: value})
}
