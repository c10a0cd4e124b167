package tag

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	id3v2 "github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotgrab/internal/core"
)

func writeTestMP3(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")
	// A bare frame sync with no tag structure attached.
	data := append([]byte{0xFF, 0xFB, 0x90, 0x00}, make([]byte, 32)...)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeTestFLAC(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.flac")
	// Marker plus a terminal zeroed STREAMINFO block and a frame sync code,
	// the minimum the flac parser accepts as a stream.
	data := append([]byte("fLaC"), 0x80, 0x00, 0x00, 0x22)
	data = append(data, make([]byte, 34)...)
	data = append(data, 0xFF, 0xF8)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// encodeTestImage returns a decodable 1x1 image for the given mime type, since
// flacpicture decodes cover data to record its dimensions.
func encodeTestImage(t *testing.T, mime string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	var buf bytes.Buffer
	switch mime {
	case "image/jpeg":
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	case "image/png":
		require.NoError(t, png.Encode(&buf, img))
	default:
		t.Fatalf("unsupported test image mime %q", mime)
	}
	return buf.Bytes()
}

func readVorbis(t *testing.T, path string) map[string][]string {
	t.Helper()
	f, err := flac.ParseFile(path)
	require.NoError(t, err)
	fields := make(map[string][]string)
	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
		require.NoError(t, err)
		for _, comment := range cmt.Comments {
			parts := strings.SplitN(comment, "=", 2)
			require.Len(t, parts, 2)
			key := strings.ToUpper(parts[0])
			fields[key] = append(fields[key], parts[1])
		}
	}
	return fields
}

func TestOpenRejectsUnsupportedFormats(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "ogg container", path: "track.ogg"},
		{name: "no extension", path: "track"},
		{name: "wav container", path: "track.wav"},
	}

	cfg := &core.TagConfig{ID3v24: true}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := OpenFile(tt.path, cfg)
			assert.Nil(t, w)
			assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
		})
	}
}

func TestID3FieldsJoinWithSeparator(t *testing.T) {
	path := writeTestMP3(t)
	w, err := Open(path, core.FormatMP3, &core.TagConfig{ID3v24: true})
	require.NoError(t, err)

	w.SetSeparator("; ")
	w.SetField(core.FieldTitle, []string{"Interstate"})
	w.SetField(core.FieldArtist, []string{"Foo", "Bar"})
	w.SetField(core.FieldTrackNumber, []string{"7"})
	require.NoError(t, w.Save())

	read, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer read.Close()

	assert.Equal(t, "Interstate", read.GetTextFrame("TIT2").Text)
	assert.Equal(t, "Foo; Bar", read.GetTextFrame("TPE1").Text)
	assert.Equal(t, "7", read.GetTextFrame("TRCK").Text)
}

func TestID3ReleaseDateValidation(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		wantErr bool
	}{
		{name: "full timestamp", date: "2013-05-17T09:30:00"},
		{name: "date only", date: "2013-05-17"},
		{name: "year and month", date: "1981-12"},
		{name: "year only", date: "1999"},
		{name: "free text", date: "next tuesday", wantErr: true},
		{name: "month out of range", date: "2013-13-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestMP3(t)
			w, err := Open(path, core.FormatMP3, &core.TagConfig{ID3v24: true})
			require.NoError(t, err)

			err = w.SetReleaseDate(tt.date)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrTagEncoding)
				return
			}
			require.NoError(t, err)
			require.NoError(t, w.Save())

			read, err := id3v2.Open(path, id3v2.Options{Parse: true})
			require.NoError(t, err)
			defer read.Close()
			assert.Equal(t, tt.date, read.GetTextFrame("TDRL").Text)
		})
	}
}

func TestID3CoverAndIdentifier(t *testing.T) {
	path := writeTestMP3(t)
	w, err := Open(path, core.FormatMP3, &core.TagConfig{ID3v24: true})
	require.NoError(t, err)

	cover := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	w.AddCover("image/jpeg", cover)
	w.AddUniqueFileIdentifier("4uLU6hMCjMI75M1A2tKUQC")
	require.NoError(t, w.Save())

	read, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer read.Close()

	pictures := read.GetFrames("APIC")
	require.Len(t, pictures, 1)
	pic, ok := pictures[0].(id3v2.PictureFrame)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", pic.MimeType)
	assert.Equal(t, "cover", pic.Description)
	assert.Equal(t, cover, pic.Picture)
	assert.Equal(t, byte(id3v2.PTFrontCover), pic.PictureType)

	ufids := read.GetFrames("UFID")
	require.Len(t, ufids, 1)
	ufid, ok := ufids[0].(id3v2.UFIDFrame)
	require.True(t, ok)
	assert.Equal(t, "spotify.com", ufid.OwnerIdentifier)
	assert.Equal(t, []byte("4uLU6hMCjMI75M1A2tKUQC"), ufid.Identifier)
}

func TestID3SecondSaveFails(t *testing.T) {
	path := writeTestMP3(t)
	w, err := Open(path, core.FormatMP3, &core.TagConfig{ID3v24: true})
	require.NoError(t, err)

	w.SetField(core.FieldTitle, []string{"Once"})
	require.NoError(t, w.Save())
	assert.ErrorIs(t, w.Save(), core.ErrTagEncoding)
}

func TestVorbisFieldsRoundTrip(t *testing.T) {
	path := writeTestFLAC(t)
	w, err := Open(path, core.FormatFLAC, nil)
	require.NoError(t, err)

	w.SetSeparator("; ")
	w.SetField(core.FieldTitle, []string{"Interstate"})
	w.SetField(core.FieldArtist, []string{"Foo", "Bar"})
	w.SetField(core.FieldAlbum, []string{"Highways"})
	require.NoError(t, w.SetReleaseDate("2013-05-17"))
	w.AddUniqueFileIdentifier("4uLU6hMCjMI75M1A2tKUQC")
	require.NoError(t, w.Save())

	fields := readVorbis(t, path)
	assert.Equal(t, []string{"Interstate"}, fields["TITLE"])
	assert.Equal(t, []string{"Foo; Bar"}, fields["ARTIST"])
	assert.Equal(t, []string{"Highways"}, fields["ALBUM"])
	assert.Equal(t, []string{"2013-05-17"}, fields["DATE"])
	assert.Equal(t, []string{"4uLU6hMCjMI75M1A2tKUQC"}, fields["SPOTIFYTRACKID"])
}

func TestVorbisOverwritesExistingKeys(t *testing.T) {
	path := writeTestFLAC(t)

	w, err := Open(path, core.FormatFLAC, nil)
	require.NoError(t, err)
	w.SetField(core.FieldTitle, []string{"Old Title"})
	w.SetField(core.FieldGenre, []string{"Ambient"})
	require.NoError(t, w.Save())

	w, err = Open(path, core.FormatFLAC, nil)
	require.NoError(t, err)
	w.SetField(core.FieldTitle, []string{"New Title"})
	require.NoError(t, w.Save())

	fields := readVorbis(t, path)
	assert.Equal(t, []string{"New Title"}, fields["TITLE"])
	assert.Equal(t, []string{"Ambient"}, fields["GENRE"])
}

func TestVorbisCoverReplacesExistingPictures(t *testing.T) {
	path := writeTestFLAC(t)

	first, err := Open(path, core.FormatFLAC, nil)
	require.NoError(t, err)
	first.AddCover("image/jpeg", encodeTestImage(t, "image/jpeg"))
	require.NoError(t, first.Save())

	second, err := Open(path, core.FormatFLAC, nil)
	require.NoError(t, err)
	second.AddCover("image/png", encodeTestImage(t, "image/png"))
	require.NoError(t, second.Save())

	f, err := flac.ParseFile(path)
	require.NoError(t, err)
	count := 0
	for _, block := range f.Meta {
		if block.Type == flac.Picture {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestVorbisSecondSaveFails(t *testing.T) {
	path := writeTestFLAC(t)
	w, err := Open(path, core.FormatFLAC, nil)
	require.NoError(t, err)

	w.SetField(core.FieldTitle, []string{"Once"})
	require.NoError(t, w.Save())
	assert.ErrorIs(t, w.Save(), core.ErrTagEncoding)
}

func TestApplyStampsTrack(t *testing.T) {
	path := writeTestFLAC(t)
	w, err := Open(path, core.FormatFLAC, nil)
	require.NoError(t, err)

	track := &core.Track{
		ID:          "4uLU6hMCjMI75M1A2tKUQC",
		Title:       "Interstate",
		Artists:     []string{"Foo", "Bar"},
		Album:       "Highways",
		AlbumArtist: "Foo",
		TrackNumber: 3,
		DiscNumber:  1,
		ReleaseDate: "2013-05-17",
	}
	require.NoError(t, Apply(w, track, "; ", "image/jpeg", []byte{0xFF, 0xD8}))
	require.NoError(t, w.Save())

	fields := readVorbis(t, path)
	assert.Equal(t, []string{"Interstate"}, fields["TITLE"])
	assert.Equal(t, []string{"Foo; Bar"}, fields["ARTIST"])
	assert.Equal(t, []string{"Foo"}, fields["ALBUMARTIST"])
	assert.Equal(t, []string{"3"}, fields["TRACKNUMBER"])
	assert.Equal(t, []string{"1"}, fields["DISCNUMBER"])
	assert.Equal(t, []string{"2013-05-17"}, fields["DATE"])
}

func TestApplyRejectsBadReleaseDate(t *testing.T) {
	path := writeTestFLAC(t)
	w, err := Open(path, core.FormatFLAC, nil)
	require.NoError(t, err)

	track := &core.Track{Title: "Interstate", ReleaseDate: "someday"}
	assert.ErrorIs(t, Apply(w, track, ", ", "", nil), core.ErrTagEncoding)
}
