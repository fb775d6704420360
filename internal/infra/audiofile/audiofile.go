// Package audiofile post-processes downloaded audio files.
package audiofile

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bogem/id3v2"
	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/mp3"
	zlog "github.com/rs/zerolog/log"
)

// ErrUnsupported is returned for files that are not mp3.
var ErrUnsupported = errors.New("unsupported audio file")

// Meta is the metadata written into a file's tags.
type Meta struct {
	Title  string
	Artist string
	Album  string
}

func (m Meta) empty() bool {
	return m.Title == "" && m.Artist == "" && m.Album == ""
}

// IsMP3 reports whether the path has an mp3 extension.
func IsMP3(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}

// Tag writes title/artist/album ID3v2 frames. Empty fields keep the existing frame.
func Tag(path string, meta Meta) error {
	if !IsMP3(path) {
		return errors.Wrapf(ErrUnsupported, "%s", path)
	}
	if meta.empty() {
		return nil
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return errors.Wrapf(err, "failed to open tag of %s", path)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if meta.Title != "" {
		tag.SetTitle(meta.Title)
	}
	if meta.Artist != "" {
		tag.SetArtist(meta.Artist)
	}
	if meta.Album != "" {
		tag.SetAlbum(meta.Album)
	}

	if err := tag.Save(); err != nil {
		return errors.Wrapf(err, "failed to save tag of %s", path)
	}
	return nil
}

// ReadTag returns the title/artist/album frames of an mp3 file.
func ReadTag(path string) (Meta, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return Meta{}, errors.Wrapf(err, "failed to open tag of %s", path)
	}
	defer tag.Close()

	return Meta{Title: tag.Title(), Artist: tag.Artist(), Album: tag.Album()}, nil
}

// Probe decodes an mp3 file and returns its playing time.
func Probe(path string) (time.Duration, error) {
	if !IsMP3(path) {
		return 0, errors.Wrapf(ErrUnsupported, "%s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %s", path)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		_ = f.Close()
		return 0, errors.Wrapf(err, "failed to decode %s", path)
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()), nil
}

// Finish tags and probes a completed download. Failures are logged only.
func Finish(path string, meta Meta) {
	if !IsMP3(path) {
		return
	}
	if err := Tag(path, meta); err != nil {
		zlog.Warn().Err(err).Msgf("tagging failed: file=%s", path)
	}
	d, err := Probe(path)
	if err != nil {
		zlog.Warn().Err(err).Msgf("probe failed: file=%s", path)
		return
	}
	zlog.Info().Msgf("download finalized: file=%s duration=%s", path, d.Round(time.Second))
}
