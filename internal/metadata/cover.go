package metadata

import (
	"encoding/base64"
	"errors"

	"github.com/bogem/id3v2/v2"
	"github.com/frolovo22/tag"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
)

var errNoCover = errors.New("metadata: no embedded cover art found")

// extractCover probes, in spec order, every picture container a track
// might carry: an ID3v2 APIC frame, a FLAC PICTURE metadata block, a
// base64-encoded METADATA_BLOCK_PICTURE Vorbis comment (the form Ogg
// Vorbis and Opus carry pictures in), and finally whatever
// frolovo22/tag's unified reader exposes (MP4 covr among others). The
// first hit wins.
func extractCover(path string) ([]byte, error) {
	if pic, err := coverFromID3APIC(path); err == nil {
		return pic, nil
	}
	if pic, err := coverFromFLACPicture(path); err == nil {
		return pic, nil
	}
	if pic, err := coverFromVorbisCommentBase64(path); err == nil {
		return pic, nil
	}
	if pic, err := coverFromGenericTag(path); err == nil {
		return pic, nil
	}
	return nil, errNoCover
}

func coverFromID3APIC(path string) ([]byte, error) {
	tagFile, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, err
	}
	defer tagFile.Close()

	frames := tagFile.GetFrames(tagFile.CommonID("Attached picture"))
	for _, f := range frames {
		if pic, ok := f.(id3v2.PictureFrame); ok && len(pic.Picture) > 0 {
			return pic.Picture, nil
		}
	}
	return nil, errNoCover
}

func coverFromFLACPicture(path string) ([]byte, error) {
	audioFile, err := flac.ParseFile(path)
	if err != nil {
		return nil, err
	}
	for _, meta := range audioFile.Meta {
		if meta.Type != flac.Picture {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(*meta)
		if err != nil {
			continue
		}
		if len(pic.ImageData) > 0 {
			return pic.ImageData, nil
		}
	}
	return nil, errNoCover
}

func coverFromVorbisCommentBase64(path string) ([]byte, error) {
	audioFile, err := flac.ParseFile(path)
	if err != nil {
		return nil, err
	}
	for _, meta := range audioFile.Meta {
		if meta.Type != flac.VorbisComment {
			continue
		}
		comments, err := flacvorbis.ParseFromMetaDataBlock(*meta)
		if err != nil {
			continue
		}
		values, err := comments.Get("METADATA_BLOCK_PICTURE")
		if err != nil || len(values) == 0 {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(values[0])
		if err != nil {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(flac.MetaDataBlock{Type: flac.Picture, Data: raw})
		if err != nil {
			continue
		}
		if len(pic.ImageData) > 0 {
			return pic.ImageData, nil
		}
	}
	return nil, errNoCover
}

func coverFromGenericTag(path string) ([]byte, error) {
	t, err := tag.Open(path)
	if err != nil {
		return nil, err
	}

	img := t.GetPicture()
	if img == nil {
		return nil, errNoCover
	}
	return encodeJPEG(img, jpegQuality)
}
