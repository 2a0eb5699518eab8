// Package tagembed writes a title/artist/album/cover image into an
// already-decrypted audio file's own tag frames, without touching its
// sample data. FLAC and MP3 are the only containers handled; anything else
// is a silent no-op, matching how little the rest of the format family
// standardizes tag storage.
package tagembed

import (
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
)

const coverDescription = "Cover"

// Tags is the subset of a track's metadata the embedder writes back.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Cover  []byte // JPEG bytes, or nil to skip artwork
}

// Embed writes tags into the file at path in place. The container is
// chosen from the file's extension; anything other than flac/mp3 returns
// nil without writing.
func Embed(path string, tags Tags) error {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "flac":
		return embedFLAC(path, tags)
	case "mp3":
		return embedMP3(path, tags)
	default:
		return nil
	}
}

func embedMP3(path string, tags Tags) error {
	audioFile, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer audioFile.Close()

	audioFile.SetDefaultEncoding(id3v2.EncodingUTF8)
	if tags.Title != "" {
		audioFile.SetTitle(tags.Title)
	}
	if tags.Artist != "" {
		audioFile.SetArtist(tags.Artist)
	}
	if tags.Album != "" {
		audioFile.SetAlbum(tags.Album)
	}

	if len(tags.Cover) > 0 {
		audioFile.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: coverDescription,
			Picture:     tags.Cover,
		})
	}

	return audioFile.Save()
}

func embedFLAC(path string, tags Tags) error {
	audioFile, err := flac.ParseFile(path)
	if err != nil {
		return err
	}

	if len(tags.Cover) > 0 {
		pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, coverDescription,
			tags.Cover, "image/jpeg")
		if err != nil {
			return err
		}
		block := pic.Marshal()
		audioFile.Meta = append(audioFile.Meta, &block)
	}

	var comments *flacvorbis.MetaDataBlockVorbisComment
	commentIdx := -1
	for i, meta := range audioFile.Meta {
		if meta.Type == flac.VorbisComment {
			comments, err = flacvorbis.ParseFromMetaDataBlock(*meta)
			if err != nil {
				return err
			}
			commentIdx = i
			break
		}
	}
	if comments == nil {
		comments = flacvorbis.New()
	}

	if tags.Title != "" {
		if err := comments.Add(flacvorbis.FIELD_TITLE, tags.Title); err != nil {
			return err
		}
	}
	if tags.Artist != "" {
		if err := comments.Add(flacvorbis.FIELD_ARTIST, tags.Artist); err != nil {
			return err
		}
	}
	if tags.Album != "" {
		if err := comments.Add(flacvorbis.FIELD_ALBUM, tags.Album); err != nil {
			return err
		}
	}

	block := comments.Marshal()
	if commentIdx >= 0 {
		audioFile.Meta[commentIdx] = &block
	} else {
		audioFile.Meta = append(audioFile.Meta, &block)
	}

	return audioFile.Save(path)
}
