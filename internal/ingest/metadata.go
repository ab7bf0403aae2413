package ingest

import (
	"bytes"

	"github.com/dhowden/tag"
)

// allowedCoverMimeTypes lists the embedded cover image formats we accept.
var allowedCoverMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

// CandidateMetadata is the metadata guess sent to the client after a file's
// bytes arrive. Absent fields are not an error.
type CandidateMetadata struct {
	Title   *string  `json:"title"`
	Album   *string  `json:"album"`
	Artists []string `json:"artists"`
}

// AlbumCover is a cover image embedded in an uploaded file.
type AlbumCover struct {
	Data     []byte
	MimeType string
}

// ExtractMetadata parses candidate metadata from raw audio bytes. Extraction
// is best-effort: if the file carries no readable tags, the announced display
// name serves as the title guess and everything else stays empty.
func ExtractMetadata(data []byte, displayName string) (CandidateMetadata, *AlbumCover) {
	meta := CandidateMetadata{Artists: []string{}}

	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		if displayName != "" {
			meta.Title = &displayName
		}
		return meta, nil
	}

	if title := m.Title(); title != "" {
		meta.Title = &title
	} else if displayName != "" {
		meta.Title = &displayName
	}
	if album := m.Album(); album != "" {
		meta.Album = &album
	}
	if artist := m.Artist(); artist != "" {
		meta.Artists = append(meta.Artists, artist)
	}

	var cover *AlbumCover
	if pic := m.Picture(); pic != nil && allowedCoverMimeTypes[pic.MIMEType] {
		cover = &AlbumCover{Data: pic.Data, MimeType: pic.MIMEType}
	}

	return meta, cover
}
