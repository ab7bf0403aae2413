package library

import (
	"time"

	"github.com/melodeon/melodeon/internal/storage"
)

// Song is a track in the library. A song may have multiple sources, e.g. the
// same recording in different formats.
type Song struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SongWithTags is a song together with the names of its tags.
type SongWithTags struct {
	Song
	Tags []string `json:"tags"`
}

// Source is a blob of binary data in a storage backend.
type Source struct {
	ID                 int64     `json:"id"`
	Path               string    `json:"path"`
	MimeType           string    `json:"mimeType"`
	StorageBackendName string    `json:"storageBackendName"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// SourceWithSongID is a source joined with the song it belongs to.
type SourceWithSongID struct {
	Source
	SongID int64 `json:"songId"`
}

// Album groups songs by record. The title doubles as the primary key.
type Album struct {
	Title              string    `json:"title"`
	Link               *string   `json:"link"`
	CoverImageSourceID *int64    `json:"coverImageSourceId"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Artist is a performer. The name doubles as the primary key.
type Artist struct {
	Name          string    `json:"name"`
	Link          *string   `json:"link"`
	ImageSourceID *int64    `json:"imageSourceId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Tag labels songs. Album and artist tags carry a reference to the entity
// they were derived from.
type Tag struct {
	Name            string    `json:"name"`
	BackgroundColor *string   `json:"backgroundColor"`
	TextColor       *string   `json:"textColor"`
	BorderColor     *string   `json:"borderColor"`
	ArtistID        *string   `json:"artistId"`
	AlbumID         *string   `json:"albumId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Backend is a registered storage backend with its parsed configuration.
type Backend struct {
	Name      string                `json:"name"`
	Config    storage.BackendConfig `json:"config"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// User is an account. The password hash never leaves the server.
type User struct {
	Username   string    `json:"username"`
	HashedPass string    `json:"-"`
	Admin      bool      `json:"admin"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
