package domain

import (
	"strings"
	"time"
)

// ListeningRecord is one play from the media server history.
type ListeningRecord struct {
	Artist    string    `json:"artist"`
	Album     string    `json:"album"`
	Track     string    `json:"track"`
	PlayedAt  time.Time `json:"playedAt"`
	CatalogID string    `json:"catalogId,omitempty"`
}

// Identity is the (artist, album, track) key used for play counting.
func (r ListeningRecord) Identity() string {
	return strings.ToLower(strings.TrimSpace(r.Artist)) + "\x00" +
		strings.ToLower(strings.TrimSpace(r.Album)) + "\x00" +
		strings.ToLower(strings.TrimSpace(r.Track))
}

// EntityType is the kind of catalog entity searched for.
type EntityType string

const (
	EntityArtist EntityType = "artist"
	EntityAlbum  EntityType = "album"
	EntityTrack  EntityType = "track"
)

// CatalogEntity is a search hit from the media library. For a track, ParentTitle
// is the album and GrandparentTitle the artist; for an album, ParentTitle is the artist.
type CatalogEntity struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	ParentTitle      string     `json:"parentTitle,omitempty"`
	GrandparentTitle string     `json:"grandparentTitle,omitempty"`
	Type             EntityType `json:"type"`
}

// Model is a text generation model offered by the generation service.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	ContextLength int    `json:"contextLength"`
	Free          bool   `json:"free"`
}
