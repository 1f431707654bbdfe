package plex

import (
	"strings"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

// Plex search type codes.
const (
	searchTypeArtist = "8"
	searchTypeAlbum  = "9"
	searchTypeTrack  = "10"
)

type containerResponse struct {
	MediaContainer mediaContainer `json:"MediaContainer"`
}

type mediaContainer struct {
	MachineIdentifier string      `json:"machineIdentifier"`
	Directory         []directory `json:"Directory"`
	Metadata          []metadata  `json:"Metadata"`
}

type directory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type metadata struct {
	RatingKey        string `json:"ratingKey"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	ParentTitle      string `json:"parentTitle"`
	GrandparentTitle string `json:"grandparentTitle"`
	ViewedAt         int64  `json:"viewedAt"`
}

func (m metadata) toEntity() domain.CatalogEntity {
	return domain.CatalogEntity{
		ID:               m.RatingKey,
		Title:            m.Title,
		ParentTitle:      m.ParentTitle,
		GrandparentTitle: m.GrandparentTitle,
		Type:             entityType(m.Type),
	}
}

func (m metadata) toRecord() domain.ListeningRecord {
	r := domain.ListeningRecord{
		Artist:    strings.TrimSpace(m.GrandparentTitle),
		Album:     strings.TrimSpace(m.ParentTitle),
		Track:     strings.TrimSpace(m.Title),
		CatalogID: m.RatingKey,
	}
	if m.ViewedAt > 0 {
		r.PlayedAt = time.Unix(m.ViewedAt, 0).UTC()
	}
	return r
}

func entityType(t string) domain.EntityType {
	switch t {
	case "artist":
		return domain.EntityArtist
	case "album":
		return domain.EntityAlbum
	case "track":
		return domain.EntityTrack
	default:
		return domain.EntityType(t)
	}
}

func searchType(t domain.EntityType) (string, bool) {
	switch t {
	case domain.EntityArtist:
		return searchTypeArtist, true
	case domain.EntityAlbum:
		return searchTypeAlbum, true
	case domain.EntityTrack:
		return searchTypeTrack, true
	default:
		return "", false
	}
}
