package domain

import (
	"fmt"
	"strings"
)

// ProposalKind tags which fields of a Proposal are meaningful.
type ProposalKind string

const (
	ProposalArtist ProposalKind = "artist"
	ProposalAlbum  ProposalKind = "album"
	ProposalTrack  ProposalKind = "track"
)

// Confidence is the generator's self-reported certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence returns "" for anything outside the closed set.
func ParseConfidence(s string) Confidence {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	default:
		return ""
	}
}

// Proposal is a candidate artist, album or track suggested by the generator.
//
//	artist: Artist
//	album:  Artist, Album
//	track:  Artist, Title, Album (optional), Genres
type Proposal struct {
	Kind       ProposalKind `json:"kind"`
	Artist     string       `json:"artist"`
	Album      string       `json:"album,omitempty"`
	Title      string       `json:"title,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Confidence Confidence   `json:"confidence,omitempty"`
	Genres     []string     `json:"genres,omitempty"`
}

func NewArtistProposal(name, reason string, confidence Confidence) Proposal {
	return Proposal{Kind: ProposalArtist, Artist: name, Reason: reason, Confidence: confidence}
}

func NewAlbumProposal(artist, album, reason string, confidence Confidence) Proposal {
	return Proposal{Kind: ProposalAlbum, Artist: artist, Album: album, Reason: reason, Confidence: confidence}
}

func NewTrackProposal(artist, title, album, reason string, confidence Confidence, genres []string) Proposal {
	return Proposal{
		Kind:       ProposalTrack,
		Artist:     artist,
		Title:      title,
		Album:      album,
		Reason:     reason,
		Confidence: confidence,
		Genres:     genres,
	}
}

// Valid reports whether the required fields for the proposal's kind are set.
func (p Proposal) Valid() bool {
	if strings.TrimSpace(p.Artist) == "" {
		return false
	}
	switch p.Kind {
	case ProposalArtist:
		return true
	case ProposalAlbum:
		return strings.TrimSpace(p.Album) != ""
	case ProposalTrack:
		return strings.TrimSpace(p.Title) != ""
	default:
		return false
	}
}

// Key identifies a proposal for de-duplication.
func (p Proposal) Key() string {
	return string(p.Kind) + ":" + EntryKey(p.Artist, p.Album+"/"+p.Title)
}

func (p Proposal) String() string {
	switch p.Kind {
	case ProposalAlbum:
		return fmt.Sprintf("%s - %s", p.Artist, p.Album)
	case ProposalTrack:
		return fmt.Sprintf("%s - %s", p.Artist, p.Title)
	default:
		return p.Artist
	}
}

// AvailabilityResult records whether a proposal exists in the library.
type AvailabilityResult struct {
	Proposal  Proposal       `json:"proposal"`
	Available bool           `json:"available"`
	Match     *CatalogEntity `json:"match,omitempty"`
	Err       string         `json:"error,omitempty"`
}

// Analysis is the structured result of the analysis stage.
type Analysis struct {
	Profile   MusicProfile `json:"musicProfile"`
	Proposals []Proposal   `json:"proposals"`
}

// AnalysisMode selects which kind of proposals the analysis asks for.
type AnalysisMode string

const (
	// ModeTracks asks for individual track recommendations.
	ModeTracks AnalysisMode = "tracks"
	// ModeArtists asks for artists and albums.
	ModeArtists AnalysisMode = "artists"
)

func ParseAnalysisMode(s string) AnalysisMode {
	if AnalysisMode(strings.ToLower(strings.TrimSpace(s))) == ModeArtists {
		return ModeArtists
	}
	return ModeTracks
}
