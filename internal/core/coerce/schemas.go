package coerce

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

type profileWire struct {
	PrimaryGenres   []string `json:"primaryGenres"`
	SecondaryGenres []string `json:"secondaryGenres"`
	Moods           []string `json:"moods"`
	Styles          []string `json:"styles"`
	Era             string   `json:"era"`
	Energy          string   `json:"energy"`
	Tempo           string   `json:"tempo"`
}

func (w profileWire) toDomain() domain.MusicProfile {
	return domain.MusicProfile{
		PrimaryGenres:   w.PrimaryGenres,
		SecondaryGenres: w.SecondaryGenres,
		Moods:           w.Moods,
		Styles:          w.Styles,
		Era:             w.Era,
		Energy:          domain.Energy(w.Energy),
		Tempo:           w.Tempo,
	}.Normalized()
}

// TrackElement is the wire shape of one recommended or playlist track.
type TrackElement struct {
	Artist     string   `json:"artist"`
	Title      string   `json:"title"`
	Album      string   `json:"album"`
	Reason     string   `json:"reason"`
	Confidence string   `json:"confidence"`
	Genres     []string `json:"genres"`
}

func (w TrackElement) valid() bool {
	return strings.TrimSpace(w.Artist) != "" && strings.TrimSpace(w.Title) != ""
}

type artistWire struct {
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Reason     string `json:"reason"`
	Confidence string `json:"confidence"`
}

func (w artistWire) name() string {
	if strings.TrimSpace(w.Name) != "" {
		return strings.TrimSpace(w.Name)
	}
	return strings.TrimSpace(w.Artist)
}

type albumWire struct {
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Title      string `json:"title"`
	Reason     string `json:"reason"`
	Confidence string `json:"confidence"`
}

func (w albumWire) album() string {
	if strings.TrimSpace(w.Album) != "" {
		return strings.TrimSpace(w.Album)
	}
	return strings.TrimSpace(w.Title)
}

type analysisWire struct {
	MusicProfile       profileWire       `json:"musicProfile"`
	RecommendedTracks  []json.RawMessage `json:"recommendedTracks"`
	RecommendedArtists []json.RawMessage `json:"recommendedArtists"`
	RecommendedAlbums  []json.RawMessage `json:"recommendedAlbums"`
}

// AnalysisSections returns the top-level keys an analysis response must carry.
func AnalysisSections(mode domain.AnalysisMode) []string {
	if mode == domain.ModeArtists {
		return []string{"musicProfile", "recommendedArtists"}
	}
	return []string{"musicProfile", "recommendedTracks"}
}

// Analysis coerces a taste analysis response. A missing profile or proposal
// section fails the whole response; individual proposals lacking required
// fields are dropped.
func Analysis(raw string, mode domain.AnalysisMode) (Result[domain.Analysis], error) {
	res, err := Object[analysisWire](raw, AnalysisSections(mode)...)
	if err != nil {
		return Result[domain.Analysis]{}, err
	}
	w := res.Value

	var proposals []domain.Proposal
	dropped := 0
	if mode == domain.ModeArtists {
		artists, d := DecodeElements(w.RecommendedArtists, func(a artistWire) bool { return a.name() != "" })
		dropped += d
		for _, a := range artists {
			proposals = append(proposals, domain.NewArtistProposal(a.name(), a.Reason, domain.ParseConfidence(a.Confidence)))
		}
		albums, d := DecodeElements(w.RecommendedAlbums, func(a albumWire) bool {
			return strings.TrimSpace(a.Artist) != "" && a.album() != ""
		})
		dropped += d
		for _, a := range albums {
			proposals = append(proposals, domain.NewAlbumProposal(strings.TrimSpace(a.Artist), a.album(), a.Reason, domain.ParseConfidence(a.Confidence)))
		}
	} else {
		tracks, d := DecodeElements(w.RecommendedTracks, TrackElement.valid)
		dropped += d
		for _, t := range tracks {
			proposals = append(proposals, trackProposal(t))
		}
	}

	if len(proposals) == 0 {
		return Result[domain.Analysis]{Dropped: dropped}, &Error{Kind: KindNoValidItems, Section: "proposals"}
	}

	return Result[domain.Analysis]{
		Value:   domain.Analysis{Profile: w.MusicProfile.toDomain(), Proposals: proposals},
		Dropped: dropped,
	}, nil
}

// StyleProfile coerces a style refinement response.
func StyleProfile(raw string) (Result[domain.MusicProfile], error) {
	res, err := Object[profileWire](raw, "primaryGenres")
	if err != nil {
		return Result[domain.MusicProfile]{}, err
	}
	return Result[domain.MusicProfile]{Value: res.Value.toDomain()}, nil
}

// Entries coerces a playlist array.
func Entries(raw string) (Result[[]domain.DraftEntry], error) {
	res, err := Array(raw, TrackElement.valid)
	if err != nil {
		return Result[[]domain.DraftEntry]{Dropped: res.Dropped}, err
	}
	out := make([]domain.DraftEntry, 0, len(res.Value))
	for _, t := range res.Value {
		out = append(out, EntryFromWire(t))
	}
	return Result[[]domain.DraftEntry]{Value: out, Dropped: res.Dropped}, nil
}

// Entry coerces a single replacement track.
func Entry(raw string) (Result[domain.DraftEntry], error) {
	res, err := Object[TrackElement](raw, "artist", "title")
	if err != nil {
		return Result[domain.DraftEntry]{}, err
	}
	if !res.Value.valid() {
		return Result[domain.DraftEntry]{}, &Error{Kind: KindMissingSection, Section: "artist/title"}
	}
	return Result[domain.DraftEntry]{Value: EntryFromWire(res.Value)}, nil
}

// ValidTrack is the required-field predicate for playlist items.
func ValidTrack(t TrackElement) bool { return t.valid() }

// TrackKey is the de-duplication identity of a playlist item.
func TrackKey(t TrackElement) string { return domain.EntryKey(t.Artist, t.Title) }

// EntryFromWire converts a decoded playlist item.
func EntryFromWire(t TrackElement) domain.DraftEntry {
	return domain.DraftEntry{
		Artist: strings.TrimSpace(t.Artist),
		Title:  strings.TrimSpace(t.Title),
		Album:  strings.TrimSpace(t.Album),
		Reason: strings.TrimSpace(t.Reason),
	}
}

func trackProposal(t TrackElement) domain.Proposal {
	return domain.NewTrackProposal(
		strings.TrimSpace(t.Artist),
		strings.TrimSpace(t.Title),
		strings.TrimSpace(t.Album),
		t.Reason,
		domain.ParseConfidence(t.Confidence),
		t.Genres,
	)
}
