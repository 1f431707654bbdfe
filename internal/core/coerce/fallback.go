package coerce

import (
	"strings"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

const (
	fallbackArtistLimit = 25
	fallbackTrackLimit  = 40
	fallbackReason      = "Fallback recommendation"
	historyReason       = "From your listening history"
)

// FallbackAnalysis builds an analysis from the listening history alone: the
// unique artists in order of first appearance and, in track mode, the unique
// tracks. The profile uses the first three library genres when known.
func FallbackAnalysis(history []domain.ListeningRecord, vocab domain.Vocabulary, mode domain.AnalysisMode) (domain.Analysis, error) {
	if len(history) == 0 {
		return domain.Analysis{}, domain.ErrNoFallback
	}

	var proposals []domain.Proposal
	seenArtist := make(map[string]struct{})
	for _, r := range history {
		name := strings.TrimSpace(r.Artist)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seenArtist[key]; ok {
			continue
		}
		seenArtist[key] = struct{}{}
		proposals = append(proposals, domain.NewArtistProposal(name, historyReason, domain.ConfidenceMedium))
		if len(seenArtist) == fallbackArtistLimit {
			break
		}
	}

	if mode != domain.ModeArtists {
		seenTrack := make(map[string]struct{})
		for _, r := range history {
			if strings.TrimSpace(r.Artist) == "" || strings.TrimSpace(r.Track) == "" {
				continue
			}
			key := domain.EntryKey(r.Artist, r.Track)
			if _, ok := seenTrack[key]; ok {
				continue
			}
			seenTrack[key] = struct{}{}
			proposals = append(proposals, domain.NewTrackProposal(
				strings.TrimSpace(r.Artist), strings.TrimSpace(r.Track), strings.TrimSpace(r.Album),
				historyReason, domain.ConfidenceMedium, nil,
			))
			if len(seenTrack) == fallbackTrackLimit {
				break
			}
		}
	}

	if len(proposals) == 0 {
		return domain.Analysis{}, domain.ErrNoFallback
	}

	profile := domain.MusicProfile{Energy: domain.EnergyMedium}
	profile.PrimaryGenres = firstN(vocab.Genres, 3)
	return domain.Analysis{Profile: profile, Proposals: proposals}, nil
}

// FallbackStyle picks the first three library genres with neutral defaults.
func FallbackStyle(vocab domain.Vocabulary) (domain.MusicProfile, error) {
	if len(vocab.Genres) == 0 {
		return domain.MusicProfile{}, domain.ErrNoFallback
	}
	return domain.MusicProfile{
		PrimaryGenres: firstN(vocab.Genres, 3),
		Moods:         firstN(vocab.Moods, 3),
		Styles:        firstN(vocab.Styles, 3),
		Era:           "2000s-2020s",
		Energy:        domain.EnergyMedium,
		Tempo:         "moderate",
	}, nil
}

// FallbackDraft takes the first n available track proposals as the playlist.
func FallbackDraft(available []domain.AvailabilityResult, n int) ([]domain.DraftEntry, error) {
	out := make([]domain.DraftEntry, 0, n)
	for _, r := range available {
		if len(out) == n {
			break
		}
		if !r.Available || r.Proposal.Kind != domain.ProposalTrack {
			continue
		}
		out = append(out, entryFromAvailability(r))
	}
	if len(out) == 0 {
		return nil, domain.ErrNoFallback
	}
	return out, nil
}

// FallbackReplacement returns the first available track that is neither in
// the draft nor the excluded entry.
func FallbackReplacement(available []domain.AvailabilityResult, draft domain.PlaylistDraft, exclude domain.DraftEntry) (domain.DraftEntry, error) {
	for _, r := range available {
		if !r.Available || r.Proposal.Kind != domain.ProposalTrack {
			continue
		}
		e := entryFromAvailability(r)
		if e.Key() == exclude.Key() || draft.Contains(e, -1) {
			continue
		}
		return e, nil
	}
	return domain.DraftEntry{}, domain.ErrNoFallback
}

func entryFromAvailability(r domain.AvailabilityResult) domain.DraftEntry {
	e := domain.DraftEntry{
		Artist: r.Proposal.Artist,
		Title:  r.Proposal.Title,
		Album:  r.Proposal.Album,
		Reason: fallbackReason,
	}
	if r.Match != nil {
		e.CatalogID = r.Match.ID
		e.Status = domain.EntryAvailable
	}
	return e
}

func firstN(values []string, n int) []string {
	if len(values) < n {
		n = len(values)
	}
	return append([]string(nil), values[:n]...)
}
