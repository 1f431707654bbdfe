package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/frequency"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
)

type callParams struct {
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

var (
	analyzeTracksCall  = callParams{temperature: 0.3, maxTokens: 3000, timeout: 60 * time.Second}
	analyzeArtistsCall = callParams{temperature: 0.4, maxTokens: 1500, timeout: 30 * time.Second}
	styleCall          = callParams{temperature: 0.2, maxTokens: 800, timeout: 20 * time.Second}
	playlistCall       = callParams{temperature: 0.4, maxTokens: 2500, timeout: 60 * time.Second}
	replacementCall    = callParams{temperature: 0.4, maxTokens: 500, timeout: 30 * time.Second}
)

const (
	promptAvailableTracks  = 40
	promptAvailableArtists = 25
	promptAvailableAlbums  = 15
	promptTopTracks        = 25
	promptStyleHistory     = 20
	promptVocabGenres      = 50
	promptVocabOther       = 30
)

const (
	objectSystemPrompt = "You are a music analysis AI that returns only JSON. You must return valid JSON without any formatting, explanations, or markdown. Your response must be parseable JSON that starts with { and ends with }."
	arraySystemPrompt  = "You are a JSON-only playlist API. You must return a valid JSON array without any formatting, explanations, or markdown. Your response must be parseable JSON that starts with [ and ends with ]."
	styleSystemPrompt  = "You are a music analysis AI that returns ONLY valid JSON responses. Never use markdown formatting, code blocks, or explanatory text. You must only use genres, moods, and styles that are provided in the available options."
)

func (c callParams) request(modelID, system, user string) ports.GenerationRequest {
	return ports.GenerationRequest{
		ModelID:         modelID,
		SystemPrompt:    system,
		UserPrompt:      user,
		Temperature:     c.temperature,
		MaxOutputTokens: c.maxTokens,
		Timeout:         c.timeout,
	}
}

func analysisRequest(modelID string, mode domain.AnalysisMode, sample []domain.ListeningRecord, total int, top []frequency.TrackFrequency) ports.GenerationRequest {
	var b strings.Builder
	b.WriteString("Analyze this music listening history and return a JSON response with ")
	if mode == domain.ModeArtists {
		b.WriteString("artist and album recommendations.\n\n")
	} else {
		b.WriteString("track recommendations.\n\n")
	}

	fmt.Fprintf(&b, "LISTENING HISTORY (%d of %d plays):\n", len(sample), total)
	for _, r := range sample {
		fmt.Fprintf(&b, "- %s - %s - %s\n", orUnknown(r.Artist), orUnknown(r.Album), orUnknown(r.Track))
	}

	if len(top) > 0 {
		b.WriteString("\nMOST PLAYED (play count, recent plays weighted higher):\n")
		for _, tf := range top {
			fmt.Fprintf(&b, "* %s - %s (%d plays)\n", orUnknown(tf.Record.Artist), orUnknown(tf.Record.Track), tf.PlayCount)
		}
	}

	b.WriteString("\nIMPORTANT: Return only valid JSON. No markdown, no explanations, no code blocks. Start with { and end with }. Use this exact structure:\n\n")
	b.WriteString(`{
  "musicProfile": {
    "primaryGenres": ["genre1", "genre2", "genre3"],
    "moods": ["mood1", "mood2", "mood3"],
    "styles": ["style1", "style2", "style3"],
    "era": "time-period",
    "energy": "high/medium/low"
  },
`)
	if mode == domain.ModeArtists {
		b.WriteString(`  "recommendedArtists": [
    {"name": "Artist Name", "reason": "Similar to [original artist] - [style description]", "confidence": "high/medium/low"}
  ],
  "recommendedAlbums": [
    {"artist": "Artist Name", "album": "Album Name", "reason": "Similar to [album in history] - [description]", "confidence": "high/medium/low"}
  ]
}

Recommend similar artists (including artists from the history) and albums from those artists.`)
		return analyzeArtistsCall.request(modelID, objectSystemPrompt, b.String())
	}

	b.WriteString(`  "recommendedTracks": [
    {"artist": "Artist Name", "title": "Song Title", "album": "Album Name", "reason": "Similar to X - description", "confidence": "high", "genres": ["genre1", "genre2"]}
  ]
}

Recommend 30-40 diverse tracks from DIFFERENT artists. Focus on musical similarity but ensure variety across artists, albums, and even genres within the user's taste profile.`)
	return analyzeTracksCall.request(modelID, objectSystemPrompt, b.String())
}

func styleRequest(modelID string, sample []domain.ListeningRecord, vocab domain.Vocabulary) ports.GenerationRequest {
	var b strings.Builder
	b.WriteString("Analyze this music listening history and return the user's musical preferences as a JSON object.\n\nLISTENING HISTORY:\n")
	for _, r := range sample[:min(promptStyleHistory, len(sample))] {
		fmt.Fprintf(&b, "- %s - %s\n", orUnknown(r.Artist), orUnknown(r.Track))
	}
	fmt.Fprintf(&b, "\nAVAILABLE GENRES IN LIBRARY:\n%s\n", joinOrNone(vocab.Genres, promptVocabGenres))
	fmt.Fprintf(&b, "\nAVAILABLE MOODS IN LIBRARY:\n%s\n", joinOrNone(vocab.Moods, promptVocabOther))
	fmt.Fprintf(&b, "\nAVAILABLE STYLES IN LIBRARY:\n%s\n", joinOrNone(vocab.Styles, promptVocabOther))
	b.WriteString(`
IMPORTANT CONSTRAINTS:
- You MUST only use genres, moods and styles from the lists above (leave a list empty if none are available)
- If a genre you would normally choose is not available, pick the closest match from the available options

Return ONLY this JSON object, starting with {:
{
  "primaryGenres": ["genre1", "genre2", "genre3"],
  "moods": ["mood1", "mood2"],
  "styles": ["style1", "style2"],
  "era": "time-period",
  "energy": "high/medium/low",
  "tempo": "slow/moderate/fast"
}`)
	return styleCall.request(modelID, styleSystemPrompt, b.String())
}

func playlistRequest(modelID string, profile domain.MusicProfile, available []domain.AvailabilityResult, n int) ports.GenerationRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %d-song playlist from the music available in the user's library.\n\n", n)
	writeProfile(&b, profile)

	tracks := availableOfKind(available, domain.ProposalTrack)
	if len(tracks) > 0 {
		b.WriteString("\nAVAILABLE TRACKS:\n")
		for i, r := range tracks[:min(promptAvailableTracks, len(tracks))] {
			p := r.Proposal
			fmt.Fprintf(&b, "%d. %s - %s (%s) - %s\n", i+1, p.Artist, p.Title, orUnknown(p.Album), p.Reason)
		}
	} else {
		writeArtistsAndAlbums(&b, available)
	}

	b.WriteString("\nIMPORTANT: Return only valid JSON array. No markdown, no explanations, no code blocks. Start with [ and end with ]. Use this exact structure:\n\n")
	b.WriteString(`[
  {"artist": "Artist Name", "title": "Song Title", "album": "Album Name", "reason": "Brief explanation"}
]
`)
	fmt.Fprintf(&b, "\nSelect exactly %d tracks using only the music listed above. Focus on creating a cohesive flow while maximizing diversity across different artists. Do not repeat the same artist unless absolutely necessary for flow. Return only the JSON array.", n)
	return playlistCall.request(modelID, arraySystemPrompt, b.String())
}

func replacementRequest(modelID string, profile domain.MusicProfile, available []domain.AvailabilityResult, draft domain.PlaylistDraft, exclude domain.DraftEntry) ports.GenerationRequest {
	var b strings.Builder
	b.WriteString("Generate a single song recommendation based on this profile and the music available in the user's library.\n\n")
	writeProfile(&b, profile)
	writeArtistsAndAlbums(&b, available)

	if draft.Len() > 0 {
		b.WriteString("\nALREADY IN THE PLAYLIST (do not repeat):\n")
		for _, e := range draft.Entries {
			fmt.Fprintf(&b, "- %s - %s\n", e.Artist, e.Title)
		}
	}
	fmt.Fprintf(&b, "\nEXCLUDE THIS TRACK: %s - %s\n", exclude.Artist, exclude.Title)

	b.WriteString("\nIMPORTANT: Return only valid JSON object. No markdown, no explanations, no code blocks. Start with { and end with }. Use this exact structure:\n\n")
	b.WriteString(`{"artist": "Artist Name", "title": "Song Title", "album": "Album Name", "reason": "Brief explanation"}

Generate exactly 1 song using only the available artists and albums listed above. Make sure it is different from the excluded track. Return only the JSON object.`)
	return replacementCall.request(modelID, objectSystemPrompt, b.String())
}

func writeProfile(b *strings.Builder, p domain.MusicProfile) {
	b.WriteString("MUSIC PROFILE:\n")
	fmt.Fprintf(b, "Genres: %s\n", joinOr(p.PrimaryGenres, "Various"))
	fmt.Fprintf(b, "Moods: %s\n", joinOr(p.Moods, "Various"))
	if len(p.Styles) > 0 {
		fmt.Fprintf(b, "Styles: %s\n", strings.Join(p.Styles, ", "))
	}
	if p.Era != "" {
		fmt.Fprintf(b, "Era: %s\n", p.Era)
	}
	fmt.Fprintf(b, "Energy: %s\n", domain.ParseEnergy(string(p.Energy)))
	if p.Tempo != "" {
		fmt.Fprintf(b, "Tempo: %s\n", p.Tempo)
	}
}

// writeArtistsAndAlbums lists the available artists (including artists of
// available albums and tracks) and albums.
func writeArtistsAndAlbums(b *strings.Builder, available []domain.AvailabilityResult) {
	artists := uniqueArtists(available)
	b.WriteString("\nAVAILABLE ARTISTS:\n")
	for i, a := range artists[:min(promptAvailableArtists, len(artists))] {
		fmt.Fprintf(b, "%d. %s\n", i+1, a)
	}

	albums := availableOfKind(available, domain.ProposalAlbum)
	if len(albums) == 0 {
		return
	}
	b.WriteString("\nAVAILABLE ALBUMS:\n")
	for i, r := range albums[:min(promptAvailableAlbums, len(albums))] {
		fmt.Fprintf(b, "%d. %s - %s\n", i+1, r.Proposal.Artist, r.Proposal.Album)
	}
}

func availableOfKind(available []domain.AvailabilityResult, kind domain.ProposalKind) []domain.AvailabilityResult {
	var out []domain.AvailabilityResult
	for _, r := range available {
		if r.Available && r.Proposal.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func uniqueArtists(available []domain.AvailabilityResult) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, r := range available {
		if !r.Available {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(r.Proposal.Artist))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(r.Proposal.Artist))
	}
	return out
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func joinOr(values []string, def string) string {
	if len(values) == 0 {
		return def
	}
	return strings.Join(values, ", ")
}

func joinOrNone(values []string, limit int) string {
	return joinOr(values[:min(limit, len(values))], "None available")
}
