package coerce

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

func TestEntries(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantCount   int
		wantDropped int
		wantKind    Kind
	}{
		{
			name:      "valid array",
			raw:       `[{"artist":"Low","title":"Lullaby"},{"artist":"Slowdive","title":"Alison","album":"Souvlaki"}]`,
			wantCount: 2,
		},
		{
			name:        "invalid elements filtered",
			raw:         `[{"artist":"Low","title":"Lullaby"},{"artist":"","title":"x"},{"title":"no artist"},"string",42]`,
			wantCount:   1,
			wantDropped: 4,
		},
		{
			name:     "markdown fence is not stripped",
			raw:      "```json\n[{\"artist\":\"Low\",\"title\":\"Lullaby\"}]\n```",
			wantKind: KindShape,
		},
		{
			name:     "leading prose",
			raw:      `Here you go: [{"artist":"Low","title":"Lullaby"}]`,
			wantKind: KindShape,
		},
		{
			name:     "trailing prose",
			raw:      `[{"artist":"Low","title":"Lullaby"}] hope you enjoy`,
			wantKind: KindSyntax,
		},
		{
			name:     "truncated",
			raw:      `[{"artist":"Low","title":"Lullaby"},{"artist":"Slo`,
			wantKind: KindSyntax,
		},
		{
			name:     "empty",
			raw:      "  \n ",
			wantKind: KindEmpty,
		},
		{
			name:        "nothing valid",
			raw:         `[{"artist":"Low"}]`,
			wantDropped: 1,
			wantKind:    KindNoValidItems,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Entries(tt.raw)
			if tt.wantKind != "" {
				var cerr *Error
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, tt.wantKind, cerr.Kind)
				assert.ErrorIs(t, err, domain.ErrMalformedOutput)
				assert.Equal(t, tt.wantDropped, res.Dropped)
				return
			}
			require.NoError(t, err)
			assert.Len(t, res.Value, tt.wantCount)
			assert.Equal(t, tt.wantDropped, res.Dropped)
			for _, e := range res.Value {
				assert.NotEmpty(t, e.Artist)
				assert.NotEmpty(t, e.Title)
			}
		})
	}
}

func TestAnalysis(t *testing.T) {
	t.Run("tracks mode", func(t *testing.T) {
		raw := `{
			"musicProfile": {"primaryGenres":["Rock","rock","Indie"],"moods":["calm"],"styles":[],"era":"1990s","energy":"HIGH"},
			"recommendedTracks": [
				{"artist":"Low","title":"Lullaby","confidence":"high","genres":["slowcore"]},
				{"artist":"Broken"}
			]
		}`
		res, err := Analysis(raw, domain.ModeTracks)
		require.NoError(t, err)
		assert.Equal(t, []string{"Rock", "Indie"}, res.Value.Profile.PrimaryGenres)
		assert.Equal(t, domain.EnergyHigh, res.Value.Profile.Energy)
		require.Len(t, res.Value.Proposals, 1)
		assert.Equal(t, domain.ProposalTrack, res.Value.Proposals[0].Kind)
		assert.Equal(t, domain.ConfidenceHigh, res.Value.Proposals[0].Confidence)
		assert.Equal(t, 1, res.Dropped)
	})

	t.Run("artists mode", func(t *testing.T) {
		raw := `{
			"musicProfile": {"primaryGenres":["Jazz"]},
			"recommendedArtists": [{"name":"Alice Coltrane","reason":"spiritual"},{"reason":"nameless"}],
			"recommendedAlbums": [{"artist":"Pharoah Sanders","album":"Karma"}]
		}`
		res, err := Analysis(raw, domain.ModeArtists)
		require.NoError(t, err)
		require.Len(t, res.Value.Proposals, 2)
		assert.Equal(t, domain.ProposalArtist, res.Value.Proposals[0].Kind)
		assert.Equal(t, "Alice Coltrane", res.Value.Proposals[0].Artist)
		assert.Equal(t, domain.ProposalAlbum, res.Value.Proposals[1].Kind)
		assert.Equal(t, domain.EnergyMedium, res.Value.Profile.Energy)
	})

	t.Run("missing section is total failure", func(t *testing.T) {
		_, err := Analysis(`{"recommendedTracks":[{"artist":"Low","title":"Lullaby"}]}`, domain.ModeTracks)
		var cerr *Error
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, KindMissingSection, cerr.Kind)
		assert.Equal(t, "musicProfile", cerr.Section)
	})

	t.Run("null section is total failure", func(t *testing.T) {
		_, err := Analysis(`{"musicProfile":{},"recommendedTracks":null}`, domain.ModeTracks)
		var cerr *Error
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, KindMissingSection, cerr.Kind)
	})
}

func TestEntry(t *testing.T) {
	res, err := Entry(`{"artist":"Low","title":"Lullaby","reason":"slow"}`)
	require.NoError(t, err)
	assert.Equal(t, "Lullaby", res.Value.Title)

	_, err = Entry(`{"artist":"Low","title":"  "}`)
	assert.ErrorIs(t, err, domain.ErrMalformedOutput)

	_, err = Entry(`[{"artist":"Low","title":"Lullaby"}]`)
	assert.ErrorIs(t, err, domain.ErrMalformedOutput)
}

func TestWithFallback(t *testing.T) {
	history := []domain.ListeningRecord{
		{Artist: "Low", Album: "Things We Lost in the Fire", Track: "Sunflower", PlayedAt: time.Unix(300, 0)},
		{Artist: "low", Album: "Secret Name", Track: "Weight of Water", PlayedAt: time.Unix(200, 0)},
		{Artist: "Slowdive", Album: "Souvlaki", Track: "Alison", PlayedAt: time.Unix(100, 0)},
	}
	vocab := domain.Vocabulary{Genres: []string{"Rock", "Slowcore", "Shoegaze", "Jazz"}}

	res, err := Analysis("not json", domain.ModeTracks)
	require.Error(t, err)

	fallback := func() (domain.Analysis, error) {
		return FallbackAnalysis(history, vocab, domain.ModeTracks)
	}
	got, err := WithFallback(res, err, fallback)
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Equal(t, []string{"Rock", "Slowcore", "Shoegaze"}, got.Value.Profile.PrimaryGenres)

	var artists, tracks int
	for _, p := range got.Value.Proposals {
		switch p.Kind {
		case domain.ProposalArtist:
			artists++
		case domain.ProposalTrack:
			tracks++
		}
	}
	assert.Equal(t, 2, artists, "artists are unique case-insensitively")
	assert.Equal(t, 3, tracks)

	again, err := WithFallback(res, errors.New("still broken"), fallback)
	require.NoError(t, err)
	assert.Equal(t, got.Value, again.Value, "fallback is pure")

	_, err = WithFallback(Result[domain.Analysis]{}, errors.New("broken"), func() (domain.Analysis, error) {
		return FallbackAnalysis(nil, vocab, domain.ModeTracks)
	})
	assert.ErrorIs(t, err, domain.ErrNoFallback)
}

func TestFallbackDraft(t *testing.T) {
	available := []domain.AvailabilityResult{
		{Proposal: domain.NewArtistProposal("Low", "", ""), Available: true},
		{Proposal: domain.NewTrackProposal("Low", "Lullaby", "", "", "", nil), Available: true, Match: &domain.CatalogEntity{ID: "11"}},
		{Proposal: domain.NewTrackProposal("Slowdive", "Alison", "", "", "", nil), Available: false},
		{Proposal: domain.NewTrackProposal("Duster", "Echo, Bravo", "", "", "", nil), Available: true, Match: &domain.CatalogEntity{ID: "12"}},
	}

	entries, err := FallbackDraft(available, 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "11", entries[0].CatalogID)
	assert.Equal(t, "Fallback recommendation", entries[0].Reason)

	draft := domain.PlaylistDraft{Entries: entries[:1]}
	repl, err := FallbackReplacement(available, draft, entries[0])
	require.NoError(t, err)
	assert.Equal(t, "Echo, Bravo", repl.Title)

	_, err = FallbackDraft(available[:1], 5)
	assert.ErrorIs(t, err, domain.ErrNoFallback)
}

func TestFallbackStyle(t *testing.T) {
	p, err := FallbackStyle(domain.Vocabulary{Genres: []string{"Rock"}, Moods: []string{"Calm", "Moody", "Dark", "Warm"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rock"}, p.PrimaryGenres)
	assert.Len(t, p.Moods, 3)
	assert.Equal(t, "moderate", p.Tempo)

	_, err = FallbackStyle(domain.Vocabulary{})
	assert.ErrorIs(t, err, domain.ErrNoFallback)
}
