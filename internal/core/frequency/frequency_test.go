package frequency

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func plays(artist, album, track string, ages ...time.Duration) []domain.ListeningRecord {
	out := make([]domain.ListeningRecord, 0, len(ages))
	for _, age := range ages {
		out = append(out, domain.ListeningRecord{Artist: artist, Album: album, Track: track, PlayedAt: now.Add(-age)})
	}
	return out
}

const day = 24 * time.Hour

func fixture() []domain.ListeningRecord {
	var rs []domain.ListeningRecord
	// 5 plays, last 100 days ago
	rs = append(rs, plays("Low", "Secret Name", "Weight of Water", 100*day, 110*day, 120*day, 130*day, 140*day)...)
	// 3 plays, last 2 days ago
	rs = append(rs, plays("Slowdive", "Souvlaki", "Alison", 2*day, 50*day, 60*day)...)
	// 1 play, yesterday
	rs = append(rs, plays("Duster", "Stratosphere", "Echo, Bravo", day)...)
	// 12 plays, last 200 days ago
	var old []time.Duration
	for i := 0; i < 12; i++ {
		old = append(old, time.Duration(200+i)*day)
	}
	rs = append(rs, plays("Low", "Things We Lost in the Fire", "Sunflower", old...)...)
	// 2 plays, last 10 days ago
	rs = append(rs, plays("Codeine", "Frigid Stars", "D", 10*day, 20*day)...)
	return rs
}

func TestAnalyze_TopOrdering(t *testing.T) {
	a := Analyze(fixture(), now)

	top := a.Top(3)
	require.Len(t, top, 3)
	assert.Equal(t, "Sunflower", top[0].Record.Track)
	assert.Equal(t, 12, top[0].PlayCount)
	assert.Equal(t, "Weight of Water", top[1].Record.Track)
	assert.Equal(t, "Alison", top[2].Record.Track)
	assert.Equal(t, now.Add(-2*day), top[2].LastPlayed)
	assert.Equal(t, now.Add(-60*day), top[2].FirstPlayed)

	assert.Len(t, a.Top(100), 5)
}

func TestAnalyze_Weighted(t *testing.T) {
	a := Analyze(fixture(), now)

	w := a.Weighted(5)
	// Sunflower 12, Alison 3+3, Weight of Water 5, Codeine 2+3, Duster 1+3
	got := []string{}
	for _, tf := range w {
		got = append(got, tf.Record.Track)
	}
	assert.Equal(t, []string{"Sunflower", "Alison", "Weight of Water", "D", "Echo, Bravo"}, got)
}

func TestAnalyze_Variety(t *testing.T) {
	a := Analyze(fixture(), now)

	v := a.Variety(10)
	got := []string{}
	for _, tf := range v {
		got = append(got, tf.Record.Track)
	}
	// excludes Sunflower (12) and Echo, Bravo (1); most recent first
	assert.Equal(t, []string{"Alison", "D", "Weight of Water"}, got)
}

func TestAnalyze_RandomSample(t *testing.T) {
	a := Analyze(fixture(), now)

	// The sample is random; only its bounds and eligibility are asserted
	// unless a seeded source is supplied.
	for i := 0; i < 10; i++ {
		s := a.RandomSample(3, nil)
		require.Len(t, s, 3)
		for _, tf := range s {
			assert.GreaterOrEqual(t, tf.PlayCount, 2)
		}
	}

	seeded := func() []TrackFrequency { return a.RandomSample(10, rand.New(rand.NewPCG(1, 2))) }
	first, second := seeded(), seeded()
	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestAnalyze_RollUps(t *testing.T) {
	a := Analyze(fixture(), now)

	artists := a.Artists()
	require.NotEmpty(t, artists)
	assert.Equal(t, "Low", artists[0].Name)
	assert.Equal(t, 17, artists[0].PlayCount)
	assert.Len(t, artists[0].Tracks, 2)

	albums := a.Albums()
	assert.Equal(t, "Low - Things We Lost in the Fire", albums[0].Name)
}

func TestAnalyze_CaseInsensitiveIdentity(t *testing.T) {
	rs := []domain.ListeningRecord{
		{Artist: "Low", Album: "Secret Name", Track: "Weight of Water", PlayedAt: now},
		{Artist: "low", Album: "secret name", Track: "weight of water", PlayedAt: now.Add(-day)},
	}
	a := Analyze(rs, now)
	require.Len(t, a.Tracks(), 1)
	assert.Equal(t, 2, a.Tracks()[0].PlayCount)
}

func TestFilterTimeFrame(t *testing.T) {
	rs := fixture()
	rs = append(rs, domain.ListeningRecord{Artist: "Nobody", Track: "Undated"})

	tests := []struct {
		frame TimeFrame
		want  int
	}{
		{FrameAll, len(rs)},
		{FrameDay, 1},
		{FrameWeek, 2},
		{FrameMonth, 4},
		{FrameQuarter, 6},
		{FrameYear, 23},
	}
	for _, tt := range tests {
		t.Run(string(tt.frame), func(t *testing.T) {
			assert.Len(t, FilterTimeFrame(rs, tt.frame, now), tt.want)
		})
	}
}

func TestParseTimeFrame(t *testing.T) {
	f, err := ParseTimeFrame("Month")
	require.NoError(t, err)
	assert.Equal(t, FrameMonth, f)

	f, err = ParseTimeFrame("")
	require.NoError(t, err)
	assert.Equal(t, FrameAll, f)

	_, err = ParseTimeFrame("decade")
	assert.ErrorIs(t, err, domain.ErrInvalidArgs)
}
