// Package frequency derives play-count and recency views from listening history.
package frequency

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

const (
	recencyWindow = 30 * 24 * time.Hour
	recencyBonus  = 3

	varietyMinPlays = 2
	varietyMaxPlays = 10
	sampleMinPlays  = 2
)

// TrackFrequency aggregates the plays of one (artist, album, track).
type TrackFrequency struct {
	Record      domain.ListeningRecord `json:"record"`
	PlayCount   int                    `json:"playCount"`
	FirstPlayed time.Time              `json:"firstPlayed"`
	LastPlayed  time.Time              `json:"lastPlayed"`
}

// Category is an artist or album roll-up.
type Category struct {
	Name      string           `json:"name"`
	PlayCount int              `json:"playCount"`
	Tracks    []TrackFrequency `json:"tracks"`
}

// Analysis holds the aggregated history. Tracks are ordered by play count
// descending, ties broken by most recent play.
type Analysis struct {
	now     time.Time
	tracks  []TrackFrequency
	artists []Category
	albums  []Category
}

// Analyze aggregates records. now anchors the recency bonus.
func Analyze(records []domain.ListeningRecord, now time.Time) *Analysis {
	index := make(map[string]int, len(records))
	tracks := make([]TrackFrequency, 0, len(records))

	for _, r := range records {
		key := r.Identity()
		if i, ok := index[key]; ok {
			tf := &tracks[i]
			tf.PlayCount++
			if r.PlayedAt.After(tf.LastPlayed) {
				tf.LastPlayed = r.PlayedAt
			}
			if r.PlayedAt.Before(tf.FirstPlayed) {
				tf.FirstPlayed = r.PlayedAt
			}
			continue
		}
		index[key] = len(tracks)
		tracks = append(tracks, TrackFrequency{
			Record:      r,
			PlayCount:   1,
			FirstPlayed: r.PlayedAt,
			LastPlayed:  r.PlayedAt,
		})
	}

	slices.SortStableFunc(tracks, func(a, b TrackFrequency) int {
		if c := cmp.Compare(b.PlayCount, a.PlayCount); c != 0 {
			return c
		}
		return b.LastPlayed.Compare(a.LastPlayed)
	})

	a := &Analysis{now: now, tracks: tracks}
	a.artists, a.albums = rollUp(tracks)
	return a
}

// Tracks returns every aggregated track.
func (a *Analysis) Tracks() []TrackFrequency {
	return slices.Clone(a.tracks)
}

// Top returns the n most played tracks.
func (a *Analysis) Top(n int) []TrackFrequency {
	return head(slices.Clone(a.tracks), n)
}

// Weighted ranks tracks by play count plus a bonus of 3 when last played
// within 30 days of now.
func (a *Analysis) Weighted(n int) []TrackFrequency {
	out := slices.Clone(a.tracks)
	slices.SortStableFunc(out, func(x, y TrackFrequency) int {
		return cmp.Compare(a.weight(y), a.weight(x))
	})
	return head(out, n)
}

func (a *Analysis) weight(tf TrackFrequency) int {
	w := tf.PlayCount
	if !tf.LastPlayed.IsZero() && a.now.Sub(tf.LastPlayed) <= recencyWindow {
		w += recencyBonus
	}
	return w
}

// Variety returns moderately played tracks (2 to 9 plays), most recent first.
func (a *Analysis) Variety(n int) []TrackFrequency {
	var out []TrackFrequency
	for _, tf := range a.tracks {
		if tf.PlayCount >= varietyMinPlays && tf.PlayCount < varietyMaxPlays {
			out = append(out, tf)
		}
	}
	slices.SortStableFunc(out, func(x, y TrackFrequency) int {
		return y.LastPlayed.Compare(x.LastPlayed)
	})
	return head(out, n)
}

// RandomSample returns up to n tracks played at least twice, chosen uniformly.
// The result is non-deterministic unless rng is seeded; a nil rng uses the
// global source.
func (a *Analysis) RandomSample(n int, rng *rand.Rand) []TrackFrequency {
	var eligible []TrackFrequency
	for _, tf := range a.tracks {
		if tf.PlayCount >= sampleMinPlays {
			eligible = append(eligible, tf)
		}
	}
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	return head(eligible, n)
}

// Artists returns the per-artist roll-up, most played first.
func (a *Analysis) Artists() []Category { return slices.Clone(a.artists) }

// Albums returns the per-album roll-up keyed "artist - album", most played first.
func (a *Analysis) Albums() []Category { return slices.Clone(a.albums) }

func rollUp(tracks []TrackFrequency) (artists, albums []Category) {
	artistIdx := map[string]int{}
	albumIdx := map[string]int{}

	add := func(list []Category, idx map[string]int, name string, tf TrackFrequency) []Category {
		key := strings.ToLower(name)
		i, ok := idx[key]
		if !ok {
			idx[key] = len(list)
			list = append(list, Category{Name: name})
			i = len(list) - 1
		}
		list[i].PlayCount += tf.PlayCount
		list[i].Tracks = append(list[i].Tracks, tf)
		return list
	}

	for _, tf := range tracks {
		artist := orDefault(tf.Record.Artist, "Unknown Artist")
		artists = add(artists, artistIdx, artist, tf)
		albums = add(albums, albumIdx, artist+" - "+orDefault(tf.Record.Album, "Unknown Album"), tf)
	}

	byPlays := func(x, y Category) int { return cmp.Compare(y.PlayCount, x.PlayCount) }
	slices.SortStableFunc(artists, byPlays)
	slices.SortStableFunc(albums, byPlays)
	return artists, albums
}

func head(tfs []TrackFrequency, n int) []TrackFrequency {
	if n >= 0 && len(tfs) > n {
		return tfs[:n]
	}
	return tfs
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
