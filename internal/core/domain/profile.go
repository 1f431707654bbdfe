package domain

import "strings"

// Energy is the overall intensity of a listening profile.
type Energy string

const (
	EnergyHigh   Energy = "high"
	EnergyMedium Energy = "medium"
	EnergyLow    Energy = "low"
)

// ParseEnergy accepts any casing and defaults to medium.
func ParseEnergy(s string) Energy {
	switch Energy(strings.ToLower(strings.TrimSpace(s))) {
	case EnergyHigh:
		return EnergyHigh
	case EnergyLow:
		return EnergyLow
	default:
		return EnergyMedium
	}
}

// MusicProfile is the taste summary produced by the analysis stage.
type MusicProfile struct {
	PrimaryGenres   []string `json:"primaryGenres"`
	SecondaryGenres []string `json:"secondaryGenres,omitempty"`
	Moods           []string `json:"moods"`
	Styles          []string `json:"styles"`
	Era             string   `json:"era"`
	Energy          Energy   `json:"energy"`
	Tempo           string   `json:"tempo,omitempty"`
}

// Vocabulary is the set of genres, moods and styles the library knows about.
type Vocabulary struct {
	Genres []string `json:"genres"`
	Moods  []string `json:"moods"`
	Styles []string `json:"styles"`
}

func (v Vocabulary) Empty() bool {
	return len(v.Genres) == 0 && len(v.Moods) == 0 && len(v.Styles) == 0
}

// RestrictTo drops every genre, mood and style that is not in the vocabulary.
// Values are matched case-insensitively and rewritten to the vocabulary's spelling.
// Sections with an empty allow-list are left as they are.
func (p MusicProfile) RestrictTo(v Vocabulary) MusicProfile {
	out := p
	if len(v.Genres) > 0 {
		out.PrimaryGenres = intersect(p.PrimaryGenres, v.Genres)
		out.SecondaryGenres = intersect(p.SecondaryGenres, v.Genres)
	}
	if len(v.Moods) > 0 {
		out.Moods = intersect(p.Moods, v.Moods)
	}
	if len(v.Styles) > 0 {
		out.Styles = intersect(p.Styles, v.Styles)
	}
	return out
}

// Normalized trims values, removes duplicates (keeping first occurrence) and
// fills the energy default.
func (p MusicProfile) Normalized() MusicProfile {
	out := p
	out.PrimaryGenres = dedupe(p.PrimaryGenres)
	out.SecondaryGenres = dedupe(p.SecondaryGenres)
	out.Moods = dedupe(p.Moods)
	out.Styles = dedupe(p.Styles)
	out.Era = strings.TrimSpace(p.Era)
	out.Energy = ParseEnergy(string(p.Energy))
	out.Tempo = strings.TrimSpace(p.Tempo)
	return out
}

func intersect(values []string, allowed []string) []string {
	lookup := make(map[string]string, len(allowed))
	for _, a := range allowed {
		lookup[strings.ToLower(strings.TrimSpace(a))] = a
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		canonical, ok := lookup[key]
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
