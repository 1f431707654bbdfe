package domain

import "time"

// PipelineState is the whole of one session's progress through the stages.
// The pipeline owns it; callers only ever see clones.
type PipelineState struct {
	Stage      Stage    `json:"stage"`
	Completed  StageSet `json:"completedStages"`
	Processing bool     `json:"processing"`

	ModelID    string            `json:"modelId,omitempty"`
	History    []ListeningRecord `json:"-"`
	Vocabulary Vocabulary        `json:"vocabulary"`

	Profile      *MusicProfile        `json:"profile,omitempty"`
	Proposals    []Proposal           `json:"proposals,omitempty"`
	Availability []AvailabilityResult `json:"availability,omitempty"`
	Draft        PlaylistDraft        `json:"draft"`

	// AttemptsUsed is the number of generation attempts behind the current draft.
	AttemptsUsed int      `json:"attemptsUsed,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	LastError    string   `json:"lastError,omitempty"`
}

// NewPipelineState returns the state at the start of a flow.
func NewPipelineState() PipelineState {
	return PipelineState{Stage: StageModel}
}

// CanEnter reports whether s may become the current stage.
func (st PipelineState) CanEnter(s Stage) bool {
	return st.Completed.Covers(s)
}

// HistoryCount is the number of loaded listening records.
func (st PipelineState) HistoryCount() int {
	return len(st.History)
}

// AvailableProposals returns the proposals found in the library, in order.
func (st PipelineState) AvailableProposals() []AvailabilityResult {
	out := make([]AvailabilityResult, 0, len(st.Availability))
	for _, r := range st.Availability {
		if r.Available {
			out = append(out, r)
		}
	}
	return out
}

// Clone deep-copies every slice so the copy can be handed out safely.
func (st PipelineState) Clone() PipelineState {
	out := st
	out.History = append([]ListeningRecord(nil), st.History...)
	out.Vocabulary = Vocabulary{
		Genres: append([]string(nil), st.Vocabulary.Genres...),
		Moods:  append([]string(nil), st.Vocabulary.Moods...),
		Styles: append([]string(nil), st.Vocabulary.Styles...),
	}
	if st.Profile != nil {
		p := *st.Profile
		p.PrimaryGenres = append([]string(nil), p.PrimaryGenres...)
		p.SecondaryGenres = append([]string(nil), p.SecondaryGenres...)
		p.Moods = append([]string(nil), p.Moods...)
		p.Styles = append([]string(nil), p.Styles...)
		out.Profile = &p
	}
	out.Proposals = append([]Proposal(nil), st.Proposals...)
	out.Availability = append([]AvailabilityResult(nil), st.Availability...)
	out.Draft = st.Draft.Clone()
	out.Warnings = append([]string(nil), st.Warnings...)
	return out
}

// DraftSnapshot is the persisted part of a session in review.
type DraftSnapshot struct {
	SessionID    string               `json:"sessionId"`
	ModelID      string               `json:"modelId"`
	Profile      *MusicProfile        `json:"profile,omitempty"`
	Availability []AvailabilityResult `json:"availability,omitempty"`
	Draft        PlaylistDraft        `json:"draft"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}
