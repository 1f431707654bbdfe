package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ewilliams-labs/setlist/internal/core/coerce"
	"github.com/ewilliams-labs/setlist/internal/core/continuation"
	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/frequency"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/metrics"
)

// LoadData fetches the listening history and the library vocabulary in
// parallel. Missing vocabulary only produces a warning.
func (p *Pipeline) LoadData(ctx context.Context) StageReport {
	const stage = domain.StageData
	ctx, id, _, err := p.begin(ctx, stage, true)
	if err != nil {
		return failed(stage, err)
	}
	log := logging.Ctx(ctx).With().Str("component", "pipeline").Logger()

	var (
		wg       sync.WaitGroup
		history  []domain.ListeningRecord
		vocab    domain.Vocabulary
		herr     error
		verr     error
		haveVoc  = p.deps.Vocabulary != nil
		warning  string
		filtered []domain.ListeningRecord
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		history, herr = p.deps.History.History(ctx, p.cfg.UserID)
	}()
	if haveVoc {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vocab, verr = p.deps.Vocabulary.Vocabulary(ctx)
		}()
	}
	wg.Wait()

	if herr != nil {
		return p.end(ctx, id, failed(stage, fmt.Errorf("pipeline: load history: %w", herr)), nil)
	}
	if ctx.Err() != nil {
		return p.end(ctx, id, failed(stage, ctx.Err()), nil)
	}

	filtered = frequency.FilterTimeFrame(history, p.cfg.TimeFrame, p.now())
	if len(filtered) == 0 {
		return p.end(ctx, id, failed(stage, domain.ErrNoHistory), nil)
	}

	switch {
	case verr != nil:
		log.Warn().Err(verr).Msg("library vocabulary unavailable")
		warning = "Library genres could not be loaded; the taste profile will not be limited to your library."
		vocab = domain.Vocabulary{}
	case haveVoc && vocab.Empty():
		warning = "Your library reports no genres, moods or styles; the taste profile will not be limited to your library."
	}

	log.Info().Int("records", len(history)).Int("in_time_frame", len(filtered)).Int("genres", len(vocab.Genres)).Msg("listening data loaded")
	return p.end(ctx, id, StageReport{Stage: stage, Warning: warning}, func(st *domain.PipelineState) {
		st.History = filtered
		st.Vocabulary = vocab
		p.complete(st, stage)
	})
}

// RunAnalysis samples the history, asks the generator for a taste profile
// and proposals, and restricts the profile to the library vocabulary.
// Unreadable output falls back to proposals built from the history itself.
func (p *Pipeline) RunAnalysis(ctx context.Context) StageReport {
	const stage = domain.StageAnalyzing
	ctx, id, st, err := p.begin(ctx, stage, true)
	if err != nil {
		return failed(stage, err)
	}
	log := logging.Ctx(ctx).With().Str("component", "pipeline").Logger()

	sample := SampleHistory(st.History, p.cfg.SampleThreshold, p.cfg.SampleRecent, p.cfg.SampleRandom, p.cfg.Rand)
	top := frequency.Analyze(st.History, p.now()).Weighted(promptTopTracks)
	mode := p.cfg.Mode
	log.Info().Int("history", len(st.History)).Int("sample", len(sample)).Str("mode", string(mode)).Msg("running analysis")

	out := continuation.Request(ctx, p.ctrl, analysisRequest(st.ModelID, mode, sample, len(st.History), top), continuation.Options[domain.Analysis]{
		MaxAttempts: p.cfg.MaxAttempts,
		Operation:   "analyze",
		Decode: func(raw string) (domain.Analysis, error) {
			res, err := coerce.Analysis(raw, mode)
			return res.Value, err
		},
	})

	var warnings []string
	res := coerce.Result[domain.Analysis]{Value: out.Value}
	if !out.Success {
		if !errors.Is(out.Err, domain.ErrMalformedOutput) || ctx.Err() != nil {
			return p.end(ctx, id, failed(stage, out.Err), nil)
		}
		res, err = coerce.WithFallback(res, out.Err, func() (domain.Analysis, error) {
			return coerce.FallbackAnalysis(st.History, st.Vocabulary, mode)
		})
		if err != nil {
			return p.end(ctx, id, failed(stage, err), nil)
		}
		metrics.FallbacksUsed.WithLabelValues("analyze").Inc()
		warnings = append(warnings, "The AI analysis could not be read; suggestions are based on your listening history instead.")
	}

	analysis := res.Value
	profile := analysis.Profile.Normalized()
	if !st.Vocabulary.Empty() {
		profile = profile.RestrictTo(st.Vocabulary)
	}

	if p.cfg.StyleRefinement && !st.Vocabulary.Empty() {
		refined, warn := p.refineStyle(ctx, st, sample)
		if ctx.Err() != nil {
			return p.end(ctx, id, failed(stage, ctx.Err()), nil)
		}
		profile = mergeStyle(profile, refined)
		if warn != "" {
			warnings = append(warnings, warn)
		}
	}

	rep := StageReport{Stage: stage, Warning: strings.Join(warnings, " ")}
	return p.end(ctx, id, rep, func(st *domain.PipelineState) {
		st.Profile = &profile
		st.Proposals = analysis.Proposals
		st.Availability = nil
		p.complete(st, stage)
	})
}

// refineStyle asks for a profile drawn only from the library vocabulary.
func (p *Pipeline) refineStyle(ctx context.Context, st domain.PipelineState, sample []domain.ListeningRecord) (domain.MusicProfile, string) {
	out := continuation.Request(ctx, p.ctrl, styleRequest(st.ModelID, sample, st.Vocabulary), continuation.Options[domain.MusicProfile]{
		MaxAttempts: p.cfg.MaxAttempts,
		Operation:   "analyze_style",
		Decode: func(raw string) (domain.MusicProfile, error) {
			res, err := coerce.StyleProfile(raw)
			return res.Value, err
		},
	})
	if out.Success {
		return out.Value.RestrictTo(st.Vocabulary), ""
	}
	if !errors.Is(out.Err, domain.ErrMalformedOutput) {
		return domain.MusicProfile{}, "Style refinement failed: " + domain.UserMessage(out.Err)
	}
	fb, err := coerce.FallbackStyle(st.Vocabulary)
	if err != nil {
		return domain.MusicProfile{}, ""
	}
	metrics.FallbacksUsed.WithLabelValues("analyze_style").Inc()
	return fb, ""
}

// mergeStyle overlays the non-empty parts of the refined profile.
func mergeStyle(base, refined domain.MusicProfile) domain.MusicProfile {
	out := base
	if len(refined.PrimaryGenres) > 0 {
		out.PrimaryGenres = refined.PrimaryGenres
	}
	if len(refined.Moods) > 0 {
		out.Moods = refined.Moods
	}
	if len(refined.Styles) > 0 {
		out.Styles = refined.Styles
	}
	if out.Era == "" {
		out.Era = refined.Era
	}
	if refined.Tempo != "" {
		out.Tempo = refined.Tempo
	}
	return out
}

// RunAvailabilityCheck matches the current proposals against the library.
// Re-running it reuses the existing profile and proposals.
func (p *Pipeline) RunAvailabilityCheck(ctx context.Context) StageReport {
	const stage = domain.StageFiltering
	ctx, id, st, err := p.begin(ctx, stage, true)
	if err != nil {
		return failed(stage, err)
	}
	if len(st.Proposals) == 0 {
		return p.end(ctx, id, failed(stage, fmt.Errorf("pipeline: no proposals to check: %w", domain.ErrNoAvailability)), nil)
	}

	results := p.matcher.Match(ctx, st.Proposals)
	if ctx.Err() != nil {
		return p.end(ctx, id, failed(stage, ctx.Err()), nil)
	}

	var available, errored int
	for _, r := range results {
		if r.Available {
			available++
		} else if r.Err != "" {
			errored++
		}
	}
	logging.Ctx(ctx).Info().Str("component", "pipeline").
		Int("proposals", len(results)).Int("available", available).Int("failed", errored).
		Msg("availability check finished")

	if available == 0 {
		return p.end(ctx, id, failed(stage, domain.ErrNoAvailability), nil)
	}

	rep := StageReport{Stage: stage}
	if errored > 0 {
		rep.Warning = fmt.Sprintf("%d library searches failed; those suggestions were marked unavailable.", errored)
	}
	return p.end(ctx, id, rep, func(st *domain.PipelineState) {
		st.Availability = results
		p.complete(st, stage)
	})
}

// RunGeneration builds the playlist draft from the available proposals and
// moves the session into review.
func (p *Pipeline) RunGeneration(ctx context.Context) StageReport {
	const stage = domain.StageGenerating
	ctx, id, st, err := p.begin(ctx, stage, true)
	if err != nil {
		return failed(stage, err)
	}

	draft, attempts, warning, err := p.generateDraft(ctx, st)
	if err != nil {
		return p.end(ctx, id, failed(stage, err), nil)
	}
	rep := p.end(ctx, id, StageReport{Stage: stage, Warning: warning}, func(st *domain.PipelineState) {
		st.Draft = draft
		st.AttemptsUsed = attempts
		p.complete(st, stage)
	})
	if rep.OK {
		p.persist(ctx)
	}
	return rep
}

// RegeneratePlaylist replaces the whole draft while in review.
func (p *Pipeline) RegeneratePlaylist(ctx context.Context) StageReport {
	const stage = domain.StageReview
	ctx, id, st, err := p.begin(ctx, stage, false)
	if err != nil {
		return failed(stage, err)
	}

	draft, attempts, warning, err := p.generateDraft(ctx, st)
	if err != nil {
		return p.end(ctx, id, failed(stage, err), nil)
	}
	rep := p.end(ctx, id, StageReport{Stage: stage, Warning: warning}, func(st *domain.PipelineState) {
		st.Draft = draft
		st.AttemptsUsed = attempts
	})
	if rep.OK {
		p.persist(ctx)
	}
	return rep
}

func (p *Pipeline) generateDraft(ctx context.Context, st domain.PipelineState) (domain.PlaylistDraft, int, string, error) {
	available := st.AvailableProposals()
	if len(available) == 0 {
		return domain.PlaylistDraft{}, 0, "", domain.ErrNoAvailability
	}
	var profile domain.MusicProfile
	if st.Profile != nil {
		profile = *st.Profile
	}
	n := p.cfg.PlaylistLength

	out := continuation.Request(ctx, p.ctrl, playlistRequest(st.ModelID, profile, available, n), continuation.Options[coerce.TrackElement]{
		MaxAttempts:   p.cfg.MaxAttempts,
		ExpectedCount: n,
		ArrayShaped:   true,
		Valid:         coerce.ValidTrack,
		Key:           coerce.TrackKey,
		Operation:     "generate",
	})

	var (
		entries []domain.DraftEntry
		warning string
	)
	switch {
	case out.Success:
		for _, item := range out.Items {
			entries = append(entries, coerce.EntryFromWire(item))
		}
		if len(entries) > n {
			entries = entries[:n]
		}
		if len(entries) < n {
			warning = fmt.Sprintf("Only %d of %d tracks could be generated.", len(entries), n)
		}
	case ctx.Err() != nil:
		return domain.PlaylistDraft{}, out.AttemptsUsed, "", ctx.Err()
	case errors.Is(out.Err, domain.ErrMalformedOutput):
		res, err := coerce.WithFallback(coerce.Result[[]domain.DraftEntry]{}, out.Err, func() ([]domain.DraftEntry, error) {
			return coerce.FallbackDraft(available, n)
		})
		if err != nil {
			return domain.PlaylistDraft{}, out.AttemptsUsed, "", err
		}
		metrics.FallbacksUsed.WithLabelValues("generate").Inc()
		entries = res.Value
		warning = "The AI playlist could not be read; the playlist was filled from tracks found in your library."
	default:
		return domain.PlaylistDraft{}, out.AttemptsUsed, "", out.Err
	}

	attachCatalogIDs(entries, available)
	return domain.PlaylistDraft{Entries: entries}, out.AttemptsUsed, warning, nil
}

// attachCatalogIDs copies the matched library ID onto entries that are an
// available track proposal.
func attachCatalogIDs(entries []domain.DraftEntry, available []domain.AvailabilityResult) {
	ids := make(map[string]string, len(available))
	for _, r := range available {
		if r.Proposal.Kind == domain.ProposalTrack && r.Match != nil {
			ids[domain.EntryKey(r.Proposal.Artist, r.Proposal.Title)] = r.Match.ID
		}
	}
	for i := range entries {
		if entries[i].CatalogID != "" {
			continue
		}
		if id, ok := ids[entries[i].Key()]; ok {
			entries[i].CatalogID = id
			entries[i].Status = domain.EntryAvailable
		}
	}
}
