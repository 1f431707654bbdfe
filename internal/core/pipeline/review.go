package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ewilliams-labs/setlist/internal/core/coerce"
	"github.com/ewilliams-labs/setlist/internal/core/continuation"
	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/metrics"
)

// RegenerateEntry replaces the draft entry at index with a new suggestion
// that is neither the current entry nor already in the draft.
func (p *Pipeline) RegenerateEntry(ctx context.Context, index int) StageReport {
	const stage = domain.StageReview
	ctx, id, st, err := p.begin(ctx, stage, false)
	if err != nil {
		return failed(stage, err)
	}
	if index < 0 || index >= st.Draft.Len() {
		return p.end(ctx, id, failed(stage, domain.ErrInvalidIndex), nil)
	}

	entry, fallback, err := p.replacement(ctx, st, st.Draft, index)
	if err != nil {
		return p.end(ctx, id, failed(stage, err), nil)
	}

	rep := StageReport{Stage: stage}
	if fallback {
		rep.Warning = "The AI suggestion could not be read; a track from your library was used instead."
	}
	rep = p.end(ctx, id, rep, func(st *domain.PipelineState) {
		_ = st.Draft.Replace(index, entry)
	})
	if rep.OK {
		p.persist(ctx)
	}
	return rep
}

// RegenerateInvalid validates every draft entry against the library in
// batches, then regenerates only the entries that failed validation.
func (p *Pipeline) RegenerateInvalid(ctx context.Context) StageReport {
	const stage = domain.StageReview
	ctx, id, st, err := p.begin(ctx, stage, false)
	if err != nil {
		return failed(stage, err)
	}
	log := logging.Ctx(ctx).With().Str("component", "pipeline").Logger()

	working := st.Draft.Clone()
	results := p.matcher.Validate(ctx, working.Entries)
	if ctx.Err() != nil {
		return p.end(ctx, id, failed(stage, ctx.Err()), nil)
	}

	var invalid []int
	for i, r := range results {
		if r.Available {
			working.Entries[i].Status = domain.EntryAvailable
			if r.Match != nil {
				working.Entries[i].CatalogID = r.Match.ID
			}
			continue
		}
		working.Entries[i].Status = domain.EntryUnavailable
		invalid = append(invalid, i)
	}
	log.Info().Int("entries", len(results)).Int("invalid", len(invalid)).Msg("draft validated")

	var replaced []int
	var unresolved int
	for _, i := range invalid {
		entry, _, err := p.replacement(ctx, st, working, i)
		if ctx.Err() != nil {
			return p.end(ctx, id, failed(stage, ctx.Err()), nil)
		}
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("could not regenerate entry")
			unresolved++
			continue
		}
		working.Entries[i] = entry
		replaced = append(replaced, i)
	}

	// Replacements are checked as well so the statuses reflect the library.
	if len(replaced) > 0 {
		check := make([]domain.DraftEntry, len(replaced))
		for j, i := range replaced {
			check[j] = working.Entries[i]
		}
		for j, r := range p.matcher.Validate(ctx, check) {
			i := replaced[j]
			if r.Available {
				working.Entries[i].Status = domain.EntryAvailable
				if r.Match != nil {
					working.Entries[i].CatalogID = r.Match.ID
				}
				continue
			}
			working.Entries[i].Status = domain.EntryUnavailable
			working.Entries[i].CatalogID = ""
			unresolved++
		}
		if ctx.Err() != nil {
			return p.end(ctx, id, failed(stage, ctx.Err()), nil)
		}
	}

	rep := StageReport{Stage: stage}
	if unresolved > 0 {
		rep.Warning = fmt.Sprintf("%d tracks still could not be found in your library.", unresolved)
	}
	rep = p.end(ctx, id, rep, func(st *domain.PipelineState) {
		st.Draft = working
	})
	if rep.OK {
		p.persist(ctx)
	}
	return rep
}

// replacement generates one entry for position index of draft. The retry
// budget is also spent on suggestions that duplicate the draft.
func (p *Pipeline) replacement(ctx context.Context, st domain.PipelineState, draft domain.PlaylistDraft, index int) (domain.DraftEntry, bool, error) {
	exclude := draft.Entries[index]
	available := st.AvailableProposals()
	var profile domain.MusicProfile
	if st.Profile != nil {
		profile = *st.Profile
	}

	out := continuation.Request(ctx, p.ctrl, replacementRequest(st.ModelID, profile, available, draft, exclude), continuation.Options[domain.DraftEntry]{
		MaxAttempts: p.cfg.MaxAttempts,
		Operation:   "regenerate",
		Decode: func(raw string) (domain.DraftEntry, error) {
			res, err := coerce.Entry(raw)
			if err != nil {
				return domain.DraftEntry{}, err
			}
			e := res.Value
			if e.Key() == exclude.Key() || draft.Contains(e, index) {
				return domain.DraftEntry{}, &coerce.Error{Kind: coerce.KindShape, Section: "duplicate track"}
			}
			return e, nil
		},
	})
	if out.Success {
		entries := []domain.DraftEntry{out.Value}
		attachCatalogIDs(entries, available)
		return entries[0], false, nil
	}
	if ctx.Err() != nil || !errors.Is(out.Err, domain.ErrMalformedOutput) {
		return domain.DraftEntry{}, false, out.Err
	}

	res, err := coerce.WithFallback(coerce.Result[domain.DraftEntry]{}, out.Err, func() (domain.DraftEntry, error) {
		return coerce.FallbackReplacement(available, draft, exclude)
	})
	if err != nil {
		return domain.DraftEntry{}, false, err
	}
	metrics.FallbacksUsed.WithLabelValues("regenerate").Inc()
	return res.Value, true, nil
}

// MoveEntry reorders the draft.
func (p *Pipeline) MoveEntry(ctx context.Context, from, to int) error {
	if err := p.editDraft(func(d *domain.PlaylistDraft) error { return d.Move(from, to) }); err != nil {
		return err
	}
	p.persist(ctx)
	return nil
}

// RemoveEntry deletes one draft entry.
func (p *Pipeline) RemoveEntry(ctx context.Context, index int) error {
	if err := p.editDraft(func(d *domain.PlaylistDraft) error { return d.Remove(index) }); err != nil {
		return err
	}
	p.persist(ctx)
	return nil
}

func (p *Pipeline) editDraft(edit func(d *domain.PlaylistDraft) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		return domain.ErrStageBusy
	}
	if p.st.Stage != domain.StageReview {
		return fmt.Errorf("pipeline: session is in %s: %w", p.st.Stage, domain.ErrWrongStage)
	}
	draft := p.st.Draft.Clone()
	if err := edit(&draft); err != nil {
		return err
	}
	p.st.Draft = draft
	return nil
}

// Commit creates the playlist on the media server and starts the session
// over. Entries without a library ID are resolved first; those that cannot
// be found are left out.
func (p *Pipeline) Commit(ctx context.Context, title string) (domain.CommitResult, StageReport) {
	const stage = domain.StageReview
	ctx, id, st, err := p.begin(ctx, stage, false)
	if err != nil {
		return domain.CommitResult{}, failed(stage, err)
	}
	if p.deps.Committer == nil {
		return domain.CommitResult{}, p.end(ctx, id, failed(stage, fmt.Errorf("pipeline: no playlist committer: %w", domain.ErrConfiguration)), nil)
	}
	if st.Draft.Len() == 0 {
		return domain.CommitResult{}, p.end(ctx, id, failed(stage, fmt.Errorf("pipeline: draft is empty: %w", domain.ErrInvalidArgs)), nil)
	}
	if title == "" {
		title = "Setlist " + p.now().Format("2006-01-02 15:04")
	}

	entries := st.Draft.Clone().Entries
	var missing []int
	for i, e := range entries {
		if e.CatalogID == "" {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		check := make([]domain.DraftEntry, len(missing))
		for j, i := range missing {
			check[j] = entries[i]
		}
		for j, r := range p.matcher.Validate(ctx, check) {
			if r.Available && r.Match != nil {
				entries[missing[j]].CatalogID = r.Match.ID
			}
		}
		if ctx.Err() != nil {
			return domain.CommitResult{}, p.end(ctx, id, failed(stage, ctx.Err()), nil)
		}
	}

	var (
		ids      []string
		included []domain.DraftEntry
	)
	for _, e := range entries {
		if e.CatalogID == "" {
			continue
		}
		ids = append(ids, e.CatalogID)
		included = append(included, e)
	}
	if len(ids) == 0 {
		return domain.CommitResult{}, p.end(ctx, id, failed(stage, domain.ErrNoAvailability), nil)
	}

	res, err := p.deps.Committer.CreatePlaylist(ctx, title, ids)
	if err != nil {
		return domain.CommitResult{}, p.end(ctx, id, failed(stage, fmt.Errorf("pipeline: create playlist: %w", err)), nil)
	}

	rep := StageReport{Stage: stage}
	if skipped := len(entries) - len(ids); skipped > 0 {
		rep.Warning = fmt.Sprintf("%d tracks were not found in your library and were left out.", skipped)
	}
	rep = p.end(ctx, id, rep, func(st *domain.PipelineState) {
		*st = domain.NewPipelineState()
	})
	if !rep.OK {
		return res, rep
	}

	metrics.PlaylistsCommitted.Inc()
	logging.Ctx(ctx).Info().Str("component", "pipeline").Str("playlist_id", res.PlaylistID).Int("tracks", len(ids)).Msg("playlist committed")

	if p.deps.OnCommit != nil {
		p.deps.OnCommit(ctx, domain.PlaylistSummary{
			ID:         uuid.NewString(),
			Title:      title,
			ExternalID: res.PlaylistID,
			ModelID:    st.ModelID,
			TrackCount: len(ids),
			CreatedAt:  p.now(),
			Entries:    included,
		})
	}
	if p.deps.Drafts != nil && p.cfg.SessionID != "" {
		if err := p.deps.Drafts.DeleteDraft(context.WithoutCancel(ctx), p.cfg.SessionID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Str("component", "pipeline").Msg("failed to delete saved draft")
		}
	}
	return res, rep
}
