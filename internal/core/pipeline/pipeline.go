// Package pipeline drives one session through model selection, data load,
// analysis, availability filtering, generation and review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/availability"
	"github.com/ewilliams-labs/setlist/internal/core/continuation"
	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/frequency"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/metrics"
)

// Dependencies are the collaborators of a pipeline. Vocabulary, Committer,
// Drafts and OnCommit are optional.
type Dependencies struct {
	Generator  ports.Generator
	History    ports.HistorySource
	Vocabulary ports.VocabularySource
	Catalog    ports.CatalogSearcher
	Committer  ports.PlaylistCommitter
	Drafts     ports.DraftStore
	// OnCommit is called after a playlist was created on the media server.
	OnCommit func(ctx context.Context, s domain.PlaylistSummary)
}

// Settings tune a session. Zero values take the defaults.
type Settings struct {
	SessionID      string
	UserID         string
	PlaylistLength int
	MaxAttempts    int
	Mode           domain.AnalysisMode
	TimeFrame      frequency.TimeFrame

	BatchSize     int
	SearchTimeout time.Duration
	LibraryScope  string

	// History above SampleThreshold records is cut down to the SampleRecent
	// most recent plus SampleRandom random picks from the rest.
	SampleThreshold int
	SampleRecent    int
	SampleRandom    int

	// StyleRefinement runs a second, vocabulary-constrained profile call.
	StyleRefinement bool

	Rand *rand.Rand
	Now  func() time.Time
}

const (
	DefaultPlaylistLength = 20
	DefaultMaxAttempts    = 3
)

func (s Settings) withDefaults() Settings {
	if s.PlaylistLength <= 0 {
		s.PlaylistLength = DefaultPlaylistLength
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.Mode == "" {
		s.Mode = domain.ModeTracks
	}
	if s.TimeFrame == "" {
		s.TimeFrame = frequency.FrameAll
	}
	if s.SampleThreshold <= 0 {
		s.SampleThreshold = 100
	}
	if s.SampleRecent <= 0 {
		s.SampleRecent = 50
	}
	if s.SampleRandom <= 0 {
		s.SampleRandom = 50
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// StageReport is the outcome of one stage run. Stage errors end here: they
// are recorded in the session state and reported, never returned upward.
type StageReport struct {
	Stage     domain.Stage `json:"stage"`
	OK        bool         `json:"ok"`
	Warning   string       `json:"warning,omitempty"`
	Err       error        `json:"-"`
	Cancelled bool         `json:"cancelled,omitempty"`
}

type run struct {
	id      uint64
	stage   domain.Stage
	cancel  context.CancelFunc
	started time.Time
}

// Pipeline owns the state of one session. Stage runs are exclusive: while
// one is processing, other runs are refused and navigation cancels it.
type Pipeline struct {
	deps    Dependencies
	cfg     Settings
	ctrl    *continuation.Controller
	matcher *availability.Matcher

	mu  sync.Mutex
	st  domain.PipelineState
	cur *run
	seq uint64
}

// New returns a pipeline at the model stage.
func New(deps Dependencies, cfg Settings) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		deps: deps,
		cfg:  cfg,
		ctrl: continuation.NewController(deps.Generator),
		matcher: availability.NewMatcher(deps.Catalog, availability.Config{
			BatchSize:     cfg.BatchSize,
			SearchTimeout: cfg.SearchTimeout,
			LibraryScope:  cfg.LibraryScope,
		}),
		st: domain.NewPipelineState(),
	}
}

// Settings returns the effective settings.
func (p *Pipeline) Settings() Settings { return p.cfg }

// State returns a copy of the session state.
func (p *Pipeline) State() domain.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.Clone()
}

// SelectModel records the generation model and completes the model stage.
func (p *Pipeline) SelectModel(modelID string) error {
	if modelID == "" {
		return fmt.Errorf("pipeline: empty model id: %w", domain.ErrInvalidArgs)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		return domain.ErrStageBusy
	}
	p.st.ModelID = modelID
	p.complete(&p.st, domain.StageModel)
	return nil
}

// Advance steps forward to target, which must directly follow the current
// stage, once the current stage is completed.
func (p *Pipeline) Advance(target domain.Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		return domain.ErrStageBusy
	}
	next, ok := p.st.Stage.Next()
	if !ok || next != target {
		return fmt.Errorf("pipeline: cannot advance from %s to %s: %w", p.st.Stage, target, domain.ErrWrongStage)
	}
	if !p.st.Completed.Has(p.st.Stage) {
		return fmt.Errorf("pipeline: %s is not completed: %w", p.st.Stage, domain.ErrStageLocked)
	}
	p.st.Stage = target
	return nil
}

// NavigateTo moves to any stage whose prerequisites are completed. A stage
// that is still processing is cancelled and its results are discarded.
// Navigating to a locked stage changes nothing.
func (p *Pipeline) NavigateTo(ctx context.Context, target domain.Stage) error {
	if !target.Valid() {
		return fmt.Errorf("pipeline: %w", domain.ErrInvalidArgs)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.st.CanEnter(target) {
		return fmt.Errorf("pipeline: cannot navigate to %s: %w", target, domain.ErrStageLocked)
	}
	if p.cur != nil {
		if p.cur.stage == target {
			return nil
		}
		logging.Ctx(ctx).Info().
			Str("component", "pipeline").
			Str("from", p.cur.stage.String()).
			Str("to", target.String()).
			Msg("navigation cancelled in-flight stage")
		p.cancelLocked()
	}
	p.st.Stage = target
	return nil
}

// Reset cancels any running stage and starts the session over.
func (p *Pipeline) Reset(ctx context.Context) {
	p.mu.Lock()
	p.cancelLocked()
	p.st = domain.NewPipelineState()
	p.mu.Unlock()

	if p.deps.Drafts != nil && p.cfg.SessionID != "" {
		if err := p.deps.Drafts.DeleteDraft(ctx, p.cfg.SessionID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Str("component", "pipeline").Msg("failed to delete saved draft")
		}
	}
}

// Close cancels any running stage.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

func (p *Pipeline) cancelLocked() {
	if p.cur == nil {
		return
	}
	p.cur.cancel()
	metrics.RecordStage(p.cur.stage.String(), "cancelled", time.Since(p.cur.started))
	p.cur = nil
	p.st.Processing = false
}

// begin claims the session for a run of stage. Entering runs move the
// session to stage; review runs require the session to already be in review.
func (p *Pipeline) begin(ctx context.Context, stage domain.Stage, entering bool) (context.Context, uint64, domain.PipelineState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		return nil, 0, domain.PipelineState{}, domain.ErrStageBusy
	}
	if !p.st.CanEnter(stage) {
		return nil, 0, domain.PipelineState{}, fmt.Errorf("pipeline: %s: %w", stage, domain.ErrStageLocked)
	}
	if !entering && p.st.Stage != stage {
		return nil, 0, domain.PipelineState{}, fmt.Errorf("pipeline: session is in %s: %w", p.st.Stage, domain.ErrWrongStage)
	}

	p.seq++
	runCtx, cancel := context.WithCancel(ctx)
	p.cur = &run{id: p.seq, stage: stage, cancel: cancel, started: time.Now()}
	p.st.Stage = stage
	p.st.Processing = true
	p.st.LastError = ""
	p.st.Warnings = nil

	runCtx = logging.ContextWithSessionID(runCtx, p.cfg.SessionID)
	return runCtx, p.seq, p.st.Clone(), nil
}

// end releases the session. Results of a run that was cancelled by
// navigation are discarded; failures are recorded in LastError.
func (p *Pipeline) end(ctx context.Context, id uint64, rep StageReport, apply func(st *domain.PipelineState)) StageReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logging.Ctx(ctx).With().Str("component", "pipeline").Str("stage", rep.Stage.String()).Logger()

	if p.cur == nil || p.cur.id != id {
		log.Info().Msg("discarding results of cancelled stage")
		return StageReport{Stage: rep.Stage, Cancelled: true, Err: domain.ErrCancelled}
	}
	started := p.cur.started
	p.cur.cancel()
	p.cur = nil
	p.st.Processing = false

	if rep.Err != nil {
		if errors.Is(rep.Err, context.Canceled) || errors.Is(rep.Err, domain.ErrCancelled) {
			rep.Cancelled = true
			metrics.RecordStage(rep.Stage.String(), "cancelled", time.Since(started))
		} else {
			metrics.RecordStage(rep.Stage.String(), "error", time.Since(started))
		}
		p.st.LastError = domain.UserMessage(rep.Err)
		log.Warn().Err(rep.Err).Msg("stage failed")
		return rep
	}

	if apply != nil {
		apply(&p.st)
	}
	rep.OK = true
	if rep.Warning != "" {
		p.st.Warnings = append(p.st.Warnings, rep.Warning)
		metrics.RecordStage(rep.Stage.String(), "warning", time.Since(started))
		log.Info().Str("warning", rep.Warning).Msg("stage completed with warning")
	} else {
		metrics.RecordStage(rep.Stage.String(), "ok", time.Since(started))
		log.Debug().Msg("stage completed")
	}
	return rep
}

// complete marks stage done and, if the session is on it, moves to the next one.
func (p *Pipeline) complete(st *domain.PipelineState, stage domain.Stage) {
	st.Completed = st.Completed.With(stage)
	if st.Stage != stage {
		return
	}
	if next, ok := stage.Next(); ok {
		st.Stage = next
	}
}

func failed(stage domain.Stage, err error) StageReport {
	return StageReport{Stage: stage, Err: err}
}

// Snapshot returns the persistable part of the session.
func (p *Pipeline) Snapshot() domain.DraftSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.st.Clone()
	return domain.DraftSnapshot{
		SessionID:    p.cfg.SessionID,
		ModelID:      st.ModelID,
		Profile:      st.Profile,
		Availability: st.Availability,
		Draft:        st.Draft,
		UpdatedAt:    p.cfg.Now(),
	}
}

// Restore puts the session into review with a previously saved draft.
func (p *Pipeline) Restore(snap domain.DraftSnapshot) error {
	if snap.ModelID == "" {
		return fmt.Errorf("pipeline: snapshot without model: %w", domain.ErrInvalidArgs)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		return domain.ErrStageBusy
	}
	st := domain.NewPipelineState()
	st.ModelID = snap.ModelID
	st.Profile = snap.Profile
	st.Availability = snap.Availability
	st.Draft = snap.Draft.Clone()
	for _, s := range domain.Stages() {
		if s < domain.StageReview {
			st.Completed = st.Completed.With(s)
		}
	}
	st.Stage = domain.StageReview
	p.st = st
	return nil
}

// persist saves the review draft when a draft store is configured. Failures
// only cost durability, so they are logged.
func (p *Pipeline) persist(ctx context.Context) {
	if p.deps.Drafts == nil || p.cfg.SessionID == "" {
		return
	}
	snap := p.Snapshot()
	if err := p.deps.Drafts.SaveDraft(context.WithoutCancel(ctx), p.cfg.SessionID, snap); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("component", "pipeline").Msg("failed to save draft")
	}
}

func (p *Pipeline) now() time.Time { return p.cfg.Now() }
