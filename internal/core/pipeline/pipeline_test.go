package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
)

var testNow = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

type handler func(ctx context.Context, req ports.GenerationRequest) (string, error)

// routedGenerator answers by prompt kind and records every request.
type routedGenerator struct {
	mu       sync.Mutex
	analyze  handler
	playlist handler
	replace  handler
	requests []ports.GenerationRequest
}

func (g *routedGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	var h handler
	switch {
	case strings.HasPrefix(req.UserPrompt, "Analyze"):
		h = g.analyze
	case strings.HasPrefix(req.UserPrompt, "Create a"):
		h = g.playlist
	case strings.HasPrefix(req.UserPrompt, "Generate a single"):
		h = g.replace
	}
	g.mu.Unlock()
	if h == nil {
		return "", fmt.Errorf("unexpected prompt %.40q", req.UserPrompt)
	}
	return h(ctx, req)
}

func (g *routedGenerator) prompts(prefix string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, r := range g.requests {
		if strings.HasPrefix(r.UserPrompt, prefix) {
			out = append(out, r.UserPrompt)
		}
	}
	return out
}

func answer(text string) handler {
	return func(context.Context, ports.GenerationRequest) (string, error) { return text, nil }
}

func answers(texts ...string) handler {
	var mu sync.Mutex
	i := 0
	return func(context.Context, ports.GenerationRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		t := texts[min(i, len(texts)-1)]
		i++
		return t, nil
	}
}

type fakeHistory struct {
	records []domain.ListeningRecord
	err     error
}

func (f fakeHistory) History(context.Context, string) ([]domain.ListeningRecord, error) {
	return f.records, f.err
}

type fakeVocabulary struct {
	vocab domain.Vocabulary
	err   error
}

func (f fakeVocabulary) Vocabulary(context.Context) (domain.Vocabulary, error) {
	return f.vocab, f.err
}

// library holds tracks by "Band NN" / "Song NN" and answers artist and
// track searches by exact title.
type library struct {
	tracks []domain.CatalogEntity
}

func newLibrary(n int) *library {
	l := &library{}
	for i := 0; i < n; i++ {
		l.tracks = append(l.tracks, domain.CatalogEntity{
			ID:               fmt.Sprintf("lib-%02d", i),
			Title:            fmt.Sprintf("Song %02d", i),
			ParentTitle:      "Album",
			GrandparentTitle: fmt.Sprintf("Band %02d", i),
			Type:             domain.EntityTrack,
		})
	}
	return l
}

func (l *library) Search(_ context.Context, q ports.CatalogQuery) ([]domain.CatalogEntity, error) {
	var out []domain.CatalogEntity
	for _, t := range l.tracks {
		switch q.Type {
		case domain.EntityTrack:
			if strings.EqualFold(t.Title, q.Query) {
				out = append(out, t)
			}
		case domain.EntityArtist:
			if strings.EqualFold(t.GrandparentTitle, q.Query) {
				out = append(out, domain.CatalogEntity{ID: "artist-" + t.ID, Title: t.GrandparentTitle, Type: domain.EntityArtist})
			}
		}
	}
	return out, nil
}

type fakeCommitter struct {
	mu    sync.Mutex
	title string
	ids   []string
	err   error
}

func (f *fakeCommitter) CreatePlaylist(_ context.Context, title string, ids []string) (domain.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.CommitResult{}, f.err
	}
	f.title, f.ids = title, ids
	return domain.CommitResult{Success: true, PlaylistID: "pl-1", TrackCount: len(ids)}, nil
}

type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]domain.DraftSnapshot
	saves  int
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: map[string]domain.DraftSnapshot{}}
}

func (m *memDrafts) SaveDraft(_ context.Context, id string, snap domain.DraftSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[id] = snap
	m.saves++
	return nil
}

func (m *memDrafts) LoadDraft(_ context.Context, id string) (domain.DraftSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.drafts[id]
	if !ok {
		return domain.DraftSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (m *memDrafts) DeleteDraft(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.drafts, id)
	return nil
}

func historyRecords(n int) []domain.ListeningRecord {
	out := make([]domain.ListeningRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.ListeningRecord{
			Artist:   fmt.Sprintf("Band %02d", i%30),
			Album:    "Album",
			Track:    fmt.Sprintf("Song %02d", i%30),
			PlayedAt: testNow.Add(-time.Duration(i+1) * time.Hour),
		})
	}
	return out
}

func tracksJSON(from, n int) string {
	parts := make([]string, 0, n)
	for i := from; i < from+n; i++ {
		parts = append(parts, fmt.Sprintf(`{"artist":"Band %02d","title":"Song %02d","album":"Album","reason":"fits"}`, i, i))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func analysisJSON(n int) string {
	return `{"musicProfile":{"primaryGenres":["Rock","Jazz"],"moods":["Calm"],"styles":[],"era":"1990s","energy":"medium"},` +
		`"recommendedTracks":` + tracksJSON(0, n) + `}`
}

type fixture struct {
	gen       *routedGenerator
	lib       *library
	committer *fakeCommitter
	drafts    *memDrafts
	committed []domain.PlaylistSummary
	p         *Pipeline
}

func newFixture(t *testing.T, records []domain.ListeningRecord) *fixture {
	t.Helper()
	f := &fixture{
		gen: &routedGenerator{
			analyze:  answer(analysisJSON(30)),
			playlist: answer(tracksJSON(0, 20)),
		},
		lib:       newLibrary(30),
		committer: &fakeCommitter{},
		drafts:    newMemDrafts(),
	}
	f.p = New(Dependencies{
		Generator:  f.gen,
		History:    fakeHistory{records: records},
		Vocabulary: fakeVocabulary{vocab: domain.Vocabulary{Genres: []string{"Rock", "Jazz", "Blues"}, Moods: []string{"Calm"}}},
		Catalog:    f.lib,
		Committer:  f.committer,
		Drafts:     f.drafts,
		OnCommit: func(_ context.Context, s domain.PlaylistSummary) {
			f.committed = append(f.committed, s)
		},
	}, Settings{
		SessionID: "session-1",
		UserID:    "1",
		Rand:      rand.New(rand.NewPCG(1, 2)),
		Now:       func() time.Time { return testNow },
	})
	t.Cleanup(f.p.Close)
	return f
}

func (f *fixture) reachReview(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.p.SelectModel("test/model"))
	for _, run := range []func(context.Context) StageReport{
		f.p.LoadData, f.p.RunAnalysis, f.p.RunAvailabilityCheck, f.p.RunGeneration,
	} {
		rep := run(ctx)
		require.True(t, rep.OK, "%s failed: %v", rep.Stage, rep.Err)
	}
	require.Equal(t, domain.StageReview, f.p.State().Stage)
}

func TestPipeline_EndToEnd(t *testing.T) {
	f := newFixture(t, historyRecords(120))
	f.reachReview(t)

	st := f.p.State()
	assert.Equal(t, domain.StageReview, st.Stage)
	assert.False(t, st.Processing)
	assert.Empty(t, st.LastError)
	for _, s := range []domain.Stage{domain.StageModel, domain.StageData, domain.StageAnalyzing, domain.StageFiltering, domain.StageGenerating} {
		assert.True(t, st.Completed.Has(s), "stage %s should be completed", s)
	}

	require.Len(t, st.Draft.Entries, 20)
	assert.Equal(t, 1, st.AttemptsUsed)
	for i, e := range st.Draft.Entries {
		assert.Equal(t, fmt.Sprintf("lib-%02d", i), e.CatalogID)
		assert.Equal(t, domain.EntryAvailable, e.Status)
	}

	prompts := f.gen.prompts("Analyze")
	require.Len(t, prompts, 1)
	historyLines := 0
	for _, line := range strings.Split(prompts[0], "\n") {
		if strings.HasPrefix(line, "- ") {
			historyLines++
		}
	}
	assert.Equal(t, 100, historyLines)
	assert.Contains(t, prompts[0], "(100 of 120 plays)")

	require.NotNil(t, st.Profile)
	assert.Equal(t, []string{"Rock", "Jazz"}, st.Profile.PrimaryGenres)
	assert.Len(t, st.Availability, 30)

	saved, err := f.drafts.LoadDraft(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Len(t, saved.Draft.Entries, 20)
	assert.Equal(t, "test/model", saved.ModelID)
}

func TestPipeline_PlaylistContinuation(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.gen.playlist = answers(tracksJSON(0, 8), tracksJSON(8, 15))
	f.reachReview(t)

	st := f.p.State()
	assert.Len(t, st.Draft.Entries, 20)
	assert.Equal(t, 2, st.AttemptsUsed)
	assert.Empty(t, st.Warnings)
}

func TestPipeline_PartialPlaylistWarns(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.gen.playlist = answers(tracksJSON(0, 6), tracksJSON(6, 3), "not json")
	f.reachReview(t)

	st := f.p.State()
	assert.Len(t, st.Draft.Entries, 9)
	assert.Equal(t, 3, st.AttemptsUsed)
	require.Len(t, st.Warnings, 1)
	assert.Equal(t, "Only 9 of 20 tracks could be generated.", st.Warnings[0])
}

func TestAdvance(t *testing.T) {
	f := newFixture(t, historyRecords(10))
	require.NoError(t, f.p.SelectModel("test/model"))
	assert.Equal(t, domain.StageData, f.p.State().Stage)

	assert.ErrorIs(t, f.p.Advance(domain.StageAnalyzing), domain.ErrStageLocked)
	assert.ErrorIs(t, f.p.Advance(domain.StageFiltering), domain.ErrWrongStage)

	rep := f.p.LoadData(context.Background())
	require.True(t, rep.OK)
	assert.Equal(t, domain.StageAnalyzing, f.p.State().Stage)
	require.NoError(t, f.p.NavigateTo(context.Background(), domain.StageData))
	require.NoError(t, f.p.Advance(domain.StageAnalyzing))
	assert.Equal(t, domain.StageAnalyzing, f.p.State().Stage)
}

func TestSelectModel_Empty(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.p.SelectModel(""), domain.ErrInvalidArgs)
	assert.False(t, f.p.State().Completed.Has(domain.StageModel))
}

func TestNavigateTo_LockedStageIsRejected(t *testing.T) {
	f := newFixture(t, historyRecords(10))
	require.NoError(t, f.p.SelectModel("test/model"))

	err := f.p.NavigateTo(context.Background(), domain.StageGenerating)
	assert.ErrorIs(t, err, domain.ErrStageLocked)
	assert.Equal(t, domain.StageData, f.p.State().Stage)

	rep := f.p.RunGeneration(context.Background())
	assert.ErrorIs(t, rep.Err, domain.ErrStageLocked)
	assert.Equal(t, domain.StageData, f.p.State().Stage)
}

func TestNavigateTo_BackAndForthKeepsResults(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.reachReview(t)
	ctx := context.Background()

	require.NoError(t, f.p.NavigateTo(ctx, domain.StageFiltering))
	st := f.p.State()
	assert.Equal(t, domain.StageFiltering, st.Stage)
	assert.Len(t, st.Draft.Entries, 20)

	require.NoError(t, f.p.NavigateTo(ctx, domain.StageReview))
	assert.Equal(t, domain.StageReview, f.p.State().Stage)
}

// blockAnalysis makes analysis calls wait for cancellation and signals the
// first call on the returned channel.
func blockAnalysis(f *fixture) <-chan struct{} {
	started := make(chan struct{})
	var once sync.Once
	f.gen.analyze = func(ctx context.Context, _ ports.GenerationRequest) (string, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return "", ctx.Err()
	}
	return started
}

func TestNavigateTo_CancelsRunningStage(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	ctx := context.Background()
	require.NoError(t, f.p.SelectModel("test/model"))
	require.True(t, f.p.LoadData(ctx).OK)
	started := blockAnalysis(f)

	done := make(chan StageReport, 1)
	go func() { done <- f.p.RunAnalysis(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("analysis never called the generator")
	}
	assert.True(t, f.p.State().Processing)

	require.NoError(t, f.p.NavigateTo(ctx, domain.StageData))

	var rep StageReport
	select {
	case rep = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("analysis did not stop after navigation")
	}
	assert.True(t, rep.Cancelled)
	assert.False(t, rep.OK)

	st := f.p.State()
	assert.Equal(t, domain.StageData, st.Stage)
	assert.False(t, st.Processing)
	assert.Nil(t, st.Profile)
	assert.False(t, st.Completed.Has(domain.StageAnalyzing))
	assert.Empty(t, st.LastError)
}

func TestStageRun_BusyIsRefused(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	ctx := context.Background()
	require.NoError(t, f.p.SelectModel("test/model"))
	require.True(t, f.p.LoadData(ctx).OK)
	started := blockAnalysis(f)

	done := make(chan StageReport, 1)
	go func() { done <- f.p.RunAnalysis(ctx) }()
	<-started

	rep := f.p.LoadData(ctx)
	assert.ErrorIs(t, rep.Err, domain.ErrStageBusy)
	assert.ErrorIs(t, f.p.SelectModel("other"), domain.ErrStageBusy)
	assert.ErrorIs(t, f.p.Advance(domain.StageFiltering), domain.ErrStageBusy)

	f.p.Close()
	rep = <-done
	assert.True(t, rep.Cancelled)
	assert.False(t, f.p.State().Processing)
}

func TestLoadData_NoHistory(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.p.SelectModel("test/model"))

	rep := f.p.LoadData(context.Background())
	assert.ErrorIs(t, rep.Err, domain.ErrNoHistory)

	st := f.p.State()
	assert.Equal(t, domain.StageData, st.Stage)
	assert.False(t, st.Completed.Has(domain.StageData))
	assert.Equal(t, domain.UserMessage(domain.ErrNoHistory), st.LastError)
}

func TestLoadData_VocabularyFailureOnlyWarns(t *testing.T) {
	f := newFixture(t, historyRecords(10))
	f.p.deps.Vocabulary = fakeVocabulary{err: errors.New("boom")}
	require.NoError(t, f.p.SelectModel("test/model"))

	rep := f.p.LoadData(context.Background())
	require.True(t, rep.OK)
	assert.NotEmpty(t, rep.Warning)

	st := f.p.State()
	assert.Len(t, st.History, 10)
	assert.True(t, st.Vocabulary.Empty())
	assert.Equal(t, []string{rep.Warning}, st.Warnings)
}

func TestRunAnalysis_RateLimitStops(t *testing.T) {
	f := newFixture(t, historyRecords(10))
	f.gen.analyze = func(context.Context, ports.GenerationRequest) (string, error) {
		return "", fmt.Errorf("openrouter: status 429: %w", domain.ErrRateLimited)
	}
	ctx := context.Background()
	require.NoError(t, f.p.SelectModel("test/model"))
	require.True(t, f.p.LoadData(ctx).OK)

	rep := f.p.RunAnalysis(ctx)
	assert.ErrorIs(t, rep.Err, domain.ErrRateLimited)
	assert.Len(t, f.gen.prompts("Analyze"), 1)

	st := f.p.State()
	assert.Equal(t, domain.StageAnalyzing, st.Stage)
	assert.False(t, st.Completed.Has(domain.StageAnalyzing))
	assert.Equal(t, domain.UserMessage(domain.ErrRateLimited), st.LastError)
}

func TestRunAnalysis_FallbackOnMalformedOutput(t *testing.T) {
	f := newFixture(t, historyRecords(10))
	f.gen.analyze = answer("I cannot help with that.")
	ctx := context.Background()
	require.NoError(t, f.p.SelectModel("test/model"))
	require.True(t, f.p.LoadData(ctx).OK)

	rep := f.p.RunAnalysis(ctx)
	require.True(t, rep.OK, "%v", rep.Err)
	assert.NotEmpty(t, rep.Warning)
	assert.Len(t, f.gen.prompts("Analyze"), DefaultMaxAttempts)

	st := f.p.State()
	assert.NotEmpty(t, st.Proposals)
	require.NotNil(t, st.Profile)
	assert.Equal(t, []string{"Rock", "Jazz", "Blues"}, st.Profile.PrimaryGenres)
	assert.Equal(t, domain.StageFiltering, st.Stage)
}

func TestRunAvailabilityCheck_NothingAvailable(t *testing.T) {
	f := newFixture(t, historyRecords(10))
	f.lib.tracks = nil
	ctx := context.Background()
	require.NoError(t, f.p.SelectModel("test/model"))
	require.True(t, f.p.LoadData(ctx).OK)
	require.True(t, f.p.RunAnalysis(ctx).OK)

	rep := f.p.RunAvailabilityCheck(ctx)
	assert.ErrorIs(t, rep.Err, domain.ErrNoAvailability)
	assert.False(t, f.p.State().Completed.Has(domain.StageFiltering))
}

func TestRegenerateEntry(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.reachReview(t)
	f.gen.replace = answers(
		`{"artist":"Band 01","title":"Song 01"}`,
		`{"artist":"Band 25","title":"Song 25","reason":"new"}`,
	)

	rep := f.p.RegenerateEntry(context.Background(), 0)
	require.True(t, rep.OK, "%v", rep.Err)
	assert.Empty(t, rep.Warning)

	st := f.p.State()
	require.Len(t, st.Draft.Entries, 20)
	assert.Equal(t, "Band 25", st.Draft.Entries[0].Artist)
	assert.Equal(t, "lib-25", st.Draft.Entries[0].CatalogID)
	assert.Equal(t, "Band 01", st.Draft.Entries[1].Artist)

	prompts := f.gen.prompts("Generate a single")
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "EXCLUDE THIS TRACK: Band 00 - Song 00")
}

func TestRegenerateEntry_FallsBackToLibrary(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.reachReview(t)
	f.gen.replace = answer("nope")

	rep := f.p.RegenerateEntry(context.Background(), 3)
	require.True(t, rep.OK, "%v", rep.Err)
	assert.NotEmpty(t, rep.Warning)

	e := f.p.State().Draft.Entries[3]
	assert.Equal(t, "Band 20", e.Artist)
	assert.Equal(t, "lib-20", e.CatalogID)
}

func TestRegenerateEntry_InvalidIndex(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.reachReview(t)

	rep := f.p.RegenerateEntry(context.Background(), 20)
	assert.ErrorIs(t, rep.Err, domain.ErrInvalidIndex)
	assert.False(t, f.p.State().Processing)
}

func TestReviewOperations_RequireReview(t *testing.T) {
	f := newFixture(t, historyRecords(10))
	require.NoError(t, f.p.SelectModel("test/model"))
	ctx := context.Background()

	assert.ErrorIs(t, f.p.RegenerateEntry(ctx, 0).Err, domain.ErrStageLocked)
	assert.ErrorIs(t, f.p.MoveEntry(ctx, 0, 1), domain.ErrWrongStage)
	assert.ErrorIs(t, f.p.RemoveEntry(ctx, 0), domain.ErrWrongStage)
	_, rep := f.p.Commit(ctx, "x")
	assert.ErrorIs(t, rep.Err, domain.ErrStageLocked)
}

func TestMoveAndRemoveEntry(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.reachReview(t)
	ctx := context.Background()
	saves := f.drafts.saves

	require.NoError(t, f.p.MoveEntry(ctx, 0, 2))
	entries := f.p.State().Draft.Entries
	assert.Equal(t, "Band 01", entries[0].Artist)
	assert.Equal(t, "Band 02", entries[1].Artist)
	assert.Equal(t, "Band 00", entries[2].Artist)

	require.NoError(t, f.p.RemoveEntry(ctx, 0))
	assert.Len(t, f.p.State().Draft.Entries, 19)
	assert.ErrorIs(t, f.p.RemoveEntry(ctx, 19), domain.ErrInvalidIndex)
	assert.Equal(t, saves+2, f.drafts.saves)

	saved, err := f.drafts.LoadDraft(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, saved.Draft.Entries, 19)
}

func TestRegenerateInvalid(t *testing.T) {
	f := newFixture(t, historyRecords(10))
	available := []domain.AvailabilityResult{}
	for _, tr := range f.lib.tracks[:10] {
		match := tr
		available = append(available, domain.AvailabilityResult{
			Proposal:  domain.NewTrackProposal(tr.GrandparentTitle, tr.Title, "Album", "", domain.ConfidenceHigh, nil),
			Available: true,
			Match:     &match,
		})
	}
	require.NoError(t, f.p.Restore(domain.DraftSnapshot{
		ModelID:      "test/model",
		Profile:      &domain.MusicProfile{PrimaryGenres: []string{"Rock"}},
		Availability: available,
		Draft: domain.PlaylistDraft{Entries: []domain.DraftEntry{
			{Artist: "Band 00", Title: "Song 00"},
			{Artist: "Ghost Band", Title: "Nowhere"},
			{Artist: "Band 02", Title: "Song 02"},
		}},
	}))
	f.gen.replace = answer(`{"artist":"Band 05","title":"Song 05"}`)

	rep := f.p.RegenerateInvalid(context.Background())
	require.True(t, rep.OK, "%v", rep.Err)
	assert.Empty(t, rep.Warning)
	assert.Len(t, f.gen.prompts("Generate a single"), 1)

	entries := f.p.State().Draft.Entries
	require.Len(t, entries, 3)
	assert.Equal(t, domain.DraftEntry{Artist: "Band 00", Title: "Song 00", CatalogID: "lib-00", Status: domain.EntryAvailable}, entries[0])
	assert.Equal(t, "Band 05", entries[1].Artist)
	assert.Equal(t, "lib-05", entries[1].CatalogID)
	assert.Equal(t, domain.EntryAvailable, entries[1].Status)
	assert.Equal(t, "lib-02", entries[2].CatalogID)
}

func TestCommit(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.reachReview(t)
	ctx := context.Background()

	res, rep := f.p.Commit(ctx, "Friday")
	require.True(t, rep.OK, "%v", rep.Err)
	assert.Equal(t, domain.CommitResult{Success: true, PlaylistID: "pl-1", TrackCount: 20}, res)

	assert.Equal(t, "Friday", f.committer.title)
	require.Len(t, f.committer.ids, 20)
	assert.Equal(t, "lib-00", f.committer.ids[0])
	assert.Equal(t, "lib-19", f.committer.ids[19])

	require.Len(t, f.committed, 1)
	assert.Equal(t, "pl-1", f.committed[0].ExternalID)
	assert.Equal(t, "test/model", f.committed[0].ModelID)
	assert.Equal(t, 20, f.committed[0].TrackCount)

	st := f.p.State()
	assert.Equal(t, domain.StageModel, st.Stage)
	assert.Zero(t, st.Draft.Len())
	_, err := f.drafts.LoadDraft(ctx, "session-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommit_SkipsEntriesMissingFromLibrary(t *testing.T) {
	f := newFixture(t, historyRecords(10))
	require.NoError(t, f.p.Restore(domain.DraftSnapshot{
		ModelID: "test/model",
		Draft: domain.PlaylistDraft{Entries: []domain.DraftEntry{
			{Artist: "Band 03", Title: "Song 03", CatalogID: "lib-03"},
			{Artist: "Ghost Band", Title: "Nowhere"},
			{Artist: "Band 07", Title: "Song 07"},
		}},
	}))

	res, rep := f.p.Commit(context.Background(), "")
	require.True(t, rep.OK, "%v", rep.Err)
	assert.Equal(t, 2, res.TrackCount)
	assert.Equal(t, []string{"lib-03", "lib-07"}, f.committer.ids)
	assert.Equal(t, "Setlist 2026-03-14 20:00", f.committer.title)
	assert.Contains(t, rep.Warning, "1 tracks")
}

func TestCommit_FailureKeepsDraft(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.reachReview(t)
	f.committer.err = fmt.Errorf("plex: status 503: %w", domain.ErrTransient)

	_, rep := f.p.Commit(context.Background(), "Friday")
	assert.ErrorIs(t, rep.Err, domain.ErrTransient)

	st := f.p.State()
	assert.Equal(t, domain.StageReview, st.Stage)
	assert.Len(t, st.Draft.Entries, 20)
	assert.Equal(t, domain.UserMessage(domain.ErrTransient), st.LastError)
	assert.Empty(t, f.committed)
}

func TestRestore(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.p.Restore(domain.DraftSnapshot{}), domain.ErrInvalidArgs)

	require.NoError(t, f.p.Restore(domain.DraftSnapshot{
		ModelID: "test/model",
		Draft:   domain.PlaylistDraft{Entries: []domain.DraftEntry{{Artist: "A", Title: "B"}}},
	}))
	st := f.p.State()
	assert.Equal(t, domain.StageReview, st.Stage)
	assert.True(t, st.CanEnter(domain.StageReview))
	assert.False(t, st.Completed.Has(domain.StageReview))
	assert.Equal(t, 1, st.Draft.Len())
}

func TestReset(t *testing.T) {
	f := newFixture(t, historyRecords(40))
	f.reachReview(t)
	ctx := context.Background()

	f.p.Reset(ctx)
	st := f.p.State()
	assert.Equal(t, domain.StageModel, st.Stage)
	assert.Empty(t, st.ModelID)
	_, err := f.drafts.LoadDraft(ctx, "session-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSampleHistory(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))

	small := historyRecords(30)
	got := SampleHistory(small, 100, 50, 50, rng)
	require.Len(t, got, 30)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].PlayedAt.After(got[i-1].PlayedAt))
	}

	records := historyRecords(120)
	got = SampleHistory(records, 100, 50, 50, rng)
	require.Len(t, got, 100)
	for i := 0; i < 50; i++ {
		assert.Equal(t, records[i].PlayedAt, got[i].PlayedAt, "recent record %d", i)
	}
	seen := map[time.Time]bool{}
	for _, r := range got {
		assert.False(t, seen[r.PlayedAt], "record sampled twice")
		seen[r.PlayedAt] = true
	}
	for _, r := range got[50:] {
		assert.True(t, r.PlayedAt.Before(records[49].PlayedAt))
	}
}
