// Package availability decides which generated proposals exist in the
// user's media library.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/metrics"
)

const (
	DefaultBatchSize     = 5
	DefaultSearchTimeout = 5 * time.Second
)

// Config tunes a Matcher. Zero values take the defaults.
type Config struct {
	BatchSize     int
	SearchTimeout time.Duration
	// LibraryScope restricts searches to one library section.
	LibraryScope string
}

// Matcher runs catalog lookups in batches: every lookup of a batch runs in
// parallel, and the next batch starts only after the whole batch has resolved.
type Matcher struct {
	catalog ports.CatalogSearcher
	cfg     Config
}

func NewMatcher(catalog ports.CatalogSearcher, cfg Config) *Matcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	return &Matcher{catalog: catalog, cfg: cfg}
}

// Match returns one result per proposal, in input order. A failed lookup
// marks its proposal unavailable and never aborts the run.
func (m *Matcher) Match(ctx context.Context, proposals []domain.Proposal) []domain.AvailabilityResult {
	return runBatches(ctx, m.cfg.BatchSize, proposals, m.matchOne)
}

// Validate checks draft entries against the library. A track validates only
// if its artist is found first and then the title search matches both title
// and artist.
func (m *Matcher) Validate(ctx context.Context, entries []domain.DraftEntry) []domain.AvailabilityResult {
	proposals := make([]domain.Proposal, len(entries))
	for i, e := range entries {
		proposals[i] = domain.NewTrackProposal(e.Artist, e.Title, e.Album, e.Reason, "", nil)
	}
	return runBatches(ctx, m.cfg.BatchSize, proposals, m.validateOne)
}

func runBatches(ctx context.Context, size int, items []domain.Proposal, fn func(context.Context, domain.Proposal) domain.AvailabilityResult) []domain.AvailabilityResult {
	results := make([]domain.AvailabilityResult, len(items))
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				results[i] = domain.AvailabilityResult{Proposal: items[i], Err: err.Error()}
			}
			break
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = fn(ctx, items[i])
			}(i)
		}
		wg.Wait()
	}
	return results
}

func (m *Matcher) matchOne(ctx context.Context, p domain.Proposal) domain.AvailabilityResult {
	res := domain.AvailabilityResult{Proposal: p}
	if !p.Valid() {
		res.Err = "proposal is missing required fields"
		return res
	}

	var (
		match *domain.CatalogEntity
		err   error
	)
	switch p.Kind {
	case domain.ProposalArtist:
		match, err = m.find(ctx, domain.EntityArtist, p.Artist, func(c domain.CatalogEntity) bool {
			return NamesMatch(p.Artist, c.Title)
		})
	case domain.ProposalAlbum:
		match, err = m.find(ctx, domain.EntityAlbum, p.Album, func(c domain.CatalogEntity) bool {
			return NamesMatch(p.Album, c.Title) && NamesMatch(p.Artist, c.ParentTitle)
		})
	case domain.ProposalTrack:
		match, err = m.findTrack(ctx, p.Artist, p.Title)
	}
	return m.finish(ctx, res, match, err)
}

func (m *Matcher) validateOne(ctx context.Context, p domain.Proposal) domain.AvailabilityResult {
	res := domain.AvailabilityResult{Proposal: p}
	if !p.Valid() {
		res.Err = "entry is missing artist or title"
		return res
	}

	artist, err := m.find(ctx, domain.EntityArtist, p.Artist, func(c domain.CatalogEntity) bool {
		return NamesMatch(p.Artist, c.Title)
	})
	if err != nil || artist == nil {
		if err == nil {
			err = ports.NotInLibraryError{Type: domain.EntityArtist, Name: p.Artist}
		}
		return m.finish(ctx, res, nil, err)
	}

	match, err := m.findTrack(ctx, p.Artist, p.Title)
	return m.finish(ctx, res, match, err)
}

func (m *Matcher) findTrack(ctx context.Context, artist, title string) (*domain.CatalogEntity, error) {
	return m.find(ctx, domain.EntityTrack, title, func(c domain.CatalogEntity) bool {
		return NamesMatch(title, c.Title) && NamesMatch(artist, c.GrandparentTitle)
	})
}

// find searches once and returns the accepted candidate whose title is
// closest to query, or nil when none is accepted.
func (m *Matcher) find(ctx context.Context, t domain.EntityType, query string, accept func(domain.CatalogEntity) bool) (*domain.CatalogEntity, error) {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.SearchTimeout)
	defer cancel()

	hits, err := m.catalog.Search(sctx, ports.CatalogQuery{
		LibraryScope: m.cfg.LibraryScope,
		Query:        strings.TrimSpace(query),
		Type:         t,
	})
	if err != nil {
		metrics.RecordCatalogSearch(string(t), false, err)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("catalog search timed out after %s: %w", m.cfg.SearchTimeout, domain.ErrTransient)
		}
		return nil, err
	}

	target := matchKey(query)
	var (
		best      *domain.CatalogEntity
		bestScore = -1.0
	)
	for i := range hits {
		if !accept(hits[i]) {
			continue
		}
		if score := similarity(target, matchKey(hits[i].Title)); score > bestScore {
			best, bestScore = &hits[i], score
		}
	}
	metrics.RecordCatalogSearch(string(t), best != nil, nil)
	if best == nil {
		return nil, nil
	}
	found := *best
	if found.Type == "" {
		found.Type = t
	}
	return &found, nil
}

func (m *Matcher) finish(ctx context.Context, res domain.AvailabilityResult, match *domain.CatalogEntity, err error) domain.AvailabilityResult {
	if err != nil {
		res.Err = err.Error()
		if !errors.Is(err, ports.ErrNotInLibrary) {
			logging.Ctx(ctx).Warn().
				Str("component", "availability").
				Str("proposal", res.Proposal.String()).
				Err(err).
				Msg("catalog search failed; marking unavailable")
		}
		return res
	}
	if match != nil {
		res.Available = true
		res.Match = match
	}
	return res
}
