package rest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/pipeline"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/metrics"
)

// SessionOptions are the per-session overrides a client may send when it
// starts a flow.
type SessionOptions struct {
	UserID         string `json:"userId,omitempty" validate:"omitempty,max=64"`
	PlaylistLength int    `json:"playlistLength,omitempty" validate:"omitempty,gte=1,lte=100"`
	Mode           string `json:"mode,omitempty" validate:"omitempty,oneof=tracks artists"`
	TimeFrame      string `json:"timeFrame,omitempty" validate:"omitempty,oneof=all day week month quarter year"`
}

// PipelineFactory builds the pipeline of a new session.
type PipelineFactory func(sessionID string, opts SessionOptions) (*pipeline.Pipeline, error)

type session struct {
	pipeline *pipeline.Pipeline
	lastUsed time.Time
}

// Sessions keeps the live pipelines. A session that is not in memory but has
// a saved draft is restored into review on first use.
type Sessions struct {
	factory PipelineFactory
	drafts  ports.DraftStore
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	items map[string]*session
}

// NewSessions creates an empty session registry. drafts may be nil.
func NewSessions(factory PipelineFactory, drafts ports.DraftStore, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Sessions{
		factory: factory,
		drafts:  drafts,
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]*session),
	}
}

// Create starts a new session and returns its ID.
func (s *Sessions) Create(opts SessionOptions) (string, *pipeline.Pipeline, error) {
	id := uuid.NewString()
	p, err := s.factory(id, opts)
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	s.items[id] = &session{pipeline: p, lastUsed: s.now()}
	n := len(s.items)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	return id, p, nil
}

// Get returns the pipeline of a session, restoring it from a saved draft
// when it is not in memory.
func (s *Sessions) Get(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	s.mu.Lock()
	if sess, ok := s.items[id]; ok {
		sess.lastUsed = s.now()
		s.mu.Unlock()
		return sess.pipeline, nil
	}
	s.mu.Unlock()

	if _, perr := uuid.Parse(id); s.drafts == nil || perr != nil {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	snap, err := s.drafts.LoadDraft(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("session %q: load draft: %w", id, err)
	}
	p, err := s.factory(id, SessionOptions{})
	if err != nil {
		return nil, err
	}
	if err := p.Restore(snap); err != nil {
		return nil, fmt.Errorf("session %q: restore draft: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another request may have restored it first.
	if sess, ok := s.items[id]; ok {
		p.Close()
		sess.lastUsed = s.now()
		return sess.pipeline, nil
	}
	s.items[id] = &session{pipeline: p, lastUsed: s.now()}
	metrics.ActiveSessions.Set(float64(len(s.items)))
	logging.Ctx(ctx).Info().Str("component", "rest").Str("session_id", id).Msg("session restored from saved draft")
	return p, nil
}

// Delete resets the session, dropping its saved draft, and forgets it.
func (s *Sessions) Delete(ctx context.Context, id string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	p.Reset(ctx)

	s.mu.Lock()
	delete(s.items, id)
	n := len(s.items)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	return nil
}

// Len returns the number of sessions in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep evicts sessions idle for longer than the TTL. Saved drafts are kept
// so evicted review sessions can still be restored.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var evicted []*pipeline.Pipeline
	for id, sess := range s.items {
		if sess.lastUsed.Before(cutoff) && !sess.pipeline.State().Processing {
			evicted = append(evicted, sess.pipeline)
			delete(s.items, id)
		}
	}
	n := len(s.items)
	s.mu.Unlock()

	for _, p := range evicted {
		p.Close()
	}
	metrics.ActiveSessions.Set(float64(n))
	return len(evicted)
}

// Serve sweeps idle sessions until ctx is cancelled. It satisfies
// suture.Service.
func (s *Sessions) Serve(ctx context.Context) error {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logging.Debug().Str("component", "rest").Int("evicted", n).Msg("idle sessions evicted")
			}
		}
	}
}

func (s *Sessions) String() string { return "session-sweeper" }
