// Package worker persists committed playlists in the background so a slow
// history store never holds up a commit.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/metrics"
)

const jobKind = "playlist_history"

// Job is one committed playlist waiting to be recorded.
type Job struct {
	Summary       domain.PlaylistSummary
	CorrelationID string
}

// Pool records playlist history jobs with a fixed number of workers.
type Pool struct {
	repo       ports.PlaylistHistoryRepository
	jobs       chan Job
	workers    int
	jobTimeout time.Duration
}

// NewPool creates a worker pool with the given worker count and queue size.
func NewPool(repo ports.PlaylistHistoryRepository, workers int, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		repo:       repo,
		jobs:       make(chan Job, queueSize),
		workers:    workers,
		jobTimeout: 10 * time.Second,
	}
}

// Serve runs the workers until ctx is cancelled, then records whatever is
// still queued and returns. It satisfies suture.Service and may be called
// again after it returns.
func (p *Pool) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case job := <-p.jobs:
					p.processJob(ctx, job)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()
	p.drain(ctx)
	return ctx.Err()
}

func (p *Pool) drain(ctx context.Context) {
	for {
		select {
		case job := <-p.jobs:
			p.processJob(context.WithoutCancel(ctx), job)
		default:
			return
		}
	}
}

// String names the service in supervisor logs.
func (p *Pool) String() string { return "history-worker" }

// Submit queues a job without blocking. It reports false when the queue is
// full and the job was dropped.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		logging.Warn().Str("component", "worker").Str("playlist_id", job.Summary.ID).Msg("queue full, dropping history job")
		metrics.JobsProcessed.WithLabelValues(jobKind, "dropped").Inc()
		return false
	}
}

// OnCommit queues a committed playlist. It matches the pipeline's commit
// hook.
func (p *Pool) OnCommit(ctx context.Context, s domain.PlaylistSummary) {
	p.Submit(Job{Summary: s, CorrelationID: logging.CorrelationIDFromContext(ctx)})
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

func (p *Pool) processJob(ctx context.Context, job Job) {
	if job.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, job.CorrelationID)
	}
	log := logging.Ctx(ctx).With().Str("component", "worker").Str("playlist_id", job.Summary.ID).Logger()

	ctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	if err := p.repo.Record(ctx, job.Summary); err != nil {
		log.Warn().Err(err).Msg("failed to record playlist history")
		metrics.JobsProcessed.WithLabelValues(jobKind, "error").Inc()
		return
	}
	metrics.JobsProcessed.WithLabelValues(jobKind, "success").Inc()
	log.Debug().Int("tracks", job.Summary.TrackCount).Msg("playlist history recorded")
}
