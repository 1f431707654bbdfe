package ports

import (
	"context"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

// PlaylistHistoryRepository stores committed playlists.
type PlaylistHistoryRepository interface {
	Record(ctx context.Context, s domain.PlaylistSummary) error
	Recent(ctx context.Context, limit int) ([]domain.PlaylistSummary, error)
}

// DraftStore keeps the latest review draft of a session so it survives restarts.
type DraftStore interface {
	SaveDraft(ctx context.Context, sessionID string, snap domain.DraftSnapshot) error
	LoadDraft(ctx context.Context, sessionID string) (domain.DraftSnapshot, error)
	DeleteDraft(ctx context.Context, sessionID string) error
}
