package plex

import (
	"context"
	"net/url"
	"strings"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/logging"
)

// History returns the account's played tracks, most recent first. An empty
// userID falls back to the configured account; with neither, the history of
// every account is returned.
func (c *Client) History(ctx context.Context, userID string) ([]domain.ListeningRecord, error) {
	if strings.TrimSpace(userID) == "" {
		userID = c.userID
	}
	params := url.Values{"sort": {"viewedAt:desc"}}
	if userID != "" {
		params.Set("accountID", userID)
	}

	var resp containerResponse
	if err := c.get(ctx, "history", "/status/sessions/history/all", params, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.ListeningRecord, 0, len(resp.MediaContainer.Metadata))
	for _, m := range resp.MediaContainer.Metadata {
		if m.Type != "track" {
			continue
		}
		r := m.toRecord()
		if r.Artist == "" && r.Track == "" {
			continue
		}
		records = append(records, r)
	}
	logging.Ctx(ctx).Debug().Str("component", "plex").Int("items", len(resp.MediaContainer.Metadata)).Int("tracks", len(records)).Msg("history loaded")
	return records, nil
}
