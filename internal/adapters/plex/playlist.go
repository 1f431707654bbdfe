package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/logging"
)

// machineIdentifier returns the server identity used in item URIs.
func (c *Client) machineIdentifier(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.machine
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	var resp containerResponse
	if err := c.get(ctx, "identity", "/identity", nil, &resp); err != nil {
		return "", err
	}
	id = resp.MediaContainer.MachineIdentifier
	if id == "" {
		return "", fmt.Errorf("plex adapter: identity without machine identifier: %w", domain.ErrTransient)
	}

	c.mu.Lock()
	c.machine = id
	c.mu.Unlock()
	return id, nil
}

func itemsURI(machine string, ids []string) string {
	uris := make([]string, len(ids))
	for i, id := range ids {
		uris[i] = fmt.Sprintf("server://%s/com.plexapp.plugins.library/library/metadata/%s", machine, id)
	}
	return strings.Join(uris, ",")
}

// CreatePlaylist creates an audio playlist holding the given rating keys in
// order.
func (c *Client) CreatePlaylist(ctx context.Context, title string, catalogIDs []string) (domain.CommitResult, error) {
	if len(catalogIDs) == 0 {
		return domain.CommitResult{}, fmt.Errorf("plex adapter: no tracks for playlist: %w", domain.ErrInvalidArgs)
	}
	if strings.TrimSpace(title) == "" {
		return domain.CommitResult{}, fmt.Errorf("plex adapter: empty playlist title: %w", domain.ErrInvalidArgs)
	}

	machine, err := c.machineIdentifier(ctx)
	if err != nil {
		return domain.CommitResult{}, err
	}

	params := url.Values{
		"type":  {"audio"},
		"title": {title},
		"smart": {"0"},
		"uri":   {itemsURI(machine, catalogIDs)},
	}
	var resp containerResponse
	if err := c.call(ctx, http.MethodPost, "playlists", "/playlists", params, &resp, false); err != nil {
		return domain.CommitResult{}, err
	}
	if len(resp.MediaContainer.Metadata) == 0 || resp.MediaContainer.Metadata[0].RatingKey == "" {
		return domain.CommitResult{}, fmt.Errorf("plex adapter: playlist created without metadata: %w", domain.ErrTransient)
	}

	id := resp.MediaContainer.Metadata[0].RatingKey
	logging.Ctx(ctx).Info().Str("component", "plex").Str("playlist_id", id).Int("tracks", len(catalogIDs)).Msg("playlist created")
	return domain.CommitResult{Success: true, PlaylistID: id, TrackCount: len(catalogIDs)}, nil
}
