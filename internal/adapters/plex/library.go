package plex

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
	"github.com/ewilliams-labs/setlist/internal/logging"
)

// musicSections returns the music libraries of the server. A successful
// listing is cached for the life of the client.
func (c *Client) musicSections(ctx context.Context) ([]directory, error) {
	c.mu.Lock()
	cached := c.sections
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var resp containerResponse
	if err := c.get(ctx, "sections", "/library/sections", nil, &resp); err != nil {
		return nil, err
	}
	music := make([]directory, 0, len(resp.MediaContainer.Directory))
	for _, d := range resp.MediaContainer.Directory {
		if d.Type == "artist" {
			music = append(music, d)
		}
	}
	if len(music) == 0 {
		return nil, fmt.Errorf("plex adapter: no music libraries: %w", domain.ErrNotFound)
	}

	c.mu.Lock()
	c.sections = music
	c.mu.Unlock()
	return music, nil
}

// scoped narrows sections to the one whose key or title equals scope.
func scoped(sections []directory, scope string) ([]directory, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return sections, nil
	}
	for _, s := range sections {
		if s.Key == scope || strings.EqualFold(s.Title, scope) {
			return []directory{s}, nil
		}
	}
	return nil, fmt.Errorf("plex adapter: music library %q: %w", scope, domain.ErrNotFound)
}

// Search looks q up in every music library in scope and returns the hits
// of the requested type.
func (c *Client) Search(ctx context.Context, q ports.CatalogQuery) ([]domain.CatalogEntity, error) {
	code, ok := searchType(q.Type)
	if !ok {
		return nil, fmt.Errorf("plex adapter: search type %q: %w", q.Type, domain.ErrInvalidArgs)
	}
	if strings.TrimSpace(q.Query) == "" {
		return nil, nil
	}

	sections, err := c.musicSections(ctx)
	if err != nil {
		return nil, err
	}
	sections, err = scoped(sections, q.LibraryScope)
	if err != nil {
		return nil, err
	}

	var out []domain.CatalogEntity
	for _, s := range sections {
		var resp containerResponse
		params := url.Values{"type": {code}, "query": {q.Query}}
		if err := c.getOnce(ctx, "search", "/library/sections/"+url.PathEscape(s.Key)+"/search", params, &resp); err != nil {
			return nil, err
		}
		for _, m := range resp.MediaContainer.Metadata {
			e := m.toEntity()
			if e.Type == "" {
				e.Type = q.Type
			}
			if e.Type != q.Type || e.ID == "" {
				continue
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// Vocabulary collects genres, moods and styles across the music libraries.
// Genres are required; moods and styles are skipped when a library does
// not offer them.
func (c *Client) Vocabulary(ctx context.Context) (domain.Vocabulary, error) {
	sections, err := c.musicSections(ctx)
	if err != nil {
		return domain.Vocabulary{}, err
	}

	log := logging.Ctx(ctx).With().Str("component", "plex").Logger()
	genres, moods, styles := newTitleSet(), newTitleSet(), newTitleSet()
	for _, s := range sections {
		if err := c.tags(ctx, s.Key, "genre", genres); err != nil {
			return domain.Vocabulary{}, err
		}
		if err := c.tags(ctx, s.Key, "mood", moods); err != nil {
			log.Debug().Err(err).Str("section", s.Title).Msg("moods not available")
		}
		if err := c.tags(ctx, s.Key, "style", styles); err != nil {
			log.Debug().Err(err).Str("section", s.Title).Msg("styles not available")
		}
	}
	return domain.Vocabulary{Genres: genres.values, Moods: moods.values, Styles: styles.values}, nil
}

func (c *Client) tags(ctx context.Context, sectionKey, kind string, into *titleSet) error {
	var resp containerResponse
	if err := c.get(ctx, kind, "/library/sections/"+url.PathEscape(sectionKey)+"/"+kind, nil, &resp); err != nil {
		return err
	}
	for _, d := range resp.MediaContainer.Directory {
		into.add(d.Title)
	}
	return nil
}

// titleSet keeps the first spelling of each case-insensitive title.
type titleSet struct {
	seen   map[string]struct{}
	values []string
}

func newTitleSet() *titleSet {
	return &titleSet{seen: map[string]struct{}{}}
}

func (s *titleSet) add(title string) {
	title = strings.TrimSpace(title)
	key := strings.ToLower(title)
	if title == "" {
		return
	}
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.values = append(s.values, title)
}
