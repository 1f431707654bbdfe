// Package sqlite provides a SQLite-backed implementation of the playlist
// history and draft store ports.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/ports"
)

// DefaultHistoryLimit is the number of committed playlists kept.
const DefaultHistoryLimit = 10

// Adapter implements the repository ports for SQLite
type Adapter struct {
	db           *sql.DB
	historyLimit int
}

var (
	_ ports.PlaylistHistoryRepository = (*Adapter)(nil)
	_ ports.DraftStore                = (*Adapter)(nil)
)

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	adapter := &Adapter{db: db, historyLimit: DefaultHistoryLimit}

	if err := adapter.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return adapter, nil
}

// SetHistoryLimit changes how many committed playlists are kept.
func (a *Adapter) SetHistoryLimit(n int) {
	if n > 0 {
		a.historyLimit = n
	}
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Ping reports whether the database is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Record stores a committed playlist with its entries and drops the oldest
// playlists beyond the history limit.
func (a *Adapter) Record(ctx context.Context, s domain.PlaylistSummary) error {
	if s.ID == "" {
		return fmt.Errorf("record playlist: empty id: %w", domain.ErrInvalidArgs)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO playlists (id, title, external_id, model_id, track_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			external_id=excluded.external_id,
			model_id=excluded.model_id,
			track_count=excluded.track_count;
	`, s.ID, s.Title, s.ExternalID, s.ModelID, s.TrackCount, s.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to save playlist metadata: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_entries WHERE playlist_id = ?", s.ID); err != nil {
		return fmt.Errorf("failed to clear old entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO playlist_entries (playlist_id, position, artist, title, album, catalog_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range s.Entries {
		if _, err := stmt.ExecContext(ctx, s.ID, i, e.Artist, e.Title, e.Album, e.CatalogID); err != nil {
			return fmt.Errorf("failed to save entry %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM playlists WHERE id NOT IN (
			SELECT id FROM playlists ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, a.historyLimit); err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM playlist_entries WHERE playlist_id NOT IN (SELECT id FROM playlists)"); err != nil {
		return fmt.Errorf("failed to prune history entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

// Recent returns up to limit committed playlists, newest first.
func (a *Adapter) Recent(ctx context.Context, limit int) ([]domain.PlaylistSummary, error) {
	if limit <= 0 || limit > a.historyLimit {
		limit = a.historyLimit
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, title, IFNULL(external_id, ''), IFNULL(model_id, ''), track_count, created_at
		FROM playlists
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load playlists: %w", err)
	}
	defer rows.Close()

	var out []domain.PlaylistSummary
	for rows.Next() {
		var (
			s       domain.PlaylistSummary
			created string
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.ExternalID, &s.ModelID, &s.TrackCount, &created); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		if s.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("failed to parse created_at %q: %w", created, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate playlists: %w", err)
	}
	rows.Close()

	for i := range out {
		if out[i].Entries, err = a.entries(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *Adapter) entries(ctx context.Context, playlistID string) ([]domain.DraftEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT artist, title, IFNULL(album, ''), IFNULL(catalog_id, '')
		FROM playlist_entries
		WHERE playlist_id = ?
		ORDER BY position ASC
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load playlist entries: %w", err)
	}
	defer rows.Close()

	var out []domain.DraftEntry
	for rows.Next() {
		var e domain.DraftEntry
		if err := rows.Scan(&e.Artist, &e.Title, &e.Album, &e.CatalogID); err != nil {
			return nil, fmt.Errorf("failed to scan playlist entry: %w", err)
		}
		if e.CatalogID != "" {
			e.Status = domain.EntryAvailable
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate playlist entries: %w", err)
	}
	return out, nil
}

// SaveDraft upserts the review draft of a session.
func (a *Adapter) SaveDraft(ctx context.Context, sessionID string, snap domain.DraftSnapshot) error {
	if sessionID == "" {
		return fmt.Errorf("save draft: empty session id: %w", domain.ErrInvalidArgs)
	}
	snap.SessionID = sessionID
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}

	if _, err := a.db.ExecContext(ctx, `
		INSERT INTO drafts (session_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at;
	`, sessionID, string(payload), snap.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the saved draft of a session or domain.ErrNotFound.
func (a *Adapter) LoadDraft(ctx context.Context, sessionID string) (domain.DraftSnapshot, error) {
	var payload string
	err := a.db.QueryRowContext(ctx, "SELECT payload FROM drafts WHERE session_id = ?", sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DraftSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DraftSnapshot{}, fmt.Errorf("failed to load draft: %w", err)
	}

	var snap domain.DraftSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return domain.DraftSnapshot{}, fmt.Errorf("failed to decode draft: %w", err)
	}
	return snap, nil
}

// DeleteDraft removes the saved draft of a session.
func (a *Adapter) DeleteDraft(ctx context.Context, sessionID string) error {
	res, err := a.db.ExecContext(ctx, "DELETE FROM drafts WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (a *Adapter) migrate() error {
	query := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		external_id TEXT,
		model_id TEXT,
		track_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playlist_entries (
		playlist_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		artist TEXT NOT NULL,
		title TEXT NOT NULL,
		album TEXT,
		PRIMARY KEY (playlist_id, position),
		FOREIGN KEY(playlist_id) REFERENCES playlists(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS drafts (
		session_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := a.db.Exec(query); err != nil {
		return err
	}

	if _, err := a.db.Exec("ALTER TABLE playlist_entries ADD COLUMN catalog_id TEXT"); err != nil {
		if !isDuplicateColumnError(err) {
			return err
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}
