package domain

import (
	"strings"
	"time"
)

// EntryStatus is the last known catalog validation result for a draft entry.
type EntryStatus string

const (
	EntryUnchecked   EntryStatus = ""
	EntryAvailable   EntryStatus = "available"
	EntryUnavailable EntryStatus = "unavailable"
)

// DraftEntry is one track of a playlist under review.
type DraftEntry struct {
	Artist    string      `json:"artist"`
	Title     string      `json:"title"`
	Album     string      `json:"album,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	CatalogID string      `json:"catalogId,omitempty"`
	Status    EntryStatus `json:"status,omitempty"`
}

// Key identifies the entry by artist and title.
func (e DraftEntry) Key() string {
	return EntryKey(e.Artist, e.Title)
}

// EntryKey is the case and whitespace insensitive identity of an artist+title pair.
func EntryKey(artist, title string) string {
	return strings.Join(strings.Fields(strings.ToLower(artist)), " ") + "|" +
		strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// PlaylistDraft is the ordered track list the user reviews before committing.
type PlaylistDraft struct {
	Entries []DraftEntry `json:"entries"`
}

func (d PlaylistDraft) Len() int { return len(d.Entries) }

// Clone returns a draft that shares no backing array with d.
func (d PlaylistDraft) Clone() PlaylistDraft {
	entries := make([]DraftEntry, len(d.Entries))
	copy(entries, d.Entries)
	return PlaylistDraft{Entries: entries}
}

// Contains reports whether an entry with the same artist+title exists,
// ignoring position skip (pass -1 to check every entry).
func (d PlaylistDraft) Contains(e DraftEntry, skip int) bool {
	key := e.Key()
	for i, ex := range d.Entries {
		if i == skip {
			continue
		}
		if ex.Key() == key {
			return true
		}
	}
	return false
}

// Replace swaps the entry at i.
func (d *PlaylistDraft) Replace(i int, e DraftEntry) error {
	if i < 0 || i >= len(d.Entries) {
		return ErrInvalidIndex
	}
	d.Entries[i] = e
	return nil
}

// Remove deletes the entry at i, keeping order.
func (d *PlaylistDraft) Remove(i int) error {
	if i < 0 || i >= len(d.Entries) {
		return ErrInvalidIndex
	}
	d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
	return nil
}

// Move relocates the entry at from so that it ends up at index to.
func (d *PlaylistDraft) Move(from, to int) error {
	n := len(d.Entries)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrInvalidIndex
	}
	if from == to {
		return nil
	}
	e := d.Entries[from]
	d.Entries = append(d.Entries[:from], d.Entries[from+1:]...)
	d.Entries = append(d.Entries[:to], append([]DraftEntry{e}, d.Entries[to:]...)...)
	return nil
}

// CommitResult is what the media server returns after creating a playlist.
type CommitResult struct {
	Success    bool   `json:"success"`
	PlaylistID string `json:"playlistId,omitempty"`
	TrackCount int    `json:"trackCount"`
}

// PlaylistSummary is a committed playlist kept in the local history.
type PlaylistSummary struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	ExternalID string       `json:"externalId,omitempty"`
	ModelID    string       `json:"model"`
	TrackCount int          `json:"trackCount"`
	CreatedAt  time.Time    `json:"createdAt"`
	Entries    []DraftEntry `json:"entries,omitempty"`
}
