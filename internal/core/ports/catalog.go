package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

// ErrNotInLibrary marks a search that succeeded but returned nothing the
// matcher accepted. The matcher records it without logging a failure.
var ErrNotInLibrary = errors.New("not in library")

// NotInLibraryError names the entity that the library does not hold.
type NotInLibraryError struct {
	Type domain.EntityType
	Name string
}

func (e NotInLibraryError) Error() string {
	if e.Name == "" {
		return ErrNotInLibrary.Error()
	}
	return fmt.Sprintf("%s %q is not in the library", e.Type, e.Name)
}

func (e NotInLibraryError) Is(target error) bool { return target == ErrNotInLibrary }

// CatalogQuery is a single library search. An empty LibraryScope searches every music library.
type CatalogQuery struct {
	LibraryScope string
	Query        string
	Type         domain.EntityType
}

type CatalogSearcher interface {
	Search(ctx context.Context, q CatalogQuery) ([]domain.CatalogEntity, error)
}

type VocabularySource interface {
	Vocabulary(ctx context.Context) (domain.Vocabulary, error)
}

type HistorySource interface {
	History(ctx context.Context, userID string) ([]domain.ListeningRecord, error)
}

// PlaylistCommitter creates a playlist on the media server from ordered catalog IDs.
type PlaylistCommitter interface {
	CreatePlaylist(ctx context.Context, title string, catalogIDs []string) (domain.CommitResult, error)
}
