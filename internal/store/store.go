// Package store persists users and story documents.
//
// Three backends share one Repository contract: an in-memory map for tests and local runs,
// SQLite (modernc.org/sqlite) for single-node deployments, and PostgreSQL (lib/pq).
package store

import (
	"context"
	"errors"
	"strings"

	"storyforge/internal/model"
)

var (
	// ErrNotFound is returned when a story or user does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a story was saved by someone else since it was loaded.
	ErrVersionConflict = errors.New("version conflict")
	// ErrUserExists is returned when registering a taken username.
	ErrUserExists = errors.New("user already exists")
)

// Repository is the persistence contract used by the service layer.
type Repository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// CreateStory inserts a new document and sets its version to 1.
	CreateStory(ctx context.Context, doc *model.StoryDocument) error
	GetStory(ctx context.Context, storyID, ownerID string) (*model.StoryDocument, error)
	// ListStories returns the owner's stories, oldest first.
	ListStories(ctx context.Context, ownerID string) ([]*model.StoryDocument, error)
	// SaveStory replaces prompt, state, history and updated_at if the stored version equals
	// doc.Version, then increments doc.Version.
	SaveStory(ctx context.Context, doc *model.StoryDocument) error
	DeleteStory(ctx context.Context, storyID, ownerID string) error

	Ping(ctx context.Context) error
	Close() error
}

// Backend kinds returned by DetectDSNType.
const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// DetectDSNType picks a backend from the shape of dsn.
func DetectDSNType(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return KindMemory
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return KindPostgres
	case strings.Contains(dsn, "host=") && strings.Contains(dsn, "dbname="):
		return KindPostgres
	default:
		return KindSQLite
	}
}

// Open returns the repository for dsn. An empty dsn gives an in-memory store.
func Open(ctx context.Context, dsn string) (Repository, error) {
	switch DetectDSNType(dsn) {
	case KindMemory:
		return NewMemory(), nil
	case KindPostgres:
		return NewPostgres(ctx, dsn)
	default:
		return NewSQLite(ctx, dsn)
	}
}

func cloneDocument(doc *model.StoryDocument) *model.StoryDocument {
	cp := *doc
	cp.State = doc.State.Clone()
	cp.History = append(model.ConversationLog{}, doc.History...)
	return &cp
}
