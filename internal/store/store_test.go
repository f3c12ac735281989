package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/model"
)

func backends(t *testing.T) map[string]Repository {
	t.Helper()
	sqlite, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func newDoc(id, owner string, created time.Time) *model.StoryDocument {
	state := model.NewStoryState("a prompt")
	state.Outline = []string{"one", "two"}
	state.Characters = []model.Character{{"name": "Ana", "background": "smith"}}
	state.Scenes = []string{"Opening."}
	state.CurrentNode = "__end__"
	return &model.StoryDocument{
		StoryID:   id,
		UserID:    owner,
		Prompt:    "a prompt",
		State:     state,
		History:   model.ConversationLog{{Role: model.RoleUser, Content: "a prompt"}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestUsers(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := &model.User{UserID: "u1", Username: "ana", HashedPassword: "hash", CreatedAt: time.Now().UTC()}
			require.NoError(t, repo.CreateUser(ctx, u))

			err := repo.CreateUser(ctx, &model.User{UserID: "u2", Username: "ana", HashedPassword: "x", CreatedAt: time.Now()})
			assert.ErrorIs(t, err, ErrUserExists)

			got, err := repo.GetUserByUsername(ctx, "ana")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, "hash", got.HashedPassword)

			got, err = repo.GetUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "ana", got.Username)

			_, err = repo.GetUserByUsername(ctx, "bo")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = repo.GetUser(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoryLifecycle(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Now().UTC().Truncate(time.Millisecond)
			doc := newDoc("s1", "u1", created)

			require.NoError(t, repo.CreateStory(ctx, doc))
			assert.Equal(t, int64(1), doc.Version)

			got, err := repo.GetStory(ctx, "s1", "u1")
			require.NoError(t, err)
			assert.Equal(t, doc.State.Outline, got.State.Outline)
			assert.Equal(t, "Ana", got.State.Characters[0].Name())
			assert.Equal(t, "__end__", got.State.CurrentNode)
			require.Len(t, got.History, 1)
			assert.Equal(t, "a prompt", got.History[0].Content)
			assert.True(t, created.Equal(got.CreatedAt))

			_, err = repo.GetStory(ctx, "s1", "someone-else")
			assert.ErrorIs(t, err, ErrNotFound)

			got.State.Scenes = append(got.State.Scenes, "Next.")
			got.History.Append(model.RoleAssistant, "Next.")
			got.UpdatedAt = created.Add(time.Minute)
			require.NoError(t, repo.SaveStory(ctx, got))
			assert.Equal(t, int64(2), got.Version)

			reloaded, err := repo.GetStory(ctx, "s1", "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"Opening.", "Next."}, reloaded.State.Scenes)
			assert.Len(t, reloaded.History, 2)
			assert.Equal(t, int64(2), reloaded.Version)
			assert.True(t, created.Equal(reloaded.CreatedAt))
			assert.True(t, created.Add(time.Minute).Equal(reloaded.UpdatedAt))

			require.NoError(t, repo.DeleteStory(ctx, "s1", "u1"))
			_, err = repo.GetStory(ctx, "s1", "u1")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, repo.DeleteStory(ctx, "s1", "u1"), ErrNotFound)
		})
	}
}

func TestSaveStoryVersionConflict(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.CreateStory(ctx, newDoc("s1", "u1", time.Now())))

			a, err := repo.GetStory(ctx, "s1", "u1")
			require.NoError(t, err)
			b, err := repo.GetStory(ctx, "s1", "u1")
			require.NoError(t, err)

			a.State.Scenes = append(a.State.Scenes, "from a")
			require.NoError(t, repo.SaveStory(ctx, a))

			b.State.Scenes = append(b.State.Scenes, "from b")
			err = repo.SaveStory(ctx, b)
			assert.True(t, errors.Is(err, ErrVersionConflict))

			got, err := repo.GetStory(ctx, "s1", "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"Opening.", "from a"}, got.State.Scenes)

			missing := newDoc("nope", "u1", time.Now())
			missing.Version = 1
			assert.ErrorIs(t, repo.SaveStory(ctx, missing), ErrNotFound)
		})
	}
}

func TestListStories(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()
			for i := 3; i >= 1; i-- {
				require.NoError(t, repo.CreateStory(ctx, newDoc(fmt.Sprintf("s%d", i), "u1", base.Add(time.Duration(i)*time.Second))))
			}
			require.NoError(t, repo.CreateStory(ctx, newDoc("other", "u2", base)))

			docs, err := repo.ListStories(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, docs, 3)
			assert.Equal(t, "s1", docs[0].StoryID)
			assert.Equal(t, "s3", docs[2].StoryID)

			docs, err = repo.ListStories(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, docs)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	doc := newDoc("s1", "u1", time.Now())
	require.NoError(t, repo.CreateStory(ctx, doc))

	doc.State.Scenes = append(doc.State.Scenes, "mutated after create")
	got, err := repo.GetStory(ctx, "s1", "u1")
	require.NoError(t, err)
	got.State.Outline[0] = "mutated after get"

	again, err := repo.GetStory(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Opening."}, again.State.Scenes)
	assert.Equal(t, "one", again.State.Outline[0])
}

func TestDetectDSNType(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"", KindMemory},
		{"postgres://u:p@localhost/db", KindPostgres},
		{"postgresql://localhost/db", KindPostgres},
		{"host=localhost dbname=stories sslmode=disable", KindPostgres},
		{"./data/storyforge.db", KindSQLite},
		{"/tmp/x.db", KindSQLite},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDSNType(tt.dsn))
		})
	}
}

func TestOpen(t *testing.T) {
	repo, err := Open(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, repo)

	repo, err = Open(context.Background(), filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	defer repo.Close()
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestRebind(t *testing.T) {
	s := &sqlStore{dollarArgs: true}
	assert.Equal(t, "a = $1 AND b = $2", s.rebind("a = ? AND b = ?"))
	s.dollarArgs = false
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

func TestIsSQLiteConflictError(t *testing.T) {
	assert.True(t, IsSQLiteConflictError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsSQLiteConflictError(errors.New("no such table")))
	assert.False(t, IsSQLiteConflictError(nil))
}
