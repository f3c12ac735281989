package store

import (
	"context"
	"sort"
	"sync"

	"storyforge/internal/model"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*model.User // by user id
	byName  map[string]string      // username -> user id
	stories map[string]*model.StoryDocument
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*model.User),
		byName:  make(map[string]string),
		stories: make(map[string]*model.StoryDocument),
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[u.Username]; ok {
		return ErrUserExists
	}
	cp := *u
	m.users[u.UserID] = &cp
	m.byName[u.Username] = u.UserID
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryStore) CreateStory(ctx context.Context, doc *model.StoryDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.Version = 1
	m.stories[doc.StoryID] = cloneDocument(doc)
	return nil
}

func (m *MemoryStore) GetStory(ctx context.Context, storyID, ownerID string) (*model.StoryDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.stories[storyID]
	if !ok || doc.UserID != ownerID {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (m *MemoryStore) ListStories(ctx context.Context, ownerID string) ([]*model.StoryDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.StoryDocument, 0)
	for _, doc := range m.stories {
		if doc.UserID == ownerID {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].StoryID < out[j].StoryID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) SaveStory(ctx context.Context, doc *model.StoryDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.stories[doc.StoryID]
	if !ok || cur.UserID != doc.UserID {
		return ErrNotFound
	}
	if cur.Version != doc.Version {
		return ErrVersionConflict
	}
	doc.Version++
	saved := cloneDocument(doc)
	saved.CreatedAt = cur.CreatedAt
	m.stories[doc.StoryID] = saved
	return nil
}

func (m *MemoryStore) DeleteStory(ctx context.Context, storyID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.stories[storyID]
	if !ok || doc.UserID != ownerID {
		return ErrNotFound
	}
	delete(m.stories, storyID)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }

var _ Repository = (*MemoryStore)(nil)
