package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"storyforge/internal/model"
)

// sqlStore implements Repository over database/sql. Queries are written with ? placeholders
// and rebound for drivers that need $n.
type sqlStore struct {
	db          *sql.DB
	kind        string
	dollarArgs  bool
	isUniqueErr func(error) bool
}

func (s *sqlStore) rebind(query string) string {
	if !s.dollarArgs {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (user_id, username, hashed_password, created_at) VALUES (?, ?, ?, ?)`),
		u.UserID, u.Username, u.HashedPassword, u.CreatedAt.UnixNano())
	if err != nil {
		if s.isUniqueErr(err) {
			return ErrUserExists
		}
		return fmt.Errorf("insert user %s: %w", u.Username, err)
	}
	return nil
}

func (s *sqlStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.getUser(ctx, `SELECT user_id, username, hashed_password, created_at FROM users WHERE user_id = ?`, userID)
}

func (s *sqlStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUser(ctx, `SELECT user_id, username, hashed_password, created_at FROM users WHERE username = ?`, username)
}

func (s *sqlStore) getUser(ctx context.Context, query, arg string) (*model.User, error) {
	var (
		u       model.User
		created int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(query), arg).Scan(&u.UserID, &u.Username, &u.HashedPassword, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = fromNanos(created)
	return &u, nil
}

func (s *sqlStore) CreateStory(ctx context.Context, doc *model.StoryDocument) error {
	state, history, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO stories (story_id, user_id, prompt, state_json, history_json, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`),
		doc.StoryID, doc.UserID, doc.Prompt, state, history, doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert story %s: %w", doc.StoryID, err)
	}
	doc.Version = 1
	return nil
}

const storyColumns = `story_id, user_id, prompt, state_json, history_json, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*model.StoryDocument, error) {
	var (
		doc              model.StoryDocument
		state, history   string
		created, updated int64
	)
	if err := row.Scan(&doc.StoryID, &doc.UserID, &doc.Prompt, &state, &history, &doc.Version, &created, &updated); err != nil {
		return nil, err
	}
	doc.State = &model.StoryState{}
	if err := json.Unmarshal([]byte(state), doc.State); err != nil {
		return nil, fmt.Errorf("decode state of story %s: %w", doc.StoryID, err)
	}
	if err := json.Unmarshal([]byte(history), &doc.History); err != nil {
		return nil, fmt.Errorf("decode history of story %s: %w", doc.StoryID, err)
	}
	doc.CreatedAt = fromNanos(created)
	doc.UpdatedAt = fromNanos(updated)
	return &doc, nil
}

func (s *sqlStore) GetStory(ctx context.Context, storyID, ownerID string) (*model.StoryDocument, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+storyColumns+` FROM stories WHERE story_id = ? AND user_id = ?`), storyID, ownerID)
	doc, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query story %s: %w", storyID, err)
	}
	return doc, nil
}

func (s *sqlStore) ListStories(ctx context.Context, ownerID string) ([]*model.StoryDocument, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+storyColumns+` FROM stories WHERE user_id = ? ORDER BY created_at ASC, story_id ASC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer rows.Close()

	docs := make([]*model.StoryDocument, 0)
	for rows.Next() {
		doc, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story rows: %w", err)
	}
	return docs, nil
}

func (s *sqlStore) SaveStory(ctx context.Context, doc *model.StoryDocument) error {
	state, history, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE stories SET prompt = ?, state_json = ?, history_json = ?, version = version + 1, updated_at = ?
		 WHERE story_id = ? AND user_id = ? AND version = ?`),
		doc.Prompt, state, history, doc.UpdatedAt.UnixNano(), doc.StoryID, doc.UserID, doc.Version)
	if err != nil {
		return fmt.Errorf("update story %s: %w", doc.StoryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update story %s: %w", doc.StoryID, err)
	}
	if n == 0 {
		if _, err := s.GetStory(ctx, doc.StoryID, doc.UserID); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"story_id": doc.StoryID, "version": doc.Version}).Warn("stale story version")
		return ErrVersionConflict
	}
	doc.Version++
	return nil
}

func (s *sqlStore) DeleteStory(ctx context.Context, storyID, ownerID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM stories WHERE story_id = ? AND user_id = ?`), storyID, ownerID)
	if err != nil {
		return fmt.Errorf("delete story %s: %w", storyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete story %s: %w", storyID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func encodeDocument(doc *model.StoryDocument) (state, history string, err error) {
	st := doc.State
	if st == nil {
		st = model.NewStoryState(doc.Prompt)
	}
	sb, err := json.Marshal(st)
	if err != nil {
		return "", "", fmt.Errorf("encode state: %w", err)
	}
	h := doc.History
	if h == nil {
		h = model.ConversationLog{}
	}
	hb, err := json.Marshal(h)
	if err != nil {
		return "", "", fmt.Errorf("encode history: %w", err)
	}
	return string(sb), string(hb), nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
