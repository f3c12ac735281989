package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storyforge/internal/model"
	"storyforge/internal/store"
	"storyforge/internal/workflow"
)

// ErrEmptyPrompt is returned when a creation prompt or continuation input is blank.
var ErrEmptyPrompt = errors.New("empty prompt")

// StoryService runs the story workflows and persists their results. A document is written
// only after its workflow reaches the end, so failed or cancelled runs leave no trace.
type StoryService struct {
	repo         store.Repository
	creation     *workflow.Runnable
	continuation *workflow.Runnable
	locks        *keyedMutex
	now          func() time.Time
}

func NewStoryService(repo store.Repository, creation, continuation *workflow.Runnable) *StoryService {
	return &StoryService{
		repo:         repo,
		creation:     creation,
		continuation: continuation,
		locks:        newKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create runs the creation workflow for prompt and stores the new story.
func (s *StoryService) Create(ctx context.Context, userID, prompt string) (*model.StoryDocument, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	logger := logrus.WithField("user_id", userID)

	history := model.ConversationLog{}
	history.Append(model.RoleUser, prompt)

	start := time.Now()
	state, err := s.creation.Run(ctx, model.NewStoryState(prompt), &history)
	if err != nil {
		logger.WithError(err).Error("creation workflow failed")
		return nil, fmt.Errorf("create story: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	doc := &model.StoryDocument{
		StoryID:   uuid.NewString(),
		UserID:    userID,
		Prompt:    prompt,
		State:     state,
		History:   history,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateStory(ctx, doc); err != nil {
		return nil, fmt.Errorf("save story: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"story_id": doc.StoryID,
		"scenes":   len(state.Scenes),
		"elapsed":  time.Since(start),
	}).Info("story created")
	return doc, nil
}

// Continue runs the continuation workflow on an existing story. Concurrent continuations of
// the same story are serialized; the store's version check rejects writers from other
// processes.
func (s *StoryService) Continue(ctx context.Context, userID, storyID, input string) (*model.StoryDocument, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyPrompt
	}
	logger := logrus.WithFields(logrus.Fields{"user_id": userID, "story_id": storyID})

	unlock := s.locks.Lock(storyID)
	defer unlock()

	doc, err := s.repo.GetStory(ctx, storyID, userID)
	if err != nil {
		return nil, err
	}

	state := doc.State.Clone()
	if state == nil {
		state = model.NewStoryState(doc.Prompt)
	}
	state.Prompt = input

	history := append(model.ConversationLog{}, doc.History...)
	history.Append(model.RoleUser, input)

	start := time.Now()
	final, err := s.continuation.Run(ctx, state, &history)
	if err != nil {
		logger.WithError(err).Error("continuation workflow failed")
		return nil, fmt.Errorf("continue story: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc.State = final
	doc.History = history
	doc.UpdatedAt = s.now()
	if err := s.repo.SaveStory(ctx, doc); err != nil {
		return nil, fmt.Errorf("save story: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"route":   final.Route,
		"version": doc.Version,
		"elapsed": time.Since(start),
	}).Info("story continued")
	return doc, nil
}

func (s *StoryService) Get(ctx context.Context, userID, storyID string) (*model.StoryDocument, error) {
	return s.repo.GetStory(ctx, storyID, userID)
}

func (s *StoryService) List(ctx context.Context, userID string) ([]*model.StoryDocument, error) {
	return s.repo.ListStories(ctx, userID)
}

func (s *StoryService) Delete(ctx context.Context, userID, storyID string) error {
	unlock := s.locks.Lock(storyID)
	defer unlock()
	if err := s.repo.DeleteStory(ctx, storyID, userID); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "story_id": storyID}).Info("story deleted")
	return nil
}

// Workflows describes the compiled graphs.
func (s *StoryService) Workflows() []workflow.Description {
	return []workflow.Description{s.creation.Describe(), s.continuation.Describe()}
}

// Ping checks the store.
func (s *StoryService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
