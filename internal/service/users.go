package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storyforge/internal/auth"
	"storyforge/internal/model"
	"storyforge/internal/store"
)

// ErrInvalidUsername is returned for blank usernames or passwords.
var ErrInvalidUsername = errors.New("username and password are required")

// UserService registers users and issues their tokens.
type UserService struct {
	repo   store.Repository
	tokens *auth.Manager
}

func NewUserService(repo store.Repository, tokens *auth.Manager) *UserService {
	return &UserService{repo: repo, tokens: tokens}
}

// Register creates a user and returns a fresh token pair.
func (s *UserService) Register(ctx context.Context, username, password string) (*model.User, *auth.TokenPair, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, nil, ErrInvalidUsername
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, nil, err
	}
	u := &model.User{
		UserID:         uuid.NewString(),
		Username:       username,
		HashedPassword: hash,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, nil, err
	}
	pair, err := s.tokens.IssuePair(u.UserID, u.Username)
	if err != nil {
		return nil, nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": u.UserID, "username": u.Username}).Info("user registered")
	return u, pair, nil
}

// Login checks credentials and returns a fresh token pair.
func (s *UserService) Login(ctx context.Context, username, password string) (*model.User, *auth.TokenPair, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if err := auth.CheckPassword(u.HashedPassword, password); err != nil {
		return nil, nil, err
	}
	pair, err := s.tokens.IssuePair(u.UserID, u.Username)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	u, err := s.repo.GetUser(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: unknown user", auth.ErrInvalidToken)
	}
	if err != nil {
		return "", err
	}
	return s.tokens.IssueAccess(u.UserID, u.Username)
}
