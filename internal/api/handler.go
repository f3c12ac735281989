package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storyforge/internal/auth"
	"storyforge/internal/llm"
	"storyforge/internal/model"
	"storyforge/internal/service"
	"storyforge/internal/store"
	"storyforge/internal/tools"
	"storyforge/internal/workflow"
)

const (
	// retryAfterSeconds is sent with retryable 503 responses.
	retryAfterSeconds = 5
	// statusClientClosedRequest is the nginx convention for a client that went away.
	statusClientClosedRequest = 499
)

// Handler holds the HTTP handlers.
type Handler struct {
	stories *service.StoryService
	users   *service.UserService
	tokens  *auth.Manager
	tool    *tools.StoryTool
}

func NewHandler(stories *service.StoryService, users *service.UserService, tokens *auth.Manager, tool *tools.StoryTool) *Handler {
	return &Handler{stories: stories, users: users, tokens: tokens, tool: tool}
}

// NewRouter wires all routes onto a gin engine.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", h.health)
	router.GET("/workflows", h.workflows)

	authGroup := router.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)
	authGroup.POST("/refresh", h.refresh)

	toolsGroup := router.Group("/tools", auth.Middleware(h.tokens))
	toolsGroup.POST("/story-generate", h.storyGenerate)

	stories := router.Group("/stories", auth.Middleware(h.tokens))
	stories.POST("/new", h.createStory)
	stories.POST("/:id/continue", h.continueStory)
	stories.GET("", h.listStories)
	stories.GET("/", h.listStories)
	stories.GET("/:id", h.getStory)
	stories.DELETE("/:id", h.deleteStory)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}).Debug("request")
	}
}

type credentials struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type tokenResponse struct {
	User *model.User `json:"user,omitempty"`
	*auth.TokenPair
}

func (h *Handler) register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	u, pair, err := h.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tokenResponse{User: u, TokenPair: pair})
}

// login accepts JSON or form-encoded credentials.
func (h *Handler) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	u, pair, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{User: u, TokenPair: pair})
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	access, err := h.users.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access, "token_type": "bearer"})
}

type storyRequest struct {
	Prompt    string `json:"prompt"`
	InputText string `json:"input_text"`
}

func (r storyRequest) text() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return r.InputText
}

func (h *Handler) createStory(c *gin.Context) {
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	doc, err := h.stories.Create(c.Request.Context(), auth.UserID(c), req.text())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewStoryResponse(doc))
}

func (h *Handler) continueStory(c *gin.Context) {
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	doc, err := h.stories.Continue(c.Request.Context(), auth.UserID(c), c.Param("id"), req.text())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewStoryResponse(doc))
}

func (h *Handler) listStories(c *gin.Context) {
	docs, err := h.stories.List(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]model.StoryResponse, 0, len(docs))
	for i, doc := range docs {
		resp := model.NewStoryResponse(doc)
		resp.StoryNumber = i + 1
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getStory(c *gin.Context) {
	doc, err := h.stories.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewStoryResponse(doc))
}

func (h *Handler) deleteStory(c *gin.Context) {
	if err := h.stories.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "story deleted", "story_id": c.Param("id")})
}

// storyGenerate runs the story tool with the raw request body as its arguments.
func (h *Handler) storyGenerate(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.tool.InvokableRun(c.Request.Context(), string(body))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(result))
}

func (h *Handler) workflows(c *gin.Context) {
	c.JSON(http.StatusOK, h.stories.Workflows())
}

func (h *Handler) health(c *gin.Context) {
	if err := h.stories.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps domain errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, context.Canceled):
		status, msg = statusClientClosedRequest, "request cancelled"
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "story not found"
	case errors.Is(err, store.ErrUserExists):
		status, msg = http.StatusConflict, "user already exists"
	case errors.Is(err, store.ErrVersionConflict):
		status, msg = http.StatusConflict, "story was modified concurrently, retry"
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, "incorrect username or password"
	case errors.Is(err, auth.ErrInvalidToken):
		status, msg = http.StatusUnauthorized, "invalid token"
	case errors.Is(err, service.ErrEmptyPrompt), errors.Is(err, service.ErrInvalidUsername), errors.Is(err, tools.ErrInvalidArgs):
		status, msg = http.StatusBadRequest, err.Error()
	case workflow.IsRetryable(err), store.IsSQLiteConflictError(err):
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		status, msg = http.StatusServiceUnavailable, "story generation did not settle, retry"
	case llm.IsGenerationError(err):
		status, msg = http.StatusServiceUnavailable, "text generation service unavailable"
	}

	entry := logrus.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	c.JSON(status, gin.H{"error": msg})
}
