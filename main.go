package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"storyforge/internal/api"
	"storyforge/internal/auth"
	"storyforge/internal/config"
	"storyforge/internal/llm"
	"storyforge/internal/service"
	"storyforge/internal/store"
	"storyforge/internal/story"
	"storyforge/internal/tools"
	"storyforge/internal/workflow"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logFile, err := config.InitLogging(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialise logging")
	}
	if logFile != nil {
		defer logFile.Close()
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	generator, err := llm.NewClientFromConfig(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create generation client")
	}

	creation, err := story.NewCreationGraph(generator, workflow.WithMaxSteps(cfg.WorkflowMaxSteps))
	if err != nil {
		logrus.WithError(err).Fatal("failed to build creation workflow")
	}
	continuation, err := story.NewContinuationGraph(generator, workflow.WithMaxSteps(cfg.WorkflowMaxSteps))
	if err != nil {
		logrus.WithError(err).Fatal("failed to build continuation workflow")
	}

	repo, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open story store")
	}
	defer repo.Close()

	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	handler := api.NewHandler(
		service.NewStoryService(repo, creation, continuation),
		service.NewUserService(repo, tokens),
		tokens,
		tools.NewStoryTool(creation),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":     cfg.Addr,
			"provider": cfg.LLMProvider,
			"store":    store.DetectDSNType(cfg.DatabaseURL),
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server shutdown failed")
	}
	logrus.Info("server stopped")
}
