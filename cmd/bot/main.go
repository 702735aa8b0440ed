package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Meru-dog/study-group-bot/internal/app"
	"github.com/Meru-dog/study-group-bot/internal/domain/attendance"
	"github.com/Meru-dog/study-group-bot/internal/domain/occurrence"
	"github.com/Meru-dog/study-group-bot/internal/infra/config"
	"github.com/Meru-dog/study-group-bot/internal/infra/logger"
	"github.com/Meru-dog/study-group-bot/internal/infra/scheduler"
	"github.com/Meru-dog/study-group-bot/internal/infra/server"
	"github.com/Meru-dog/study-group-bot/internal/infra/sheets"
	"github.com/Meru-dog/study-group-bot/internal/infra/slackclient"
	"github.com/Meru-dog/study-group-bot/internal/infra/state"

	"github.com/slack-go/slack"
)

func main() {
	fmt.Println("Study Group Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		// Keep serving so the platform health checks and Slack retries get
		// an explicit 503 instead of connection failures.
		logger.Get().WithError(err).Error("Could not load application configuration, running in degraded mode")
		runServer(cfg, server.NewUnavailable(err))
		return
	}

	logger.Init(cfg)
	mainLog := logger.Get().WithField("component", "main")
	mainLog.Infof("Configuration loaded. LogLevel: %s, Environment: %s, Channel: %s", cfg.LogLevel, cfg.Environment, cfg.SlackChannelID)

	// Durable correlation state.
	store, err := state.NewJSONStore(cfg.StatePath)
	if err != nil {
		mainLog.WithError(err).Error("Could not load state store, running in degraded mode")
		runServer(cfg, server.NewUnavailable(err))
		return
	}
	mainLog.Infof("State store loaded from %s", cfg.StatePath)

	// Attendance sheet gateway: live when credentials work, disabled
	// fallback otherwise. Selected once; never re-evaluated at runtime.
	var repo attendance.Repository
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sheetsRepo, err := sheets.NewRepository(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleServiceAccountJSON, logger.Get().WithField("component", "sheets"))
	cancel()
	if err != nil {
		mainLog.WithError(err).Error("Google Sheets disabled")
		repo = sheets.NewDisabledRepository(logger.Get().WithField("component", "sheets"))
	} else {
		repo = sheetsRepo
		mainLog.Info("Google Sheets repository initialized.")
	}

	chatClient := slackclient.NewAdapter(slack.New(cfg.SlackBotToken))
	mainLog.Info("Slack client initialized.")

	bot := app.NewBotService(
		store,
		repo,
		chatClient,
		occurrence.SystemClock{},
		logger.Get().WithField("component", "bot"),
		cfg.SlackChannelID,
		cfg.MeetURL,
	)
	mainLog.Info("Bot service initialized.")

	meetingScheduler := scheduler.NewMeetingScheduler(bot, cfg, logger.Get().WithField("component", "scheduler"))
	meetingScheduler.Start()
	defer meetingScheduler.Stop()

	handler := server.New(bot, cfg.SlackSigningSecret, logger.Get().WithField("component", "server"))
	mainLog.Info("Application setup complete. Server and scheduler are starting...")
	runServer(cfg, handler.Mux())
}

// runServer serves HTTP until SIGINT/SIGTERM, then shuts down gracefully.
func runServer(cfg *config.AppConfig, mux *http.ServeMux) {
	port := "3000"
	if cfg != nil && cfg.Port != "" {
		port = cfg.Port
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Get().WithError(err).Fatal("HTTP server failed")
		}
	}()
	logger.Get().Infof("HTTP server listening on :%s", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Get().Info("Shutting down application...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Get().WithError(err).Error("HTTP server shutdown error")
	}
	logger.Get().Info("Application shut down gracefully.")
}
