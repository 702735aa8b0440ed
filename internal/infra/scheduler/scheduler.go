package scheduler

import (
	"context"
	"time"

	"github.com/Meru-dog/study-group-bot/internal/app"
	"github.com/Meru-dog/study-group-bot/internal/domain/occurrence"
	"github.com/Meru-dog/study-group-bot/internal/infra/config"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MeetingScheduler drives the recurring workflow: the declaration prompt,
// the self-healing re-post check, the mid-window summary, and the
// session-start announcement. All specs are evaluated in JST.
type MeetingScheduler struct {
	cronEngine *cron.Cron
	bot        *app.BotService
	logger     *logrus.Entry

	specDeclaration string
	specEnsureCheck string
	specSummary     string
	specStart       string
}

func NewMeetingScheduler(bot *app.BotService, cfg *config.AppConfig, logger *logrus.Entry) *MeetingScheduler {
	return &MeetingScheduler{
		cronEngine:      cron.New(cron.WithLocation(occurrence.JST)),
		bot:             bot,
		logger:          logger,
		specDeclaration: cfg.CronSpecDeclaration,
		specEnsureCheck: cfg.CronSpecEnsureCheck,
		specSummary:     cfg.CronSpecSummary,
		specStart:       cfg.CronSpecStart,
	}
}

func (s *MeetingScheduler) Start() {
	s.logger.Info("Starting meeting scheduler...")

	// Morning declaration prompt on meeting days.
	_, err := s.cronEngine.AddFunc(s.specDeclaration, func() {
		s.logger.Info("Cron job triggered for declaration prompt.")
		if err := s.bot.PostDeclaration(); err != nil {
			s.logger.WithError(err).Error("Error posting scheduled declaration")
		}
	})
	if err != nil {
		s.logger.Fatalf("Could not add declaration cron job: %v", err)
	}

	// Short-interval self-healing check: re-posts only when inside the
	// posting window and nothing is registered for today.
	_, err = s.cronEngine.AddFunc(s.specEnsureCheck, func() {
		if err := s.bot.EnsureDeclarationPosted(); err != nil {
			s.logger.WithError(err).Error("Error during declaration ensure check")
		}
	})
	if err != nil {
		s.logger.Fatalf("Could not add ensure-check cron job: %v", err)
	}

	// Mid-window summary.
	_, err = s.cronEngine.AddFunc(s.specSummary, func() {
		s.logger.Info("Cron job triggered for summary message.")
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		if err := s.bot.PostSummary(ctx); err != nil {
			s.logger.WithError(err).Error("Error posting summary")
		}
	})
	if err != nil {
		s.logger.Fatalf("Could not add summary cron job: %v", err)
	}

	// Session-start announcement.
	_, err = s.cronEngine.AddFunc(s.specStart, func() {
		s.logger.Info("Cron job triggered for start message.")
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		if err := s.bot.PostStart(ctx); err != nil {
			s.logger.WithError(err).Error("Error posting start message")
		}
	})
	if err != nil {
		s.logger.Fatalf("Could not add start-message cron job: %v", err)
	}

	s.cronEngine.Start()
	s.logger.Info("Meeting scheduler started with jobs.")
}

func (s *MeetingScheduler) Stop() {
	s.logger.Info("Stopping meeting scheduler...")
	ctx := s.cronEngine.Stop() // Stops scheduling new runs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Meeting scheduler gracefully stopped.")
}
