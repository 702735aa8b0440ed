// internal/app/bot_service.go
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Meru-dog/study-group-bot/internal/domain/attendance"
	"github.com/Meru-dog/study-group-bot/internal/domain/chat"
	"github.com/Meru-dog/study-group-bot/internal/domain/occurrence"

	"github.com/sirupsen/logrus"
)

// TopicPrefix is the literal a thread reply must start with to be treated
// as a topic submission.
const TopicPrefix = "テーマ："

// ManualDeclarationCommand re-posts the declaration prompt when sent
// verbatim to the target channel.
const ManualDeclarationCommand = "参加宣言投稿"

// ReactionEvent is a platform-neutral reaction added/removed event.
type ReactionEvent struct {
	UserID         string
	Reaction       string
	EventTimestamp string
	ItemType       string
	ItemChannel    string
	ItemTimestamp  string
}

// MessageEvent is a platform-neutral channel message event.
type MessageEvent struct {
	SubType         string
	Channel         string
	UserID          string
	Text            string
	ThreadTimestamp string
}

// BotService owns the attendance workflow: posting declaration prompts,
// correlating inbound events against registered prompts, reconciling the
// speaker roster, and composing summaries. Constructed once at startup; the
// display-name cache lives here for the process lifetime.
type BotService struct {
	store      occurrence.Store
	repo       attendance.Repository
	chatClient chat.Client
	clock      occurrence.Clock
	logger     *logrus.Entry
	channelID  string
	meetURL    string

	nameMu    sync.Mutex
	nameCache map[string]string
}

func NewBotService(
	store occurrence.Store,
	repo attendance.Repository,
	chatClient chat.Client,
	clock occurrence.Clock,
	logger *logrus.Entry,
	channelID string,
	meetURL string,
) *BotService {
	return &BotService{
		store:      store,
		repo:       repo,
		chatClient: chatClient,
		clock:      clock,
		logger:     logger,
		channelID:  channelID,
		meetURL:    meetURL,
		nameCache:  make(map[string]string),
	}
}

func (s *BotService) today() occurrence.Key {
	return occurrence.KeyFor(s.clock.Now())
}

// PostDeclaration posts the declaration prompt and registers it for today's
// occurrence, overwriting any prior registration. It deliberately carries no
// "already posted" guard: repeated manual triggers produce repeated prompts.
func (s *BotService) PostDeclaration() error {
	key := s.today()
	timestamp, err := s.chatClient.PostMessage(s.channelID, declarationText(s.meetURL))
	if err != nil {
		s.logger.WithError(err).Error("Failed to post declaration message")
		return err
	}
	if err := s.store.SetPrompt(key, occurrence.PromptRef{Channel: s.channelID, Timestamp: timestamp}); err != nil {
		s.logger.WithError(err).Errorf("Failed to persist declaration message for %s", key)
		return err
	}
	s.logger.Infof("Declaration message posted for %s", key)
	return nil
}

// EnsureDeclarationPosted re-posts the declaration only when we are inside
// today's posting window and no prompt is registered yet. The check and the
// send are not atomic: two trigger sources firing together can both observe
// "not posted" and both post.
func (s *BotService) EnsureDeclarationPosted() error {
	now := s.clock.Now().In(occurrence.JST)
	switch now.Weekday() {
	case time.Monday, time.Wednesday, time.Friday:
	default:
		return nil
	}
	if now.Hour() < 9 {
		return nil
	}
	if _, ok := s.store.Prompt(occurrence.KeyFor(now)); ok {
		return nil
	}
	return s.PostDeclaration()
}

// displayName resolves and caches a participant's display name. The cache is
// never invalidated for the process lifetime.
func (s *BotService) displayName(userID string) (string, error) {
	s.nameMu.Lock()
	if name, ok := s.nameCache[userID]; ok {
		s.nameMu.Unlock()
		return name, nil
	}
	s.nameMu.Unlock()

	name, err := s.chatClient.DisplayName(userID)
	if err != nil {
		return "", err
	}

	s.nameMu.Lock()
	s.nameCache[userID] = name
	s.nameMu.Unlock()
	return name, nil
}

// HandleReaction routes a reaction added/removed event. Reactions on
// messages we never posted resolve to no occurrence and are dropped without
// side effects.
func (s *BotService) HandleReaction(ctx context.Context, ev ReactionEvent, added bool) {
	if ev.ItemType != "message" {
		return
	}
	key, ok := s.store.ResolvePrompt(ev.ItemChannel, ev.ItemTimestamp)
	if !ok {
		return
	}

	if status, known := attendance.ReactionStatuses[ev.Reaction]; known && added {
		name, err := s.displayName(ev.UserID)
		if err != nil {
			s.logger.WithError(err).Errorf("Failed to resolve display name for %s, dropping reaction", ev.UserID)
			return
		}
		if err := s.repo.UpsertAttendance(ctx, string(key), ev.UserID, name, status); err != nil {
			s.logger.WithError(err).Errorf("Failed to upsert attendance for %s on %s", ev.UserID, key)
			return
		}
		s.refreshSpeakerFlags(ctx, key)
		return
	}

	if ev.Reaction == attendance.SpeakerReaction {
		var err error
		if added {
			err = s.store.AddSpeakerRequest(key, ev.UserID, ev.EventTimestamp)
		} else {
			err = s.store.RemoveSpeakerRequest(key, ev.UserID)
		}
		if err != nil {
			s.logger.WithError(err).Errorf("Failed to persist speaker toggle for %s on %s", ev.UserID, key)
		}
		s.refreshSpeakerFlags(ctx, key)
	}
}

// refreshSpeakerFlags pushes the full speaker-flag column for the occurrence
// from the current derived roster. Always a full resync, never an
// incremental patch, so a missed earlier update heals on the next call.
func (s *BotService) refreshSpeakerFlags(ctx context.Context, key occurrence.Key) {
	speakers := s.store.Speakers(key)
	if err := s.repo.UpdateSpeakerFlags(ctx, string(key), speakers); err != nil {
		s.logger.WithError(err).Errorf("Failed to update speaker flags for %s", key)
	}
}

// HandleMessage routes a channel message event: the manual declaration
// command and topic submissions in the declaration thread. Messages with a
// subtype (edits, joins, bot posts) are ignored.
func (s *BotService) HandleMessage(ctx context.Context, ev MessageEvent) {
	if ev.SubType != "" {
		return
	}
	s.handleManualCommand(ev)
	s.handleThreadMessage(ctx, ev)
}

func normalizeCommand(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "　", " "))
}

func (s *BotService) handleManualCommand(ev MessageEvent) {
	if ev.Channel == "" || ev.Channel != s.channelID {
		return
	}
	if normalizeCommand(ev.Text) != ManualDeclarationCommand {
		return
	}
	s.logger.Infof("Manual declaration command received from %s", ev.UserID)
	if err := s.PostDeclaration(); err != nil {
		return
	}
	if _, err := s.chatClient.PostMessage(ev.Channel, "参加宣言投稿を実行しました。"); err != nil {
		s.logger.WithError(err).Error("Failed to post manual command confirmation")
	}
}

// handleThreadMessage accepts a topic submission only from a participant
// currently in the derived top speaker roster; everyone else is silently
// dropped, even if they were on the roster earlier the same day.
func (s *BotService) handleThreadMessage(ctx context.Context, ev MessageEvent) {
	if ev.ThreadTimestamp == "" {
		return
	}
	key, ok := s.store.ResolvePrompt(ev.Channel, ev.ThreadTimestamp)
	if !ok {
		return
	}
	if !strings.HasPrefix(ev.Text, TopicPrefix) {
		return
	}

	onRoster := false
	for _, id := range s.store.Speakers(key) {
		if id == ev.UserID {
			onRoster = true
			break
		}
	}
	if !onRoster {
		return
	}

	topic := strings.TrimSpace(strings.TrimPrefix(ev.Text, TopicPrefix))
	if topic == "" {
		return
	}
	if err := s.repo.UpdateTopic(ctx, string(key), ev.UserID, topic); err != nil {
		s.logger.WithError(err).Errorf("Failed to update topic for %s on %s", ev.UserID, key)
	}
}

// PostSummary posts the mid-window attendance summary. Nothing recorded for
// today means nothing to summarize.
func (s *BotService) PostSummary(ctx context.Context) error {
	key := s.today()
	records, err := s.repo.ListByDate(ctx, string(key))
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to read records for summary on %s", key)
		return err
	}
	if len(records) == 0 {
		return nil
	}
	if _, err := s.chatClient.PostMessage(s.channelID, summaryText(records, s.meetURL)); err != nil {
		s.logger.WithError(err).Error("Failed to post summary message")
		return err
	}
	s.logger.Infof("Summary message posted for %s", key)
	return nil
}

// PostStart posts the session-start announcement with the speaker lineup.
func (s *BotService) PostStart(ctx context.Context) error {
	key := s.today()
	records, err := s.repo.ListByDate(ctx, string(key))
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to read records for start message on %s", key)
		return err
	}
	if _, err := s.chatClient.PostMessage(s.channelID, startText(records, s.meetURL)); err != nil {
		s.logger.WithError(err).Error("Failed to post start message")
		return err
	}
	s.logger.Infof("Start message posted for %s", key)
	return nil
}
