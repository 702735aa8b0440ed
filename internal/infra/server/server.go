package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Meru-dog/study-group-bot/internal/app"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// Handler exposes the Slack events endpoint and the health check. Events
// are verified, translated to platform-neutral app events, and dispatched
// synchronously so the store's lock provides a single processing lane.
type Handler struct {
	bot           *app.BotService
	signingSecret string
	logger        *logrus.Entry
}

func New(bot *app.BotService, signingSecret string, logger *logrus.Entry) *Handler {
	return &Handler{bot: bot, signingSecret: signingSecret, logger: logger}
}

func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/slack/events", h.slackEvents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (h *Handler) slackEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read event request body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	verifier, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		h.logger.WithError(err).Warn("Rejecting event request with invalid signature headers")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if _, err := verifier.Write(body); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := verifier.Ensure(); err != nil {
		h.logger.Warn("Rejecting event request with bad signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.WithError(err).Error("Failed to parse Slack event")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
		return
	case slackevents.CallbackEvent:
		h.dispatch(r, event)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) dispatch(r *http.Request, event slackevents.EventsAPIEvent) {
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.ReactionAddedEvent:
		h.bot.HandleReaction(r.Context(), reactionEvent(ev.User, ev.Reaction, ev.EventTimestamp, ev.Item), true)
		h.logger.Debug("processed reaction_added")
	case *slackevents.ReactionRemovedEvent:
		h.bot.HandleReaction(r.Context(), reactionEvent(ev.User, ev.Reaction, ev.EventTimestamp, ev.Item), false)
		h.logger.Debug("processed reaction_removed")
	case *slackevents.MessageEvent:
		h.bot.HandleMessage(r.Context(), app.MessageEvent{
			SubType:         ev.SubType,
			Channel:         ev.Channel,
			UserID:          ev.User,
			Text:            ev.Text,
			ThreadTimestamp: ev.ThreadTimeStamp,
		})
		h.logger.Debug("processed message event")
	}
}

func reactionEvent(user, reaction, eventTS string, item slackevents.Item) app.ReactionEvent {
	return app.ReactionEvent{
		UserID:         user,
		Reaction:       reaction,
		EventTimestamp: eventTS,
		ItemType:       item.Type,
		ItemChannel:    item.Channel,
		ItemTimestamp:  item.Timestamp,
	}
}

// NewUnavailable returns the degraded handler used when configuration or
// startup failed: the event endpoint answers 503 with the startup error
// instead of the process crashing on every delivery.
func NewUnavailable(startupErr error) *http.ServeMux {
	message := startupErr.Error()
	mux := http.NewServeMux()
	mux.HandleFunc("/slack/events", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, message, http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, message, http.StatusInternalServerError)
	})
	return mux
}
