package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/pubsub"
	"github.com/robotparty/game-server/internal/repository"
)

// Events publishes room updates after the writing transaction committed.
// Publishing is best effort: failures are logged and never reach the caller.
type Events struct {
	store     repository.Store
	publisher Publisher
}

func NewEvents(store repository.Store, publisher Publisher) *Events {
	return &Events{store: store, publisher: publisher}
}

func (e *Events) publish(ctx context.Context, code string, eventType pubsub.EventType, payload any) {
	event, err := pubsub.NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("roomCode", code).Msg("failed to encode room event")
		return
	}
	if err := e.publisher.Publish(ctx, code, event); err != nil {
		log.Warn().
			Err(err).
			Str("roomCode", code).
			Str("eventType", string(eventType)).
			Msg("failed to publish room event")
	}
}

// Lobby re-reads the session and publishes its lobby snapshot.
func (e *Events) Lobby(ctx context.Context, sessionID int64) {
	r := e.store.Repos()
	sess, err := r.Sessions.FindByID(ctx, sessionID)
	if err != nil || sess == nil {
		if err != nil {
			log.Error().Err(err).Int64("sessionId", sessionID).Msg("failed to load session for lobby update")
		}
		return
	}
	view, err := buildLobby(ctx, r, sess)
	if err != nil {
		log.Error().Err(err).Str("roomCode", sess.Code).Msg("failed to build lobby update")
		return
	}
	e.publish(ctx, sess.Code, pubsub.EventLobbyUpdate, view)
}

func (e *Events) Round(ctx context.Context, sess *model.Session, round *model.Round) {
	view, err := buildRound(ctx, e.store.Repos(), sess, round)
	if err != nil {
		log.Error().Err(err).Str("roomCode", sess.Code).Msg("failed to build round update")
		return
	}
	e.publish(ctx, sess.Code, pubsub.EventRoundUpdate, view)
}

func (e *Events) Chat(ctx context.Context, code string, view *ChatView) {
	e.publish(ctx, code, pubsub.EventChatUpdate, view)
}

func (e *Events) Result(ctx context.Context, view *ResultView) {
	e.publish(ctx, view.Code, pubsub.EventGameResult, view)
}
