package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/audit"
	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/game"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

type ChatService struct {
	store       repository.Store
	events      *Events
	limiter     Limiter
	limitPerMin int
	now         func() time.Time
}

func NewChatService(store repository.Store, events *Events, limiter Limiter, limitPerMin int) *ChatService {
	return &ChatService{
		store:       store,
		events:      events,
		limiter:     limiter,
		limitPerMin: limitPerMin,
		now:         time.Now,
	}
}

// Send posts a chat answer into the session's live round.
func (s *ChatService) Send(ctx context.Context, code string, creds Credentials, text string) (*ChatView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.MissingRequired("text")
	}
	if utf8.RuneCountInString(text) > game.MaxMessageLength {
		return nil, apperrors.InvalidInput("text", fmt.Sprintf("must be at most %d characters", game.MaxMessageLength))
	}

	var (
		view     *ChatView
		roomCode string
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		roomCode = sess.Code
		actor, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		if !actor.IsActive {
			return apperrors.Forbidden("You are no longer in this room")
		}
		if sess.Status != model.SessionStatusInProgress || sess.CurrentRoundID == nil {
			return apperrors.InvalidState("Game is not in progress")
		}

		now := s.now()
		round, err := r.Rounds.FindByID(ctx, *sess.CurrentRoundID)
		if err != nil {
			return fmt.Errorf("find round: %w", err)
		}
		if round == nil || !round.Live(now) {
			return apperrors.RoundNotActive()
		}

		if s.limiter != nil {
			key := fmt.Sprintf("chat:%s:%d", sess.Code, actor.ID)
			if allowed, _ := s.limiter.CheckLimit(ctx, key, s.limitPerMin, time.Minute); !allowed {
				audit.Log(ctx, audit.Event{
					Type:          audit.EventRateLimitExceed,
					RoomCode:      sess.Code,
					ParticipantID: actor.ID,
					Details:       map[string]interface{}{"scope": "chat"},
				})
				return apperrors.RateLimitExceeded()
			}
		}

		msg, err := r.Messages.Create(ctx, model.CreateMessageParams{
			RoundID:       round.ID,
			ParticipantID: &actor.ID,
			Text:          text,
			MessageType:   model.MessageTypeChat,
			SentAt:        now,
		})
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		view, err = buildChat(ctx, r, msg, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("roomCode", roomCode).
		Int64("participantId", creds.ParticipantID).
		Msg("chat message sent")
	s.events.Chat(ctx, roomCode, view)
	return view, nil
}

// History returns the messages of the session's current round.
func (s *ChatService) History(ctx context.Context, code string) ([]ChatView, error) {
	r := s.store.Repos()
	sess, err := findSession(ctx, r, code)
	if err != nil {
		return nil, err
	}
	out := []ChatView{}
	if sess.CurrentRoundID == nil {
		return out, nil
	}

	msgs, err := r.Messages.ListByRound(ctx, *sess.CurrentRoundID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	participants, err := r.Participants.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	for i := range msgs {
		var sender *model.Participant
		if msgs[i].ParticipantID != nil {
			sender = findParticipant(participants, *msgs[i].ParticipantID)
		}
		view, err := buildChat(ctx, r, &msgs[i], sender)
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}
