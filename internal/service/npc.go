package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/game"
	"github.com/robotparty/game-server/internal/generation"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

// NPCScheduler answers rounds on behalf of bots. Every bot gets a detached
// task per round: wait, check the round is still current, generate, wait
// again, check again, post. A result that comes back after the round moved
// on is dropped.
type NPCScheduler struct {
	store     repository.Store
	events    *Events
	generator generation.Generator
	timeout   time.Duration

	rng   game.Rand
	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNPCScheduler(store repository.Store, events *Events, generator generation.Generator, timeout time.Duration) *NPCScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &NPCScheduler{
		store:     store,
		events:    events,
		generator: generator,
		timeout:   timeout,
		rng:       game.DefaultRand,
		now:       time.Now,
		after:     time.After,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *NPCScheduler) ScheduleRound(code string, round model.Round, npcs []model.Participant) {
	if s.ctx.Err() != nil {
		return
	}
	for _, npc := range npcs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.answer(s.ctx, code, round, npc)
		}()
	}
	log.Debug().
		Str("roomCode", code).
		Int("roundNumber", round.RoundNumber).
		Int("npcs", len(npcs)).
		Msg("npc answers scheduled")
}

// Stop cancels pending answers and waits for running tasks to return.
func (s *NPCScheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	log.Info().Msg("npc scheduler stopped")
}

func (s *NPCScheduler) answer(ctx context.Context, code string, round model.Round, npc model.Participant) {
	logger := log.With().
		Str("roomCode", code).
		Int("roundNumber", round.RoundNumber).
		Int64("participantId", npc.ID).
		Logger()

	if !s.sleep(ctx, s.delay(round.EndTime)) {
		return
	}
	fresh, err := s.isCurrent(ctx, s.store.Repos(), round)
	if err != nil {
		logger.Error().Err(err).Msg("npc staleness check failed")
		return
	}
	if !fresh {
		logger.Debug().Msg("round moved on before npc answered")
		return
	}

	prompt, err := s.buildPrompt(ctx, round, npc)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build npc prompt")
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	text, err := s.generator.Generate(genCtx, prompt)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("npc answer generation failed")
		return
	}
	text = generation.Clean(text, game.MaxMessageLength)
	if text == "" {
		logger.Warn().Msg("npc answer generation returned empty text")
		return
	}

	if !s.sleep(ctx, s.delay(round.EndTime)) {
		return
	}

	var view *ChatView
	err = s.store.InTx(ctx, func(r repository.Repos) error {
		if _, err := r.Sessions.LockByID(ctx, round.SessionID); err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		fresh, err := s.isCurrent(ctx, r, round)
		if err != nil || !fresh {
			return err
		}
		msg, err := r.Messages.Create(ctx, model.CreateMessageParams{
			RoundID:       round.ID,
			ParticipantID: &npc.ID,
			Text:          text,
			MessageType:   model.MessageTypeChat,
			SentAt:        s.now(),
		})
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		view, err = buildChat(ctx, r, msg, &npc)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to post npc answer")
		return
	}
	if view == nil {
		logger.Debug().Msg("round moved on while npc was generating")
		return
	}

	logger.Debug().Msg("npc answered")
	s.events.Chat(ctx, code, view)
}

// delay draws a wait from the configured fraction range of the time left
// in the round.
func (s *NPCScheduler) delay(end time.Time) time.Duration {
	remaining := end.Sub(s.now())
	if remaining <= 0 {
		return 0
	}
	frac := game.NPCDelayMinFraction + s.rng.Float64()*(game.NPCDelayMaxFraction-game.NPCDelayMinFraction)
	return time.Duration(frac * float64(remaining))
}

func (s *NPCScheduler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.after(d):
		return true
	}
}

// isCurrent reports whether round is still the one being played.
func (s *NPCScheduler) isCurrent(ctx context.Context, r repository.Repos, round model.Round) (bool, error) {
	sess, err := r.Sessions.FindByID(ctx, round.SessionID)
	if err != nil {
		return false, fmt.Errorf("find session: %w", err)
	}
	if sess == nil || sess.Status != model.SessionStatusInProgress {
		return false, nil
	}
	if sess.CurrentRoundID == nil || *sess.CurrentRoundID != round.ID {
		return false, nil
	}
	return round.Live(s.now()), nil
}

func (s *NPCScheduler) buildPrompt(ctx context.Context, round model.Round, npc model.Participant) (generation.Prompt, error) {
	r := s.store.Repos()
	var prompt generation.Prompt

	if npc.CharacterID == nil {
		return prompt, fmt.Errorf("npc %d has no character", npc.ID)
	}
	character, err := r.Content.FindCharacter(ctx, *npc.CharacterID)
	if err != nil {
		return prompt, fmt.Errorf("find character: %w", err)
	}
	if character == nil {
		return prompt, fmt.Errorf("character %d not found", *npc.CharacterID)
	}
	prompt.CharacterName = character.Name
	prompt.CharacterDescription = character.Description

	if round.QuestionID != nil {
		q, err := r.Content.FindQuestion(ctx, *round.QuestionID)
		if err != nil {
			return prompt, fmt.Errorf("find question: %w", err)
		}
		if q != nil {
			prompt.Question = q.Text
		}
	}

	msgs, err := r.Messages.ListByRound(ctx, round.ID)
	if err != nil {
		return prompt, fmt.Errorf("list messages: %w", err)
	}
	participants, err := r.Participants.ListBySession(ctx, round.SessionID)
	if err != nil {
		return prompt, fmt.Errorf("list participants: %w", err)
	}
	names := make(map[int64]string)
	for _, m := range msgs {
		if m.MessageType != model.MessageTypeChat || m.ParticipantID == nil || *m.ParticipantID == npc.ID {
			continue
		}
		sender := findParticipant(participants, *m.ParticipantID)
		if sender == nil || sender.CharacterID == nil {
			continue
		}
		name, ok := names[*sender.CharacterID]
		if !ok {
			c, err := r.Content.FindCharacter(ctx, *sender.CharacterID)
			if err != nil {
				return prompt, fmt.Errorf("find character: %w", err)
			}
			if c != nil {
				name = c.Name
			}
			names[*sender.CharacterID] = name
		}
		if name == "" {
			continue
		}
		prompt.PeerAnswers = append(prompt.PeerAnswers, generation.PeerAnswer{Name: name, Text: m.Text})
	}
	return prompt, nil
}
