package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/game"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

// RoundScheduler is told about every new round so bots can answer it.
type RoundScheduler interface {
	ScheduleRound(code string, round model.Round, npcs []model.Participant)
}

// RoundService drives a session through its rounds: the host starts the
// game, the advancer opens rounds until the last one ends, and the finalizer
// scores the game once the guessing deadline passes.
type RoundService struct {
	store  repository.Store
	events *Events
	npcs   RoundScheduler
	rng    game.Rand
	now    func() time.Time
}

func NewRoundService(store repository.Store, events *Events, npcs RoundScheduler) *RoundService {
	return &RoundService{
		store:  store,
		events: events,
		npcs:   npcs,
		rng:    game.DefaultRand,
		now:    time.Now,
	}
}

// openedRound is what a transaction that created a round hands to the
// post-commit side effects.
type openedRound struct {
	session model.Session
	round   model.Round
	npcs    []model.Participant
}

func (s *RoundService) Start(ctx context.Context, code string, creds Credentials) (*RoundView, error) {
	var opened *openedRound
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		actor, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		participants, err := r.Participants.ListBySession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		links, err := sessionQuestionLinks(ctx, r, sess.ID)
		if err != nil {
			return err
		}

		check := game.CheckStart(game.StartInput{
			Actor:             actor,
			Session:           sess,
			Participants:      participants,
			DistinctQuestions: game.DistinctQuestions(links),
		})
		if err := check.Err(); err != nil {
			return err
		}

		round, err := s.openRound(ctx, r, sess, 1, links)
		if err != nil {
			return err
		}
		ok, err := r.Sessions.MarkStarted(ctx, sess.ID, round.ID)
		if err != nil {
			return fmt.Errorf("mark started: %w", err)
		}
		if !ok {
			return apperrors.InvalidState("Game has already started")
		}
		sess.Status = model.SessionStatusInProgress
		sess.CurrentRoundID = &round.ID

		opened = &openedRound{session: *sess, round: *round, npcs: answeringNPCs(participants)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("roomCode", opened.session.Code).
		Int("roundCount", opened.session.RoundCount).
		Msg("game started")

	s.afterRoundOpened(ctx, opened)
	return buildRound(ctx, s.store.Repos(), &opened.session, &opened.round)
}

// AdvanceRounds runs one advancer pass over every in-progress session.
// A failing session is logged and does not stop the pass.
func (s *RoundService) AdvanceRounds(ctx context.Context) error {
	sessions, err := s.store.Repos().Sessions.ListByStatus(ctx, model.SessionStatusInProgress)
	if err != nil {
		return fmt.Errorf("list in-progress sessions: %w", err)
	}
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.AdvanceSession(ctx, sess.ID); err != nil {
			log.Error().
				Err(err).
				Str("roomCode", sess.Code).
				Msg("failed to advance session")
		}
	}
	return nil
}

// AdvanceSession moves one session forward if its latest round has ended:
// either into the next round or, after the last one, into guessing. Calling it
// again before anything is due is a no-op.
func (s *RoundService) AdvanceSession(ctx context.Context, sessionID int64) error {
	var (
		opened   *openedRound
		guessing *model.Session
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := r.Sessions.LockByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if sess == nil || sess.Status != model.SessionStatusInProgress {
			return nil
		}

		now := s.now()
		latest, err := r.Rounds.FindLatest(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("find latest round: %w", err)
		}
		next := 1
		if latest != nil {
			if latest.Live(now) {
				return nil
			}
			next = latest.RoundNumber + 1
		}

		if next > sess.RoundCount {
			deadline := now.Add(sess.GuessDuration())
			ok, err := r.Sessions.MarkGuessing(ctx, sess.ID, deadline)
			if err != nil {
				return fmt.Errorf("mark guessing: %w", err)
			}
			if ok {
				sess.Status = model.SessionStatusGuessing
				sess.GuessDeadline = &deadline
				guessing = sess
			}
			return nil
		}

		links, err := sessionQuestionLinks(ctx, r, sess.ID)
		if err != nil {
			return err
		}
		round, err := s.openRound(ctx, r, sess, next, links)
		if err != nil {
			return err
		}
		if err := r.Sessions.SetCurrentRound(ctx, sess.ID, round.ID); err != nil {
			return fmt.Errorf("set current round: %w", err)
		}
		sess.CurrentRoundID = &round.ID

		participants, err := r.Participants.ListBySession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		opened = &openedRound{session: *sess, round: *round, npcs: answeringNPCs(participants)}
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		log.Debug().Int64("sessionId", sessionID).Msg("round already opened by another worker")
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case opened != nil:
		log.Info().
			Str("roomCode", opened.session.Code).
			Int("roundNumber", opened.round.RoundNumber).
			Msg("round started")
		s.afterRoundOpened(ctx, opened)
	case guessing != nil:
		log.Info().
			Str("roomCode", guessing.Code).
			Time("guessDeadline", *guessing.GuessDeadline).
			Msg("guessing started")
		s.events.Lobby(ctx, guessing.ID)
	}
	return nil
}

// openRound inserts round n with a fresh question and its announcement.
func (s *RoundService) openRound(ctx context.Context, r repository.Repos, sess *model.Session, n int, links []model.CollectionQuestion) (*model.Round, error) {
	used, err := r.Rounds.UsedQuestionIDs(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list used questions: %w", err)
	}
	questionID := game.PickQuestion(s.rng, links, used)

	now := s.now()
	round, err := r.Rounds.Create(ctx, model.CreateRoundParams{
		SessionID:   sess.ID,
		RoundNumber: n,
		QuestionID:  questionID,
		StartTime:   now,
		EndTime:     now.Add(sess.RoundDuration()),
	})
	if err != nil {
		return nil, fmt.Errorf("create round %d: %w", n, err)
	}

	text := fmt.Sprintf("Round %d of %d has started", n, sess.RoundCount)
	if questionID != nil {
		q, err := r.Content.FindQuestion(ctx, *questionID)
		if err != nil {
			return nil, fmt.Errorf("find question: %w", err)
		}
		if q != nil {
			text = fmt.Sprintf("Round %d of %d: %s", n, sess.RoundCount, q.Text)
		}
	}
	if _, err := r.Messages.Create(ctx, model.CreateMessageParams{
		RoundID:     round.ID,
		Text:        text,
		MessageType: model.MessageTypeSystem,
		SentAt:      now,
	}); err != nil {
		return nil, fmt.Errorf("create round announcement: %w", err)
	}
	return round, nil
}

func (s *RoundService) afterRoundOpened(ctx context.Context, opened *openedRound) {
	s.events.Lobby(ctx, opened.session.ID)
	s.events.Round(ctx, &opened.session, &opened.round)
	if s.npcs != nil && len(opened.npcs) > 0 {
		s.npcs.ScheduleRound(opened.session.Code, opened.round, opened.npcs)
	}
}

// FinalizeGames scores every session whose guessing deadline has passed.
func (s *RoundService) FinalizeGames(ctx context.Context) error {
	sessions, err := s.store.Repos().Sessions.ListGuessingDue(ctx, s.now())
	if err != nil {
		return fmt.Errorf("list due sessions: %w", err)
	}
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.FinalizeSession(ctx, sess.ID); err != nil {
			log.Error().
				Err(err).
				Str("roomCode", sess.Code).
				Msg("failed to finalize session")
		}
	}
	return nil
}

// FinalizeSession persists every participant's points and completes the
// session. Only a session still guessing past its deadline is touched.
func (s *RoundService) FinalizeSession(ctx context.Context, sessionID int64) error {
	var result *ResultView
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := r.Sessions.LockByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if sess == nil || sess.Status != model.SessionStatusGuessing {
			return nil
		}
		if sess.GuessDeadline != nil && s.now().Before(*sess.GuessDeadline) {
			return nil
		}

		in, err := loadScoreInput(ctx, r, sess.ID)
		if err != nil {
			return err
		}
		breakdowns := game.Score(in)
		for _, b := range breakdowns {
			if err := r.Participants.SetPoints(ctx, b.ParticipantID, b.Total); err != nil {
				return fmt.Errorf("set points: %w", err)
			}
		}

		ok, err := r.Sessions.MarkCompleted(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		if !ok {
			return nil
		}
		result = &ResultView{Code: sess.Code, Players: breakdowns}
		return nil
	})
	if err != nil || result == nil {
		return err
	}

	log.Info().
		Str("roomCode", result.Code).
		Int("players", len(result.Players)).
		Msg("game completed")
	s.events.Result(ctx, result)
	s.events.Lobby(ctx, sessionID)
	return nil
}

func sessionQuestionLinks(ctx context.Context, r repository.Repos, sessionID int64) ([]model.CollectionQuestion, error) {
	collectionIDs, err := r.Sessions.ListCollectionIDs(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session collections: %w", err)
	}
	if len(collectionIDs) == 0 {
		return nil, nil
	}
	links, err := r.Content.ListCollectionQuestions(ctx, collectionIDs)
	if err != nil {
		return nil, fmt.Errorf("list collection questions: %w", err)
	}
	return links, nil
}

// answeringNPCs returns the bots that answer each round.
func answeringNPCs(participants []model.Participant) []model.Participant {
	var out []model.Participant
	for _, p := range participants {
		if p.IsNPC && p.IsActive && p.HasCharacter() {
			out = append(out, p)
		}
	}
	return out
}
