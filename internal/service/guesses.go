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

type GuessService struct {
	store repository.Store
	now   func() time.Time
}

func NewGuessService(store repository.Store) *GuessService {
	return &GuessService{store: store, now: time.Now}
}

// Submit stores a batch of guesses. The batch is validated as a whole; a
// repeated guess on the same player overwrites the earlier one.
func (s *GuessService) Submit(ctx context.Context, code string, creds Credentials, entries []game.GuessEntry) ([]model.Guess, error) {
	var saved []model.Guess
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		actor, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		if sess.Status != model.SessionStatusGuessing {
			return apperrors.InvalidState("Guessing is not open")
		}
		if sess.GuessDeadline != nil && !s.now().Before(*sess.GuessDeadline) {
			return apperrors.DeadlinePassed()
		}
		if !actor.IsActive {
			return apperrors.Forbidden("You are no longer in this room")
		}

		participants, err := r.Participants.ListBySession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		if err := game.ValidateGuesses(actor, participants, entries); err != nil {
			return err
		}

		saved = make([]model.Guess, 0, len(entries))
		for _, e := range entries {
			target := findParticipant(participants, e.ParticipantID)
			correct := game.IsCorrect(target, e.CharacterID, participants)

			g, err := upsertGuess(ctx, r, sess.ID, actor.ID, e, correct)
			if err != nil {
				return err
			}
			saved = append(saved, *g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("roomCode", code).
		Int64("participantId", creds.ParticipantID).
		Int("guesses", len(saved)).
		Msg("guesses submitted")
	return saved, nil
}

func upsertGuess(ctx context.Context, r repository.Repos, sessionID, guesserID int64, e game.GuessEntry, correct bool) (*model.Guess, error) {
	existing, err := r.Guesses.FindByPair(ctx, guesserID, e.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("find guess: %w", err)
	}
	if existing == nil {
		g, err := r.Guesses.Create(ctx, model.CreateGuessParams{
			SessionID:   sessionID,
			GuesserID:   guesserID,
			GuessedID:   e.ParticipantID,
			CharacterID: e.CharacterID,
			IsCorrect:   correct,
		})
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("Guess was submitted concurrently, try again")
		}
		if err != nil {
			return nil, fmt.Errorf("create guess: %w", err)
		}
		return g, nil
	}
	if existing.CharacterID == e.CharacterID {
		return existing, nil
	}
	g, err := r.Guesses.Update(ctx, existing.ID, e.CharacterID, correct)
	if err != nil {
		return nil, fmt.Errorf("update guess: %w", err)
	}
	return g, nil
}

type GuessTarget struct {
	ParticipantID int64  `json:"participantId"`
	Name          string `json:"name"`
}

type GuessOptions struct {
	Participants []GuessTarget     `json:"participants"`
	Characters   []model.Character `json:"characters"`
	Deadline     *time.Time        `json:"guessDeadline,omitempty"`
	MyGuesses    []game.GuessEntry `json:"myGuesses"`
}

// Options lists who can be guessed and which characters are in play, leaving
// out the caller and the caller's own character.
func (s *GuessService) Options(ctx context.Context, code string, creds Credentials) (*GuessOptions, error) {
	var opts *GuessOptions
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		actor, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		if sess.Status != model.SessionStatusGuessing {
			return apperrors.InvalidState("Guessing is not open")
		}

		participants, err := r.Participants.ListBySession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}

		opts = &GuessOptions{
			Participants: []GuessTarget{},
			Characters:   []model.Character{},
			Deadline:     sess.GuessDeadline,
			MyGuesses:    []game.GuessEntry{},
		}
		seen := make(map[int64]struct{})
		for _, p := range participants {
			if p.ID == actor.ID || !p.IsActive || !p.HasCharacter() {
				continue
			}
			opts.Participants = append(opts.Participants, GuessTarget{ParticipantID: p.ID, Name: p.DisplayName})

			charID := *p.CharacterID
			if actor.CharacterID != nil && *actor.CharacterID == charID {
				continue
			}
			if _, dup := seen[charID]; dup {
				continue
			}
			seen[charID] = struct{}{}
			c, err := r.Content.FindCharacter(ctx, charID)
			if err != nil {
				return fmt.Errorf("find character: %w", err)
			}
			if c != nil {
				opts.Characters = append(opts.Characters, *c)
			}
		}

		guesses, err := r.Guesses.ListBySession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list guesses: %w", err)
		}
		for _, g := range guesses {
			if g.GuesserID == actor.ID {
				opts.MyGuesses = append(opts.MyGuesses, game.GuessEntry{ParticipantID: g.GuessedID, CharacterID: g.CharacterID})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opts, nil
}

// Results recomputes the scoreboard of a completed game.
func (s *GuessService) Results(ctx context.Context, code string) (*ResultView, error) {
	r := s.store.Repos()
	sess, err := findSession(ctx, r, code)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionStatusCompleted {
		return nil, apperrors.InvalidState("Game has not finished yet")
	}
	in, err := loadScoreInput(ctx, r, sess.ID)
	if err != nil {
		return nil, err
	}
	return &ResultView{Code: sess.Code, Players: game.Score(in)}, nil
}
