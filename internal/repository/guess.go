package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/robotparty/game-server/internal/model"
)

type GuessRepository interface {
	FindByPair(ctx context.Context, guesserID, guessedID int64) (*model.Guess, error)
	ListBySession(ctx context.Context, sessionID int64) ([]model.Guess, error)
	Create(ctx context.Context, params model.CreateGuessParams) (*model.Guess, error)
	Update(ctx context.Context, id int64, characterID int64, isCorrect bool) (*model.Guess, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) GuessRepository
}

type guessRepo struct {
	db sqlxDB
}

func NewGuessRepository(db *sqlx.DB) GuessRepository {
	return &guessRepo{db: db}
}

func (r *guessRepo) WithTx(tx *sqlx.Tx) GuessRepository {
	return &guessRepo{db: tx}
}

func (r *guessRepo) FindByPair(ctx context.Context, guesserID, guessedID int64) (*model.Guess, error) {
	var g model.Guess
	err := r.db.GetContext(ctx, &g, `
		SELECT * FROM guesses
		WHERE guesser_id = $1 AND guessed_participant_id = $2
	`, guesserID, guessedID)
	return HandleNotFound(&g, err)
}

func (r *guessRepo) ListBySession(ctx context.Context, sessionID int64) ([]model.Guess, error) {
	var guesses []model.Guess
	err := r.db.SelectContext(ctx, &guesses, `
		SELECT * FROM guesses WHERE session_id = $1 ORDER BY id
	`, sessionID)
	return guesses, err
}

func (r *guessRepo) Create(ctx context.Context, params model.CreateGuessParams) (*model.Guess, error) {
	var g model.Guess
	err := r.db.GetContext(ctx, &g, `
		INSERT INTO guesses (session_id, guesser_id, guessed_participant_id, guessed_character_id, is_correct)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.SessionID, params.GuesserID, params.GuessedID, params.CharacterID, params.IsCorrect)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &g, nil
}

func (r *guessRepo) Update(ctx context.Context, id int64, characterID int64, isCorrect bool) (*model.Guess, error) {
	var g model.Guess
	err := r.db.GetContext(ctx, &g, `
		UPDATE guesses SET
			guessed_character_id = $2,
			is_correct = $3,
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, characterID, isCorrect)
	return HandleNotFound(&g, err)
}
