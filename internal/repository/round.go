package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/robotparty/game-server/internal/model"
)

type RoundRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Round, error)
	FindLatest(ctx context.Context, sessionID int64) (*model.Round, error)
	ListBySession(ctx context.Context, sessionID int64) ([]model.Round, error)
	UsedQuestionIDs(ctx context.Context, sessionID int64) ([]int64, error)
	// Create returns ErrDuplicate when the round number already exists.
	Create(ctx context.Context, params model.CreateRoundParams) (*model.Round, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) RoundRepository
}

type roundRepo struct {
	db sqlxDB
}

func NewRoundRepository(db *sqlx.DB) RoundRepository {
	return &roundRepo{db: db}
}

func (r *roundRepo) WithTx(tx *sqlx.Tx) RoundRepository {
	return &roundRepo{db: tx}
}

func (r *roundRepo) FindByID(ctx context.Context, id int64) (*model.Round, error) {
	var round model.Round
	err := r.db.GetContext(ctx, &round, `
		SELECT * FROM rounds WHERE id = $1
	`, id)
	return HandleNotFound(&round, err)
}

func (r *roundRepo) FindLatest(ctx context.Context, sessionID int64) (*model.Round, error) {
	var round model.Round
	err := r.db.GetContext(ctx, &round, `
		SELECT * FROM rounds
		WHERE session_id = $1
		ORDER BY round_number DESC
		LIMIT 1
	`, sessionID)
	return HandleNotFound(&round, err)
}

func (r *roundRepo) ListBySession(ctx context.Context, sessionID int64) ([]model.Round, error) {
	var rounds []model.Round
	err := r.db.SelectContext(ctx, &rounds, `
		SELECT * FROM rounds WHERE session_id = $1 ORDER BY round_number
	`, sessionID)
	return rounds, err
}

func (r *roundRepo) UsedQuestionIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT question_id FROM rounds
		WHERE session_id = $1 AND question_id IS NOT NULL
	`, sessionID)
	return ids, err
}

func (r *roundRepo) Create(ctx context.Context, params model.CreateRoundParams) (*model.Round, error) {
	var round model.Round
	err := r.db.GetContext(ctx, &round, `
		INSERT INTO rounds (session_id, round_number, question_id, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.SessionID, params.RoundNumber, params.QuestionID, params.StartTime, params.EndTime)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &round, nil
}
