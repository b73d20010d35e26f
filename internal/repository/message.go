package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/robotparty/game-server/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	ListByRound(ctx context.Context, roundID int64) ([]model.Message, error)
	ListBySession(ctx context.Context, sessionID int64) ([]model.Message, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) MessageRepository
}

type messageRepo struct {
	db sqlxDB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) MessageRepository {
	return &messageRepo{db: tx}
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (round_id, participant_id, text, message_type, sent_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.RoundID, params.ParticipantID, params.Text, params.MessageType, params.SentAt)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) ListByRound(ctx context.Context, roundID int64) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM messages WHERE round_id = $1 ORDER BY sent_at, id
	`, roundID)
	return messages, err
}

func (r *messageRepo) ListBySession(ctx context.Context, sessionID int64) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.SelectContext(ctx, &messages, `
		SELECT m.* FROM messages m
		JOIN rounds r ON r.id = m.round_id
		WHERE r.session_id = $1
		ORDER BY r.round_number, m.sent_at, m.id
	`, sessionID)
	return messages, err
}
