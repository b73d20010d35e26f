package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/robotparty/game-server/internal/model"
)

type ParticipantRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Participant, error)
	FindByUser(ctx context.Context, sessionID int64, userID string) (*model.Participant, error)
	// ListBySession returns every participant, active or not, in join order.
	ListBySession(ctx context.Context, sessionID int64) ([]model.Participant, error)
	Create(ctx context.Context, params model.CreateParticipantParams) (*model.Participant, error)
	Delete(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
	SetHost(ctx context.Context, id int64, isHost bool) error
	AssignCharacter(ctx context.Context, id int64, characterID int64) error
	Touch(ctx context.Context, id int64, at time.Time) error
	SetPoints(ctx context.Context, id int64, points int) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ParticipantRepository
}

type participantRepo struct {
	db sqlxDB
}

func NewParticipantRepository(db *sqlx.DB) ParticipantRepository {
	return &participantRepo{db: db}
}

func (r *participantRepo) WithTx(tx *sqlx.Tx) ParticipantRepository {
	return &participantRepo{db: tx}
}

func (r *participantRepo) FindByID(ctx context.Context, id int64) (*model.Participant, error) {
	var p model.Participant
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM participants WHERE id = $1
	`, id)
	return HandleNotFound(&p, err)
}

func (r *participantRepo) FindByUser(ctx context.Context, sessionID int64, userID string) (*model.Participant, error) {
	var p model.Participant
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM participants WHERE session_id = $1 AND user_id = $2
	`, sessionID, userID)
	return HandleNotFound(&p, err)
}

func (r *participantRepo) ListBySession(ctx context.Context, sessionID int64) ([]model.Participant, error) {
	var participants []model.Participant
	err := r.db.SelectContext(ctx, &participants, `
		SELECT * FROM participants
		WHERE session_id = $1
		ORDER BY joined_at, id
	`, sessionID)
	return participants, err
}

func (r *participantRepo) Create(ctx context.Context, params model.CreateParticipantParams) (*model.Participant, error) {
	var p model.Participant
	err := r.db.GetContext(ctx, &p, `
		INSERT INTO participants (
			session_id, user_id, guest_identifier, display_name, secret_hash,
			is_host, is_npc, assigned_character_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, params.SessionID, params.UserID, params.GuestIdentifier, params.DisplayName,
		params.SecretHash, params.IsHost, params.IsNPC, params.CharacterID)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &p, nil
}

func (r *participantRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM participants WHERE id = $1
	`, id)
	return err
}

// Deactivate also drops the host flag so the one-active-host index holds.
func (r *participantRepo) Deactivate(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants SET is_active = FALSE, is_host = FALSE
		WHERE id = $1
	`, id)
	return err
}

func (r *participantRepo) SetHost(ctx context.Context, id int64, isHost bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants SET is_host = $2 WHERE id = $1
	`, id, isHost)
	return err
}

func (r *participantRepo) AssignCharacter(ctx context.Context, id int64, characterID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants SET assigned_character_id = $2 WHERE id = $1
	`, id, characterID)
	return mapWriteError(err)
}

func (r *participantRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants SET last_seen = $2 WHERE id = $1
	`, id, at)
	return err
}

func (r *participantRepo) SetPoints(ctx context.Context, id int64, points int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants SET points = $2 WHERE id = $1
	`, id, points)
	return err
}
