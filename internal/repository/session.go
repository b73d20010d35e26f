package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/robotparty/game-server/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Session, error)
	FindByCode(ctx context.Context, code string) (*model.Session, error)
	// LockByCode reads the session row and holds a row lock until the
	// surrounding transaction ends.
	LockByCode(ctx context.Context, code string) (*model.Session, error)
	LockByID(ctx context.Context, id int64) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	UpdateSettings(ctx context.Context, id int64, settings model.SessionSettings) error
	SetCollections(ctx context.Context, id int64, collectionIDs []int64) error
	ListCollectionIDs(ctx context.Context, id int64) ([]int64, error)
	MarkStarted(ctx context.Context, id int64, roundID int64) (bool, error)
	SetCurrentRound(ctx context.Context, id int64, roundID int64) error
	MarkGuessing(ctx context.Context, id int64, deadline time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id int64) (bool, error)
	NextNPCSequence(ctx context.Context, id int64) (int, error)
	ListByStatus(ctx context.Context, status model.SessionStatus) ([]model.Session, error)
	ListGuessingDue(ctx context.Context, now time.Time) ([]model.Session, error)
	CountActiveUsingCollection(ctx context.Context, collectionID int64) (int, error)
	CountActiveUsingQuestion(ctx context.Context, questionID int64) (int, error)
	Delete(ctx context.Context, id int64) error
	DeletePendingBefore(ctx context.Context, before time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db sqlxDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id int64) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM game_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByCode(ctx context.Context, code string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM game_sessions WHERE code = $1
	`, code)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) LockByCode(ctx context.Context, code string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM game_sessions WHERE code = $1 FOR UPDATE
	`, code)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) LockByID(ctx context.Context, id int64) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM game_sessions WHERE id = $1 FOR UPDATE
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO game_sessions (code, round_length, round_count, guess_timer, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.Code, params.RoundLength, params.RoundCount, params.GuessTimer, params.CreatedBy)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &session, nil
}

func (r *sessionRepo) UpdateSettings(ctx context.Context, id int64, settings model.SessionSettings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE game_sessions SET
			round_length = $2,
			round_count = $3,
			guess_timer = $4,
			updated_at = NOW()
		WHERE id = $1
	`, id, settings.RoundLength, settings.RoundCount, settings.GuessTimer)
	return err
}

func (r *sessionRepo) SetCollections(ctx context.Context, id int64, collectionIDs []int64) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM session_collections WHERE session_id = $1
	`, id); err != nil {
		return err
	}
	if len(collectionIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_collections (session_id, collection_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, id, pq.Array(collectionIDs))
	return err
}

func (r *sessionRepo) ListCollectionIDs(ctx context.Context, id int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT collection_id FROM session_collections
		WHERE session_id = $1
		ORDER BY collection_id
	`, id)
	return ids, err
}

func (r *sessionRepo) MarkStarted(ctx context.Context, id int64, roundID int64) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE game_sessions SET
			status = 'in_progress',
			current_round_id = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, roundID))
}

func (r *sessionRepo) SetCurrentRound(ctx context.Context, id int64, roundID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE game_sessions SET
			current_round_id = $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, roundID)
	return err
}

func (r *sessionRepo) MarkGuessing(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE game_sessions SET
			status = 'guessing',
			guess_deadline = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`, id, deadline))
}

// MarkCompleted clears guess_deadline so the deadline-iff-guessing check holds.
func (r *sessionRepo) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE game_sessions SET
			status = 'completed',
			guess_deadline = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'guessing'
	`, id))
}

func (r *sessionRepo) NextNPCSequence(ctx context.Context, id int64) (int, error) {
	var seq int
	err := r.db.GetContext(ctx, &seq, `
		UPDATE game_sessions SET npc_sequence = npc_sequence + 1
		WHERE id = $1
		RETURNING npc_sequence
	`, id)
	return seq, err
}

func (r *sessionRepo) ListByStatus(ctx context.Context, status model.SessionStatus) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM game_sessions WHERE status = $1 ORDER BY id
	`, status)
	return sessions, err
}

func (r *sessionRepo) ListGuessingDue(ctx context.Context, now time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM game_sessions
		WHERE status = 'guessing' AND guess_deadline <= $1
		ORDER BY id
	`, now)
	return sessions, err
}

func (r *sessionRepo) CountActiveUsingCollection(ctx context.Context, collectionID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM game_sessions s
		JOIN session_collections sc ON sc.session_id = s.id
		WHERE sc.collection_id = $1 AND s.status IN ('in_progress', 'guessing')
	`, collectionID)
	return count, err
}

func (r *sessionRepo) CountActiveUsingQuestion(ctx context.Context, questionID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(DISTINCT s.id) FROM game_sessions s
		JOIN session_collections sc ON sc.session_id = s.id
		JOIN collection_questions cq ON cq.collection_id = sc.collection_id
		WHERE cq.question_id = $1 AND s.status IN ('in_progress', 'guessing')
	`, questionID)
	return count, err
}

func (r *sessionRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM game_sessions WHERE id = $1
	`, id)
	return err
}

func (r *sessionRepo) DeletePendingBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM game_sessions
		WHERE status = 'pending' AND updated_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
