package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/robotparty/game-server/internal/database"
)

// Repos groups the repositories that share one connection or transaction.
type Repos struct {
	Sessions     SessionRepository
	Participants ParticipantRepository
	Rounds       RoundRepository
	Messages     MessageRepository
	Guesses      GuessRepository
	Content      ContentRepository
}

func NewRepos(db *sqlx.DB) Repos {
	return Repos{
		Sessions:     NewSessionRepository(db),
		Participants: NewParticipantRepository(db),
		Rounds:       NewRoundRepository(db),
		Messages:     NewMessageRepository(db),
		Guesses:      NewGuessRepository(db),
		Content:      NewContentRepository(db),
	}
}

// WithTx returns repositories bound to tx.
func (r Repos) WithTx(tx *sqlx.Tx) Repos {
	return Repos{
		Sessions:     r.Sessions.WithTx(tx),
		Participants: r.Participants.WithTx(tx),
		Rounds:       r.Rounds.WithTx(tx),
		Messages:     r.Messages.WithTx(tx),
		Guesses:      r.Guesses.WithTx(tx),
		Content:      r.Content.WithTx(tx),
	}
}

// Store hands out repositories and runs units of work atomically.
// Implementations must not be re-entered from inside InTx.
type Store interface {
	Repos() Repos
	InTx(ctx context.Context, fn func(r Repos) error) error
}

type PostgresStore struct {
	db    *database.DB
	repos Repos
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db, repos: NewRepos(db.DB)}
}

func (s *PostgresStore) Repos() Repos {
	return s.repos
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(r Repos) error) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(s.repos.WithTx(tx))
	})
}
