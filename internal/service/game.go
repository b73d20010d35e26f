package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robotparty/game-server/internal/audit"
	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/pubsub"
	"github.com/robotparty/game-server/internal/repository"
	"github.com/robotparty/game-server/internal/util"
)

// Publisher delivers a realtime event to everyone watching a room.
type Publisher interface {
	Publish(ctx context.Context, roomCode string, event pubsub.Event) error
}

// Limiter is a sliding window rate limiter keyed by an arbitrary string.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, resetAt time.Time)
}

// Credentials identify a participant. The secret is the plaintext token
// handed out once at join time.
type Credentials struct {
	ParticipantID int64
	Secret        string
}

func (c Credentials) Valid() bool {
	return c.ParticipantID > 0 && c.Secret != ""
}

// lockSession loads a session by room code and holds its row lock for the
// rest of the transaction.
func lockSession(ctx context.Context, r repository.Repos, code string) (*model.Session, error) {
	code = util.NormalizeRoomCode(code)
	if !util.IsValidRoomCode(code) {
		return nil, apperrors.NotFound("Room")
	}
	sess, err := r.Sessions.LockByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if sess == nil {
		return nil, apperrors.NotFound("Room")
	}
	return sess, nil
}

func findSession(ctx context.Context, r repository.Repos, code string) (*model.Session, error) {
	code = util.NormalizeRoomCode(code)
	if !util.IsValidRoomCode(code) {
		return nil, apperrors.NotFound("Room")
	}
	sess, err := r.Sessions.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess == nil {
		return nil, apperrors.NotFound("Room")
	}
	return sess, nil
}

// authenticate resolves creds to a participant of sess. Any status is
// accepted; callers check the state they need.
func authenticate(ctx context.Context, r repository.Repos, sess *model.Session, creds Credentials) (*model.Participant, error) {
	if !creds.Valid() {
		return nil, apperrors.MissingRequired("participant id and secret")
	}
	p, err := r.Participants.FindByID(ctx, creds.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	if p == nil || p.SessionID != sess.ID {
		return nil, apperrors.NotFound("Participant")
	}
	if !util.ConstantTimeEqual(p.SecretHash, util.HashToken(creds.Secret)) {
		audit.Log(ctx, audit.Event{
			Type:          audit.EventSecretMismatch,
			RoomCode:      sess.Code,
			ParticipantID: p.ID,
			Details:       map[string]interface{}{"secret": util.MaskSecret(creds.Secret)},
		})
		return nil, apperrors.InvalidSecret()
	}
	return p, nil
}

func requireHost(p *model.Participant, action string) error {
	if !p.IsHost || !p.IsActive {
		return apperrors.NotHost(action)
	}
	return nil
}

func requirePending(sess *model.Session) error {
	if sess.Status != model.SessionStatusPending {
		return apperrors.InvalidState("Game has already started")
	}
	return nil
}

func activeCount(participants []model.Participant) int {
	n := 0
	for _, p := range participants {
		if p.IsActive {
			n++
		}
	}
	return n
}

func findParticipant(participants []model.Participant, id int64) *model.Participant {
	for i := range participants {
		if participants[i].ID == id {
			return &participants[i]
		}
	}
	return nil
}
