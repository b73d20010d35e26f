package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/config"
	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/game"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
	"github.com/robotparty/game-server/internal/util"
)

const maxRoomCodeAttempts = 100

type RoomDefaults struct {
	RoundLength int
	RoundCount  int
	GuessTimer  int
}

// RoomService owns the lobby: room creation, settings and membership.
type RoomService struct {
	store    repository.Store
	events   *Events
	defaults RoomDefaults
	rng      game.Rand
	now      func() time.Time
	newCode  func() (string, error)
}

func NewRoomService(store repository.Store, events *Events, defaults RoomDefaults) *RoomService {
	return &RoomService{
		store:    store,
		events:   events,
		defaults: defaults,
		rng:      game.DefaultRand,
		now:      time.Now,
		newCode:  util.GenerateRoomCode,
	}
}

type CreateRoomParams struct {
	AccountID *string
	Name      string
}

// CreateRoomResult carries the host seat and its one-time secret when the
// room was created by a registered account. Anonymous creators get only the
// room and join like everyone else.
type CreateRoomResult struct {
	Session     *model.Session
	Host        *model.Participant
	Secret      string
	Collections []model.Collection
}

func (s *RoomService) CreateRoom(ctx context.Context, params CreateRoomParams) (*CreateRoomResult, error) {
	name := "Host"
	if params.AccountID != nil && params.Name != "" {
		normalized, ok := util.NormalizeDisplayName(params.Name, game.MaxDisplayNameLength)
		if !ok {
			return nil, apperrors.InvalidInput("name", fmt.Sprintf("must be 1-%d characters", game.MaxDisplayNameLength))
		}
		name = normalized
	}

	for attempt := 0; attempt < maxRoomCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}

		var result CreateRoomResult
		err = s.store.InTx(ctx, func(r repository.Repos) error {
			return s.createRoom(ctx, r, code, params.AccountID, name, &result)
		})
		if errors.Is(err, repository.ErrDuplicate) {
			log.Debug().Str("roomCode", code).Msg("room code collision, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		log.Info().
			Str("roomCode", code).
			Bool("withHost", result.Host != nil).
			Msg("room created")
		return &result, nil
	}

	return nil, apperrors.Internal("Could not allocate a room code")
}

func (s *RoomService) createRoom(ctx context.Context, r repository.Repos, code string, accountID *string, name string, out *CreateRoomResult) error {
	sess, err := r.Sessions.Create(ctx, model.CreateSessionParams{
		Code:        code,
		RoundLength: s.defaults.RoundLength,
		RoundCount:  s.defaults.RoundCount,
		GuessTimer:  s.defaults.GuessTimer,
		CreatedBy:   accountID,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	collections, err := r.Content.ListCollections(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	ids := make([]int64, 0, len(collections))
	for _, c := range collections {
		ids = append(ids, c.ID)
	}
	if err := r.Sessions.SetCollections(ctx, sess.ID, ids); err != nil {
		return fmt.Errorf("attach collections: %w", err)
	}

	out.Session = sess
	out.Collections = collections

	if accountID == nil {
		return nil
	}
	secret, hash, err := newSecret()
	if err != nil {
		return err
	}
	host, err := r.Participants.Create(ctx, model.CreateParticipantParams{
		SessionID:   sess.ID,
		UserID:      accountID,
		DisplayName: name,
		SecretHash:  hash,
		IsHost:      true,
	})
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}
	out.Host = host
	out.Secret = secret
	return nil
}

// RoomInfo answers "does this room exist and can I join it".
type RoomInfo struct {
	Code        string              `json:"code"`
	Status      model.SessionStatus `json:"status"`
	RoundLength int                 `json:"roundLength"`
	RoundCount  int                 `json:"roundCount"`
	GuessTimer  int                 `json:"guessTimer"`
	PlayerCount int                 `json:"playerCount"`
	Joinable    bool                `json:"joinable"`
}

func (s *RoomService) Verify(ctx context.Context, code string) (*RoomInfo, error) {
	r := s.store.Repos()
	sess, err := findSession(ctx, r, code)
	if err != nil {
		return nil, err
	}
	participants, err := r.Participants.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	active := activeCount(participants)
	return &RoomInfo{
		Code:        sess.Code,
		Status:      sess.Status,
		RoundLength: sess.RoundLength,
		RoundCount:  sess.RoundCount,
		GuessTimer:  sess.GuessTimer,
		PlayerCount: active,
		Joinable:    sess.Status == model.SessionStatusPending && active < game.MaxActiveParticipants,
	}, nil
}

func (s *RoomService) Lobby(ctx context.Context, code string) (*LobbyView, error) {
	r := s.store.Repos()
	sess, err := findSession(ctx, r, code)
	if err != nil {
		return nil, err
	}
	return buildLobby(ctx, r, sess)
}

type SettingsParams struct {
	RoundLength int
	RoundCount  int
	GuessTimer  *int
	// CollectionIDs replaces the attached collections when non-nil.
	CollectionIDs []int64
}

func (p SettingsParams) validate() error {
	if p.RoundLength < config.MinRoundLength || p.RoundLength > config.MaxRoundLength {
		return apperrors.InvalidInput("roundLength",
			fmt.Sprintf("must be between %d and %d seconds", config.MinRoundLength, config.MaxRoundLength))
	}
	if p.RoundCount < config.MinRoundCount || p.RoundCount > config.MaxRoundCount {
		return apperrors.InvalidInput("roundCount",
			fmt.Sprintf("must be between %d and %d", config.MinRoundCount, config.MaxRoundCount))
	}
	if p.GuessTimer != nil && (*p.GuessTimer < config.MinGuessTimer || *p.GuessTimer > config.MaxGuessTimer) {
		return apperrors.InvalidInput("guessTimer",
			fmt.Sprintf("must be between %d and %d seconds", config.MinGuessTimer, config.MaxGuessTimer))
	}
	return nil
}

func (s *RoomService) UpdateSettings(ctx context.Context, code string, creds Credentials, params SettingsParams) (*LobbyView, error) {
	var sessionID int64
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		actor, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		if err := requireHost(actor, "change settings"); err != nil {
			return err
		}
		if err := requirePending(sess); err != nil {
			return err
		}
		if err := params.validate(); err != nil {
			return err
		}

		settings := model.SessionSettings{
			RoundLength: params.RoundLength,
			RoundCount:  params.RoundCount,
			GuessTimer:  sess.GuessTimer,
		}
		if params.GuessTimer != nil {
			settings.GuessTimer = *params.GuessTimer
		}
		if err := r.Sessions.UpdateSettings(ctx, sess.ID, settings); err != nil {
			return fmt.Errorf("update settings: %w", err)
		}

		if params.CollectionIDs != nil {
			if _, err := attachCollections(ctx, r, sess, actor, params.CollectionIDs); err != nil {
				return err
			}
		}
		sessionID = sess.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Lobby(ctx, sessionID)
	return s.Lobby(ctx, code)
}

func (s *RoomService) UpdateCollections(ctx context.Context, code string, creds Credentials, collectionIDs []int64) ([]model.Collection, error) {
	var (
		sessionID   int64
		collections []model.Collection
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		actor, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		if err := requireHost(actor, "change question collections"); err != nil {
			return err
		}
		if err := requirePending(sess); err != nil {
			return err
		}
		collections, err = attachCollections(ctx, r, sess, actor, collectionIDs)
		sessionID = sess.ID
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.Lobby(ctx, sessionID)
	return collections, nil
}

// attachCollections replaces the session's collections. Every id must name a
// live collection the actor can see.
func attachCollections(ctx context.Context, r repository.Repos, sess *model.Session, actor *model.Participant, ids []int64) ([]model.Collection, error) {
	if len(ids) == 0 {
		return nil, apperrors.MissingRequired("collectionIds")
	}
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	collections, err := r.Content.ListCollectionsByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if len(collections) != len(unique) {
		return nil, apperrors.ValidationError("Invalid question collection selection")
	}
	for i := range collections {
		if !collections[i].VisibleTo(actor.UserID) {
			return nil, apperrors.ValidationError("Invalid question collection selection")
		}
	}

	if err := r.Sessions.SetCollections(ctx, sess.ID, unique); err != nil {
		return nil, fmt.Errorf("attach collections: %w", err)
	}
	return collections, nil
}

func newSecret() (secret, hash string, err error) {
	secret, err = util.GenerateToken()
	if err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	return secret, util.HashToken(secret), nil
}
