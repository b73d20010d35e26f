package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/audit"
	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/game"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
	"github.com/robotparty/game-server/internal/util"
)

type JoinParams struct {
	AccountID *string
	Name      string
	// Credentials, when set, reconnect an existing seat instead of joining.
	Credentials Credentials
}

// JoinResult carries Secret only when a new seat was created.
type JoinResult struct {
	Participant *model.Participant
	Secret      string
	Rejoined    bool
	Lobby       *LobbyView
}

func (s *RoomService) Join(ctx context.Context, code string, params JoinParams) (*JoinResult, error) {
	if params.Credentials.ParticipantID != 0 || params.Credentials.Secret != "" {
		return s.Reconnect(ctx, code, params.Credentials)
	}

	var (
		result    JoinResult
		sessionID int64
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		sessionID = sess.ID

		if params.AccountID != nil {
			existing, err := r.Participants.FindByUser(ctx, sess.ID, *params.AccountID)
			if err != nil {
				return fmt.Errorf("find participant by account: %w", err)
			}
			if existing != nil {
				if err := r.Participants.Touch(ctx, existing.ID, s.now()); err != nil {
					return fmt.Errorf("touch participant: %w", err)
				}
				result.Participant = existing
				result.Rejoined = true
				return nil
			}
		}

		if err := requirePending(sess); err != nil {
			return err
		}
		name, ok := util.NormalizeDisplayName(params.Name, game.MaxDisplayNameLength)
		if !ok {
			if strings.TrimSpace(params.Name) == "" {
				return apperrors.MissingRequired("name")
			}
			return apperrors.InvalidInput("name", fmt.Sprintf("must be at most %d characters", game.MaxDisplayNameLength))
		}

		participants, err := r.Participants.ListBySession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		if activeCount(participants) >= game.MaxActiveParticipants {
			return apperrors.RoomFull()
		}
		hasHost := false
		for _, p := range participants {
			if strings.EqualFold(p.DisplayName, name) {
				return apperrors.NameTaken(name)
			}
			if p.IsHost && p.IsActive {
				hasHost = true
			}
		}

		secret, hash, err := newSecret()
		if err != nil {
			return err
		}
		create := model.CreateParticipantParams{
			SessionID:   sess.ID,
			UserID:      params.AccountID,
			DisplayName: name,
			SecretHash:  hash,
			IsHost:      !hasHost,
		}
		if params.AccountID == nil {
			guestID := uuid.NewString()
			create.GuestIdentifier = &guestID
		}
		p, err := r.Participants.Create(ctx, create)
		if errors.Is(err, repository.ErrDuplicate) {
			return apperrors.Conflict("Already joined this room")
		}
		if err != nil {
			return fmt.Errorf("create participant: %w", err)
		}

		result.Participant = p
		result.Secret = secret
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Rejoined {
		log.Info().
			Str("roomCode", code).
			Int64("participantId", result.Participant.ID).
			Bool("isHost", result.Participant.IsHost).
			Msg("participant joined")
		s.events.Lobby(ctx, sessionID)
	}

	if result.Lobby, err = s.Lobby(ctx, code); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reconnect re-authenticates an existing seat in any game state.
func (s *RoomService) Reconnect(ctx context.Context, code string, creds Credentials) (*JoinResult, error) {
	var result JoinResult
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		p, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		now := s.now()
		if err := r.Participants.Touch(ctx, p.ID, now); err != nil {
			return fmt.Errorf("touch participant: %w", err)
		}
		p.LastSeen = now
		result.Participant = p
		result.Rejoined = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Lobby, err = s.Lobby(ctx, code); err != nil {
		return nil, err
	}
	return &result, nil
}

// Heartbeat records that a participant's client is still connected. It is
// called from the realtime stream, which carries no secret.
func (s *RoomService) Heartbeat(ctx context.Context, code string, participantID int64) error {
	r := s.store.Repos()
	sess, err := findSession(ctx, r, code)
	if err != nil {
		return err
	}
	p, err := r.Participants.FindByID(ctx, participantID)
	if err != nil {
		return fmt.Errorf("find participant: %w", err)
	}
	if p == nil || p.SessionID != sess.ID || !p.IsActive {
		return apperrors.NotFound("Participant")
	}
	return r.Participants.Touch(ctx, p.ID, s.now())
}

// departure describes what happened when a participant left the room.
type departure struct {
	sessionID      int64
	code           string
	sessionDeleted bool
	newHost        *model.Participant
}

// removeParticipant applies the leave rules to target: the row is deleted
// before the game starts and deactivated afterwards. A departing host hands
// over to the longest-seated active human. A pending room left without humans
// is deleted.
func removeParticipant(ctx context.Context, r repository.Repos, sess *model.Session, target *model.Participant) (*departure, error) {
	out := &departure{sessionID: sess.ID, code: sess.Code}

	if sess.Status == model.SessionStatusPending {
		if err := r.Participants.Delete(ctx, target.ID); err != nil {
			return nil, fmt.Errorf("delete participant: %w", err)
		}
	} else {
		if err := r.Participants.Deactivate(ctx, target.ID); err != nil {
			return nil, fmt.Errorf("deactivate participant: %w", err)
		}
	}

	remaining, err := r.Participants.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	var successor *model.Participant
	for i := range remaining {
		p := &remaining[i]
		if p.ID != target.ID && p.IsActiveHuman() {
			successor = p
			break
		}
	}

	if successor == nil {
		if sess.Status == model.SessionStatusPending {
			if err := r.Sessions.Delete(ctx, sess.ID); err != nil {
				return nil, fmt.Errorf("delete session: %w", err)
			}
			out.sessionDeleted = true
		}
		return out, nil
	}

	if target.IsHost && !successor.IsHost {
		if err := r.Participants.SetHost(ctx, successor.ID, true); err != nil {
			return nil, fmt.Errorf("transfer host: %w", err)
		}
		successor.IsHost = true
		out.newHost = successor
	}
	return out, nil
}

func (s *RoomService) afterDeparture(ctx context.Context, d *departure) {
	if d.newHost != nil {
		audit.Log(ctx, audit.Event{
			Type:          audit.EventHostTransfer,
			RoomCode:      d.code,
			ParticipantID: d.newHost.ID,
		})
	}
	if d.sessionDeleted {
		log.Info().Str("roomCode", d.code).Msg("empty pending room deleted")
		return
	}
	s.events.Lobby(ctx, d.sessionID)
}

func (s *RoomService) Leave(ctx context.Context, code string, creds Credentials) error {
	var d *departure
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		actor, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		if sess.Status == model.SessionStatusCompleted {
			return apperrors.InvalidState("Game is already over")
		}
		if !actor.IsActive {
			return apperrors.InvalidState("You have already left this room")
		}
		d, err = removeParticipant(ctx, r, sess, actor)
		return err
	})
	if err != nil {
		return err
	}

	log.Info().Str("roomCode", d.code).Int64("participantId", creds.ParticipantID).Msg("participant left")
	s.afterDeparture(ctx, d)
	return nil
}

func (s *RoomService) Kick(ctx context.Context, code string, creds Credentials, targetID int64) error {
	return s.evict(ctx, code, creds, targetID, false)
}

func (s *RoomService) RemoveNPC(ctx context.Context, code string, creds Credentials, targetID int64) error {
	return s.evict(ctx, code, creds, targetID, true)
}

func (s *RoomService) evict(ctx context.Context, code string, creds Credentials, targetID int64, npcOnly bool) error {
	var d *departure
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		actor, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		if sess.Status == model.SessionStatusCompleted {
			return apperrors.InvalidState("Game is already over")
		}
		action := "kick players"
		if npcOnly {
			action = "remove bots"
		}
		if err := requireHost(actor, action); err != nil {
			return err
		}
		if targetID == actor.ID {
			return apperrors.ValidationError("You cannot remove yourself")
		}

		target, err := r.Participants.FindByID(ctx, targetID)
		if err != nil {
			return fmt.Errorf("find participant: %w", err)
		}
		if target == nil || target.SessionID != sess.ID {
			return apperrors.NotFound("Participant")
		}
		if npcOnly && !target.IsNPC {
			return apperrors.ValidationError("Participant is not a bot")
		}
		if !target.IsActive {
			return apperrors.InvalidState("Participant has already left")
		}

		d, err = removeParticipant(ctx, r, sess, target)
		return err
	})
	if err != nil {
		return err
	}

	eventType := audit.EventParticipantKick
	if npcOnly {
		eventType = audit.EventNPCRemove
	}
	audit.Log(ctx, audit.Event{
		Type:          eventType,
		RoomCode:      d.code,
		ParticipantID: targetID,
		Details:       map[string]interface{}{"by": creds.ParticipantID},
	})
	s.afterDeparture(ctx, d)
	return nil
}

// AddNPC seats a bot holding a random free public character.
func (s *RoomService) AddNPC(ctx context.Context, code string, creds Credentials) (*model.Participant, error) {
	var npc *model.Participant
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		sess, err := lockSession(ctx, r, code)
		if err != nil {
			return err
		}
		actor, err := authenticate(ctx, r, sess, creds)
		if err != nil {
			return err
		}
		if err := requireHost(actor, "add bots"); err != nil {
			return err
		}
		if err := requirePending(sess); err != nil {
			return err
		}

		participants, err := r.Participants.ListBySession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		if activeCount(participants) >= game.MaxActiveParticipants {
			return apperrors.RoomFull()
		}

		characters, err := r.Content.ListPublicCharacters(ctx)
		if err != nil {
			return fmt.Errorf("list public characters: %w", err)
		}
		held := heldCharacters(participants)
		free := make([]model.Character, 0, len(characters))
		for _, c := range characters {
			if _, taken := held[c.ID]; !taken {
				free = append(free, c)
			}
		}
		if len(free) == 0 {
			return apperrors.PreconditionFailed("No free characters left for a bot")
		}
		character := free[s.rng.IntN(len(free))]

		seq, err := r.Sessions.NextNPCSequence(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("next npc sequence: %w", err)
		}
		_, hash, err := newSecret()
		if err != nil {
			return err
		}
		guestID := uuid.NewString()
		npc, err = r.Participants.Create(ctx, model.CreateParticipantParams{
			SessionID:       sess.ID,
			GuestIdentifier: &guestID,
			DisplayName:     fmt.Sprintf("%s%d", game.NPCNamePrefix, seq),
			SecretHash:      hash,
			IsNPC:           true,
			CharacterID:     &character.ID,
		})
		if err != nil {
			return fmt.Errorf("create npc: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("roomCode", code).
		Int64("participantId", npc.ID).
		Str("name", npc.DisplayName).
		Msg("npc added")
	s.events.Lobby(ctx, npc.SessionID)
	return npc, nil
}

func (s *RoomService) SelectCharacter(ctx context.Context, code string, creds Credentials, characterID int64) (*model.Character, error) {
	var (
		character *model.Character
		sessionID int64
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
		if err := requirePending(sess); err != nil {
			return err
		}
		if !actor.IsActive {
			return apperrors.Forbidden("You are no longer in this room")
		}

		character, err = r.Content.FindCharacter(ctx, characterID)
		if err != nil {
			return fmt.Errorf("find character: %w", err)
		}
		if character == nil {
			return apperrors.NotFound("Character")
		}
		if !character.VisibleTo(actor.UserID) {
			return apperrors.Forbidden("This character is private")
		}

		participants, err := r.Participants.ListBySession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		for _, p := range participants {
			if p.ID != actor.ID && p.IsActive && p.CharacterID != nil && *p.CharacterID == characterID {
				return apperrors.CharacterTaken()
			}
		}

		err = r.Participants.AssignCharacter(ctx, actor.ID, characterID)
		if errors.Is(err, repository.ErrDuplicate) {
			return apperrors.CharacterTaken()
		}
		if err != nil {
			return fmt.Errorf("assign character: %w", err)
		}
		sessionID = sess.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Lobby(ctx, sessionID)
	return character, nil
}

func heldCharacters(participants []model.Participant) map[int64]struct{} {
	held := make(map[int64]struct{}, len(participants))
	for _, p := range participants {
		if p.IsActive && p.CharacterID != nil {
			held[*p.CharacterID] = struct{}{}
		}
	}
	return held
}
