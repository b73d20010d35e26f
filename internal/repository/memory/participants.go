package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

type participantRepo struct {
	s *Store
}

func (r *participantRepo) WithTx(tx *sqlx.Tx) repository.ParticipantRepository {
	return r
}

func (r *participantRepo) FindByID(ctx context.Context, id int64) (*model.Participant, error) {
	d := r.s.lock()
	defer r.s.unlock()
	if p, ok := d.participants[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r *participantRepo) FindByUser(ctx context.Context, sessionID int64, userID string) (*model.Participant, error) {
	d := r.s.lock()
	defer r.s.unlock()
	for _, p := range d.participants {
		if p.SessionID == sessionID && p.UserID != nil && *p.UserID == userID {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *participantRepo) ListBySession(ctx context.Context, sessionID int64) ([]model.Participant, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Participant
	for _, p := range d.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.Participant) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *participantRepo) Create(ctx context.Context, params model.CreateParticipantParams) (*model.Participant, error) {
	d := r.s.lock()
	defer r.s.unlock()
	for _, p := range d.participants {
		if p.SessionID != params.SessionID {
			continue
		}
		if params.UserID != nil && p.UserID != nil && *p.UserID == *params.UserID {
			return nil, repository.ErrDuplicate
		}
		if params.GuestIdentifier != nil && p.GuestIdentifier != nil && *p.GuestIdentifier == *params.GuestIdentifier {
			return nil, repository.ErrDuplicate
		}
		if p.IsActive && params.CharacterID != nil && p.CharacterID != nil && *p.CharacterID == *params.CharacterID {
			return nil, repository.ErrDuplicate
		}
	}
	now := r.s.Now()
	p := model.Participant{
		ID:              d.id(),
		SessionID:       params.SessionID,
		UserID:          params.UserID,
		GuestIdentifier: params.GuestIdentifier,
		DisplayName:     params.DisplayName,
		SecretHash:      params.SecretHash,
		IsHost:          params.IsHost,
		IsNPC:           params.IsNPC,
		IsActive:        true,
		CharacterID:     params.CharacterID,
		JoinedAt:        now,
		LastSeen:        now,
	}
	d.participants[p.ID] = p
	return &p, nil
}

func (r *participantRepo) Delete(ctx context.Context, id int64) error {
	d := r.s.lock()
	defer r.s.unlock()
	delete(d.participants, id)
	for gid, g := range d.guesses {
		if g.GuesserID == id || g.GuessedID == id {
			delete(d.guesses, gid)
		}
	}
	for mid, m := range d.messages {
		if m.ParticipantID != nil && *m.ParticipantID == id {
			m.ParticipantID = nil
			d.messages[mid] = m
		}
	}
	return nil
}

func (r *participantRepo) update(id int64, fn func(*model.Participant)) {
	d := r.s.lock()
	defer r.s.unlock()
	if p, ok := d.participants[id]; ok {
		fn(&p)
		d.participants[id] = p
	}
}

func (r *participantRepo) Deactivate(ctx context.Context, id int64) error {
	r.update(id, func(p *model.Participant) {
		p.IsActive = false
		p.IsHost = false
	})
	return nil
}

func (r *participantRepo) SetHost(ctx context.Context, id int64, isHost bool) error {
	r.update(id, func(p *model.Participant) { p.IsHost = isHost })
	return nil
}

func (r *participantRepo) AssignCharacter(ctx context.Context, id int64, characterID int64) error {
	d := r.s.lock()
	defer r.s.unlock()
	target, ok := d.participants[id]
	if !ok {
		return nil
	}
	for _, p := range d.participants {
		if p.ID != id && p.SessionID == target.SessionID && p.IsActive &&
			p.CharacterID != nil && *p.CharacterID == characterID {
			return repository.ErrDuplicate
		}
	}
	target.CharacterID = ptr(characterID)
	d.participants[id] = target
	return nil
}

func (r *participantRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	r.update(id, func(p *model.Participant) { p.LastSeen = at })
	return nil
}

func (r *participantRepo) SetPoints(ctx context.Context, id int64, points int) error {
	r.update(id, func(p *model.Participant) { p.Points = points })
	return nil
}
