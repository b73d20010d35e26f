package memory

import (
	"context"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

type sessionRepo struct {
	s *Store
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return r
}

func (r *sessionRepo) FindByID(ctx context.Context, id int64) (*model.Session, error) {
	d := r.s.lock()
	defer r.s.unlock()
	if sess, ok := d.sessions[id]; ok {
		return &sess, nil
	}
	return nil, nil
}

func (r *sessionRepo) FindByCode(ctx context.Context, code string) (*model.Session, error) {
	d := r.s.lock()
	defer r.s.unlock()
	for _, sess := range d.sessions {
		if sess.Code == code {
			return &sess, nil
		}
	}
	return nil, nil
}

func (r *sessionRepo) LockByCode(ctx context.Context, code string) (*model.Session, error) {
	return r.FindByCode(ctx, code)
}

func (r *sessionRepo) LockByID(ctx context.Context, id int64) (*model.Session, error) {
	return r.FindByID(ctx, id)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	d := r.s.lock()
	defer r.s.unlock()
	for _, sess := range d.sessions {
		if sess.Code == params.Code {
			return nil, repository.ErrDuplicate
		}
	}
	now := r.s.Now()
	sess := model.Session{
		ID:          d.id(),
		Code:        params.Code,
		Status:      model.SessionStatusPending,
		RoundLength: params.RoundLength,
		RoundCount:  params.RoundCount,
		GuessTimer:  params.GuessTimer,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.sessions[sess.ID] = sess
	return &sess, nil
}

func (r *sessionRepo) update(id int64, fn func(*model.Session) bool) bool {
	d := r.s.lock()
	defer r.s.unlock()
	sess, ok := d.sessions[id]
	if !ok || !fn(&sess) {
		return false
	}
	sess.UpdatedAt = r.s.Now()
	d.sessions[id] = sess
	return true
}

func (r *sessionRepo) UpdateSettings(ctx context.Context, id int64, settings model.SessionSettings) error {
	r.update(id, func(s *model.Session) bool {
		s.RoundLength = settings.RoundLength
		s.RoundCount = settings.RoundCount
		s.GuessTimer = settings.GuessTimer
		return true
	})
	return nil
}

func (r *sessionRepo) SetCollections(ctx context.Context, id int64, collectionIDs []int64) error {
	d := r.s.lock()
	defer r.s.unlock()
	ids := slices.Clone(collectionIDs)
	slices.Sort(ids)
	d.sessionCollections[id] = slices.Compact(ids)
	return nil
}

func (r *sessionRepo) ListCollectionIDs(ctx context.Context, id int64) ([]int64, error) {
	d := r.s.lock()
	defer r.s.unlock()
	return slices.Clone(d.sessionCollections[id]), nil
}

func (r *sessionRepo) MarkStarted(ctx context.Context, id int64, roundID int64) (bool, error) {
	return r.update(id, func(s *model.Session) bool {
		if s.Status != model.SessionStatusPending {
			return false
		}
		s.Status = model.SessionStatusInProgress
		s.CurrentRoundID = ptr(roundID)
		return true
	}), nil
}

func (r *sessionRepo) SetCurrentRound(ctx context.Context, id int64, roundID int64) error {
	r.update(id, func(s *model.Session) bool {
		s.CurrentRoundID = ptr(roundID)
		return true
	})
	return nil
}

func (r *sessionRepo) MarkGuessing(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return r.update(id, func(s *model.Session) bool {
		if s.Status != model.SessionStatusInProgress {
			return false
		}
		s.Status = model.SessionStatusGuessing
		s.GuessDeadline = ptr(deadline)
		return true
	}), nil
}

func (r *sessionRepo) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	return r.update(id, func(s *model.Session) bool {
		if s.Status != model.SessionStatusGuessing {
			return false
		}
		s.Status = model.SessionStatusCompleted
		s.GuessDeadline = nil
		return true
	}), nil
}

func (r *sessionRepo) NextNPCSequence(ctx context.Context, id int64) (int, error) {
	var seq int
	r.update(id, func(s *model.Session) bool {
		s.NPCSequence++
		seq = s.NPCSequence
		return true
	})
	return seq, nil
}

func (r *sessionRepo) ListByStatus(ctx context.Context, status model.SessionStatus) ([]model.Session, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Session
	for _, sess := range d.sessions {
		if sess.Status == status {
			out = append(out, sess)
		}
	}
	return sortByID(out, func(s model.Session) int64 { return s.ID }), nil
}

func (r *sessionRepo) ListGuessingDue(ctx context.Context, now time.Time) ([]model.Session, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Session
	for _, sess := range d.sessions {
		if sess.Status == model.SessionStatusGuessing && sess.GuessDeadline != nil && !sess.GuessDeadline.After(now) {
			out = append(out, sess)
		}
	}
	return sortByID(out, func(s model.Session) int64 { return s.ID }), nil
}

func (r *sessionRepo) CountActiveUsingCollection(ctx context.Context, collectionID int64) (int, error) {
	d := r.s.lock()
	defer r.s.unlock()
	count := 0
	for id, sess := range d.sessions {
		if sess.Status.Active() && slices.Contains(d.sessionCollections[id], collectionID) {
			count++
		}
	}
	return count, nil
}

func (r *sessionRepo) CountActiveUsingQuestion(ctx context.Context, questionID int64) (int, error) {
	d := r.s.lock()
	defer r.s.unlock()
	count := 0
	for id, sess := range d.sessions {
		if !sess.Status.Active() {
			continue
		}
		for _, collectionID := range d.sessionCollections[id] {
			if slices.Contains(d.collectionQuestions[collectionID], questionID) {
				count++
				break
			}
		}
	}
	return count, nil
}

// Delete cascades to participants, rounds, messages and guesses.
func (r *sessionRepo) Delete(ctx context.Context, id int64) error {
	d := r.s.lock()
	defer r.s.unlock()
	d.deleteSession(id)
	return nil
}

func (r *sessionRepo) DeletePendingBefore(ctx context.Context, before time.Time) (int64, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var n int64
	for id, sess := range d.sessions {
		if sess.Status == model.SessionStatusPending && sess.UpdatedAt.Before(before) {
			d.deleteSession(id)
			n++
		}
	}
	return n, nil
}

func (d *data) deleteSession(id int64) {
	delete(d.sessions, id)
	delete(d.sessionCollections, id)
	for pid, p := range d.participants {
		if p.SessionID == id {
			delete(d.participants, pid)
		}
	}
	for rid, round := range d.rounds {
		if round.SessionID != id {
			continue
		}
		delete(d.rounds, rid)
		for mid, m := range d.messages {
			if m.RoundID == rid {
				delete(d.messages, mid)
			}
		}
	}
	for gid, g := range d.guesses {
		if g.SessionID == id {
			delete(d.guesses, gid)
		}
	}
}
