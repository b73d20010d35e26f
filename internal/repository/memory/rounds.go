package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

type roundRepo struct {
	s *Store
}

func (r *roundRepo) WithTx(tx *sqlx.Tx) repository.RoundRepository {
	return r
}

func (r *roundRepo) FindByID(ctx context.Context, id int64) (*model.Round, error) {
	d := r.s.lock()
	defer r.s.unlock()
	if round, ok := d.rounds[id]; ok {
		return &round, nil
	}
	return nil, nil
}

func (r *roundRepo) FindLatest(ctx context.Context, sessionID int64) (*model.Round, error) {
	rounds, _ := r.ListBySession(ctx, sessionID)
	if len(rounds) == 0 {
		return nil, nil
	}
	return &rounds[len(rounds)-1], nil
}

func (r *roundRepo) ListBySession(ctx context.Context, sessionID int64) ([]model.Round, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Round
	for _, round := range d.rounds {
		if round.SessionID == sessionID {
			out = append(out, round)
		}
	}
	slices.SortFunc(out, func(a, b model.Round) int {
		return cmp.Compare(a.RoundNumber, b.RoundNumber)
	})
	return out, nil
}

func (r *roundRepo) UsedQuestionIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	rounds, _ := r.ListBySession(ctx, sessionID)
	var ids []int64
	for _, round := range rounds {
		if round.QuestionID != nil {
			ids = append(ids, *round.QuestionID)
		}
	}
	return ids, nil
}

func (r *roundRepo) Create(ctx context.Context, params model.CreateRoundParams) (*model.Round, error) {
	d := r.s.lock()
	defer r.s.unlock()
	for _, round := range d.rounds {
		if round.SessionID == params.SessionID && round.RoundNumber == params.RoundNumber {
			return nil, repository.ErrDuplicate
		}
	}
	round := model.Round{
		ID:          d.id(),
		SessionID:   params.SessionID,
		RoundNumber: params.RoundNumber,
		QuestionID:  params.QuestionID,
		StartTime:   params.StartTime,
		EndTime:     params.EndTime,
	}
	d.rounds[round.ID] = round
	return &round, nil
}

type messageRepo struct {
	s *Store
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) repository.MessageRepository {
	return r
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	d := r.s.lock()
	defer r.s.unlock()
	msg := model.Message{
		ID:            d.id(),
		RoundID:       params.RoundID,
		ParticipantID: params.ParticipantID,
		Text:          params.Text,
		SentAt:        params.SentAt,
		MessageType:   params.MessageType,
	}
	d.messages[msg.ID] = msg
	return &msg, nil
}

func (r *messageRepo) ListByRound(ctx context.Context, roundID int64) ([]model.Message, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Message
	for _, m := range d.messages {
		if m.RoundID == roundID {
			out = append(out, m)
		}
	}
	return sortMessages(out), nil
}

func (r *messageRepo) ListBySession(ctx context.Context, sessionID int64) ([]model.Message, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Message
	for _, m := range d.messages {
		if round, ok := d.rounds[m.RoundID]; ok && round.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return sortMessages(out), nil
}

func sortMessages(msgs []model.Message) []model.Message {
	slices.SortFunc(msgs, func(a, b model.Message) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return msgs
}

type guessRepo struct {
	s *Store
}

func (r *guessRepo) WithTx(tx *sqlx.Tx) repository.GuessRepository {
	return r
}

func (r *guessRepo) FindByPair(ctx context.Context, guesserID, guessedID int64) (*model.Guess, error) {
	d := r.s.lock()
	defer r.s.unlock()
	for _, g := range d.guesses {
		if g.GuesserID == guesserID && g.GuessedID == guessedID {
			return &g, nil
		}
	}
	return nil, nil
}

func (r *guessRepo) ListBySession(ctx context.Context, sessionID int64) ([]model.Guess, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Guess
	for _, g := range d.guesses {
		if g.SessionID == sessionID {
			out = append(out, g)
		}
	}
	return sortByID(out, func(g model.Guess) int64 { return g.ID }), nil
}

func (r *guessRepo) Create(ctx context.Context, params model.CreateGuessParams) (*model.Guess, error) {
	d := r.s.lock()
	defer r.s.unlock()
	for _, g := range d.guesses {
		if g.GuesserID == params.GuesserID && g.GuessedID == params.GuessedID {
			return nil, repository.ErrDuplicate
		}
	}
	now := r.s.Now()
	g := model.Guess{
		ID:          d.id(),
		SessionID:   params.SessionID,
		GuesserID:   params.GuesserID,
		GuessedID:   params.GuessedID,
		CharacterID: params.CharacterID,
		IsCorrect:   params.IsCorrect,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.guesses[g.ID] = g
	return &g, nil
}

func (r *guessRepo) Update(ctx context.Context, id int64, characterID int64, isCorrect bool) (*model.Guess, error) {
	d := r.s.lock()
	defer r.s.unlock()
	g, ok := d.guesses[id]
	if !ok {
		return nil, nil
	}
	g.CharacterID = characterID
	g.IsCorrect = isCorrect
	g.UpdatedAt = r.s.Now()
	d.guesses[id] = g
	return &g, nil
}
