package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/game"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/pubsub"
	"github.com/robotparty/game-server/internal/repository"
)

// duplicateRoundStore fails every round insert as if another worker had
// already opened that round.
type duplicateRoundStore struct {
	repository.Store
}

type duplicateRounds struct {
	repository.RoundRepository
}

func (duplicateRounds) Create(ctx context.Context, params model.CreateRoundParams) (*model.Round, error) {
	return nil, fmt.Errorf("insert round: %w", repository.ErrDuplicate)
}

func (s duplicateRoundStore) Repos() repository.Repos {
	r := s.Store.Repos()
	r.Rounds = duplicateRounds{r.Rounds}
	return r
}

func (s duplicateRoundStore) InTx(ctx context.Context, fn func(r repository.Repos) error) error {
	return s.Store.InTx(ctx, func(r repository.Repos) error {
		r.Rounds = duplicateRounds{r.Rounds}
		return fn(r)
	})
}

func TestRoundService_Start(t *testing.T) {
	t.Run("preconditions", func(t *testing.T) {
		f := newFixture(t)
		code := f.createRoom()
		alice := f.join(code, "Alice")
		bob := f.join(code, "Bob")

		_, err := f.rounds.Start(f.ctx, code, alice.Creds)
		assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.GetCode(err), "two players")

		_, err = f.rooms.AddNPC(f.ctx, code, alice.Creds)
		require.NoError(t, err)
		_, err = f.rounds.Start(f.ctx, code, bob.Creds)
		assert.Equal(t, apperrors.ErrCodeNotHost, apperrors.GetCode(err))

		_, err = f.rounds.Start(f.ctx, code, alice.Creds)
		assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.GetCode(err), "missing characters")

		f.pick(code, alice, 1)
		f.pick(code, bob, 2)
		_, err = f.rooms.UpdateSettings(f.ctx, code, alice.Creds, SettingsParams{RoundLength: 60, RoundCount: 4})
		require.NoError(t, err)
		_, err = f.rounds.Start(f.ctx, code, alice.Creds)
		assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.GetCode(err), "three questions for four rounds")

		assert.Equal(t, model.SessionStatusPending, f.session(code).Status)
	})

	t.Run("needs two humans", func(t *testing.T) {
		f := newFixture(t)
		code := f.createRoom()
		alice := f.join(code, "Alice")
		f.pick(code, alice, 0)
		for i := 0; i < 2; i++ {
			_, err := f.rooms.AddNPC(f.ctx, code, alice.Creds)
			require.NoError(t, err)
		}

		_, err := f.rounds.Start(f.ctx, code, alice.Creds)
		require.Error(t, err)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, map[string]int{"required": 2, "actual": 1}, appErr.Details)
	})

	t.Run("opens round one", func(t *testing.T) {
		f := newFixture(t)
		code := f.createRoom()
		alice := f.join(code, "Alice")
		bob := f.join(code, "Bob")
		f.pick(code, alice, 0)
		f.pick(code, bob, 1)
		npc, err := f.rooms.AddNPC(f.ctx, code, alice.Creds)
		require.NoError(t, err)
		f.publisher.reset()

		view, err := f.rounds.Start(f.ctx, code, alice.Creds)
		require.NoError(t, err)

		sess := f.session(code)
		assert.Equal(t, model.SessionStatusInProgress, sess.Status)
		assert.Equal(t, 1, view.RoundNumber)
		assert.Equal(t, f.clock.Now(), view.StartTime)
		assert.Equal(t, f.clock.Now().Add(60*time.Second), view.EndTime)
		require.NotNil(t, view.QuestionID)
		assert.Equal(t, f.questions[0].ID, *view.QuestionID)
		assert.Equal(t, "Question 1?", view.Question)

		round, err := f.store.Repos().Rounds.FindLatest(f.ctx, sess.ID)
		require.NoError(t, err)
		require.NotNil(t, sess.CurrentRoundID)
		assert.Equal(t, round.ID, *sess.CurrentRoundID)

		msgs, err := f.store.Repos().Messages.ListByRound(f.ctx, round.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, model.MessageTypeSystem, msgs[0].MessageType)
		assert.Nil(t, msgs[0].ParticipantID)
		assert.Equal(t, "Round 1 of 2: Question 1?", msgs[0].Text)

		assert.Len(t, f.publisher.ofType(pubsub.EventLobbyUpdate), 1)
		assert.Len(t, f.publisher.ofType(pubsub.EventRoundUpdate), 1)

		require.Len(t, f.scheduler.npcs, 1)
		require.Len(t, f.scheduler.npcs[0], 1)
		assert.Equal(t, npc.ID, f.scheduler.npcs[0][0].ID)
	})

	t.Run("cannot start twice", func(t *testing.T) {
		f := newFixture(t)
		code, seats := f.startedGame()
		_, err := f.rounds.Start(f.ctx, code, seats[0].Creds)
		assert.Equal(t, apperrors.ErrCodeInvalidState, apperrors.GetCode(err))
	})
}

func TestRoundService_AdvanceSession(t *testing.T) {
	t.Run("no-op while the round is live", func(t *testing.T) {
		f := newFixture(t)
		code, _ := f.startedGame()
		sess := f.session(code)

		f.clock.Advance(59 * time.Second)
		require.NoError(t, f.rounds.AdvanceSession(f.ctx, sess.ID))

		rounds, err := f.store.Repos().Rounds.ListBySession(f.ctx, sess.ID)
		require.NoError(t, err)
		assert.Len(t, rounds, 1)
	})

	t.Run("opens the next round with an unused question", func(t *testing.T) {
		f := newFixture(t)
		code, _ := f.startedGame()
		sess := f.session(code)
		f.publisher.reset()

		f.clock.Advance(60 * time.Second)
		require.NoError(t, f.rounds.AdvanceSession(f.ctx, sess.ID))
		require.NoError(t, f.rounds.AdvanceSession(f.ctx, sess.ID))

		rounds, err := f.store.Repos().Rounds.ListBySession(f.ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, rounds, 2)
		assert.Equal(t, 2, rounds[1].RoundNumber)
		assert.NotEqual(t, *rounds[0].QuestionID, *rounds[1].QuestionID)
		assert.Equal(t, rounds[1].ID, *f.session(code).CurrentRoundID)

		events := f.publisher.ofType(pubsub.EventRoundUpdate)
		require.Len(t, events, 1)
		var view RoundView
		require.NoError(t, json.Unmarshal(events[0].Event.Data, &view))
		assert.Equal(t, 2, view.RoundNumber)
	})

	t.Run("exhausted questions give a round without one", func(t *testing.T) {
		f := newFixture(t)
		code := f.createRoom()
		seats := []seat{f.join(code, "Alice"), f.join(code, "Bob"), f.join(code, "Cara")}
		for i, s := range seats {
			f.pick(code, s, i)
		}
		_, err := f.rooms.UpdateSettings(f.ctx, code, seats[0].Creds, SettingsParams{RoundLength: 60, RoundCount: 3})
		require.NoError(t, err)
		_, err = f.rounds.Start(f.ctx, code, seats[0].Creds)
		require.NoError(t, err)

		sess := f.session(code)
		f.clock.Advance(60 * time.Second)
		require.NoError(t, f.rounds.AdvanceSession(f.ctx, sess.ID))

		// the remaining question disappears mid-game
		_, err = f.store.Repos().Content.DeleteQuestion(f.ctx, f.questions[2].ID)
		require.NoError(t, err)

		f.clock.Advance(60 * time.Second)
		require.NoError(t, f.rounds.AdvanceSession(f.ctx, sess.ID))

		latest, err := f.store.Repos().Rounds.FindLatest(f.ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, latest.RoundNumber)
		assert.Nil(t, latest.QuestionID)
	})

	t.Run("last round moves to guessing", func(t *testing.T) {
		f := newFixture(t)
		code, _ := f.startedGame()
		f.toGuessing(code)

		sess := f.session(code)
		require.NotNil(t, sess.GuessDeadline)
		assert.Equal(t, f.clock.Now().Add(120*time.Second), *sess.GuessDeadline)

		rounds, err := f.store.Repos().Rounds.ListBySession(f.ctx, sess.ID)
		require.NoError(t, err)
		assert.Len(t, rounds, 2)

		f.clock.Advance(time.Hour)
		require.NoError(t, f.rounds.AdvanceSession(f.ctx, sess.ID))
		assert.Equal(t, model.SessionStatusGuessing, f.session(code).Status)
	})

	t.Run("concurrent advancers open exactly one round", func(t *testing.T) {
		f := newFixture(t)
		code, _ := f.startedGame()
		sess := f.session(code)
		f.clock.Advance(60 * time.Second)
		f.publisher.reset()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, f.rounds.AdvanceSession(f.ctx, sess.ID))
			}()
		}
		wg.Wait()

		rounds, err := f.store.Repos().Rounds.ListBySession(f.ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, rounds, 2)
		for i, r := range rounds {
			assert.Equal(t, i+1, r.RoundNumber)
		}
		assert.Len(t, f.publisher.ofType(pubsub.EventRoundUpdate), 1)
	})

	t.Run("duplicate round insert is a no-op", func(t *testing.T) {
		f := newFixture(t)
		code, _ := f.startedGame()
		sess := f.session(code)

		store := duplicateRoundStore{Store: f.store}
		scheduler := &recordingScheduler{}
		rounds := NewRoundService(store, NewEvents(store, f.publisher), scheduler)
		rounds.now = f.clock.Now
		rounds.rng = firstRand{}

		f.clock.Advance(60 * time.Second)
		f.publisher.reset()
		assert.NoError(t, rounds.AdvanceSession(f.ctx, sess.ID))

		assert.Empty(t, f.publisher.ofType(pubsub.EventRoundUpdate))
		assert.Empty(t, f.publisher.ofType(pubsub.EventLobbyUpdate))
		assert.Empty(t, scheduler.rounds)

		latest, err := f.store.Repos().Rounds.FindLatest(f.ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, latest.RoundNumber)
		assert.Equal(t, latest.ID, *f.session(code).CurrentRoundID)
	})

	t.Run("advance rounds walks every session", func(t *testing.T) {
		f := newFixture(t)
		first, _ := f.startedGame()
		second, _ := f.startedGame()

		f.clock.Advance(60 * time.Second)
		require.NoError(t, f.rounds.AdvanceRounds(f.ctx))

		for _, code := range []string{first, second} {
			latest, err := f.store.Repos().Rounds.FindLatest(f.ctx, f.session(code).ID)
			require.NoError(t, err)
			assert.Equal(t, 2, latest.RoundNumber, code)
		}
	})
}

func TestRoundService_FinalizeSession(t *testing.T) {
	f := newFixture(t)
	code, seats := f.startedGame()
	sess := f.session(code)

	_, err := f.chat.Send(f.ctx, code, seats[1].Creds, "I am definitely not a detective")
	require.NoError(t, err)
	f.toGuessing(code)

	_, err = f.guesses.Submit(f.ctx, code, seats[1].Creds, []game.GuessEntry{
		{ParticipantID: seats[0].ID, CharacterID: f.characters[0].ID},
	})
	require.NoError(t, err)

	t.Run("before the deadline", func(t *testing.T) {
		require.NoError(t, f.rounds.FinalizeSession(f.ctx, sess.ID))
		assert.Equal(t, model.SessionStatusGuessing, f.session(code).Status)
	})

	t.Run("after the deadline", func(t *testing.T) {
		f.publisher.reset()
		f.clock.Advance(120 * time.Second)
		require.NoError(t, f.rounds.FinalizeGames(f.ctx))

		done := f.session(code)
		assert.Equal(t, model.SessionStatusCompleted, done.Status)
		assert.Nil(t, done.GuessDeadline)

		// 50 for answering round one, 100 for identifying Alice
		assert.Equal(t, 150, f.participant(seats[1].ID).Points)
		// 50 from Bob's correct guess; Cara did not guess
		assert.Equal(t, 50, f.participant(seats[0].ID).Points)
		assert.Equal(t, 0, f.participant(seats[2].ID).Points)

		results := f.publisher.ofType(pubsub.EventGameResult)
		require.Len(t, results, 1)
		var view ResultView
		require.NoError(t, json.Unmarshal(results[0].Event.Data, &view))
		require.Len(t, view.Players, 3)
		assert.Equal(t, 150, view.Players[1].Total)
	})

	t.Run("runs once", func(t *testing.T) {
		f.publisher.reset()
		require.NoError(t, f.rounds.FinalizeSession(f.ctx, sess.ID))
		assert.Empty(t, f.publisher.ofType(pubsub.EventGameResult))
	})
}
