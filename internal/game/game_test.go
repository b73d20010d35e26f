package game

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/model"
)

func id(v int64) *int64 { return &v }

func player(pid int64, name string, char int64) model.Participant {
	p := model.Participant{ID: pid, DisplayName: name, IsActive: true}
	if char != 0 {
		p.CharacterID = id(char)
	}
	return p
}

func npc(pid int64, name string, char int64) model.Participant {
	p := player(pid, name, char)
	p.IsNPC = true
	return p
}

func TestCheckStart(t *testing.T) {
	host := player(1, "Host", 10)
	host.IsHost = true
	session := &model.Session{Status: model.SessionStatusPending, RoundCount: 2}
	full := []model.Participant{host, player(2, "B", 11), player(3, "C", 12)}

	tests := []struct {
		name     string
		in       StartInput
		expected StartFailure
	}{
		{
			name:     "ok",
			in:       StartInput{Actor: &host, Session: session, Participants: full, DistinctQuestions: 2},
			expected: StartOK,
		},
		{
			name:     "not host",
			in:       StartInput{Actor: &full[1], Session: session, Participants: full, DistinctQuestions: 2},
			expected: StartNotHost,
		},
		{
			name: "not pending",
			in: StartInput{Actor: &host, Session: &model.Session{Status: model.SessionStatusInProgress, RoundCount: 2},
				Participants: full, DistinctQuestions: 2},
			expected: StartNotPending,
		},
		{
			name:     "too few participants",
			in:       StartInput{Actor: &host, Session: session, Participants: full[:2], DistinctQuestions: 2},
			expected: StartTooFewParticipants,
		},
		{
			name: "npc only game",
			in: StartInput{Actor: &host, Session: session,
				Participants: []model.Participant{host, npc(2, "Bot #1", 11), npc(3, "Bot #2", 12)}, DistinctQuestions: 2},
			expected: StartTooFewHumans,
		},
		{
			name: "missing character",
			in: StartInput{Actor: &host, Session: session,
				Participants: []model.Participant{host, player(2, "B", 11), player(3, "C", 0)}, DistinctQuestions: 2},
			expected: StartMissingCharacter,
		},
		{
			name:     "not enough questions",
			in:       StartInput{Actor: &host, Session: session, Participants: full, DistinctQuestions: 1},
			expected: StartNotEnoughQuestions,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			check := CheckStart(tc.in)
			assert.Equal(t, tc.expected, check.Failure)
			if tc.expected == StartOK {
				assert.True(t, check.OK())
				assert.NoError(t, check.Err())
			} else {
				assert.Error(t, check.Err())
			}
		})
	}

	t.Run("error codes", func(t *testing.T) {
		assert.Equal(t, apperrors.ErrCodeNotHost, apperrors.GetCode(StartCheck{Failure: StartNotHost}.Err()))
		assert.Equal(t, apperrors.ErrCodeInvalidState, apperrors.GetCode(StartCheck{Failure: StartNotPending}.Err()))
		assert.Equal(t, apperrors.ErrCodePreconditionFailed, apperrors.GetCode(StartCheck{Failure: StartNotEnoughQuestions}.Err()))
	})
}

func TestPickQuestion(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	links := []model.CollectionQuestion{
		{CollectionID: 1, QuestionID: 100},
		{CollectionID: 1, QuestionID: 101},
		{CollectionID: 2, QuestionID: 101},
		{CollectionID: 2, QuestionID: 200},
	}

	t.Run("never returns a used question", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			q := PickQuestion(rng, links, []int64{100, 101})
			require.NotNil(t, q)
			assert.Equal(t, int64(200), *q)
		}
	})

	t.Run("returns nil when exhausted", func(t *testing.T) {
		assert.Nil(t, PickQuestion(rng, links, []int64{100, 101, 200}))
		assert.Nil(t, PickQuestion(rng, nil, nil))
	})

	t.Run("draws from every collection", func(t *testing.T) {
		seen := map[int64]bool{}
		for i := 0; i < 200; i++ {
			seen[*PickQuestion(rng, links, nil)] = true
		}
		assert.Len(t, seen, 3)
	})

	t.Run("counts distinct questions", func(t *testing.T) {
		assert.Equal(t, 3, DistinctQuestions(links))
	})
}

func TestValidateGuesses(t *testing.T) {
	me := player(1, "Me", 10)
	participants := []model.Participant{me, player(2, "B", 11), npc(3, "Bot #1", 12), player(4, "D", 0)}

	tests := []struct {
		name    string
		entries []GuessEntry
		code    apperrors.ErrorCode
	}{
		{"empty batch", nil, apperrors.ErrCodeMissingRequired},
		{"too many", []GuessEntry{{2, 11}, {3, 12}, {4, 10}, {5, 10}}, apperrors.ErrCodeValidation},
		{"missing fields", []GuessEntry{{2, 0}}, apperrors.ErrCodeMissingRequired},
		{"self guess", []GuessEntry{{1, 10}}, apperrors.ErrCodeValidation},
		{"duplicate target", []GuessEntry{{2, 11}, {2, 12}}, apperrors.ErrCodeValidation},
		{"unknown target", []GuessEntry{{99, 11}}, apperrors.ErrCodeNotFound},
		{"character not in play", []GuessEntry{{2, 77}}, apperrors.ErrCodeInvalidInput},
		{"target without character", []GuessEntry{{4, 11}}, apperrors.ErrCodeInvalidInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGuesses(&me, participants, tc.entries)
			require.Error(t, err)
			assert.Equal(t, tc.code, apperrors.GetCode(err))
		})
	}

	t.Run("valid batch", func(t *testing.T) {
		assert.NoError(t, ValidateGuesses(&me, participants, []GuessEntry{{2, 12}, {3, 11}}))
	})

	t.Run("character held by inactive participant is not in play", func(t *testing.T) {
		left := player(5, "Gone", 20)
		left.IsActive = false
		err := ValidateGuesses(&me, append(participants, left), []GuessEntry{{2, 20}})
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})
}

func TestIsCorrect(t *testing.T) {
	participants := []model.Participant{
		player(1, "A", 10), player(2, "B", 11), npc(3, "Bot #1", 12), npc(4, "Bot #2", 13),
	}

	t.Run("human target needs exact character", func(t *testing.T) {
		assert.True(t, IsCorrect(&participants[1], 11, participants))
		assert.False(t, IsCorrect(&participants[1], 10, participants))
	})

	t.Run("npc target accepts any npc character", func(t *testing.T) {
		assert.True(t, IsCorrect(&participants[2], 12, participants))
		assert.True(t, IsCorrect(&participants[2], 13, participants))
		assert.False(t, IsCorrect(&participants[2], 11, participants))
	})
}

func scenario() ScoreInput {
	a := player(1, "Alice", 10)
	b := player(2, "Bob", 11)
	c := player(3, "Cara", 12)
	d := player(4, "Dan", 13)
	bot := npc(5, "Bot #1", 14)
	return ScoreInput{
		Participants: []model.Participant{a, b, c, d, bot},
		Rounds: []model.Round{
			{ID: 100, RoundNumber: 1},
			{ID: 101, RoundNumber: 2},
		},
		Messages: []model.Message{
			{ID: 1, RoundID: 100, ParticipantID: id(1), MessageType: model.MessageTypeChat},
			{ID: 2, RoundID: 100, ParticipantID: id(1), MessageType: model.MessageTypeChat},
			{ID: 3, RoundID: 101, ParticipantID: id(1), MessageType: model.MessageTypeChat},
			{ID: 4, RoundID: 101, MessageType: model.MessageTypeSystem},
			{ID: 5, RoundID: 101, ParticipantID: id(2), MessageType: model.MessageTypeChat},
		},
		Guesses: []model.Guess{
			{ID: 1, GuesserID: 2, GuessedID: 1, CharacterID: 10, IsCorrect: true},
			{ID: 2, GuesserID: 3, GuessedID: 1, CharacterID: 11, IsCorrect: false},
			{ID: 3, GuesserID: 1, GuessedID: 2, CharacterID: 11, IsCorrect: true},
			{ID: 4, GuesserID: 1, GuessedID: 5, CharacterID: 14, IsCorrect: true},
			{ID: 5, GuesserID: 2, GuessedID: 3, CharacterID: 12, IsCorrect: true},
			{ID: 6, GuesserID: 1, GuessedID: 3, CharacterID: 12, IsCorrect: true},
			{ID: 7, GuesserID: 4, GuessedID: 3, CharacterID: 12, IsCorrect: true},
		},
		CharacterNames: map[int64]string{14: "Marie Curie"},
	}
}

func TestScoreParticipant(t *testing.T) {
	in := scenario()

	t.Run("partially guessed gets one entry per correct guesser", func(t *testing.T) {
		b := ScoreParticipant(&in.Participants[0], in)
		assert.Equal(t, []ScoreEntry{
			{Description: "answer in round 1", Points: 50},
			{Description: "answer in round 2", Points: 50},
			{Description: "correctly identified Bob", Points: 100},
			{Description: "correctly identified a bot (Marie Curie)", Points: 50},
			{Description: "correctly identified Cara", Points: 100},
			{Description: "Bob guessed your character", Points: 50},
		}, b.Entries)
		assert.Equal(t, 400, b.Total)
	})

	t.Run("nobody guessed", func(t *testing.T) {
		b := ScoreParticipant(&in.Participants[3], in)
		assert.Equal(t, []ScoreEntry{
			{Description: "correctly identified Cara", Points: 100},
			{Description: "nobody guessed your character", Points: 0},
		}, b.Entries)
		assert.Equal(t, 100, b.Total)
	})

	t.Run("everyone guessed", func(t *testing.T) {
		b := ScoreParticipant(&in.Participants[2], in)
		assert.Equal(t, []ScoreEntry{{Description: "everyone guessed your character", Points: 0}}, b.Entries)
	})

	t.Run("inactive guessers do not count", func(t *testing.T) {
		in := scenario()
		in.Participants[3].IsActive = false
		b := ScoreParticipant(&in.Participants[0], in)
		assert.Contains(t, b.Entries, ScoreEntry{Description: "Bob guessed your character", Points: 50})
	})

	t.Run("sum of entries equals total", func(t *testing.T) {
		for _, b := range Score(in) {
			sum := 0
			for _, e := range b.Entries {
				sum += e.Points
			}
			assert.Equal(t, sum, b.Total)
		}
	})
}

func TestScore_IsPure(t *testing.T) {
	in := scenario()
	first := Score(in)
	second := Score(in)
	assert.Equal(t, first, second)
	require.Len(t, first, 5)
	assert.Equal(t, int64(1), first[0].ParticipantID)
}
