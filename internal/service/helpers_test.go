package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robotparty/game-server/internal/generation"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/pubsub"
	"github.com/robotparty/game-server/internal/repository/memory"
)

type recordedEvent struct {
	Room  string
	Event pubsub.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, roomCode string, event pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Room: roomCode, Event: event})
	return p.err
}

func (p *fakePublisher) ofType(eventType pubsub.EventType) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (p *fakePublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// firstRand always picks the first option and the middle of any range.
type firstRand struct{}

func (firstRand) IntN(n int) int   { return 0 }
func (firstRand) Float64() float64 { return 0.5 }

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Get(1).(time.Time)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt generation.Prompt) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// recordingScheduler captures scheduled rounds instead of running bots.
type recordingScheduler struct {
	mu     sync.Mutex
	rounds []model.Round
	npcs   [][]model.Participant
}

func (s *recordingScheduler) ScheduleRound(code string, round model.Round, npcs []model.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, round)
	s.npcs = append(s.npcs, npcs)
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	store     *memory.Store
	clock     *fakeClock
	publisher *fakePublisher
	scheduler *recordingScheduler

	rooms   *RoomService
	rounds  *RoundService
	guesses *GuessService
	chat    *ChatService
	content *ContentService

	characters []model.Character
	questions  []model.Question
	collection *model.Collection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		store:     memory.NewStore(),
		clock:     newFakeClock(),
		publisher: &fakePublisher{},
		scheduler: &recordingScheduler{},
	}
	f.store.Now = f.clock.Now

	events := NewEvents(f.store, f.publisher)

	f.rooms = NewRoomService(f.store, events, RoomDefaults{RoundLength: 60, RoundCount: 2, GuessTimer: 120})
	f.rooms.now = f.clock.Now
	f.rooms.rng = firstRand{}

	f.rounds = NewRoundService(f.store, events, f.scheduler)
	f.rounds.now = f.clock.Now
	f.rounds.rng = firstRand{}

	f.guesses = NewGuessService(f.store)
	f.guesses.now = f.clock.Now

	f.chat = NewChatService(f.store, events, nil, 20)
	f.chat.now = f.clock.Now

	f.content = NewContentService(f.store)

	f.seedContent()
	return f
}

func (f *fixture) seedContent() {
	content := f.store.Repos().Content
	for _, name := range []string{"Sherlock Holmes", "Cleopatra", "Napoleon", "Marie Curie", "Robin Hood"} {
		c, err := content.CreateCharacter(f.ctx, model.CreateCharacterParams{
			Name:        name,
			Description: name + " as everyone knows them",
			IsPublic:    true,
		})
		require.NoError(f.t, err)
		f.characters = append(f.characters, *c)
	}

	col, err := content.CreateCollection(f.ctx, model.CreateCollectionParams{Name: "Standard"})
	require.NoError(f.t, err)
	f.collection = col

	for i := 1; i <= 3; i++ {
		q, err := content.CreateQuestion(f.ctx, model.CreateQuestionParams{Text: fmt.Sprintf("Question %d?", i)})
		require.NoError(f.t, err)
		require.NoError(f.t, content.AddQuestionToCollection(f.ctx, col.ID, q.ID))
		f.questions = append(f.questions, *q)
	}
}

// seat is a joined participant with its capability.
type seat struct {
	ID    int64
	Creds Credentials
}

func (f *fixture) createRoom() string {
	f.t.Helper()
	res, err := f.rooms.CreateRoom(f.ctx, CreateRoomParams{})
	require.NoError(f.t, err)
	return res.Session.Code
}

func (f *fixture) join(code, name string) seat {
	f.t.Helper()
	res, err := f.rooms.Join(f.ctx, code, JoinParams{Name: name})
	require.NoError(f.t, err)
	require.NotEmpty(f.t, res.Secret)
	return seat{ID: res.Participant.ID, Creds: Credentials{ParticipantID: res.Participant.ID, Secret: res.Secret}}
}

func (f *fixture) pick(code string, s seat, character int) {
	f.t.Helper()
	_, err := f.rooms.SelectCharacter(f.ctx, code, s.Creds, f.characters[character].ID)
	require.NoError(f.t, err)
}

func (f *fixture) session(code string) *model.Session {
	f.t.Helper()
	sess, err := f.store.Repos().Sessions.FindByCode(f.ctx, code)
	require.NoError(f.t, err)
	require.NotNil(f.t, sess)
	return sess
}

func (f *fixture) participant(id int64) *model.Participant {
	f.t.Helper()
	p, err := f.store.Repos().Participants.FindByID(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

// startedGame builds a room with three humans holding characters 0-2 and
// starts it. The first seat is the host.
func (f *fixture) startedGame() (string, []seat) {
	f.t.Helper()
	code := f.createRoom()
	seats := []seat{f.join(code, "Alice"), f.join(code, "Bob"), f.join(code, "Cara")}
	for i, s := range seats {
		f.pick(code, s, i)
	}
	_, err := f.rounds.Start(f.ctx, code, seats[0].Creds)
	require.NoError(f.t, err)
	return code, seats
}

// toGuessing plays every round out.
func (f *fixture) toGuessing(code string) {
	f.t.Helper()
	sess := f.session(code)
	for i := 0; i < sess.RoundCount; i++ {
		f.clock.Advance(sess.RoundDuration())
		require.NoError(f.t, f.rounds.AdvanceSession(f.ctx, sess.ID))
	}
	require.Equal(f.t, model.SessionStatusGuessing, f.session(code).Status)
}
