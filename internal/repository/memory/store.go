// Package memory is an in-process implementation of the repository
// interfaces. It enforces the same uniqueness rules as the postgres schema and
// is used by service, job and handler tests.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

type data struct {
	nextID              int64
	sessions            map[int64]model.Session
	sessionCollections  map[int64][]int64
	participants        map[int64]model.Participant
	rounds              map[int64]model.Round
	messages            map[int64]model.Message
	guesses             map[int64]model.Guess
	characters          map[int64]model.Character
	questions           map[int64]model.Question
	collections         map[int64]model.Collection
	collectionQuestions map[int64][]int64
}

func newData() *data {
	return &data{
		sessions:            make(map[int64]model.Session),
		sessionCollections:  make(map[int64][]int64),
		participants:        make(map[int64]model.Participant),
		rounds:              make(map[int64]model.Round),
		messages:            make(map[int64]model.Message),
		guesses:             make(map[int64]model.Guess),
		characters:          make(map[int64]model.Character),
		questions:           make(map[int64]model.Question),
		collections:         make(map[int64]model.Collection),
		collectionQuestions: make(map[int64][]int64),
	}
}

func cloneLinks(in map[int64][]int64) map[int64][]int64 {
	out := make(map[int64][]int64, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

func (d *data) clone() *data {
	return &data{
		nextID:              d.nextID,
		sessions:            maps.Clone(d.sessions),
		sessionCollections:  cloneLinks(d.sessionCollections),
		participants:        maps.Clone(d.participants),
		rounds:              maps.Clone(d.rounds),
		messages:            maps.Clone(d.messages),
		guesses:             maps.Clone(d.guesses),
		characters:          maps.Clone(d.characters),
		questions:           maps.Clone(d.questions),
		collections:         maps.Clone(d.collections),
		collectionQuestions: cloneLinks(d.collectionQuestions),
	}
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

// Store serializes transactions with txMu and restores a snapshot when the
// transaction function fails.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	d    *data

	// Now stamps created_at, joined_at and similar columns.
	Now func() time.Time
}

func NewStore() *Store {
	return &Store{d: newData(), Now: time.Now}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Repos() repository.Repos {
	return repository.Repos{
		Sessions:     &sessionRepo{s: s},
		Participants: &participantRepo{s: s},
		Rounds:       &roundRepo{s: s},
		Messages:     &messageRepo{s: s},
		Guesses:      &guessRepo{s: s},
		Content:      &contentRepo{s: s},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(r repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.d.clone()
	s.mu.Unlock()

	if err := fn(s.Repos()); err != nil {
		s.mu.Lock()
		s.d = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) lock() *data {
	s.mu.Lock()
	return s.d
}

func (s *Store) unlock() {
	s.mu.Unlock()
}

func ptr[T any](v T) *T {
	return &v
}

func sortByID[T any](items []T, id func(T) int64) []T {
	slices.SortFunc(items, func(a, b T) int {
		return cmp.Compare(id(a), id(b))
	})
	return items
}
