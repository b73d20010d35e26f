package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/audit"
	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

// ContentService manages characters, questions and question collections.
// Questions and collections used by a running game cannot be changed.
type ContentService struct {
	store repository.Store
}

func NewContentService(store repository.Store) *ContentService {
	return &ContentService{store: store}
}

func (s *ContentService) ListCharactersFor(ctx context.Context, accountID *string) ([]model.Character, error) {
	chars, err := s.store.Repos().Content.ListCharacters(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return chars, nil
}

func (s *ContentService) ListCollectionsFor(ctx context.Context, accountID *string) ([]model.Collection, error) {
	cols, err := s.store.Repos().Content.ListCollections(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return cols, nil
}

// ListQuestionIDs returns the distinct live question ids of the given collections.
func (s *ContentService) ListQuestionIDs(ctx context.Context, collectionIDs []int64) ([]int64, error) {
	links, err := s.store.Repos().Content.ListCollectionQuestions(ctx, collectionIDs)
	if err != nil {
		return nil, fmt.Errorf("list collection questions: %w", err)
	}
	seen := make(map[int64]struct{}, len(links))
	ids := make([]int64, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l.QuestionID]; ok {
			continue
		}
		seen[l.QuestionID] = struct{}{}
		ids = append(ids, l.QuestionID)
	}
	return ids, nil
}

func (s *ContentService) ListQuestions(ctx context.Context) ([]model.Question, error) {
	return s.store.Repos().Content.ListQuestions(ctx)
}

func (s *ContentService) CreateCharacter(ctx context.Context, params model.CreateCharacterParams) (*model.Character, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return nil, apperrors.MissingRequired("name")
	}
	params.Description = strings.TrimSpace(params.Description)

	c, err := s.store.Repos().Content.CreateCharacter(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create character: %w", err)
	}
	log.Info().Int64("characterId", c.ID).Str("name", c.Name).Msg("character created")
	return c, nil
}

func (s *ContentService) DeleteCharacter(ctx context.Context, id int64) error {
	ok, err := s.store.Repos().Content.DeleteCharacter(ctx, id)
	if err != nil {
		return fmt.Errorf("delete character: %w", err)
	}
	if !ok {
		return apperrors.NotFound("Character")
	}
	audit.Log(ctx, audit.Event{
		Type:    audit.EventContentDelete,
		Details: map[string]interface{}{"kind": "character", "id": id},
	})
	return nil
}

func (s *ContentService) CreateQuestion(ctx context.Context, params model.CreateQuestionParams) (*model.Question, error) {
	params.Text = strings.TrimSpace(params.Text)
	if params.Text == "" {
		return nil, apperrors.MissingRequired("text")
	}
	q, err := s.store.Repos().Content.CreateQuestion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	log.Info().Int64("questionId", q.ID).Msg("question created")
	return q, nil
}

func (s *ContentService) UpdateQuestion(ctx context.Context, id int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.MissingRequired("text")
	}
	return s.store.InTx(ctx, func(r repository.Repos) error {
		if err := guardQuestion(ctx, r, id); err != nil {
			return err
		}
		ok, err := r.Content.UpdateQuestion(ctx, id, text)
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		if !ok {
			return apperrors.NotFound("Question")
		}
		return nil
	})
}

func (s *ContentService) DeleteQuestion(ctx context.Context, id int64) error {
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		if err := guardQuestion(ctx, r, id); err != nil {
			return err
		}
		ok, err := r.Content.DeleteQuestion(ctx, id)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if !ok {
			return apperrors.NotFound("Question")
		}
		return nil
	})
	if err != nil {
		return err
	}
	audit.Log(ctx, audit.Event{
		Type:    audit.EventContentDelete,
		Details: map[string]interface{}{"kind": "question", "id": id},
	})
	return nil
}

func (s *ContentService) CreateCollection(ctx context.Context, params model.CreateCollectionParams) (*model.Collection, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return nil, apperrors.MissingRequired("name")
	}
	params.Description = strings.TrimSpace(params.Description)
	c, err := s.store.Repos().Content.CreateCollection(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	log.Info().Int64("collectionId", c.ID).Str("name", c.Name).Msg("collection created")
	return c, nil
}

func (s *ContentService) UpdateCollection(ctx context.Context, id int64, name, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.MissingRequired("name")
	}
	return s.store.InTx(ctx, func(r repository.Repos) error {
		if err := guardCollection(ctx, r, id); err != nil {
			return err
		}
		ok, err := r.Content.UpdateCollection(ctx, id, name, strings.TrimSpace(description))
		if err != nil {
			return fmt.Errorf("update collection: %w", err)
		}
		if !ok {
			return apperrors.NotFound("Collection")
		}
		return nil
	})
}

func (s *ContentService) DeleteCollection(ctx context.Context, id int64) error {
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		if err := guardCollection(ctx, r, id); err != nil {
			return err
		}
		ok, err := r.Content.DeleteCollection(ctx, id)
		if err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
		if !ok {
			return apperrors.NotFound("Collection")
		}
		return nil
	})
	if err != nil {
		return err
	}
	audit.Log(ctx, audit.Event{
		Type:    audit.EventContentDelete,
		Details: map[string]interface{}{"kind": "collection", "id": id},
	})
	return nil
}

func (s *ContentService) AddQuestionToCollection(ctx context.Context, collectionID, questionID int64) error {
	return s.store.InTx(ctx, func(r repository.Repos) error {
		col, err := r.Content.FindCollection(ctx, collectionID)
		if err != nil {
			return fmt.Errorf("find collection: %w", err)
		}
		if col == nil {
			return apperrors.NotFound("Collection")
		}
		q, err := r.Content.FindQuestion(ctx, questionID)
		if err != nil {
			return fmt.Errorf("find question: %w", err)
		}
		if q == nil {
			return apperrors.NotFound("Question")
		}
		if err := r.Content.AddQuestionToCollection(ctx, collectionID, questionID); err != nil {
			return fmt.Errorf("add question to collection: %w", err)
		}
		return nil
	})
}

func guardQuestion(ctx context.Context, r repository.Repos, id int64) error {
	n, err := r.Sessions.CountActiveUsingQuestion(ctx, id)
	if err != nil {
		return fmt.Errorf("count sessions using question: %w", err)
	}
	if n > 0 {
		return apperrors.ContentInUse("Question is used by a game in progress")
	}
	return nil
}

func guardCollection(ctx context.Context, r repository.Repos, id int64) error {
	n, err := r.Sessions.CountActiveUsingCollection(ctx, id)
	if err != nil {
		return fmt.Errorf("count sessions using collection: %w", err)
	}
	if n > 0 {
		return apperrors.ContentInUse("Collection is used by a game in progress")
	}
	return nil
}
