package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/robotparty/game-server/internal/model"
)

// ContentRepository reads and writes characters, questions and collections.
// Tombstoned rows are invisible to every read.
type ContentRepository interface {
	FindCharacter(ctx context.Context, id int64) (*model.Character, error)
	// ListCharacters returns public characters plus those created by accountID.
	ListCharacters(ctx context.Context, accountID *string) ([]model.Character, error)
	ListPublicCharacters(ctx context.Context) ([]model.Character, error)
	CreateCharacter(ctx context.Context, params model.CreateCharacterParams) (*model.Character, error)
	DeleteCharacter(ctx context.Context, id int64) (bool, error)

	FindQuestion(ctx context.Context, id int64) (*model.Question, error)
	ListQuestions(ctx context.Context) ([]model.Question, error)
	CreateQuestion(ctx context.Context, params model.CreateQuestionParams) (*model.Question, error)
	UpdateQuestion(ctx context.Context, id int64, text string) (bool, error)
	DeleteQuestion(ctx context.Context, id int64) (bool, error)

	FindCollection(ctx context.Context, id int64) (*model.Collection, error)
	// ListCollections returns public collections plus those created by accountID.
	ListCollections(ctx context.Context, accountID *string) ([]model.Collection, error)
	ListCollectionsByIDs(ctx context.Context, ids []int64) ([]model.Collection, error)
	CreateCollection(ctx context.Context, params model.CreateCollectionParams) (*model.Collection, error)
	UpdateCollection(ctx context.Context, id int64, name, description string) (bool, error)
	DeleteCollection(ctx context.Context, id int64) (bool, error)
	AddQuestionToCollection(ctx context.Context, collectionID, questionID int64) error
	// ListCollectionQuestions returns the live question links of the given collections.
	ListCollectionQuestions(ctx context.Context, collectionIDs []int64) ([]model.CollectionQuestion, error)

	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ContentRepository
}

type contentRepo struct {
	db sqlxDB
}

func NewContentRepository(db *sqlx.DB) ContentRepository {
	return &contentRepo{db: db}
}

func (r *contentRepo) WithTx(tx *sqlx.Tx) ContentRepository {
	return &contentRepo{db: tx}
}

func (r *contentRepo) FindCharacter(ctx context.Context, id int64) (*model.Character, error) {
	var c model.Character
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM characters WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return HandleNotFound(&c, err)
}

func (r *contentRepo) ListCharacters(ctx context.Context, accountID *string) ([]model.Character, error) {
	var characters []model.Character
	err := r.db.SelectContext(ctx, &characters, `
		SELECT * FROM characters
		WHERE deleted_at IS NULL AND (is_public OR creator_id = $1)
		ORDER BY name, id
	`, accountID)
	return characters, err
}

func (r *contentRepo) ListPublicCharacters(ctx context.Context) ([]model.Character, error) {
	var characters []model.Character
	err := r.db.SelectContext(ctx, &characters, `
		SELECT * FROM characters
		WHERE deleted_at IS NULL AND is_public
		ORDER BY id
	`)
	return characters, err
}

func (r *contentRepo) CreateCharacter(ctx context.Context, params model.CreateCharacterParams) (*model.Character, error) {
	var c model.Character
	err := r.db.GetContext(ctx, &c, `
		INSERT INTO characters (name, description, image_url, is_public, creator_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.Name, params.Description, params.ImageURL, params.IsPublic, params.CreatorID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contentRepo) DeleteCharacter(ctx context.Context, id int64) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE characters SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
}

func (r *contentRepo) FindQuestion(ctx context.Context, id int64) (*model.Question, error) {
	var q model.Question
	err := r.db.GetContext(ctx, &q, `
		SELECT * FROM questions WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return HandleNotFound(&q, err)
}

func (r *contentRepo) ListQuestions(ctx context.Context) ([]model.Question, error) {
	var questions []model.Question
	err := r.db.SelectContext(ctx, &questions, `
		SELECT * FROM questions WHERE deleted_at IS NULL ORDER BY id
	`)
	return questions, err
}

func (r *contentRepo) CreateQuestion(ctx context.Context, params model.CreateQuestionParams) (*model.Question, error) {
	var q model.Question
	err := r.db.GetContext(ctx, &q, `
		INSERT INTO questions (text, creator_id)
		VALUES ($1, $2)
		RETURNING *
	`, params.Text, params.CreatorID)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *contentRepo) UpdateQuestion(ctx context.Context, id int64, text string) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE questions SET text = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, text))
}

func (r *contentRepo) DeleteQuestion(ctx context.Context, id int64) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE questions SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
}

func (r *contentRepo) FindCollection(ctx context.Context, id int64) (*model.Collection, error) {
	var c model.Collection
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM question_collections WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return HandleNotFound(&c, err)
}

func (r *contentRepo) ListCollections(ctx context.Context, accountID *string) ([]model.Collection, error) {
	var collections []model.Collection
	err := r.db.SelectContext(ctx, &collections, `
		SELECT * FROM question_collections
		WHERE deleted_at IS NULL AND (created_by IS NULL OR created_by = $1)
		ORDER BY id
	`, accountID)
	return collections, err
}

func (r *contentRepo) ListCollectionsByIDs(ctx context.Context, ids []int64) ([]model.Collection, error) {
	var collections []model.Collection
	if len(ids) == 0 {
		return collections, nil
	}
	err := r.db.SelectContext(ctx, &collections, `
		SELECT * FROM question_collections
		WHERE id = ANY($1) AND deleted_at IS NULL
		ORDER BY id
	`, pq.Array(ids))
	return collections, err
}

func (r *contentRepo) CreateCollection(ctx context.Context, params model.CreateCollectionParams) (*model.Collection, error) {
	var c model.Collection
	err := r.db.GetContext(ctx, &c, `
		INSERT INTO question_collections (name, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.Name, params.Description, params.CreatedBy)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contentRepo) UpdateCollection(ctx context.Context, id int64, name, description string) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE question_collections SET
			name = $2,
			description = $3,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, name, description))
}

func (r *contentRepo) DeleteCollection(ctx context.Context, id int64) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE question_collections SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
}

func (r *contentRepo) AddQuestionToCollection(ctx context.Context, collectionID, questionID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO collection_questions (collection_id, question_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, collectionID, questionID)
	return err
}

func (r *contentRepo) ListCollectionQuestions(ctx context.Context, collectionIDs []int64) ([]model.CollectionQuestion, error) {
	var links []model.CollectionQuestion
	if len(collectionIDs) == 0 {
		return links, nil
	}
	err := r.db.SelectContext(ctx, &links, `
		SELECT cq.collection_id, cq.question_id
		FROM collection_questions cq
		JOIN question_collections c ON c.id = cq.collection_id
		JOIN questions q ON q.id = cq.question_id
		WHERE cq.collection_id = ANY($1)
			AND c.deleted_at IS NULL
			AND q.deleted_at IS NULL
		ORDER BY cq.collection_id, cq.question_id
	`, pq.Array(collectionIDs))
	return links, err
}
