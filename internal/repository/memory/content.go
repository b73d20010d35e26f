package memory

import (
	"context"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

type contentRepo struct {
	s *Store
}

func (r *contentRepo) WithTx(tx *sqlx.Tx) repository.ContentRepository {
	return r
}

func (r *contentRepo) FindCharacter(ctx context.Context, id int64) (*model.Character, error) {
	d := r.s.lock()
	defer r.s.unlock()
	if c, ok := d.characters[id]; ok && c.DeletedAt == nil {
		return &c, nil
	}
	return nil, nil
}

func (r *contentRepo) ListCharacters(ctx context.Context, accountID *string) ([]model.Character, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Character
	for _, c := range d.characters {
		if c.DeletedAt == nil && c.VisibleTo(accountID) {
			out = append(out, c)
		}
	}
	return sortByID(out, func(c model.Character) int64 { return c.ID }), nil
}

func (r *contentRepo) ListPublicCharacters(ctx context.Context) ([]model.Character, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Character
	for _, c := range d.characters {
		if c.DeletedAt == nil && c.IsPublic {
			out = append(out, c)
		}
	}
	return sortByID(out, func(c model.Character) int64 { return c.ID }), nil
}

func (r *contentRepo) CreateCharacter(ctx context.Context, params model.CreateCharacterParams) (*model.Character, error) {
	d := r.s.lock()
	defer r.s.unlock()
	c := model.Character{
		ID:          d.id(),
		Name:        params.Name,
		Description: params.Description,
		ImageURL:    params.ImageURL,
		IsPublic:    params.IsPublic,
		CreatorID:   params.CreatorID,
		CreatedAt:   r.s.Now(),
	}
	d.characters[c.ID] = c
	return &c, nil
}

func (r *contentRepo) DeleteCharacter(ctx context.Context, id int64) (bool, error) {
	d := r.s.lock()
	defer r.s.unlock()
	c, ok := d.characters[id]
	if !ok || c.DeletedAt != nil {
		return false, nil
	}
	c.DeletedAt = ptr(r.s.Now())
	d.characters[id] = c
	return true, nil
}

func (r *contentRepo) FindQuestion(ctx context.Context, id int64) (*model.Question, error) {
	d := r.s.lock()
	defer r.s.unlock()
	if q, ok := d.questions[id]; ok && q.DeletedAt == nil {
		return &q, nil
	}
	return nil, nil
}

func (r *contentRepo) ListQuestions(ctx context.Context) ([]model.Question, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Question
	for _, q := range d.questions {
		if q.DeletedAt == nil {
			out = append(out, q)
		}
	}
	return sortByID(out, func(q model.Question) int64 { return q.ID }), nil
}

func (r *contentRepo) CreateQuestion(ctx context.Context, params model.CreateQuestionParams) (*model.Question, error) {
	d := r.s.lock()
	defer r.s.unlock()
	q := model.Question{
		ID:        d.id(),
		Text:      params.Text,
		CreatorID: params.CreatorID,
		CreatedAt: r.s.Now(),
	}
	d.questions[q.ID] = q
	return &q, nil
}

func (r *contentRepo) UpdateQuestion(ctx context.Context, id int64, text string) (bool, error) {
	d := r.s.lock()
	defer r.s.unlock()
	q, ok := d.questions[id]
	if !ok || q.DeletedAt != nil {
		return false, nil
	}
	q.Text = text
	d.questions[id] = q
	return true, nil
}

func (r *contentRepo) DeleteQuestion(ctx context.Context, id int64) (bool, error) {
	d := r.s.lock()
	defer r.s.unlock()
	q, ok := d.questions[id]
	if !ok || q.DeletedAt != nil {
		return false, nil
	}
	q.DeletedAt = ptr(r.s.Now())
	d.questions[id] = q
	return true, nil
}

func (r *contentRepo) FindCollection(ctx context.Context, id int64) (*model.Collection, error) {
	d := r.s.lock()
	defer r.s.unlock()
	if c, ok := d.collections[id]; ok && c.DeletedAt == nil {
		return &c, nil
	}
	return nil, nil
}

func (r *contentRepo) ListCollections(ctx context.Context, accountID *string) ([]model.Collection, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Collection
	for _, c := range d.collections {
		if c.DeletedAt == nil && c.VisibleTo(accountID) {
			out = append(out, c)
		}
	}
	return sortByID(out, func(c model.Collection) int64 { return c.ID }), nil
}

func (r *contentRepo) ListCollectionsByIDs(ctx context.Context, ids []int64) ([]model.Collection, error) {
	d := r.s.lock()
	defer r.s.unlock()
	var out []model.Collection
	for _, id := range ids {
		if c, ok := d.collections[id]; ok && c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	return sortByID(out, func(c model.Collection) int64 { return c.ID }), nil
}

func (r *contentRepo) CreateCollection(ctx context.Context, params model.CreateCollectionParams) (*model.Collection, error) {
	d := r.s.lock()
	defer r.s.unlock()
	now := r.s.Now()
	c := model.Collection{
		ID:          d.id(),
		Name:        params.Name,
		Description: params.Description,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.collections[c.ID] = c
	return &c, nil
}

func (r *contentRepo) UpdateCollection(ctx context.Context, id int64, name, description string) (bool, error) {
	d := r.s.lock()
	defer r.s.unlock()
	c, ok := d.collections[id]
	if !ok || c.DeletedAt != nil {
		return false, nil
	}
	c.Name = name
	c.Description = description
	c.UpdatedAt = r.s.Now()
	d.collections[id] = c
	return true, nil
}

func (r *contentRepo) DeleteCollection(ctx context.Context, id int64) (bool, error) {
	d := r.s.lock()
	defer r.s.unlock()
	c, ok := d.collections[id]
	if !ok || c.DeletedAt != nil {
		return false, nil
	}
	c.DeletedAt = ptr(r.s.Now())
	d.collections[id] = c
	return true, nil
}

func (r *contentRepo) AddQuestionToCollection(ctx context.Context, collectionID, questionID int64) error {
	d := r.s.lock()
	defer r.s.unlock()
	if !slices.Contains(d.collectionQuestions[collectionID], questionID) {
		d.collectionQuestions[collectionID] = append(d.collectionQuestions[collectionID], questionID)
	}
	return nil
}

func (r *contentRepo) ListCollectionQuestions(ctx context.Context, collectionIDs []int64) ([]model.CollectionQuestion, error) {
	d := r.s.lock()
	defer r.s.unlock()
	ids := slices.Clone(collectionIDs)
	slices.Sort(ids)
	var out []model.CollectionQuestion
	for _, cid := range slices.Compact(ids) {
		c, ok := d.collections[cid]
		if !ok || c.DeletedAt != nil {
			continue
		}
		qids := slices.Clone(d.collectionQuestions[cid])
		slices.Sort(qids)
		for _, qid := range qids {
			if q, ok := d.questions[qid]; ok && q.DeletedAt == nil {
				out = append(out, model.CollectionQuestion{CollectionID: cid, QuestionID: qid})
			}
		}
	}
	return out, nil
}
