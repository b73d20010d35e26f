package model

import "time"

// Content rows carry a DeletedAt tombstone. Repository reads filter tombstoned
// rows unless a method says otherwise.

type Character struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	ImageURL    *string    `db:"image_url" json:"imageUrl,omitempty"`
	IsPublic    bool       `db:"is_public" json:"isPublic"`
	CreatorID   *string    `db:"creator_id" json:"-"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// VisibleTo reports whether accountID may use the character.
func (c *Character) VisibleTo(accountID *string) bool {
	if c.IsPublic {
		return true
	}
	return accountID != nil && c.CreatorID != nil && *c.CreatorID == *accountID
}

type CreateCharacterParams struct {
	Name        string
	Description string
	ImageURL    *string
	IsPublic    bool
	CreatorID   *string
}

type Question struct {
	ID        int64      `db:"id" json:"id"`
	Text      string     `db:"text" json:"text"`
	CreatorID *string    `db:"creator_id" json:"-"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

type CreateQuestionParams struct {
	Text      string
	CreatorID *string
}

// Collection is public when CreatedBy is nil.
type Collection struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	CreatedBy   *string    `db:"created_by" json:"-"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

func (c *Collection) IsPublic() bool {
	return c.CreatedBy == nil
}

func (c *Collection) VisibleTo(accountID *string) bool {
	if c.IsPublic() {
		return true
	}
	return accountID != nil && *c.CreatedBy == *accountID
}

type CreateCollectionParams struct {
	Name        string
	Description string
	CreatedBy   *string
}

// CollectionQuestion links a question to a collection.
type CollectionQuestion struct {
	CollectionID int64 `db:"collection_id"`
	QuestionID   int64 `db:"question_id"`
}
