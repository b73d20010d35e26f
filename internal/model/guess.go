package model

import "time"

type Guess struct {
	ID          int64     `db:"id" json:"id"`
	SessionID   int64     `db:"session_id" json:"-"`
	GuesserID   int64     `db:"guesser_id" json:"guesserId"`
	GuessedID   int64     `db:"guessed_participant_id" json:"guessedParticipantId"`
	CharacterID int64     `db:"guessed_character_id" json:"guessedCharacterId"`
	IsCorrect   bool      `db:"is_correct" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

type CreateGuessParams struct {
	SessionID   int64
	GuesserID   int64
	GuessedID   int64
	CharacterID int64
	IsCorrect   bool
}
