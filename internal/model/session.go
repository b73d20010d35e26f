package model

import "time"

type Session struct {
	ID             int64         `db:"id" json:"id"`
	Code           string        `db:"code" json:"code"`
	Status         SessionStatus `db:"status" json:"status"`
	RoundLength    int           `db:"round_length" json:"roundLength"`
	RoundCount     int           `db:"round_count" json:"roundCount"`
	GuessTimer     int           `db:"guess_timer" json:"guessTimer"`
	GuessDeadline  *time.Time    `db:"guess_deadline" json:"guessDeadline,omitempty"`
	NPCSequence    int           `db:"npc_sequence" json:"-"`
	CurrentRoundID *int64        `db:"current_round_id" json:"currentRoundId,omitempty"`
	CreatedBy      *string       `db:"created_by" json:"-"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

func (s *Session) RoundDuration() time.Duration {
	return time.Duration(s.RoundLength) * time.Second
}

func (s *Session) GuessDuration() time.Duration {
	return time.Duration(s.GuessTimer) * time.Second
}

type CreateSessionParams struct {
	Code        string
	RoundLength int
	RoundCount  int
	GuessTimer  int
	CreatedBy   *string
}

type SessionSettings struct {
	RoundLength int
	RoundCount  int
	GuessTimer  int
}
