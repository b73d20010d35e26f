package model

import "time"

type Round struct {
	ID          int64     `db:"id" json:"id"`
	SessionID   int64     `db:"session_id" json:"-"`
	RoundNumber int       `db:"round_number" json:"roundNumber"`
	QuestionID  *int64    `db:"question_id" json:"questionId,omitempty"`
	StartTime   time.Time `db:"start_time" json:"startTime"`
	EndTime     time.Time `db:"end_time" json:"endTime"`
}

// Live reports whether the round is still accepting answers at now.
func (r *Round) Live(now time.Time) bool {
	return now.Before(r.EndTime)
}

type CreateRoundParams struct {
	SessionID   int64
	RoundNumber int
	QuestionID  *int64
	StartTime   time.Time
	EndTime     time.Time
}

type Message struct {
	ID            int64       `db:"id" json:"id"`
	RoundID       int64       `db:"round_id" json:"roundId"`
	ParticipantID *int64      `db:"participant_id" json:"participantId,omitempty"`
	Text          string      `db:"text" json:"text"`
	SentAt        time.Time   `db:"sent_at" json:"sentAt"`
	MessageType   MessageType `db:"message_type" json:"messageType"`
}

type CreateMessageParams struct {
	RoundID       int64
	ParticipantID *int64
	Text          string
	MessageType   MessageType
	SentAt        time.Time
}
