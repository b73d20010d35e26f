package model

type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusGuessing   SessionStatus = "guessing"
	SessionStatusCompleted  SessionStatus = "completed"
)

// Started reports whether the session has left the lobby.
func (s SessionStatus) Started() bool {
	return s != SessionStatusPending
}

// Active reports whether a game is being played or guessed.
func (s SessionStatus) Active() bool {
	return s == SessionStatusInProgress || s == SessionStatusGuessing
}

type MessageType string

const (
	MessageTypeChat   MessageType = "chat"
	MessageTypeSystem MessageType = "system"
)
