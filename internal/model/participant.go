package model

import "time"

// Participant is a seat in a session. Identity is either UserID (registered
// account) or GuestIdentifier, never both. NPCs use a generated guest identifier.
type Participant struct {
	ID              int64     `db:"id" json:"id"`
	SessionID       int64     `db:"session_id" json:"-"`
	UserID          *string   `db:"user_id" json:"-"`
	GuestIdentifier *string   `db:"guest_identifier" json:"-"`
	DisplayName     string    `db:"display_name" json:"name"`
	SecretHash      string    `db:"secret_hash" json:"-"`
	IsHost          bool      `db:"is_host" json:"isHost"`
	IsNPC           bool      `db:"is_npc" json:"-"`
	IsActive        bool      `db:"is_active" json:"isActive"`
	CharacterID     *int64    `db:"assigned_character_id" json:"characterId,omitempty"`
	Points          int       `db:"points" json:"points"`
	JoinedAt        time.Time `db:"joined_at" json:"joinedAt"`
	LastSeen        time.Time `db:"last_seen" json:"lastSeen"`
}

func (p *Participant) HasCharacter() bool {
	return p.CharacterID != nil
}

// IsActiveHuman reports whether the participant is a connected non-NPC player.
func (p *Participant) IsActiveHuman() bool {
	return p.IsActive && !p.IsNPC
}

type CreateParticipantParams struct {
	SessionID       int64
	UserID          *string
	GuestIdentifier *string
	DisplayName     string
	SecretHash      string
	IsHost          bool
	IsNPC           bool
	CharacterID     *int64
}
