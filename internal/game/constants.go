// Package game holds the pure rules of a session: start preconditions,
// question selection, guess validation and scoring. Nothing here touches
// storage or the clock.
package game

// Room limits
const (
	MaxActiveParticipants  = 8
	MinParticipantsToStart = 3
	MinActiveHumansToStart = 2
	MaxDisplayNameLength   = 50
	MaxMessageLength       = 500
)

// Scoring points
const (
	PointsAnsweredRound     = 50
	PointsCorrectHumanGuess = 100
	PointsCorrectNPCGuess   = 50
	PointsPerCorrectGuesser = 50
)

// NPC answer delays are drawn from this fraction range of the time left.
const (
	NPCDelayMinFraction = 0.2
	NPCDelayMaxFraction = 0.8
)

const NPCNamePrefix = "Bot #"
