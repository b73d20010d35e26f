package game

import (
	"fmt"

	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/model"
)

type GuessEntry struct {
	ParticipantID int64 `json:"participantId"`
	CharacterID   int64 `json:"characterId"`
}

// ValidateGuesses checks a whole batch before anything is stored. participants
// is every participant of the session, active or not.
func ValidateGuesses(guesser *model.Participant, participants []model.Participant, entries []GuessEntry) error {
	if len(entries) == 0 {
		return apperrors.MissingRequired("guesses")
	}
	if limit := len(participants) - 1; len(entries) > limit {
		return apperrors.ValidationError(fmt.Sprintf("At most %d guesses are allowed", limit))
	}

	byID := make(map[int64]*model.Participant, len(participants))
	activeCharacters := make(map[int64]struct{})
	for i := range participants {
		p := &participants[i]
		byID[p.ID] = p
		if p.IsActive && p.CharacterID != nil {
			activeCharacters[*p.CharacterID] = struct{}{}
		}
	}

	seen := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		if e.ParticipantID == 0 || e.CharacterID == 0 {
			return apperrors.MissingRequired("participantId and characterId")
		}
		if e.ParticipantID == guesser.ID {
			return apperrors.ValidationError("You cannot guess yourself")
		}
		if _, dup := seen[e.ParticipantID]; dup {
			return apperrors.ValidationError("Each player can be guessed only once per submission")
		}
		seen[e.ParticipantID] = struct{}{}

		target, ok := byID[e.ParticipantID]
		if !ok {
			return apperrors.NotFound("Participant")
		}
		if _, ok := activeCharacters[e.CharacterID]; !ok {
			return apperrors.InvalidInput("characterId", "character is not in play")
		}
		if !target.HasCharacter() {
			return apperrors.InvalidInput("participantId", "player has no character")
		}
	}
	return nil
}

// IsCorrect resolves a guess. A human target must hold exactly the character;
// for an NPC target any NPC of the session holding it counts.
func IsCorrect(target *model.Participant, characterID int64, participants []model.Participant) bool {
	if !target.IsNPC {
		return target.CharacterID != nil && *target.CharacterID == characterID
	}
	for _, p := range participants {
		if p.IsNPC && p.CharacterID != nil && *p.CharacterID == characterID {
			return true
		}
	}
	return false
}
