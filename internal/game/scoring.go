package game

import (
	"fmt"

	"github.com/robotparty/game-server/internal/model"
)

type ScoreEntry struct {
	Description string `json:"description"`
	Points      int    `json:"points"`
}

type Breakdown struct {
	ParticipantID int64        `json:"participantId"`
	Name          string       `json:"name"`
	IsNPC         bool         `json:"isNpc"`
	CharacterID   *int64       `json:"characterId,omitempty"`
	Entries       []ScoreEntry `json:"breakdown"`
	Total         int          `json:"total"`
}

// ScoreInput is the full history of a session at finalization.
// Participants are expected in join order, guesses in id order.
type ScoreInput struct {
	Participants   []model.Participant
	Rounds         []model.Round
	Messages       []model.Message
	Guesses        []model.Guess
	// CharacterNames maps guessed character ids to names.
	CharacterNames map[int64]string
}

// Score computes a breakdown for every participant, in join order.
func Score(in ScoreInput) []Breakdown {
	out := make([]Breakdown, 0, len(in.Participants))
	for i := range in.Participants {
		out = append(out, ScoreParticipant(&in.Participants[i], in))
	}
	return out
}

func ScoreParticipant(p *model.Participant, in ScoreInput) Breakdown {
	b := Breakdown{
		ParticipantID: p.ID,
		Name:          p.DisplayName,
		IsNPC:         p.IsNPC,
		CharacterID:   p.CharacterID,
		Entries:       []ScoreEntry{},
	}

	byID := make(map[int64]*model.Participant, len(in.Participants))
	for i := range in.Participants {
		byID[in.Participants[i].ID] = &in.Participants[i]
	}

	answered := make(map[int64]bool)
	for _, m := range in.Messages {
		if m.MessageType == model.MessageTypeChat && m.ParticipantID != nil && *m.ParticipantID == p.ID {
			answered[m.RoundID] = true
		}
	}
	for _, r := range in.Rounds {
		if answered[r.ID] {
			b.add(fmt.Sprintf("answer in round %d", r.RoundNumber), PointsAnsweredRound)
		}
	}

	for _, g := range in.Guesses {
		if g.GuesserID != p.ID || !g.IsCorrect {
			continue
		}
		target, ok := byID[g.GuessedID]
		if !ok {
			continue
		}
		if target.IsNPC {
			name := in.CharacterNames[g.CharacterID]
			if name == "" {
				name = target.DisplayName
			}
			b.add(fmt.Sprintf("correctly identified a bot (%s)", name), PointsCorrectNPCGuess)
		} else {
			b.add(fmt.Sprintf("correctly identified %s", target.DisplayName), PointsCorrectHumanGuess)
		}
	}

	correct := make(map[int64]bool)
	for _, g := range in.Guesses {
		if g.GuessedID == p.ID && g.IsCorrect {
			correct[g.GuesserID] = true
		}
	}
	var eligible, guessers []*model.Participant
	for i := range in.Participants {
		other := &in.Participants[i]
		if other.ID == p.ID || !other.IsActiveHuman() {
			continue
		}
		eligible = append(eligible, other)
		if correct[other.ID] {
			guessers = append(guessers, other)
		}
	}
	switch {
	case len(guessers) == 0:
		b.add("nobody guessed your character", 0)
	case len(guessers) == len(eligible):
		b.add("everyone guessed your character", 0)
	default:
		for _, g := range guessers {
			b.add(fmt.Sprintf("%s guessed your character", g.DisplayName), PointsPerCorrectGuesser)
		}
	}

	return b
}

func (b *Breakdown) add(description string, points int) {
	b.Entries = append(b.Entries, ScoreEntry{Description: description, Points: points})
	b.Total += points
}
