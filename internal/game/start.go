package game

import (
	"fmt"

	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/model"
)

type StartFailure string

const (
	StartOK                 StartFailure = ""
	StartNotHost            StartFailure = "not_host"
	StartNotPending         StartFailure = "not_pending"
	StartTooFewParticipants StartFailure = "too_few_participants"
	StartTooFewHumans       StartFailure = "too_few_humans"
	StartMissingCharacter   StartFailure = "missing_character"
	StartNotEnoughQuestions StartFailure = "not_enough_questions"
)

// StartCheck is the outcome of CheckStart. Required and Actual are filled for
// count-based failures.
type StartCheck struct {
	Failure  StartFailure
	Required int
	Actual   int
}

func (c StartCheck) OK() bool {
	return c.Failure == StartOK
}

// Err converts a failed check into a user-facing error. It returns nil when OK.
func (c StartCheck) Err() error {
	details := map[string]int{"required": c.Required, "actual": c.Actual}
	switch c.Failure {
	case StartOK:
		return nil
	case StartNotHost:
		return apperrors.NotHost("start the game")
	case StartNotPending:
		return apperrors.InvalidState("Game has already started")
	case StartTooFewParticipants:
		return apperrors.PreconditionFailed(
			fmt.Sprintf("At least %d players are needed to start", c.Required)).WithDetails(details)
	case StartTooFewHumans:
		return apperrors.PreconditionFailed(
			fmt.Sprintf("At least %d human players are needed to start", c.Required)).WithDetails(details)
	case StartMissingCharacter:
		return apperrors.PreconditionFailed("Every player must choose a character")
	case StartNotEnoughQuestions:
		return apperrors.PreconditionFailed(
			"Selected collections do not have enough questions for the round count").WithDetails(details)
	default:
		return apperrors.Internal("unknown start failure")
	}
}

type StartInput struct {
	Actor             *model.Participant
	Session           *model.Session
	Participants      []model.Participant
	DistinctQuestions int
}

// CheckStart evaluates the start preconditions in a fixed order and reports
// the first one that fails.
func CheckStart(in StartInput) StartCheck {
	if in.Actor == nil || !in.Actor.IsHost || !in.Actor.IsActive {
		return StartCheck{Failure: StartNotHost}
	}
	if in.Session.Status != model.SessionStatusPending {
		return StartCheck{Failure: StartNotPending}
	}
	if len(in.Participants) < MinParticipantsToStart {
		return StartCheck{Failure: StartTooFewParticipants, Required: MinParticipantsToStart, Actual: len(in.Participants)}
	}

	humans := 0
	for _, p := range in.Participants {
		if p.IsActiveHuman() {
			humans++
		}
	}
	if humans < MinActiveHumansToStart {
		return StartCheck{Failure: StartTooFewHumans, Required: MinActiveHumansToStart, Actual: humans}
	}

	for _, p := range in.Participants {
		if !p.HasCharacter() {
			return StartCheck{Failure: StartMissingCharacter}
		}
	}

	if in.DistinctQuestions < in.Session.RoundCount {
		return StartCheck{Failure: StartNotEnoughQuestions, Required: in.Session.RoundCount, Actual: in.DistinctQuestions}
	}

	return StartCheck{Failure: StartOK}
}
