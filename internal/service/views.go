package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robotparty/game-server/internal/game"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository"
)

type PlayerView struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	IsHost            bool   `json:"isHost"`
	IsNPC             bool   `json:"isNpc"`
	IsActive          bool   `json:"isActive"`
	CharacterSelected bool   `json:"characterSelected"`
}

type CollectionRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// LobbyView is the room snapshot sent on join and on every lobby change.
type LobbyView struct {
	Code          string              `json:"code"`
	Status        model.SessionStatus `json:"status"`
	RoundLength   int                 `json:"roundLength"`
	RoundCount    int                 `json:"roundCount"`
	GuessTimer    int                 `json:"guessTimer"`
	GuessDeadline *time.Time          `json:"guessDeadline,omitempty"`
	HostID        *int64              `json:"hostId,omitempty"`
	Players       []PlayerView        `json:"players"`
	Collections   []CollectionRef     `json:"questionCollections"`
}

type RoundView struct {
	Code        string    `json:"code"`
	RoundNumber int       `json:"roundNumber"`
	RoundCount  int       `json:"roundCount"`
	QuestionID  *int64    `json:"questionId,omitempty"`
	Question    string    `json:"question,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// ChatView shows a message under the sender's character so players can
// guess who is behind it.
type ChatView struct {
	ID            int64             `json:"id"`
	RoundID       int64             `json:"roundId"`
	CharacterID   *int64            `json:"characterId,omitempty"`
	CharacterName string            `json:"characterName,omitempty"`
	Text          string            `json:"text"`
	SentAt        time.Time         `json:"sentAt"`
	MessageType   model.MessageType `json:"messageType"`
}

type ResultView struct {
	Code    string           `json:"code"`
	Players []game.Breakdown `json:"players"`
}

func buildLobby(ctx context.Context, r repository.Repos, sess *model.Session) (*LobbyView, error) {
	participants, err := r.Participants.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	collectionIDs, err := r.Sessions.ListCollectionIDs(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list session collections: %w", err)
	}
	collections, err := r.Content.ListCollectionsByIDs(ctx, collectionIDs)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	view := &LobbyView{
		Code:          sess.Code,
		Status:        sess.Status,
		RoundLength:   sess.RoundLength,
		RoundCount:    sess.RoundCount,
		GuessTimer:    sess.GuessTimer,
		GuessDeadline: sess.GuessDeadline,
		Players:       make([]PlayerView, 0, len(participants)),
		Collections:   make([]CollectionRef, 0, len(collections)),
	}
	for _, p := range participants {
		if p.IsHost && p.IsActive {
			view.HostID = &p.ID
		}
		view.Players = append(view.Players, PlayerView{
			ID:                p.ID,
			Name:              p.DisplayName,
			IsHost:            p.IsHost,
			IsNPC:             p.IsNPC,
			IsActive:          p.IsActive,
			CharacterSelected: p.HasCharacter(),
		})
	}
	for _, c := range collections {
		view.Collections = append(view.Collections, CollectionRef{ID: c.ID, Name: c.Name})
	}
	return view, nil
}

func buildRound(ctx context.Context, r repository.Repos, sess *model.Session, round *model.Round) (*RoundView, error) {
	view := &RoundView{
		Code:        sess.Code,
		RoundNumber: round.RoundNumber,
		RoundCount:  sess.RoundCount,
		QuestionID:  round.QuestionID,
		StartTime:   round.StartTime,
		EndTime:     round.EndTime,
	}
	if round.QuestionID != nil {
		q, err := r.Content.FindQuestion(ctx, *round.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("find question: %w", err)
		}
		if q != nil {
			view.Question = q.Text
		}
	}
	return view, nil
}

func buildChat(ctx context.Context, r repository.Repos, msg *model.Message, sender *model.Participant) (*ChatView, error) {
	view := &ChatView{
		ID:          msg.ID,
		RoundID:     msg.RoundID,
		Text:        msg.Text,
		SentAt:      msg.SentAt,
		MessageType: msg.MessageType,
	}
	if sender == nil || sender.CharacterID == nil {
		return view, nil
	}
	view.CharacterID = sender.CharacterID
	c, err := r.Content.FindCharacter(ctx, *sender.CharacterID)
	if err != nil {
		return nil, fmt.Errorf("find character: %w", err)
	}
	if c != nil {
		view.CharacterName = c.Name
	}
	return view, nil
}

// loadScoreInput gathers the whole history of a session for scoring.
func loadScoreInput(ctx context.Context, r repository.Repos, sessionID int64) (game.ScoreInput, error) {
	var in game.ScoreInput
	var err error
	if in.Participants, err = r.Participants.ListBySession(ctx, sessionID); err != nil {
		return in, fmt.Errorf("list participants: %w", err)
	}
	if in.Rounds, err = r.Rounds.ListBySession(ctx, sessionID); err != nil {
		return in, fmt.Errorf("list rounds: %w", err)
	}
	if in.Messages, err = r.Messages.ListBySession(ctx, sessionID); err != nil {
		return in, fmt.Errorf("list messages: %w", err)
	}
	if in.Guesses, err = r.Guesses.ListBySession(ctx, sessionID); err != nil {
		return in, fmt.Errorf("list guesses: %w", err)
	}

	in.CharacterNames = make(map[int64]string)
	for _, g := range in.Guesses {
		if !g.IsCorrect {
			continue
		}
		if _, ok := in.CharacterNames[g.CharacterID]; ok {
			continue
		}
		c, err := r.Content.FindCharacter(ctx, g.CharacterID)
		if err != nil {
			return in, fmt.Errorf("find character: %w", err)
		}
		if c != nil {
			in.CharacterNames[g.CharacterID] = c.Name
		}
	}
	return in, nil
}
