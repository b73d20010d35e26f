// Package generation produces NPC chat answers from a character sheet and the
// round's question.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDisabled is returned when no text generation backend is configured.
var ErrDisabled = errors.New("text generation disabled")

type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

type PeerAnswer struct {
	Name string
	Text string
}

// Prompt is everything an NPC knows when it answers.
type Prompt struct {
	CharacterName        string
	CharacterDescription string
	Question             string
	PeerAnswers          []PeerAnswer
}

// System is the standing instruction: the game and the character sheet.
func (p Prompt) System() string {
	var b strings.Builder
	b.WriteString("You are playing a party game where players pretend to be a character and the others try to guess who is who.\n")
	fmt.Fprintf(&b, "Your character is %s.\n", p.CharacterName)
	if p.CharacterDescription != "" {
		fmt.Fprintf(&b, "About your character: %s\n", p.CharacterDescription)
	}
	b.WriteString("Answer in character, in one or two casual sentences, without saying your character's name.")
	return b.String()
}

// Turn is this round's question and what the other players said so far.
func (p Prompt) Turn() string {
	var b strings.Builder
	if p.Question != "" {
		fmt.Fprintf(&b, "QUESTION:\n%s\n\n", p.Question)
	} else {
		b.WriteString("There is no question this round. Say something your character would say in a group chat.\n\n")
	}

	if len(p.PeerAnswers) > 0 {
		b.WriteString("OTHER PLAYERS SO FAR:\n")
		for _, a := range p.PeerAnswers {
			fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("Reply with the message text only.")
	return b.String()
}

// Render is the whole prompt as a single text.
func (p Prompt) Render() string {
	return p.System() + "\n\n" + p.Turn()
}

type disabled struct{}

// Disabled returns a generator that always fails with ErrDisabled.
func Disabled() Generator {
	return disabled{}
}

func (disabled) Generate(ctx context.Context, prompt Prompt) (string, error) {
	return "", ErrDisabled
}

// Clean trims the model output and caps it at maxRunes.
func Clean(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"")
	runes := []rune(text)
	if len(runes) > maxRunes {
		text = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return text
}
