package moderation

import (
	"chat-relay/errors"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator replaces censored words in message text before routing. Matching
// is case-insensitive; replacement preserves message length.
type Moderator struct {
	machine     *goahocorasick.Machine
	replacement rune
}

// NewModerator builds the Aho-Corasick automaton from a lowercased copy of
// the provided word list.
func NewModerator(words []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		patterns = append(patterns, []rune(word))
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{machine: m, replacement: replacement}, nil
}

// Censor returns the censored text and the censored words it matched.
// Lowercasing is done rune by rune, so match positions map one-to-one onto
// the original text.
func (m *Moderator) Censor(text string) (string, []string) {
	original := []rune(text)
	lowered := make([]rune, len(original))
	for i, r := range original {
		lowered[i] = unicode.ToLower(r)
	}

	terms := m.machine.MultiPatternSearch(lowered, false)
	if len(terms) == 0 {
		return text, nil
	}

	var found []string
	for _, term := range terms {
		found = append(found, string(term.Word))
		end := term.Pos + len(term.Word)
		if end > len(original) {
			end = len(original)
		}
		for i := term.Pos; i < end; i++ {
			original[i] = m.replacement
		}
	}
	return string(original), found
}
