package domain

import (
	"strings"
	"time"
)

// Complexity is the difficulty tag of a deck.
type Complexity string

const (
	Beginner     Complexity = "Beginner"
	Intermediate Complexity = "Intermediate"
	Advanced     Complexity = "Advanced"
)

// ParseComplexity accepts a complexity tag in any case.
func ParseComplexity(s string) (Complexity, error) {
	for _, c := range []Complexity{Beginner, Intermediate, Advanced} {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, nil
		}
	}
	return "", invalidf("unknown complexity %q", s)
}

// Deck is a named collection of cards. Source, when set, is a local
// directory or git URL that the deck's cards are synced from.
type Deck struct {
	ID         string
	Title      string     `validate:"required,max=200"`
	Complexity Complexity `validate:"oneof=Beginner Intermediate Advanced"`
	Source     string
	LastSynced time.Time
	CreatedAt  time.Time
}

// IsGitSource reports whether the deck is backed by a git repository.
func (d Deck) IsGitSource() bool {
	return strings.HasSuffix(d.Source, ".git") ||
		strings.HasPrefix(d.Source, "git@") ||
		strings.HasPrefix(d.Source, "https://") ||
		strings.HasPrefix(d.Source, "http://")
}
