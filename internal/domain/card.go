package domain

import (
	"time"

	"github.com/conorfennell/recall/internal/sm2"
)

// Card represents a single question-answer entry and its scheduling state.
type Card struct {
	ID       string
	DeckID   string `validate:"required"`
	Question string `validate:"required"`
	Answer   string `validate:"required"`

	// Explanations are generated on first request and cached afterwards.
	ELI5     string
	ELI10    string
	Mnemonic string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	Scheduling sm2.State
}

// Mastered reports whether the card has reached threshold consecutive
// successful reviews.
func (c Card) Mastered(threshold int) bool {
	return c.Scheduling.Repetitions >= threshold
}

// IsDue reports whether the card is eligible for review at now.
func (c Card) IsDue(now time.Time) bool {
	return !c.Scheduling.DueAt.After(now)
}

// ExplanationKind selects one of the cached simplified explanations.
type ExplanationKind string

const (
	ELI5     ExplanationKind = "eli5"
	ELI10    ExplanationKind = "eli10"
	Mnemonic ExplanationKind = "mnemonic"
)

// ParseExplanationKind validates a kind coming from a caller.
func ParseExplanationKind(s string) (ExplanationKind, error) {
	switch k := ExplanationKind(s); k {
	case ELI5, ELI10, Mnemonic:
		return k, nil
	}
	return "", invalidf("unknown explanation kind %q", s)
}

// Explanation returns the cached explanation of the given kind, if any.
func (c Card) Explanation(kind ExplanationKind) string {
	switch kind {
	case ELI5:
		return c.ELI5
	case ELI10:
		return c.ELI10
	case Mnemonic:
		return c.Mnemonic
	}
	return ""
}

// ReviewLog records a single review event for a card.
type ReviewLog struct {
	CardID       string
	Rating       sm2.Rating
	PrevInterval int
	IntervalDays int
	Ease         float64
	ReviewedAt   time.Time
}
