package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize concatenates the deck id and the card's content after cleaning
// each part. It trims whitespace, lowercases, and normalizes line endings for
// each field before joining them.
func Normalize(deckID, question, answer string) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		p = strings.TrimSpace(p)
		return p
	}

	// Joined with a newline so "question" and "answer" can never run
	// together into "questionanswer".
	return strings.Join([]string{normalizePart(deckID), normalizePart(question), normalizePart(answer)}, "\n")
}

// Hash returns the SHA-256 hash of the normalized card as a hex string.
// Identical content imported twice into the same deck hashes the same, which
// is how a deck keeps each card once.
func Hash(deckID, question, answer string) string {
	normalized := Normalize(deckID, question, answer)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
