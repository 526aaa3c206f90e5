package sm2

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRating is returned for any rating outside Again..Easy.
var ErrInvalidRating = errors.New("invalid rating")

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = iota + 1 // forgot
	Hard
	Good
	Easy
)

// Ratings lists every valid rating in ascending order.
var Ratings = []Rating{Again, Hard, Good, Easy}

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// IsValid reports whether r is one of the four ratings.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts a rating name (any case) or its number, 1 through 4.
func ParseRating(s string) (Rating, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if r := Rating(n); r.IsValid() {
			return r, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
	for _, r := range Ratings {
		if strings.EqualFold(s, ratingNames[r]) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	parsed, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
