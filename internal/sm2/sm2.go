package sm2

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultEase is the ease factor of a card that has never been reviewed.
	DefaultEase = 2.5
	// MinEase is the floor below which the ease factor never drops.
	MinEase = 1.3

	againEasePenalty = 0.20
	hardEasePenalty  = 0.15
	easyEaseBonus    = 0.15
	hardGrowth       = 1.2
	easyBonus        = 1.3
)

// State is the scheduling state of a single card.
type State struct {
	Repetitions    int     // consecutive successful reviews since the last lapse
	Ease           float64 // interval growth multiplier, never below MinEase
	IntervalDays   int
	DueAt          time.Time
	LastReviewedAt time.Time // zero until the first review
	Lapses         int       // total Again ratings, never decreases
}

// NewState returns the state of a freshly created card: due immediately.
func NewState(now time.Time) State {
	return State{
		Ease:  DefaultEase,
		DueAt: now,
	}
}

// Reviewed reports whether the card has been reviewed at least once.
func (s State) Reviewed() bool {
	return !s.LastReviewedAt.IsZero()
}

// Params holds the tunables of the algorithm.
type Params struct {
	MinEase float64
	// MaxInterval caps the interval in days after a successful review.
	// Zero leaves growth unbounded.
	MaxInterval int
}

// DefaultParams returns the standard SM-2 settings with no interval cap.
func DefaultParams() *Params {
	return &Params{
		MinEase: MinEase,
	}
}

// Next applies rating r to state and returns the new state with
// LastReviewedAt set to now and DueAt IntervalDays calendar days later.
// It fails only when r is not a valid rating.
func (p *Params) Next(state State, r Rating, now time.Time) (State, error) {
	if !r.IsValid() {
		return State{}, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	cur := p.normalize(state)
	next := cur

	switch r {
	case Again:
		next.Repetitions = 0
		next.IntervalDays = 1
		next.Ease = p.floorEase(cur.Ease - againEasePenalty)
		next.Lapses = cur.Lapses + 1
	case Hard:
		next.Repetitions = cur.Repetitions + 1
		next.Ease = p.floorEase(cur.Ease - hardEasePenalty)
		next.IntervalDays = 1
		if cur.IntervalDays > 0 {
			next.IntervalDays = max(1, roundDays(float64(cur.IntervalDays)*hardGrowth))
		}
	case Good:
		next.Repetitions = cur.Repetitions + 1
		next.IntervalDays = goodInterval(next.Repetitions, cur.IntervalDays, cur.Ease)
	case Easy:
		next.Repetitions = cur.Repetitions + 1
		next.Ease = cur.Ease + easyEaseBonus
		good := goodInterval(next.Repetitions, cur.IntervalDays, cur.Ease)
		next.IntervalDays = max(1, roundDays(float64(good)*easyBonus))
	}

	if r != Again && p.MaxInterval > 0 && next.IntervalDays > p.MaxInterval {
		next.IntervalDays = p.MaxInterval
	}

	next.LastReviewedAt = now
	next.DueAt = DueDate(now, next.IntervalDays)
	return next, nil
}

// Preview returns the interval in days each rating would produce from state.
func (p *Params) Preview(state State, now time.Time) map[Rating]int {
	out := make(map[Rating]int, len(Ratings))
	for _, r := range Ratings {
		next, _ := p.Next(state, r, now)
		out[r] = next.IntervalDays
	}
	return out
}

// DueDate is now moved forward by the given number of calendar days.
func DueDate(now time.Time, intervalDays int) time.Time {
	return now.AddDate(0, 0, intervalDays)
}

func (p *Params) normalize(s State) State {
	s.Ease = p.floorEase(s.Ease)
	s.Repetitions = max(0, s.Repetitions)
	s.IntervalDays = max(0, s.IntervalDays)
	s.Lapses = max(0, s.Lapses)
	return s
}

func (p *Params) floorEase(ease float64) float64 {
	floor := p.MinEase
	if floor <= 0 {
		floor = MinEase
	}
	// Round away float noise so repeated penalties land exactly on the floor.
	ease = math.Round(ease*1e6) / 1e6
	return math.Max(floor, ease)
}

// goodInterval is the interval for a Good rating once the repetition count
// has been incremented to reps.
func goodInterval(reps, prev int, ease float64) int {
	switch reps {
	case 1:
		return 1
	case 2:
		return 6
	}
	next := roundDays(float64(prev) * ease)
	if next <= prev {
		next = prev + 1
	}
	return max(1, next)
}

func roundDays(days float64) int {
	return int(math.Round(days))
}
