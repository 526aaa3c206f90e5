// Package progress answers scheduling questions over persisted card state:
// which cards are due, how a review changes a card, how far a deck is
// mastered and how long the current review streak is.
package progress

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/sm2"
	"github.com/conorfennell/recall/internal/storage"
)

// DefaultMasteryThreshold is the repetition count at which a card counts as
// mastered.
const DefaultMasteryThreshold = 3

const duePageSize = 100

// Store is the persistence the accessor needs. *storage.DB implements it.
type Store interface {
	DueCards(ctx context.Context, deckID string, now time.Time, after storage.Cursor, limit int) ([]domain.Card, error)
	CountDue(ctx context.Context, deckID string, now time.Time) (int, error)
	FindCard(ctx context.Context, id string) (domain.Card, error)
	UpdateScheduling(ctx context.Context, cardID string, rating sm2.Rating, apply storage.ApplyFunc) (sm2.State, error)
	DeckStats(ctx context.Context, deckID string, threshold int) (storage.DeckStats, error)
	LastReviewTimes(ctx context.Context) ([]time.Time, error)
	GetAllDecks(ctx context.Context) ([]domain.Deck, error)
	CountCards(ctx context.Context) (int, error)
	CountReviewsSince(ctx context.Context, since time.Time) (int, error)
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Params           *sm2.Params
	MasteryThreshold int
	// Location decides calendar-day boundaries for streaks; default time.Local.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// Service is the accessor between the scheduler and persisted state.
type Service struct {
	store     Store
	params    *sm2.Params
	threshold int
	loc       *time.Location
	now       func() time.Time
	log       *slog.Logger
	locks     cardLocks
}

// NewService creates a Service over store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:     store,
		params:    opts.Params,
		threshold: opts.MasteryThreshold,
		loc:       opts.Location,
		now:       opts.Now,
		log:       opts.Logger,
	}
	if s.params == nil {
		s.params = sm2.DefaultParams()
	}
	if s.threshold <= 0 {
		s.threshold = DefaultMasteryThreshold
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// clock returns the current time at the storage precision.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// MasteryThreshold returns the repetition count a card needs to count as
// mastered.
func (s *Service) MasteryThreshold() int {
	return s.threshold
}

// DueCards yields every card, optionally scoped to deckID, whose due date is
// not after now, oldest-due first with ties broken by card ID. The sequence
// is lazy and can be ranged over again; each pass reads the clock afresh.
// Pages are fetched one at a time and no connection is held while yielding,
// so reviews may be recorded during iteration. An unknown or empty deck
// yields nothing.
func (s *Service) DueCards(ctx context.Context, deckID string) iter.Seq2[domain.Card, error] {
	return func(yield func(domain.Card, error) bool) {
		now := s.clock()
		var cursor storage.Cursor
		for {
			page, err := s.store.DueCards(ctx, deckID, now, cursor, duePageSize)
			if err != nil {
				yield(domain.Card{}, err)
				return
			}
			for _, card := range page {
				if !yield(card, nil) {
					return
				}
			}
			if len(page) < duePageSize {
				return
			}
			cursor = storage.After(page[len(page)-1])
		}
	}
}

// DueCardList collects DueCards into a slice, stopping after limit cards
// when limit > 0.
func (s *Service) DueCardList(ctx context.Context, deckID string, limit int) ([]domain.Card, error) {
	var cards []domain.Card
	for card, err := range s.DueCards(ctx, deckID) {
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
		if limit > 0 && len(cards) == limit {
			break
		}
	}
	return cards, nil
}

// DueCount counts the cards DueCards would yield now.
func (s *Service) DueCount(ctx context.Context, deckID string) (int, error) {
	return s.store.CountDue(ctx, deckID, s.clock())
}

// RecordReview applies rating to the card's current scheduling state,
// persists the result and returns it. Reviews of the same card are
// serialized; reviews of different cards are not. It is not idempotent:
// each call advances the card from whatever state the previous one left.
func (s *Service) RecordReview(ctx context.Context, cardID string, rating sm2.Rating) (sm2.State, error) {
	if !rating.IsValid() {
		return sm2.State{}, fmt.Errorf("%w: %d", sm2.ErrInvalidRating, int(rating))
	}

	unlock := s.locks.lock(cardID)
	defer unlock()

	now := s.clock()
	next, err := s.store.UpdateScheduling(ctx, cardID, rating, func(cur sm2.State) (sm2.State, error) {
		return s.params.Next(cur, rating, now)
	})
	if err != nil {
		return sm2.State{}, err
	}

	s.log.Debug("review recorded",
		"card", cardID,
		"rating", rating.String(),
		"repetitions", next.Repetitions,
		"interval_days", next.IntervalDays,
		"ease", next.Ease,
	)
	return next, nil
}

// NextIntervals previews the interval in days each rating would give the
// card right now.
func (s *Service) NextIntervals(ctx context.Context, cardID string) (map[sm2.Rating]int, error) {
	card, err := s.store.FindCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return s.params.Preview(card.Scheduling, s.clock()), nil
}

// DeckMastery returns the fraction of the deck's cards whose repetition
// count has reached the mastery threshold. An empty deck has mastery 0.
func (s *Service) DeckMastery(ctx context.Context, deckID string) (float64, error) {
	stats, err := s.store.DeckStats(ctx, deckID, s.threshold)
	if err != nil {
		return 0, err
	}
	return masteryRatio(stats), nil
}

func masteryRatio(stats storage.DeckStats) float64 {
	if stats.Total == 0 {
		return 0
	}
	return float64(stats.Mastered) / float64(stats.Total)
}

// Streak counts consecutive calendar days with at least one review, walking
// back from today, or from yesterday when nothing has been reviewed today.
func (s *Service) Streak(ctx context.Context) (int, error) {
	times, err := s.store.LastReviewTimes(ctx)
	if err != nil {
		return 0, err
	}
	return CountStreak(times, s.now(), s.loc), nil
}
