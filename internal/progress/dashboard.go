package progress

import (
	"context"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// DeckSummary is one deck's line on the dashboard.
type DeckSummary struct {
	Deck     domain.Deck
	Cards    int
	Mastered int
	Due      int
	Mastery  float64
}

// Dashboard aggregates the figures shown on the study overview.
type Dashboard struct {
	TotalCards   int
	DueNow       int
	ReviewsToday int
	Streak       int
	Decks        []DeckSummary
}

// Dashboard reads the study overview. Its figures are advisory and are not
// taken from a single consistent snapshot.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.clock()

	var d Dashboard
	var err error
	if d.TotalCards, err = s.store.CountCards(ctx); err != nil {
		return Dashboard{}, err
	}
	if d.DueNow, err = s.store.CountDue(ctx, "", now); err != nil {
		return Dashboard{}, err
	}
	y, m, day := s.now().In(s.loc).Date()
	if d.ReviewsToday, err = s.store.CountReviewsSince(ctx, time.Date(y, m, day, 0, 0, 0, 0, s.loc)); err != nil {
		return Dashboard{}, err
	}
	if d.Streak, err = s.Streak(ctx); err != nil {
		return Dashboard{}, err
	}

	decks, err := s.store.GetAllDecks(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	for _, deck := range decks {
		stats, err := s.store.DeckStats(ctx, deck.ID, s.threshold)
		if err != nil {
			return Dashboard{}, err
		}
		due, err := s.store.CountDue(ctx, deck.ID, now)
		if err != nil {
			return Dashboard{}, err
		}
		d.Decks = append(d.Decks, DeckSummary{
			Deck:     deck,
			Cards:    stats.Total,
			Mastered: stats.Mastered,
			Due:      due,
			Mastery:  masteryRatio(stats),
		})
	}
	return d, nil
}
