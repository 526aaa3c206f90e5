package web

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/importer"
	"github.com/conorfennell/recall/internal/progress"
	"github.com/conorfennell/recall/internal/sm2"
)

type deckDTO struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Complexity string     `json:"complexity"`
	Source     string     `json:"source,omitempty"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type deckDetailDTO struct {
	deckDTO
	Mastery float64   `json:"mastery"`
	Cards   []cardDTO `json:"cards"`
}

type schedulingDTO struct {
	Repetitions    int        `json:"repetition_count"`
	Ease           float64    `json:"ease_factor"`
	IntervalDays   int        `json:"interval_days"`
	DueAt          time.Time  `json:"due_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	Lapses         int        `json:"lapse_count"`
}

type cardDTO struct {
	ID         string        `json:"id"`
	DeckID     string        `json:"deck_id"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	ELI5       string        `json:"eli5,omitempty"`
	ELI10      string        `json:"eli10,omitempty"`
	Mnemonic   string        `json:"mnemonic,omitempty"`
	Scheduling schedulingDTO `json:"scheduling"`
}

type deckSummaryDTO struct {
	deckDTO
	Cards    int     `json:"cards"`
	Mastered int     `json:"mastered"`
	Due      int     `json:"due"`
	Mastery  float64 `json:"mastery"`
}

type dashboardDTO struct {
	TotalCards   int              `json:"total_cards"`
	DueNow       int              `json:"due_now"`
	ReviewsToday int              `json:"reviews_today"`
	Streak       int              `json:"streak"`
	Decks        []deckSummaryDTO `json:"decks"`
}

type syncResultDTO struct {
	DeckID  string   `json:"deck_id"`
	Parsed  int      `json:"parsed"`
	Added   int      `json:"added"`
	Removed int      `json:"removed"`
	Errors  []string `json:"errors,omitempty"`
}

type syncDTO struct {
	Decks []syncResultDTO `json:"decks"`
	Error string          `json:"error,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toDeckDTO(d domain.Deck) deckDTO {
	return deckDTO{
		ID:         d.ID,
		Title:      d.Title,
		Complexity: string(d.Complexity),
		Source:     d.Source,
		LastSynced: optionalTime(d.LastSynced),
		CreatedAt:  d.CreatedAt,
	}
}

func toDeckDTOs(decks []domain.Deck) []deckDTO {
	return lo.Map(decks, func(d domain.Deck, _ int) deckDTO { return toDeckDTO(d) })
}

func toSchedulingDTO(st sm2.State) schedulingDTO {
	return schedulingDTO{
		Repetitions:    st.Repetitions,
		Ease:           st.Ease,
		IntervalDays:   st.IntervalDays,
		DueAt:          st.DueAt,
		LastReviewedAt: optionalTime(st.LastReviewedAt),
		Lapses:         st.Lapses,
	}
}

func toCardDTO(c domain.Card) cardDTO {
	return cardDTO{
		ID:         c.ID,
		DeckID:     c.DeckID,
		Question:   c.Question,
		Answer:     c.Answer,
		ELI5:       c.ELI5,
		ELI10:      c.ELI10,
		Mnemonic:   c.Mnemonic,
		Scheduling: toSchedulingDTO(c.Scheduling),
	}
}

func toCardDTOs(cards []domain.Card) []cardDTO {
	return lo.Map(cards, func(c domain.Card, _ int) cardDTO { return toCardDTO(c) })
}

// toIntervalsDTO keys the preview by lower-case rating name.
func toIntervalsDTO(intervals map[sm2.Rating]int) map[string]int {
	return lo.MapKeys(intervals, func(_ int, r sm2.Rating) string { return strings.ToLower(r.String()) })
}

func toDashboardDTO(d progress.Dashboard) dashboardDTO {
	return dashboardDTO{
		TotalCards:   d.TotalCards,
		DueNow:       d.DueNow,
		ReviewsToday: d.ReviewsToday,
		Streak:       d.Streak,
		Decks: lo.Map(d.Decks, func(s progress.DeckSummary, _ int) deckSummaryDTO {
			return deckSummaryDTO{
				deckDTO:  toDeckDTO(s.Deck),
				Cards:    s.Cards,
				Mastered: s.Mastered,
				Due:      s.Due,
				Mastery:  s.Mastery,
			}
		}),
	}
}

func toSyncResultDTOs(results map[string]importer.Result) []syncResultDTO {
	out := lo.MapToSlice(results, func(id string, r importer.Result) syncResultDTO {
		return syncResultDTO{
			DeckID:  id,
			Parsed:  r.Parsed,
			Added:   r.Added,
			Removed: r.Removed,
			Errors:  lo.Map(r.Errors, func(err error, _ int) string { return err.Error() }),
		}
	})
	slices.SortFunc(out, func(a, b syncResultDTO) int { return strings.Compare(a.DeckID, b.DeckID) })
	return out
}
