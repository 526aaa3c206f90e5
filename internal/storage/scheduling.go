package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/sm2"
)

// Cursor marks the last card returned by DueCards. The zero Cursor starts
// from the beginning.
type Cursor struct {
	DueAt time.Time
	ID    string
}

// After returns the cursor positioned on card.
func After(card domain.Card) Cursor {
	return Cursor{DueAt: card.Scheduling.DueAt, ID: card.ID}
}

// DueCards returns up to limit cards with due_at <= now that sort after the
// cursor by (due_at, id). An empty deckID means every deck.
func (db *DB) DueCards(ctx context.Context, deckID string, now time.Time, after Cursor, limit int) ([]domain.Card, error) {
	afterDue := toMillis(after.DueAt)
	var rows []cardRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT `+cardColumns+` FROM cards
		WHERE due_at <= ?
		  AND (? = '' OR deck_id = ?)
		  AND (due_at > ? OR (due_at = ? AND id > ?))
		ORDER BY due_at, id
		LIMIT ?
	`, toMillis(now), deckID, deckID, afterDue, afterDue, after.ID, limit)
	if err != nil {
		return nil, persistErr(err, "failed to get due cards")
	}
	return toCards(rows), nil
}

// CountDue counts cards with due_at <= now, optionally scoped to a deck.
func (db *DB) CountDue(ctx context.Context, deckID string, now time.Time) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM cards WHERE due_at <= ? AND (? = '' OR deck_id = ?)
	`, toMillis(now), deckID, deckID); err != nil {
		return 0, persistErr(err, "failed to count due cards")
	}
	return n, nil
}

// ApplyFunc computes the next scheduling state from the stored one.
type ApplyFunc func(current sm2.State) (sm2.State, error)

// UpdateScheduling runs a read-modify-write of one card's scheduling state in
// a single transaction and appends a review log entry for rating. If apply or
// any write fails, nothing is persisted.
func (db *DB) UpdateScheduling(ctx context.Context, cardID string, rating sm2.Rating, apply ApplyFunc) (sm2.State, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return sm2.State{}, persistErr(err, "failed to begin review of card %s", cardID)
	}
	defer tx.Rollback()

	var row cardRow
	err = tx.GetContext(ctx, &row, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return sm2.State{}, fmt.Errorf("%w: %s", domain.ErrCardNotFound, cardID)
	}
	if err != nil {
		return sm2.State{}, persistErr(err, "failed to read card %s", cardID)
	}

	current := row.state()
	next, err := apply(current)
	if err != nil {
		return sm2.State{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET repetition_count = ?, ease_factor = ?, interval_days = ?, due_at = ?,
		    last_reviewed_at = ?, lapse_count = ?, updated_at = ?
		WHERE id = ?
	`,
		next.Repetitions,
		next.Ease,
		next.IntervalDays,
		toMillis(next.DueAt),
		nullMillis(next.LastReviewedAt),
		next.Lapses,
		toMillis(next.LastReviewedAt),
		cardID,
	); err != nil {
		return sm2.State{}, persistErr(err, "failed to update card state for %s", cardID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, rating, prev_interval, interval_days, ease_factor, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, cardID, int(rating), current.IntervalDays, next.IntervalDays, next.Ease, toMillis(next.LastReviewedAt)); err != nil {
		return sm2.State{}, persistErr(err, "failed to log review of card %s", cardID)
	}

	if err := tx.Commit(); err != nil {
		return sm2.State{}, persistErr(err, "failed to commit review of card %s", cardID)
	}
	return next, nil
}

// ReviewLogs returns the review history of a card, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	var rows []struct {
		CardID       string  `db:"card_id"`
		Rating       int     `db:"rating"`
		PrevInterval int     `db:"prev_interval"`
		IntervalDays int     `db:"interval_days"`
		Ease         float64 `db:"ease_factor"`
		ReviewedAt   int64   `db:"reviewed_at"`
	}
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT card_id, rating, prev_interval, interval_days, ease_factor, reviewed_at
		FROM review_logs WHERE card_id = ? ORDER BY reviewed_at, id
	`, cardID); err != nil {
		return nil, persistErr(err, "failed to get review logs for card %s", cardID)
	}
	logs := make([]domain.ReviewLog, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, domain.ReviewLog{
			CardID:       r.CardID,
			Rating:       sm2.Rating(r.Rating),
			PrevInterval: r.PrevInterval,
			IntervalDays: r.IntervalDays,
			Ease:         r.Ease,
			ReviewedAt:   fromMillis(r.ReviewedAt),
		})
	}
	return logs, nil
}

// CountReviewsSince counts review log entries at or after since.
func (db *DB) CountReviewsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM review_logs WHERE reviewed_at >= ?
	`, toMillis(since)); err != nil {
		return 0, persistErr(err, "failed to count reviews")
	}
	return n, nil
}

// DeckStats summarizes a deck's cards against a mastery threshold.
type DeckStats struct {
	Total    int `db:"total"`
	Mastered int `db:"mastered"`
}

// DeckStats counts a deck's cards and those with at least threshold
// consecutive successful reviews.
func (db *DB) DeckStats(ctx context.Context, deckID string, threshold int) (DeckStats, error) {
	if err := deckExists(ctx, db.conn, deckID); err != nil {
		return DeckStats{}, err
	}
	var stats DeckStats
	if err := db.conn.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN repetition_count >= ? THEN 1 ELSE 0 END), 0) AS mastered
		FROM cards WHERE deck_id = ?
	`, threshold, deckID); err != nil {
		return DeckStats{}, persistErr(err, "failed to compute stats for deck %s", deckID)
	}
	return stats, nil
}

// LastReviewTimes returns the distinct last_reviewed_at values across all
// cards, newest first.
func (db *DB) LastReviewTimes(ctx context.Context) ([]time.Time, error) {
	var ms []int64
	if err := db.conn.SelectContext(ctx, &ms, `
		SELECT DISTINCT last_reviewed_at FROM cards
		WHERE last_reviewed_at IS NOT NULL
		ORDER BY last_reviewed_at DESC
	`); err != nil {
		return nil, persistErr(err, "failed to get review times")
	}
	times := make([]time.Time, 0, len(ms))
	for _, v := range ms {
		times = append(times, fromMillis(v))
	}
	return times, nil
}

// CountCards counts all cards.
func (db *DB) CountCards(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM cards`); err != nil {
		return 0, persistErr(err, "failed to count cards")
	}
	return n, nil
}
