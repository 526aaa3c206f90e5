package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/knol"
	"github.com/conorfennell/recall/internal/sm2"
)

type cardRow struct {
	ID             string        `db:"id"`
	DeckID         string        `db:"deck_id"`
	Question       string        `db:"question"`
	Answer         string        `db:"answer"`
	ContentHash    string        `db:"content_hash"`
	ELI5           string        `db:"explanation_eli5"`
	ELI10          string        `db:"explanation_eli10"`
	Mnemonic       string        `db:"mnemonic"`
	Repetitions    int           `db:"repetition_count"`
	Ease           float64       `db:"ease_factor"`
	IntervalDays   int           `db:"interval_days"`
	DueAt          int64         `db:"due_at"`
	LastReviewedAt sql.NullInt64 `db:"last_reviewed_at"`
	Lapses         int           `db:"lapse_count"`
	CreatedAt      int64         `db:"created_at"`
	UpdatedAt      int64         `db:"updated_at"`
}

const cardColumns = `id, deck_id, question, answer, content_hash, explanation_eli5, explanation_eli10, mnemonic,
	repetition_count, ease_factor, interval_days, due_at, last_reviewed_at, lapse_count,
	created_at, updated_at`

func newCardRow(c domain.Card) cardRow {
	return cardRow{
		ID:             c.ID,
		DeckID:         c.DeckID,
		Question:       c.Question,
		Answer:         c.Answer,
		ContentHash:    knol.Hash(c.DeckID, c.Question, c.Answer),
		ELI5:           c.ELI5,
		ELI10:          c.ELI10,
		Mnemonic:       c.Mnemonic,
		Repetitions:    c.Scheduling.Repetitions,
		Ease:           c.Scheduling.Ease,
		IntervalDays:   c.Scheduling.IntervalDays,
		DueAt:          toMillis(c.Scheduling.DueAt),
		LastReviewedAt: nullMillis(c.Scheduling.LastReviewedAt),
		Lapses:         c.Scheduling.Lapses,
		CreatedAt:      toMillis(c.CreatedAt),
		UpdatedAt:      toMillis(c.UpdatedAt),
	}
}

func (r cardRow) state() sm2.State {
	return sm2.State{
		Repetitions:    r.Repetitions,
		Ease:           r.Ease,
		IntervalDays:   r.IntervalDays,
		DueAt:          fromMillis(r.DueAt),
		LastReviewedAt: fromNullMillis(r.LastReviewedAt),
		Lapses:         r.Lapses,
	}
}

func (r cardRow) toDomain() domain.Card {
	return domain.Card{
		ID:         r.ID,
		DeckID:     r.DeckID,
		Question:   r.Question,
		Answer:     r.Answer,
		ELI5:       r.ELI5,
		ELI10:      r.ELI10,
		Mnemonic:   r.Mnemonic,
		CreatedAt:  fromMillis(r.CreatedAt),
		UpdatedAt:  fromMillis(r.UpdatedAt),
		Scheduling: r.state(),
	}
}

func toCards(rows []cardRow) []domain.Card {
	cards := make([]domain.Card, 0, len(rows))
	for _, r := range rows {
		cards = append(cards, r.toDomain())
	}
	return cards
}

// InsertCard inserts a new card with its initial scheduling state and
// returns the ID of the stored card. When the deck already holds a card with
// the same normalized content, nothing is written and that card's ID is
// returned with false.
func (db *DB) InsertCard(ctx context.Context, card domain.Card) (string, bool, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return "", false, persistErr(err, "failed to begin insert of card %s", card.ID)
	}
	defer tx.Rollback()

	if err := deckExists(ctx, tx, card.DeckID); err != nil {
		return "", false, err
	}

	row := newCardRow(card)
	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (:id, :deck_id, :question, :answer, :content_hash, :explanation_eli5, :explanation_eli10, :mnemonic,
			:repetition_count, :ease_factor, :interval_days, :due_at, :last_reviewed_at, :lapse_count,
			:created_at, :updated_at)
		ON CONFLICT(deck_id, content_hash) DO NOTHING
	`, row)
	if err != nil {
		return "", false, persistErr(err, "failed to insert card %s", card.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, persistErr(err, "failed to get rows affected for card %s", card.ID)
	}

	id := card.ID
	if n == 0 {
		id, err = cardIDByContent(ctx, tx, card.DeckID, row.ContentHash)
		if err != nil {
			return "", false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", false, persistErr(err, "failed to commit card %s", card.ID)
	}
	return id, n > 0, nil
}

func cardIDByContent(ctx context.Context, q sqlx.QueryerContext, deckID, hash string) (string, error) {
	var id string
	err := sqlx.GetContext(ctx, q, &id, `SELECT id FROM cards WHERE deck_id = ? AND content_hash = ?`, deckID, hash)
	if err != nil {
		return "", persistErr(err, "failed to find existing card in deck %s", deckID)
	}
	return id, nil
}

// FindCard retrieves a card and its scheduling state by ID.
func (db *DB) FindCard(ctx context.Context, id string) (domain.Card, error) {
	var row cardRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Card{}, fmt.Errorf("%w: %s", domain.ErrCardNotFound, id)
	}
	if err != nil {
		return domain.Card{}, persistErr(err, "failed to find card %s", id)
	}
	return row.toDomain(), nil
}

// GetCardsByDeck retrieves all cards of a deck in creation order.
func (db *DB) GetCardsByDeck(ctx context.Context, deckID string) ([]domain.Card, error) {
	var rows []cardRow
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT `+cardColumns+` FROM cards WHERE deck_id = ? ORDER BY created_at, id
	`, deckID); err != nil {
		return nil, persistErr(err, "failed to get cards for deck %s", deckID)
	}
	return toCards(rows), nil
}

// UpdateCardText replaces the question and answer of a card and recomputes
// its content hash. The scheduling state is left untouched. Editing a card
// into the content of another card of the same deck fails with
// domain.ErrInvalidInput.
func (db *DB) UpdateCardText(ctx context.Context, id, question, answer string, at time.Time) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr(err, "failed to begin update of card %s", id)
	}
	defer tx.Rollback()

	var deckID string
	err = tx.GetContext(ctx, &deckID, `SELECT deck_id FROM cards WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrCardNotFound, id)
	}
	if err != nil {
		return persistErr(err, "failed to find card %s", id)
	}

	hash := knol.Hash(deckID, question, answer)
	var clash string
	err = tx.GetContext(ctx, &clash, `SELECT id FROM cards WHERE deck_id = ? AND content_hash = ? AND id <> ?`, deckID, hash, id)
	switch {
	case err == nil:
		return fmt.Errorf("%w: card %s already has this question and answer", domain.ErrInvalidInput, clash)
	case !errors.Is(err, sql.ErrNoRows):
		return persistErr(err, "failed to check content of card %s", id)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cards SET question = ?, answer = ?, content_hash = ?, updated_at = ? WHERE id = ?
	`, question, answer, hash, toMillis(at), id); err != nil {
		return persistErr(err, "failed to update card %s", id)
	}
	if err := tx.Commit(); err != nil {
		return persistErr(err, "failed to commit card %s", id)
	}
	return nil
}

var explanationColumns = map[domain.ExplanationKind]string{
	domain.ELI5:     "explanation_eli5",
	domain.ELI10:    "explanation_eli10",
	domain.Mnemonic: "mnemonic",
}

// SaveExplanation caches a generated explanation on the card.
func (db *DB) SaveExplanation(ctx context.Context, id string, kind domain.ExplanationKind, text string) error {
	column, ok := explanationColumns[kind]
	if !ok {
		return fmt.Errorf("%w: unknown explanation kind %q", domain.ErrInvalidInput, kind)
	}
	res, err := db.conn.ExecContext(ctx, `UPDATE cards SET `+column+` = ? WHERE id = ?`, text, id)
	if err != nil {
		return persistErr(err, "failed to save %s explanation for card %s", kind, id)
	}
	return expectAffected(res, domain.ErrCardNotFound, id)
}

// DeleteCard removes a card from the database by its ID.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return persistErr(err, "failed to delete card %s", id)
	}
	return expectAffected(res, domain.ErrCardNotFound, id)
}
