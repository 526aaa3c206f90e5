package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/recall/internal/domain"
)

type deckRow struct {
	ID         string        `db:"id"`
	Title      string        `db:"title"`
	Complexity string        `db:"complexity"`
	Source     string        `db:"source"`
	LastSynced sql.NullInt64 `db:"last_synced"`
	CreatedAt  int64         `db:"created_at"`
}

func (r deckRow) toDomain() domain.Deck {
	return domain.Deck{
		ID:         r.ID,
		Title:      r.Title,
		Complexity: domain.Complexity(r.Complexity),
		Source:     r.Source,
		LastSynced: fromNullMillis(r.LastSynced),
		CreatedAt:  fromMillis(r.CreatedAt),
	}
}

const deckColumns = `id, title, complexity, source, last_synced, created_at`

// InsertDeck inserts a new deck.
func (db *DB) InsertDeck(ctx context.Context, d domain.Deck) error {
	_, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO decks (`+deckColumns+`)
		VALUES (:id, :title, :complexity, :source, :last_synced, :created_at)
	`, deckRow{
		ID:         d.ID,
		Title:      d.Title,
		Complexity: string(d.Complexity),
		Source:     d.Source,
		LastSynced: nullMillis(d.LastSynced),
		CreatedAt:  toMillis(d.CreatedAt),
	})
	if err != nil {
		return persistErr(err, "failed to insert deck %s", d.ID)
	}
	return nil
}

// FindDeck retrieves a deck by its ID.
func (db *DB) FindDeck(ctx context.Context, id string) (domain.Deck, error) {
	var row deckRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+deckColumns+` FROM decks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Deck{}, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	if err != nil {
		return domain.Deck{}, persistErr(err, "failed to find deck %s", id)
	}
	return row.toDomain(), nil
}

// GetAllDecks retrieves every deck, newest first.
func (db *DB) GetAllDecks(ctx context.Context) ([]domain.Deck, error) {
	var rows []deckRow
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT `+deckColumns+` FROM decks ORDER BY created_at DESC, id
	`); err != nil {
		return nil, persistErr(err, "failed to get all decks")
	}
	decks := make([]domain.Deck, 0, len(rows))
	for _, r := range rows {
		decks = append(decks, r.toDomain())
	}
	return decks, nil
}

// UpdateDeckLastSynced updates the last_synced timestamp for a deck.
func (db *DB) UpdateDeckLastSynced(ctx context.Context, id string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE decks SET last_synced = ? WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return persistErr(err, "failed to update last synced for deck %s", id)
	}
	return expectAffected(res, domain.ErrDeckNotFound, id)
}

// DeleteDeck removes a deck; its cards and their review history cascade.
func (db *DB) DeleteDeck(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return persistErr(err, "failed to delete deck %s", id)
	}
	return expectAffected(res, domain.ErrDeckNotFound, id)
}

// deckExists runs on either the connection or an open transaction.
func deckExists(ctx context.Context, q sqlx.QueryerContext, id string) error {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM decks WHERE id = ?`, id); err != nil {
		return persistErr(err, "failed to look up deck %s", id)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	return nil
}

func expectAffected(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr(err, "failed to get rows affected for %s", id)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}
