// Package library manages decks and their cards: creation, editing,
// deletion, AI generated decks and cached explanations.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/generator"
	"github.com/conorfennell/recall/internal/sm2"
	"github.com/conorfennell/recall/internal/storage"
)

// MaxGeneratedCards bounds a single generation request.
const MaxGeneratedCards = 50

// Library is the import and edit surface over the store.
type Library struct {
	db  *storage.DB
	gen generator.Generator
	now func() time.Time
	log *slog.Logger
}

// Option customises a Library.
type Option func(*Library)

// WithGenerator enables deck generation and explanations.
func WithGenerator(g generator.Generator) Option {
	return func(l *Library) { l.gen = g }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(log *slog.Logger) Option {
	return func(l *Library) { l.log = log }
}

func New(db *storage.DB, opts ...Option) *Library {
	l := &Library{db: db, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) clock() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

// NewDeck describes a deck to create.
type NewDeck struct {
	Title      string            `validate:"required,max=200"`
	Complexity domain.Complexity `validate:"required,oneof=Beginner Intermediate Advanced"`
	// Source is an optional markdown directory or git URL synced into the deck.
	Source string
}

// CreateDeck stores a new, empty deck.
func (l *Library) CreateDeck(ctx context.Context, in NewDeck) (domain.Deck, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Source = strings.TrimSpace(in.Source)
	if c, err := domain.ParseComplexity(string(in.Complexity)); err == nil {
		in.Complexity = c
	}
	if err := domain.Validate(in); err != nil {
		return domain.Deck{}, err
	}

	deck := domain.Deck{
		ID:         uuid.NewString()[:8],
		Title:      in.Title,
		Complexity: in.Complexity,
		Source:     in.Source,
		CreatedAt:  l.clock(),
	}
	if err := l.db.InsertDeck(ctx, deck); err != nil {
		return domain.Deck{}, err
	}
	l.log.Info("deck created", "deck_id", deck.ID, "title", deck.Title)
	return deck, nil
}

// Decks lists all decks, newest first.
func (l *Library) Decks(ctx context.Context) ([]domain.Deck, error) {
	return l.db.GetAllDecks(ctx)
}

// Deck returns a deck with its cards.
func (l *Library) Deck(ctx context.Context, id string) (domain.Deck, []domain.Card, error) {
	deck, err := l.db.FindDeck(ctx, id)
	if err != nil {
		return domain.Deck{}, nil, err
	}
	cards, err := l.db.GetCardsByDeck(ctx, id)
	if err != nil {
		return domain.Deck{}, nil, err
	}
	return deck, cards, nil
}

// DeleteDeck removes a deck together with its cards and their review history.
func (l *Library) DeleteDeck(ctx context.Context, id string) error {
	if err := l.db.DeleteDeck(ctx, id); err != nil {
		return err
	}
	l.log.Info("deck deleted", "deck_id", id)
	return nil
}

// AddCard stores a new card with a fresh scheduling state, due now. Adding
// the same question and answer to a deck twice returns the existing card.
func (l *Library) AddCard(ctx context.Context, deckID, question, answer string) (domain.Card, error) {
	card, err := NewCard(deckID, question, answer, l.clock())
	if err != nil {
		return domain.Card{}, err
	}
	id, inserted, err := l.db.InsertCard(ctx, card)
	if err != nil {
		return domain.Card{}, err
	}
	if !inserted {
		return l.db.FindCard(ctx, id)
	}
	return card, nil
}

// NewCard builds a validated card with a random identifier and a fresh
// scheduling state due at now.
func NewCard(deckID, question, answer string, now time.Time) (domain.Card, error) {
	card := domain.Card{
		DeckID:     deckID,
		Question:   strings.TrimSpace(question),
		Answer:     strings.TrimSpace(answer),
		CreatedAt:  now,
		UpdatedAt:  now,
		Scheduling: sm2.NewState(now),
	}
	if err := domain.Validate(card); err != nil {
		return domain.Card{}, err
	}
	card.ID = uuid.NewString()
	return card, nil
}

// EditCard replaces a card's question and answer. Its identifier and
// scheduling state are kept. The new text must not duplicate another card of
// the deck.
func (l *Library) EditCard(ctx context.Context, id, question, answer string) (domain.Card, error) {
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return domain.Card{}, fmt.Errorf("%w: question and answer are required", domain.ErrInvalidInput)
	}
	if err := l.db.UpdateCardText(ctx, id, question, answer, l.clock()); err != nil {
		return domain.Card{}, err
	}
	return l.db.FindCard(ctx, id)
}

func (l *Library) DeleteCard(ctx context.Context, id string) error {
	return l.db.DeleteCard(ctx, id)
}

// GenerateDeck asks the generator for count cards on topic and stores them
// in a new deck.
func (l *Library) GenerateDeck(ctx context.Context, topic string, count int, complexity domain.Complexity) (domain.Deck, []domain.Card, error) {
	if l.gen == nil {
		return domain.Deck{}, nil, generator.ErrUnavailable
	}
	if count <= 0 || count > MaxGeneratedCards {
		return domain.Deck{}, nil, fmt.Errorf("%w: card count must be between 1 and %d", domain.ErrInvalidInput, MaxGeneratedCards)
	}
	complexity, err := domain.ParseComplexity(string(complexity))
	if err != nil {
		return domain.Deck{}, nil, err
	}
	if strings.TrimSpace(topic) == "" {
		return domain.Deck{}, nil, fmt.Errorf("%w: topic is required", domain.ErrInvalidInput)
	}

	drafts, err := l.gen.GenerateCards(ctx, generator.Request{Topic: topic, Count: count, Complexity: complexity})
	if err != nil {
		return domain.Deck{}, nil, err
	}

	deck, err := l.CreateDeck(ctx, NewDeck{Title: topic, Complexity: complexity})
	if err != nil {
		return domain.Deck{}, nil, err
	}

	var cards []domain.Card
	var errs []error
	for _, d := range drafts {
		card, err := l.AddCard(ctx, deck.ID, d.Question, d.Answer)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cards = append(cards, card)
	}
	if len(errs) > 0 {
		l.log.Warn("some generated cards were not stored", "deck_id", deck.ID, "errors", len(errs))
	}
	l.log.Info("deck generated", "deck_id", deck.ID, "topic", topic, "cards", len(cards))
	return deck, cards, errors.Join(errs...)
}

// Explanation returns the cached explanation of the given kind, generating
// and caching it on first use.
func (l *Library) Explanation(ctx context.Context, cardID string, kind domain.ExplanationKind) (string, error) {
	if _, err := domain.ParseExplanationKind(string(kind)); err != nil {
		return "", err
	}
	card, err := l.db.FindCard(ctx, cardID)
	if err != nil {
		return "", err
	}
	if text := card.Explanation(kind); text != "" {
		return text, nil
	}
	if l.gen == nil {
		return "", generator.ErrUnavailable
	}

	text, err := l.gen.Explain(ctx, card.Question, card.Answer, kind)
	if err != nil {
		return "", err
	}
	if err := l.db.SaveExplanation(ctx, cardID, kind, text); err != nil {
		return "", err
	}
	l.log.Debug("explanation cached", "card_id", cardID, "kind", kind)
	return text, nil
}
