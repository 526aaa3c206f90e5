// Package importer fills decks from outside sources: markdown files in a
// local directory or git repository, and spreadsheets.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/gitsource"
	"github.com/conorfennell/recall/internal/library"
	"github.com/conorfennell/recall/internal/parser"
	"github.com/conorfennell/recall/internal/storage"
)

// Result summarises one import or sync.
type Result struct {
	Parsed  int
	Added   int
	Removed int
	// Errors holds per-file and per-card problems that did not stop the run.
	Errors []error
}

// Importer writes imported cards into the store.
type Importer struct {
	db       *storage.DB
	reposDir string
	progress io.Writer
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Importer)

// WithProgress receives git clone and pull progress.
func WithProgress(w io.Writer) Option {
	return func(im *Importer) { im.progress = w }
}

func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(im *Importer) { im.log = log }
}

// New returns an Importer that checks out git sources under reposDir.
func New(db *storage.DB, reposDir string, opts ...Option) *Importer {
	im := &Importer{db: db, reposDir: reposDir, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

func (im *Importer) clock() time.Time {
	return im.now().UTC().Truncate(time.Millisecond)
}

// SyncAll iterates over all decks with a source and reconciles them. A
// failing deck does not stop the others.
func (im *Importer) SyncAll(ctx context.Context) (map[string]Result, error) {
	im.log.Info("Starting sync process for all sources...")
	decks, err := im.db.GetAllDecks(ctx)
	if err != nil {
		return nil, err
	}

	sourced := lo.Filter(decks, func(d domain.Deck, _ int) bool { return d.Source != "" })
	if len(sourced) == 0 {
		im.log.Info("No decks have a source configured")
		return nil, nil
	}

	results := make(map[string]Result, len(sourced))
	var errs []error
	for _, deck := range sourced {
		res, err := im.syncDeck(ctx, deck)
		if err != nil {
			im.log.Error("Error syncing deck", "deck_id", deck.ID, "source", deck.Source, "error", err)
			errs = append(errs, fmt.Errorf("deck %s: %w", deck.ID, err))
			continue
		}
		results[deck.ID] = res
	}
	im.log.Info("Sync process complete.", "decks", len(sourced), "failed", len(errs))
	return results, errors.Join(errs...)
}

// SyncDeck reconciles one deck with its source: new cards are inserted and
// cards no longer present in the source are deleted.
func (im *Importer) SyncDeck(ctx context.Context, deckID string) (Result, error) {
	deck, err := im.db.FindDeck(ctx, deckID)
	if err != nil {
		return Result{}, err
	}
	if deck.Source == "" {
		return Result{}, fmt.Errorf("%w: deck %s has no source", domain.ErrInvalidInput, deckID)
	}
	return im.syncDeck(ctx, deck)
}

func (im *Importer) syncDeck(ctx context.Context, deck domain.Deck) (Result, error) {
	im.log.Info("Syncing deck", "deck_id", deck.ID, "source", deck.Source)

	dir := deck.Source
	if deck.IsGitSource() {
		localPath, err := gitsource.LocalPath(im.reposDir, deck.Source)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return Result{}, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(ctx, deck.Source, localPath, im.progress); err != nil {
			return Result{}, err
		}
		dir = localPath
	}

	return im.reconcile(ctx, deck.ID, dir, true)
}

// ImportMarkdown adds the cards found in the markdown files under dir to a
// deck. Existing cards are kept.
func (im *Importer) ImportMarkdown(ctx context.Context, deckID, dir string) (Result, error) {
	if _, err := im.db.FindDeck(ctx, deckID); err != nil {
		return Result{}, err
	}
	return im.reconcile(ctx, deckID, dir, false)
}

func (im *Importer) reconcile(ctx context.Context, deckID, dir string, prune bool) (Result, error) {
	var res Result
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, parsed := range fileCards {
			res.Parsed++
			id, added, err := im.insert(ctx, deckID, parsed)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("%s: %w", path, err))
				continue
			}
			found[id] = true
			if added {
				im.log.Debug("New card found, inserted", "card_id", id)
				res.Added++
			}
		}
		return ctx.Err()
	})
	if walkErr != nil {
		return res, fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	if prune && len(res.Errors) == 0 {
		existing, err := im.db.GetCardsByDeck(ctx, deckID)
		if err != nil {
			return res, err
		}
		orphans := lo.Filter(existing, func(c domain.Card, _ int) bool { return !found[c.ID] })
		for _, c := range orphans {
			if err := im.db.DeleteCard(ctx, c.ID); err != nil {
				im.log.Warn("Failed to delete orphaned card", "card_id", c.ID, "error", err)
				res.Errors = append(res.Errors, err)
				continue
			}
			res.Removed++
		}
	} else if prune {
		im.log.Warn("Skipping orphan removal because of import errors", "deck_id", deckID)
	}

	if prune {
		if err := im.db.UpdateDeckLastSynced(ctx, deckID, im.clock()); err != nil {
			im.log.Warn("Failed to update last synced for deck", "deck_id", deckID, "error", err)
		}
	}

	im.log.Info("reconciliation complete",
		"deck_id", deckID,
		"path", dir,
		"parsed_cards", res.Parsed,
		"added", res.Added,
		"orphaned_deleted", res.Removed,
		"errors", len(res.Errors),
	)
	return res, nil
}

// insert stores a parsed card and reports its identifier and whether it was
// new to the deck.
func (im *Importer) insert(ctx context.Context, deckID string, parsed domain.Card) (string, bool, error) {
	card, err := library.NewCard(deckID, parsed.Question, parsed.Answer, im.clock())
	if err != nil {
		return "", false, err
	}
	card.Mnemonic = parsed.Mnemonic
	return im.db.InsertCard(ctx, card)
}
