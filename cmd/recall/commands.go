package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/importer"
	"github.com/conorfennell/recall/internal/library"
	"github.com/conorfennell/recall/internal/reminder"
	"github.com/conorfennell/recall/internal/sm2"
	"github.com/conorfennell/recall/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON HTTP API and, if configured, the due-card reminder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			reminderDone := make(chan error, 1)
			if every := a.cfg.Reminder.Every; every > 0 {
				loc, _ := a.cfg.Location()
				r, err := reminder.New(a.progress, every, loc, nil, a.log)
				if err != nil {
					return err
				}
				go func() { reminderDone <- r.Run(ctx) }()
			} else {
				reminderDone <- nil
			}

			srv := web.NewServer(a.lib, a.progress, a.importer, a.log)
			err := srv.ListenAndServe(ctx, a.cfg.HTTP.Addr)
			cancel()
			return errors.Join(err, <-reminderDone)
		},
	}
}

func newDeckCmd(a *app) *cobra.Command {
	deck := &cobra.Command{Use: "deck", Short: "Manage decks"}

	var complexity, source string
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Create an empty deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.lib.CreateDeck(cmd.Context(), library.NewDeck{
				Title:      args[0],
				Complexity: domain.Complexity(complexity),
				Source:     source,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created deck %s (%s)\n", d.ID, d.Title)
			return nil
		},
	}
	create.Flags().StringVar(&complexity, "complexity", string(domain.Beginner), "Beginner, Intermediate or Advanced")
	create.Flags().StringVar(&source, "source", "", "Markdown directory or git URL to sync cards from")

	list := &cobra.Command{
		Use:   "list",
		Short: "List decks with their progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.progress.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tTITLE\tCOMPLEXITY\tCARDS\tDUE\tMASTERY\tSOURCE")
			for _, s := range d.Decks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.0f%%\t%s\n",
					s.Deck.ID, s.Deck.Title, s.Deck.Complexity, s.Cards, s.Due, s.Mastery*100, s.Deck.Source)
			}
			return tw.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete <deck-id>",
		Short: "Delete a deck with all its cards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.lib.DeleteDeck(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted deck %s\n", args[0])
			return nil
		},
	}

	deck.AddCommand(create, list, del)
	return deck
}

func newCardCmd(a *app) *cobra.Command {
	card := &cobra.Command{Use: "card", Short: "Manage cards"}
	add := &cobra.Command{
		Use:   "add <deck-id> <question> <answer>",
		Short: "Add a card to a deck",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.lib.AddCard(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Card %s due %s\n", c.ID, c.Scheduling.DueAt.Format(time.DateOnly))
			return nil
		},
	}
	card.AddCommand(add)
	return card
}

func newImportCmd(a *app) *cobra.Command {
	imp := &cobra.Command{Use: "import", Short: "Import cards into a deck"}

	markdown := &cobra.Command{
		Use:   "markdown <deck-id> <dir>",
		Short: "Import Q:/A: cards from the markdown files under a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.importer.ImportMarkdown(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	opts := importer.DefaultSheetOptions()
	var noHeader bool
	sheet := &cobra.Command{
		Use:   "sheet <deck-id> <file.xlsx|file.csv>",
		Short: "Import one card per spreadsheet row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SkipHeader = !noHeader
			res, err := a.importer.ImportSpreadsheet(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	sheet.Flags().StringVar(&opts.Sheet, "sheet", "", "Worksheet name (default: first sheet)")
	sheet.Flags().IntVar(&opts.QuestionColumn, "question-col", opts.QuestionColumn, "Zero-based question column")
	sheet.Flags().IntVar(&opts.AnswerColumn, "answer-col", opts.AnswerColumn, "Zero-based answer column")
	sheet.Flags().BoolVar(&noHeader, "no-header", false, "The first row holds a card, not column titles")

	imp.AddCommand(markdown, sheet)
	return imp
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [deck-id]",
		Short: "Reconcile decks with their markdown or git sources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				res, err := a.importer.SyncDeck(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			}
			results, err := a.importer.SyncAll(cmd.Context())
			ids := lo.Keys(results)
			slices.Sort(ids)
			for _, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ", id)
				printResult(cmd.OutOrStdout(), results[id])
			}
			return err
		},
	}
}

func newDueCmd(a *app) *cobra.Command {
	var deckID string
	var limit int
	due := &cobra.Command{
		Use:   "due",
		Short: "List cards due for review, most overdue first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := a.progress.DueCardList(cmd.Context(), deckID, limit)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "CARD\tDECK\tDUE\tQUESTION")
			for _, c := range cards {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.DeckID, c.Scheduling.DueAt.Format(time.DateOnly), c.Question)
			}
			return tw.Flush()
		},
	}
	due.Flags().StringVar(&deckID, "deck", "", "Only cards of this deck")
	due.Flags().IntVar(&limit, "limit", 20, "Maximum number of cards (0: all)")
	return due
}

func newReviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "review <card-id> <again|hard|good|easy|1-4>",
		Short: "Record a review of a card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := sm2.ParseRating(args[1])
			if err != nil {
				return err
			}
			st, err := a.progress.RecordReview(cmd.Context(), args[0], rating)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: next review in %d day(s) on %s (ease %.2f, repetitions %d)\n",
				rating, st.IntervalDays, st.DueAt.Format(time.DateOnly), st.Ease, st.Repetitions)
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the study overview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.progress.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Cards:         %d\n", d.TotalCards)
			fmt.Fprintf(w, "Due now:       %d\n", d.DueNow)
			fmt.Fprintf(w, "Reviews today: %d\n", d.ReviewsToday)
			fmt.Fprintf(w, "Streak:        %d day(s)\n", d.Streak)
			for _, s := range d.Decks {
				fmt.Fprintf(w, "  %s %-30s %3.0f%% mastered (%d/%d)\n", s.Deck.ID, s.Deck.Title, s.Mastery*100, s.Mastered, s.Cards)
			}
			return nil
		},
	}
}

func newGenerateCmd(a *app) *cobra.Command {
	var count int
	var complexity string
	gen := &cobra.Command{
		Use:   "generate <topic>",
		Short: "Generate a new deck on a topic with the configured model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deck, cards, err := a.lib.GenerateDeck(cmd.Context(), args[0], count, domain.Complexity(complexity))
			if deck.ID == "" {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created deck %s (%s) with %d cards\n", deck.ID, deck.Title, len(cards))
			return err
		},
	}
	gen.Flags().IntVarP(&count, "count", "n", 10, "Number of cards")
	gen.Flags().StringVar(&complexity, "complexity", string(domain.Intermediate), "Beginner, Intermediate or Advanced")
	return gen
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printResult(w io.Writer, res importer.Result) {
	fmt.Fprintf(w, "parsed %d, added %d, removed %d", res.Parsed, res.Added, res.Removed)
	if len(res.Errors) > 0 {
		fmt.Fprintf(w, ", %d error(s)", len(res.Errors))
		for _, err := range res.Errors {
			fmt.Fprintf(w, "\n  - %s", err)
		}
	}
	fmt.Fprintln(w)
}
