package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/recall/internal/config"
	"github.com/conorfennell/recall/internal/generator"
	"github.com/conorfennell/recall/internal/importer"
	"github.com/conorfennell/recall/internal/library"
	"github.com/conorfennell/recall/internal/progress"
	"github.com/conorfennell/recall/internal/sm2"
	"github.com/conorfennell/recall/internal/storage"
)

// app carries what every subcommand needs. It is filled in by the root
// command's pre-run hook once flags are parsed.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *storage.DB
	lib      *library.Library
	progress *progress.Service
	importer *importer.Importer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "recall",
		Short:         "Spaced-repetition flashcards with SM-2 scheduling",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(a),
		newDeckCmd(a),
		newCardCmd(a),
		newImportCmd(a),
		newSyncCmd(a),
		newDueCmd(a),
		newReviewCmd(a),
		newStatsCmd(a),
		newGenerateCmd(a),
	)
	return root
}

// execute runs root and closes the database afterwards. Cobra skips post-run
// hooks when a command fails, so closing happens here instead.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil {
		a.log.Error("Failed to close database", "error", cerr)
		err = errors.Join(err, cerr)
	}
	return err
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(a.log)

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", cfg.Database, err)
	}
	a.db = db
	a.log.Debug("Database opened", "path", cfg.Database)

	params := &sm2.Params{MinEase: cfg.Scheduler.MinEase, MaxInterval: cfg.Scheduler.MaxInterval}
	a.progress = progress.NewService(db, progress.Options{
		Params:           params,
		MasteryThreshold: cfg.Scheduler.MasteryThreshold,
		Location:         loc,
		Logger:           a.log,
	})

	libOpts := []library.Option{library.WithLogger(a.log)}
	if cfg.OpenAI.APIKey != "" {
		libOpts = append(libOpts, library.WithGenerator(
			generator.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model),
		))
	}
	a.lib = library.New(db, libOpts...)
	a.importer = importer.New(db, cfg.Sync.ReposDir,
		importer.WithLogger(a.log),
		importer.WithProgress(cmd.ErrOrStderr()),
	)
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
