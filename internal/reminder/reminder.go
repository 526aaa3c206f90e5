// Package reminder periodically checks for due cards and reports them.
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Counter reports how many cards are due. *progress.Service implements it.
type Counter interface {
	DueCount(ctx context.Context, deckID string) (int, error)
}

// NotifyFunc is called with the due count whenever it is above zero.
type NotifyFunc func(ctx context.Context, due int)

// Reminder runs the due-card check on a fixed period.
type Reminder struct {
	counter   Counter
	every     time.Duration
	scheduler *gocron.Scheduler
	notify    NotifyFunc
	log       *slog.Logger
}

// New returns a reminder that checks every period in loc. notify may be nil,
// in which case due cards are logged.
func New(counter Counter, every time.Duration, loc *time.Location, notify NotifyFunc, log *slog.Logger) (*Reminder, error) {
	if every <= 0 {
		return nil, errors.New("reminder period must be positive")
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Reminder{
		counter:   counter,
		every:     every,
		scheduler: gocron.NewScheduler(loc),
		notify:    notify,
		log:       log,
	}
	if r.notify == nil {
		r.notify = r.logDue
	}
	return r, nil
}

// Run starts the job and blocks until ctx is done.
func (r *Reminder) Run(ctx context.Context) error {
	_, err := r.scheduler.Every(r.every).SingletonMode().Do(func() { r.check(ctx) })
	if err != nil {
		return err
	}
	r.log.Info("Reminder started", "every", r.every)
	r.scheduler.StartAsync()
	<-ctx.Done()
	r.scheduler.Stop()
	r.log.Info("Reminder stopped")
	return nil
}

func (r *Reminder) check(ctx context.Context) {
	due, err := r.counter.DueCount(ctx, "")
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error("Failed to count due cards", "error", err)
		}
		return
	}
	if due > 0 {
		r.notify(ctx, due)
	}
}

func (r *Reminder) logDue(_ context.Context, due int) {
	r.log.Info("Cards are due for review", "due", due)
}
