package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/csg33k/catering-docgen/internal/ports"
)

// Scheduler is the part of Runner the sweeper needs.
type Scheduler interface {
	Schedule(ctx context.Context, id string) error
}

// Sweeper reschedules documents left pending, e.g. by a restart in the
// middle of a generation.
type Sweeper struct {
	docs       ports.DocumentRepository
	runner     Scheduler
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
	cron       *cron.Cron
}

func NewSweeper(docs ports.DocumentRepository, runner Scheduler, staleAfter time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		docs:       docs,
		runner:     runner,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        log,
	}
}

// Sweep reschedules every document pending since before now-staleAfter
// and returns how many it scheduled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.docs.ListStalePending(ctx, s.now().Add(-s.staleAfter))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := s.runner.Schedule(ctx, id); err != nil {
			s.log.WarnContext(ctx, "reschedule stale generation", "document_id", id, "err", err)
			continue
		}
		n++
	}
	return n, nil
}

// Start runs Sweep on the cron spec ("@every 5m", "*/10 * * * *").
func (s *Sweeper) Start(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := s.Sweep(ctx)
		if err != nil {
			s.log.Error("stale generation sweep", "err", err)
			return
		}
		if n > 0 {
			s.log.Info("rescheduled stale generations", "count", n)
		}
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
