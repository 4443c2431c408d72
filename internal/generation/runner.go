package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/logger"
	"github.com/csg33k/catering-docgen/internal/ports"
)

// Pipeline is what the runner drives; *Generator implements it.
type Pipeline interface {
	Generate(ctx context.Context, id string) (*Result, error)
}

type RunnerOptions struct {
	// Timeout bounds one attempt.
	Timeout time.Duration
	// MaxAttempts bounds the tries per scheduled run.
	MaxAttempts int
	// Backoff is the wait before the second attempt; it doubles after.
	Backoff time.Duration
	Log     *slog.Logger
}

// Runner executes generations in the background and records their
// observable status on the document. Overlapping runs for one document
// are not coordinated: the last to finish wins.
type Runner struct {
	pipeline Pipeline
	docs     ports.DocumentRepository
	opts     RunnerOptions
	log      *slog.Logger

	// base is cancelled only when Shutdown gives up waiting.
	base     context.Context
	cancel   context.CancelFunc
	stopping chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRunner(p Pipeline, docs ports.DocumentRepository, opts RunnerOptions) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	r := &Runner{
		pipeline: p,
		docs:     docs,
		opts:     opts,
		log:      opts.Log,
		base:     base,
		cancel:   cancel,
		stopping: make(chan struct{}),
	}
	r.sleep = r.backoff
	return r
}

// Schedule marks the document pending and runs the pipeline on its own
// goroutine, detached from ctx. Only the pending write can fail here.
func (r *Runner) Schedule(ctx context.Context, id string) error {
	select {
	case <-r.stopping:
		return ErrStopped
	default:
	}
	if err := r.docs.SetGenerationState(ctx, id, domain.GenerationState{Status: domain.GenerationPending}); err != nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("generation panicked", "document_id", id, "panic", p)
				r.record(r.base, id, domain.GenerationState{
					Status: domain.GenerationFailed,
					Error:  fmt.Sprint("internal error: ", p),
				})
			}
		}()
		r.Run(r.base, id)
	}()
	return nil
}

// Run executes the pipeline synchronously with the retry policy and
// returns the last result or error.
func (r *Runner) Run(ctx context.Context, id string) (*Result, error) {
	ctx = logger.WithDocumentID(ctx, id)
	log := logger.From(r.log, ctx)

	var err error
	attempt := 0
	for attempt < r.opts.MaxAttempts {
		attempt++
		r.record(ctx, id, domain.GenerationState{Status: domain.GenerationPending, Attempts: attempt})

		var res *Result
		res, err = r.attempt(ctx, id)
		if err == nil {
			r.record(ctx, id, domain.GenerationState{Status: domain.GenerationSucceeded, Attempts: attempt})
			return res, nil
		}
		if errors.Is(err, ports.ErrNotFound) && r.deleted(ctx, id) {
			log.InfoContext(ctx, "document deleted before generation")
			return nil, err
		}
		if !Retryable(err) || attempt == r.opts.MaxAttempts {
			break
		}

		wait := r.opts.Backoff << (attempt - 1)
		log.WarnContext(ctx, "generation attempt failed, retrying", "attempt", attempt, "in", wait, "err", err)
		if serr := r.sleep(ctx, wait); serr != nil {
			// stays pending; the sweeper picks it up after a restart
			log.WarnContext(ctx, "generation retry abandoned", "err", serr)
			return nil, errors.Join(err, serr)
		}
	}

	log.ErrorContext(ctx, "generation failed", "attempts", attempt, "err", err)
	r.record(ctx, id, domain.GenerationState{Status: domain.GenerationFailed, Error: err.Error(), Attempts: attempt})
	return nil, err
}

func (r *Runner) attempt(ctx context.Context, id string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return r.pipeline.Generate(ctx, id)
}

func (r *Runner) deleted(ctx context.Context, id string) bool {
	_, err := r.docs.GetDocument(context.WithoutCancel(ctx), id)
	return errors.Is(err, ports.ErrNotFound)
}

// record writes state even when ctx is already cancelled, so shutdown
// still leaves an accurate status behind.
func (r *Runner) record(ctx context.Context, id string, s domain.GenerationState) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.docs.SetGenerationState(wctx, id, s); err != nil && !errors.Is(err, ports.ErrNotFound) {
		logger.From(r.log, ctx).ErrorContext(ctx, "record generation state", "status", s.Status, "err", err)
	}
}

// Wait blocks until every scheduled run has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Shutdown stops accepting work, abandons pending retry back-offs and
// waits for in-flight attempts. When ctx expires first the attempts are
// cancelled and ctx's error returned.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopping) })
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

func (r *Runner) backoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-r.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
