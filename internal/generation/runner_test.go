package generation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/generation"
	"github.com/csg33k/catering-docgen/internal/ports"
)

type pipelineFunc func(ctx context.Context, id string) (*generation.Result, error)

func (f pipelineFunc) Generate(ctx context.Context, id string) (*generation.Result, error) {
	return f(ctx, id)
}

// failing fails the first n calls with err, then succeeds.
func failing(n int, err error, calls *atomic.Int32) pipelineFunc {
	return func(ctx context.Context, id string) (*generation.Result, error) {
		c := calls.Add(1)
		if int(c) <= n {
			return nil, err
		}
		return &generation.Result{DocumentID: id, URL: "https://files.example.com/" + id + ".pdf"}, nil
	}
}

func seededRepo(t *testing.T) (*memRepo, string) {
	t.Helper()
	repo := newMemRepo()
	doc := &domain.FilledDocument{Kind: domain.KindContract, TemplateID: "tpl"}
	if err := repo.CreateDocument(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	return repo, doc.ID
}

func fastOpts(attempts int) generation.RunnerOptions {
	return generation.RunnerOptions{Timeout: time.Second, MaxAttempts: attempts, Backoff: time.Millisecond}
}

var transient = fmt.Errorf("%w: 503 from template host", generation.ErrTemplateUnavailable)

func TestRun_Statuses(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		attempts  int
		wantCalls int32
		want      domain.GenerationStatus
	}{
		{"first try", 0, nil, 3, 1, domain.GenerationSucceeded},
		{"transient then ok", 2, transient, 3, 3, domain.GenerationSucceeded},
		{"transient exhausted", 5, transient, 3, 3, domain.GenerationFailed},
		{"permanent", 5, fmt.Errorf("%w: broken xref", generation.ErrSerialization), 3, 1, domain.GenerationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, id := seededRepo(t)
			var calls atomic.Int32
			r := generation.NewRunner(failing(tt.failures, tt.err, &calls), repo, fastOpts(tt.attempts))

			res, err := r.Run(context.Background(), id)
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("pipeline called %d times, want %d", got, tt.wantCalls)
			}
			state := repo.doc(id).GenerationState
			if state.Status != tt.want {
				t.Errorf("status = %q, want %q", state.Status, tt.want)
			}
			if state.Attempts != int(tt.wantCalls) {
				t.Errorf("attempts = %d, want %d", state.Attempts, tt.wantCalls)
			}
			if tt.want == domain.GenerationSucceeded {
				if err != nil || res == nil {
					t.Errorf("Run = %v, %v", res, err)
				}
				if state.Error != "" {
					t.Errorf("error left on success: %q", state.Error)
				}
				return
			}
			if err == nil || !errors.Is(err, tt.err) {
				t.Errorf("Run err = %v, want %v", err, tt.err)
			}
			if state.Error == "" {
				t.Error("failure not recorded")
			}
		})
	}
}

func TestRun_AttemptTimeout(t *testing.T) {
	repo, id := seededRepo(t)
	slow := pipelineFunc(func(ctx context.Context, id string) (*generation.Result, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", generation.ErrTemplateUnavailable, ctx.Err())
	})
	r := generation.NewRunner(slow, repo, generation.RunnerOptions{Timeout: 10 * time.Millisecond, MaxAttempts: 1})

	_, err := r.Run(context.Background(), id)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if s := repo.doc(id).GenerationState; s.Status != domain.GenerationFailed {
		t.Errorf("status = %q", s.Status)
	}
}

func TestRun_DeletedDocument(t *testing.T) {
	repo := newMemRepo()
	gone := pipelineFunc(func(ctx context.Context, id string) (*generation.Result, error) {
		return nil, fmt.Errorf("load document: %w", ports.ErrNotFound)
	})
	r := generation.NewRunner(gone, repo, fastOpts(3))
	if _, err := r.Run(context.Background(), "deleted"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSchedule_RunsInBackground(t *testing.T) {
	repo, id := seededRepo(t)
	release := make(chan struct{})
	var calls atomic.Int32
	p := pipelineFunc(func(ctx context.Context, id string) (*generation.Result, error) {
		<-release
		return failing(0, nil, &calls)(ctx, id)
	})
	r := generation.NewRunner(p, repo, fastOpts(3))

	if err := r.Schedule(context.Background(), id); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	// Schedule returned before the pipeline finished
	if s := repo.doc(id).GenerationState.Status; s != domain.GenerationPending {
		t.Errorf("status right after Schedule = %q, want pending", s)
	}
	close(release)
	r.Wait()

	if s := repo.doc(id).GenerationState.Status; s != domain.GenerationSucceeded {
		t.Errorf("status after Wait = %q", s)
	}
}

func TestSchedule_UnknownDocument(t *testing.T) {
	r := generation.NewRunner(failing(0, nil, new(atomic.Int32)), newMemRepo(), fastOpts(1))
	if err := r.Schedule(context.Background(), "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	r.Wait()
}

func TestShutdown_AbandonsBackoff(t *testing.T) {
	repo, id := seededRepo(t)
	var once sync.Once
	started := make(chan struct{})
	p := pipelineFunc(func(ctx context.Context, id string) (*generation.Result, error) {
		once.Do(func() { close(started) })
		return nil, transient
	})
	r := generation.NewRunner(p, repo, generation.RunnerOptions{Timeout: time.Second, MaxAttempts: 3, Backoff: time.Hour})
	if err := r.Schedule(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// left pending for the sweeper
	if s := repo.doc(id).GenerationState; s.Status != domain.GenerationPending || s.Attempts != 1 {
		t.Errorf("state after shutdown = %+v", s)
	}
	if err := r.Schedule(context.Background(), id); !errors.Is(err, generation.ErrStopped) {
		t.Errorf("Schedule after Shutdown err = %v", err)
	}
}

func TestRun_FailureMessageKeepsCause(t *testing.T) {
	repo, id := seededRepo(t)
	r := generation.NewRunner(failing(9, transient, new(atomic.Int32)), repo, fastOpts(2))
	r.Run(context.Background(), id)
	if msg := repo.doc(id).GenerationState.Error; !strings.Contains(msg, "503 from template host") {
		t.Errorf("recorded error = %q", msg)
	}
}
