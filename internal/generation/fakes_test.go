package generation_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/ports"
)

// memRepo is an in-memory ports.Repository.
type memRepo struct {
	mu        sync.Mutex
	templates map[string]domain.Template
	docs      map[string]domain.FilledDocument
	states    map[string][]domain.GenerationState
	touched   map[string]time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		templates: map[string]domain.Template{},
		docs:      map[string]domain.FilledDocument{},
		states:    map[string][]domain.GenerationState{},
		touched:   map[string]time.Time{},
	}
}

func (r *memRepo) CreateTemplate(_ context.Context, t *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = fmt.Sprintf("tpl-%d", len(r.templates)+1)
	}
	r.templates[t.ID] = *t
	return nil
}

func (r *memRepo) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &t, nil
}

func (r *memRepo) ListTemplates(context.Context) ([]domain.Template, error) { return nil, nil }

func (r *memRepo) CreateDocument(_ context.Context, d *domain.FilledDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = fmt.Sprintf("doc-%d", len(r.docs)+1)
	}
	r.docs[d.ID] = *d
	return nil
}

func (r *memRepo) GetDocument(_ context.Context, id string) (*domain.FilledDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &d, nil
}

func (r *memRepo) ListDocuments(context.Context, domain.Kind) ([]domain.FilledDocument, error) {
	return nil, nil
}

func (r *memRepo) UpdateDocument(_ context.Context, d *domain.FilledDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[d.ID] = *d
	return nil
}

func (r *memRepo) DeleteDocument(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

func (r *memRepo) SetGenerationState(_ context.Context, id string, s domain.GenerationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return ports.ErrNotFound
	}
	d.GenerationState = s
	r.docs[id] = d
	r.states[id] = append(r.states[id], s)
	r.touched[id] = time.Now()
	return nil
}

func (r *memRepo) SetGeneratedPDF(_ context.Context, id, url string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return ports.ErrNotFound
	}
	d.GeneratedPDFURL = &url
	d.GeneratedAt = &at
	r.docs[id] = d
	return nil
}

func (r *memRepo) ListStalePending(_ context.Context, before time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, d := range r.docs {
		if d.GenerationState.Status == domain.GenerationPending && r.touched[id].Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) doc(id string) domain.FilledDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

// sourceFunc adapts a function to ports.TemplateSource.
type sourceFunc func(ctx context.Context, url string) ([]byte, error)

func (f sourceFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// memStorage keeps uploads in memory and can fail the first N puts.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	failN   int
}

func (s *memStorage) Put(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return "", fmt.Errorf("bucket unreachable")
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[name] = data
	return "https://files.example.com/" + name, nil
}
