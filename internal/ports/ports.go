package ports

import (
	"context"
	"errors"
	"time"

	"github.com/csg33k/catering-docgen/internal/domain"
)

// ErrNotFound is returned by repositories for unknown ids.
var ErrNotFound = errors.New("not found")

// TemplateRepository persists Template rows.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t *domain.Template) error
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
}

// DocumentRepository persists FilledDocument rows. Updates are
// last-write-wins; no locking is implied.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, d *domain.FilledDocument) error
	GetDocument(ctx context.Context, id string) (*domain.FilledDocument, error)
	ListDocuments(ctx context.Context, kind domain.Kind) ([]domain.FilledDocument, error)
	UpdateDocument(ctx context.Context, d *domain.FilledDocument) error
	DeleteDocument(ctx context.Context, id string) error

	// SetGenerationState writes only the task status columns.
	SetGenerationState(ctx context.Context, id string, s domain.GenerationState) error
	// SetGeneratedPDF writes the URL of a successful generation.
	SetGeneratedPDF(ctx context.Context, id, url string, at time.Time) error
	// ListStalePending returns ids still pending and not touched since before.
	ListStalePending(ctx context.Context, before time.Time) ([]string, error)
}

// Repository is everything the server needs from a database adapter.
type Repository interface {
	TemplateRepository
	DocumentRepository
	Close() error
}

// TemplateSource fetches the bytes of a fillable template.
type TemplateSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Storage persists generated bytes and returns their public URL.
type Storage interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// FormEngine parses template bytes into an editable form document.
type FormEngine interface {
	Open(raw []byte) (FormDocument, error)
}

// FormDocument is a parsed template with named fillable text fields.
type FormDocument interface {
	// FieldNames lists every fully-qualified field name, in document order.
	FieldNames() []string
	// Lookup reports whether a text field with this name exists and
	// returns its canonical name.
	Lookup(name string) (string, bool)
	// SetText writes value into the named field. Last write wins.
	SetText(name, value string) error
	// Flatten bakes field values into page content and serializes the
	// document. It must be the last call on the document.
	Flatten() ([]byte, error)
}
