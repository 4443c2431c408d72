// Package generation runs the document pipeline: fetch the template,
// render the field table, fill, flatten, store, and record the URL.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/fieldmap"
	"github.com/csg33k/catering-docgen/internal/filler"
	"github.com/csg33k/catering-docgen/internal/logger"
	"github.com/csg33k/catering-docgen/internal/ports"
)

// NameFunc picks the storage object name for a generated document.
type NameFunc func(doc *domain.FilledDocument, at time.Time) string

// Deps are the collaborators of a Generator.
type Deps struct {
	Documents ports.DocumentRepository
	Templates ports.TemplateRepository
	Source    ports.TemplateSource
	Engine    ports.FormEngine
	Storage   ports.Storage
}

type Options struct {
	Now  func() time.Time
	Name NameFunc
	Log  *slog.Logger
}

type Generator struct {
	deps   Deps
	filler *filler.Filler
	now    func() time.Time
	name   NameFunc
	log    *slog.Logger
}

func NewGenerator(deps Deps, opts Options) *Generator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == nil {
		opts.Name = DefaultName
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Generator{
		deps:   deps,
		filler: filler.New(deps.Engine, opts.Log),
		now:    opts.Now,
		name:   opts.Name,
		log:    opts.Log,
	}
}

// DefaultName is "<kind>/<document id>-<unix seconds>.pdf".
func DefaultName(doc *domain.FilledDocument, at time.Time) string {
	return fmt.Sprintf("%s/%s-%d.pdf", doc.Kind, doc.ID, at.Unix())
}

// Output is a rendered document that has not been stored yet.
type Output struct {
	PDF    []byte
	Report filler.Report
	// Missing and Invalid come from the field table build.
	Missing []string
	Invalid []string
}

// Result describes a completed generation.
type Result struct {
	DocumentID  string        `json:"document_id"`
	URL         string        `json:"generated_pdf_url"`
	GeneratedAt time.Time     `json:"generated_at"`
	Report      filler.Report `json:"report"`
	Missing     []string      `json:"missing,omitempty"`
	Invalid     []string      `json:"invalid,omitempty"`
	Bytes       int           `json:"bytes"`
}

// Render produces the flattened PDF for kind/data over the template at
// sourceURL. It touches no record and stores nothing.
func (g *Generator) Render(ctx context.Context, kind domain.Kind, data domain.FilledData, sourceURL string) (*Output, error) {
	raw, err := g.deps.Source.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplateUnavailable, err)
	}

	built, err := fieldmap.Build(kind, data, g.now())
	if err != nil {
		return nil, err
	}

	doc, report, err := g.filler.Fill(ctx, raw, built.Table)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplateUnavailable, err)
	}

	pdf, err := doc.Flatten()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return &Output{PDF: pdf, Report: report, Missing: built.Missing, Invalid: built.Invalid}, nil
}

// Generate runs the full pipeline for one record. On any error the
// record's generated_pdf_url is left as it was.
func (g *Generator) Generate(ctx context.Context, id string) (*Result, error) {
	ctx = logger.WithDocumentID(ctx, id)
	log := logger.From(g.log, ctx)

	doc, err := g.deps.Documents.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	tpl, err := g.deps.Templates.GetTemplate(ctx, doc.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", doc.TemplateID, err)
	}
	if tpl.Kind != doc.Kind {
		return nil, fmt.Errorf("template %s is a %s, document is a %s", tpl.ID, tpl.Kind, doc.Kind)
	}

	out, err := g.Render(ctx, doc.Kind, doc.FilledData, tpl.SourceURL)
	if err != nil {
		return nil, err
	}
	if len(out.Missing) > 0 || len(out.Invalid) > 0 {
		log.WarnContext(ctx, "document rendered with gaps", "missing", out.Missing, "invalid", out.Invalid)
	}

	at := g.now()
	url, err := g.deps.Storage.Put(ctx, g.name(doc, at), out.PDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	if err := g.deps.Documents.SetGeneratedPDF(ctx, id, url, at); err != nil {
		return nil, fmt.Errorf("%w: record url: %w", ErrNotPersisted, err)
	}

	log.InfoContext(ctx, "document generated", "url", url, "bytes", len(out.PDF), "unresolved", out.Report.Unresolved())
	return &Result{
		DocumentID:  id,
		URL:         url,
		GeneratedAt: at,
		Report:      out.Report,
		Missing:     out.Missing,
		Invalid:     out.Invalid,
		Bytes:       len(out.PDF),
	}, nil
}
