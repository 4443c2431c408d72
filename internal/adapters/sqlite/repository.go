package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/ports"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the SQLite database and applies the embedded migrations.
func New(dsn string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// one writer; the background runner and the API share the handle
	db.SetMaxOpenConns(1)
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Repository{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("migrations driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (r *Repository) Close() error { return r.db.Close() }

// ── Templates ─────────────────────────────────────────────────────────────────

func (r *Repository) CreateTemplate(ctx context.Context, t *domain.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = r.now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (id, kind, name, source_url, created_at)
		VALUES (?,?,?,?,?)`,
		t.ID, t.Kind, t.Name, t.SourceURL, t.CreatedAt,
	)
	return err
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	t := &domain.Template{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, name, source_url, created_at
		FROM templates WHERE id=?`, id).Scan(
		&t.ID, &t.Kind, &t.Name, &t.SourceURL, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repository) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, name, source_url, created_at
		FROM templates ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.Kind, &t.Name, &t.SourceURL, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ── Documents ─────────────────────────────────────────────────────────────────

const documentColumns = `
	id, kind, template_id, event_id, filled_data, status,
	generated_pdf_url, generated_at, notes,
	generation_status, generation_error, generation_attempts,
	created_at, updated_at`

func (r *Repository) CreateDocument(ctx context.Context, d *domain.FilledDocument) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = domain.StatusDraft
	}
	data, err := json.Marshal(d.FilledData)
	if err != nil {
		return err
	}
	d.CreatedAt = r.now().UTC()
	d.UpdatedAt = d.CreatedAt
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO filled_documents (`+documentColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Kind, d.TemplateID, d.EventID, string(data), d.Status,
		d.GeneratedPDFURL, utcPtr(d.GeneratedAt), d.Notes,
		d.GenerationState.Status, d.GenerationState.Error, d.GenerationState.Attempts,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.FilledDocument, error) {
	d := &domain.FilledDocument{}
	var eventID, pdfURL sql.NullString
	var generatedAt sql.NullTime
	var data string
	if err := row.Scan(
		&d.ID, &d.Kind, &d.TemplateID, &eventID, &data, &d.Status,
		&pdfURL, &generatedAt, &d.Notes,
		&d.GenerationState.Status, &d.GenerationState.Error, &d.GenerationState.Attempts,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &d.FilledData); err != nil {
		return nil, fmt.Errorf("document %s: filled_data: %w", d.ID, err)
	}
	if eventID.Valid {
		d.EventID = &eventID.String
	}
	if pdfURL.Valid {
		d.GeneratedPDFURL = &pdfURL.String
	}
	if generatedAt.Valid {
		d.GeneratedAt = &generatedAt.Time
	}
	return d, nil
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*domain.FilledDocument, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM filled_documents WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return d, err
}

// ListDocuments returns documents newest first; an empty kind lists all.
func (r *Repository) ListDocuments(ctx context.Context, kind domain.Kind) ([]domain.FilledDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM filled_documents
		WHERE ?='' OR kind=?
		ORDER BY created_at DESC, id`, kind, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.FilledDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateDocument rewrites the editable columns. Generation columns are
// owned by the task runner and left alone.
func (r *Repository) UpdateDocument(ctx context.Context, d *domain.FilledDocument) error {
	data, err := json.Marshal(d.FilledData)
	if err != nil {
		return err
	}
	d.UpdatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE filled_documents SET
			template_id=?, event_id=?, filled_data=?, status=?, notes=?, updated_at=?
		WHERE id=?`,
		d.TemplateID, d.EventID, string(data), d.Status, d.Notes, d.UpdatedAt, d.ID,
	)
	return affected(res, err)
}

func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM filled_documents WHERE id=?`, id)
	return affected(res, err)
}

func (r *Repository) SetGenerationState(ctx context.Context, id string, s domain.GenerationState) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE filled_documents SET
			generation_status=?, generation_error=?, generation_attempts=?, updated_at=?
		WHERE id=?`,
		s.Status, s.Error, s.Attempts, r.now().UTC(), id,
	)
	return affected(res, err)
}

func (r *Repository) SetGeneratedPDF(ctx context.Context, id, url string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE filled_documents SET generated_pdf_url=?, generated_at=?, updated_at=?
		WHERE id=?`,
		url, at.UTC(), r.now().UTC(), id,
	)
	return affected(res, err)
}

func (r *Repository) ListStalePending(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM filled_documents
		WHERE generation_status=? AND updated_at < ?
		ORDER BY updated_at`, domain.GenerationPending, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
