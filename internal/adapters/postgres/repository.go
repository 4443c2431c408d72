// Package postgres is the PostgreSQL repository, for deployments that
// outgrow a single SQLite file.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/ports"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Repository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// New migrates the database at url and opens a pool on it.
func New(ctx context.Context, url string) (*Repository, error) {
	if err := Migrate(url); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{db: pool, now: time.Now}, nil
}

// Migrate applies the embedded migrations.
func Migrate(url string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

func (r *Repository) CreateTemplate(ctx context.Context, t *domain.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = r.now().UTC()
	_, err := r.db.Exec(ctx,
		`INSERT INTO templates (id, kind, name, source_url, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, string(t.Kind), t.Name, t.SourceURL, t.CreatedAt)
	return err
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	t := &domain.Template{}
	var kind string
	err := r.db.QueryRow(ctx,
		`SELECT id, kind, name, source_url, created_at FROM templates WHERE id = $1`, id).
		Scan(&t.ID, &kind, &t.Name, &t.SourceURL, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Kind = domain.Kind(kind)
	return t, nil
}

func (r *Repository) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, kind, name, source_url, created_at FROM templates ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Template, error) {
		var t domain.Template
		var kind string
		err := row.Scan(&t.ID, &kind, &t.Name, &t.SourceURL, &t.CreatedAt)
		t.Kind = domain.Kind(kind)
		return t, err
	})
}

const documentColumns = `
	id, kind, template_id, event_id, filled_data::text, status,
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
	_, err = r.db.Exec(ctx, `
		INSERT INTO filled_documents (
			id, kind, template_id, event_id, filled_data, status,
			generated_pdf_url, generated_at, notes,
			generation_status, generation_error, generation_attempts,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::json, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, string(d.Kind), d.TemplateID, d.EventID, string(data), string(d.Status),
		d.GeneratedPDFURL, d.GeneratedAt, d.Notes,
		string(d.GenerationState.Status), d.GenerationState.Error, d.GenerationState.Attempts,
		d.CreatedAt, d.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("template %s: %w", d.TemplateID, ports.ErrNotFound)
	}
	return err
}

func scanDocument(row pgx.Row) (*domain.FilledDocument, error) {
	d := &domain.FilledDocument{}
	var kind, status, genStatus, data string
	if err := row.Scan(
		&d.ID, &kind, &d.TemplateID, &d.EventID, &data, &status,
		&d.GeneratedPDFURL, &d.GeneratedAt, &d.Notes,
		&genStatus, &d.GenerationState.Error, &d.GenerationState.Attempts,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Kind = domain.Kind(kind)
	d.Status = domain.Status(status)
	d.GenerationState.Status = domain.GenerationStatus(genStatus)
	if err := json.Unmarshal([]byte(data), &d.FilledData); err != nil {
		return nil, fmt.Errorf("document %s: filled_data: %w", d.ID, err)
	}
	return d, nil
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*domain.FilledDocument, error) {
	d, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM filled_documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return d, err
}

func (r *Repository) ListDocuments(ctx context.Context, kind domain.Kind) ([]domain.FilledDocument, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+documentColumns+` FROM filled_documents
		WHERE $1 = '' OR kind = $1
		ORDER BY created_at DESC, id`, string(kind))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.FilledDocument, error) {
		d, err := scanDocument(row)
		if err != nil {
			return domain.FilledDocument{}, err
		}
		return *d, nil
	})
}

func (r *Repository) UpdateDocument(ctx context.Context, d *domain.FilledDocument) error {
	data, err := json.Marshal(d.FilledData)
	if err != nil {
		return err
	}
	d.UpdatedAt = r.now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE filled_documents SET
			template_id = $1, event_id = $2, filled_data = $3::json, status = $4, notes = $5, updated_at = $6
		WHERE id = $7`,
		d.TemplateID, d.EventID, string(data), string(d.Status), d.Notes, d.UpdatedAt, d.ID)
	return affected(tag, err)
}

func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM filled_documents WHERE id = $1`, id)
	return affected(tag, err)
}

func (r *Repository) SetGenerationState(ctx context.Context, id string, s domain.GenerationState) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE filled_documents SET
			generation_status = $1, generation_error = $2, generation_attempts = $3, updated_at = $4
		WHERE id = $5`,
		string(s.Status), s.Error, s.Attempts, r.now().UTC(), id)
	return affected(tag, err)
}

func (r *Repository) SetGeneratedPDF(ctx context.Context, id, url string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE filled_documents SET generated_pdf_url = $1, generated_at = $2, updated_at = $3
		WHERE id = $4`,
		url, at.UTC(), r.now().UTC(), id)
	return affected(tag, err)
}

func (r *Repository) ListStalePending(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM filled_documents
		WHERE generation_status = $1 AND updated_at < $2
		ORDER BY updated_at`, string(domain.GenerationPending), before.UTC())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
