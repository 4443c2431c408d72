// Package filler writes a rendered field mapping table into a parsed
// form template, probing each entry's candidate field names in order.
package filler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/csg33k/catering-docgen/internal/fieldmap"
	"github.com/csg33k/catering-docgen/internal/ports"
)

// ErrTemplateUnparseable wraps form engine parse failures.
var ErrTemplateUnparseable = errors.New("template could not be parsed")

// Resolution is the outcome for one logical key: the template field it
// was written to, or Resolved=false.
type Resolution struct {
	Key      string `json:"key"`
	Field    string `json:"field,omitempty"`
	Resolved bool   `json:"resolved"`
	Err      string `json:"error,omitempty"`
}

// Report describes a fill.
type Report struct {
	Resolutions    []Resolution `json:"resolutions"`
	TemplateFields []string     `json:"template_fields"`
}

// Unresolved returns the keys that found no field, in table order.
func (r Report) Unresolved() []string {
	var out []string
	for _, res := range r.Resolutions {
		if !res.Resolved {
			out = append(out, res.Key)
		}
	}
	return out
}

// Field returns the template field key was written to.
func (r Report) Field(key string) (string, bool) {
	for _, res := range r.Resolutions {
		if res.Key == key && res.Resolved {
			return res.Field, true
		}
	}
	return "", false
}

type Filler struct {
	engine ports.FormEngine
	log    *slog.Logger
}

func New(engine ports.FormEngine, log *slog.Logger) *Filler {
	if log == nil {
		log = slog.Default()
	}
	return &Filler{engine: engine, log: log}
}

// Fill parses raw and writes every table entry it can resolve. Only a
// parse failure is an error; unresolved keys are reported, never fatal.
func (f *Filler) Fill(ctx context.Context, raw []byte, table fieldmap.Table) (ports.FormDocument, Report, error) {
	doc, err := f.engine.Open(raw)
	if err != nil {
		return nil, Report{}, fmt.Errorf("%w: %v", ErrTemplateUnparseable, err)
	}

	report := Report{TemplateFields: doc.FieldNames()}
	f.log.DebugContext(ctx, "template fields", "count", len(report.TemplateFields), "fields", report.TemplateFields)

	report.Resolutions = make([]Resolution, 0, len(table))
	for _, e := range table {
		report.Resolutions = append(report.Resolutions, f.resolve(ctx, doc, e))
	}

	if missing := report.Unresolved(); len(missing) > 0 {
		f.log.WarnContext(ctx, "fields not found in template", "keys", missing)
	}
	return doc, report, nil
}

func (f *Filler) resolve(ctx context.Context, doc ports.FormDocument, e fieldmap.Entry) Resolution {
	name, ok := firstMatch(doc, e.Candidates)
	if !ok {
		return Resolution{Key: e.Key}
	}
	if err := doc.SetText(name, e.Value); err != nil {
		f.log.WarnContext(ctx, "field write failed", "key", e.Key, "field", name, "err", err)
		return Resolution{Key: e.Key, Field: name, Err: err.Error()}
	}
	return Resolution{Key: e.Key, Field: name, Resolved: true}
}

// firstMatch returns the first candidate present in doc.
func firstMatch(doc ports.FormDocument, candidates []string) (string, bool) {
	for _, c := range candidates {
		if name, ok := doc.Lookup(c); ok {
			return name, true
		}
	}
	return "", false
}
