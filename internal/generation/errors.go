package generation

import (
	"context"
	"errors"

	"github.com/csg33k/catering-docgen/internal/filler"
)

var (
	// ErrTemplateUnavailable: the template could not be fetched or parsed.
	// Nothing was written and generated_pdf_url is unchanged.
	ErrTemplateUnavailable = errors.New("template unavailable")
	// ErrSerialization: flattening or serialization failed.
	ErrSerialization = errors.New("document serialization failed")
	// ErrNotPersisted: bytes were produced but the storage collaborator
	// or the record update failed.
	ErrNotPersisted = errors.New("document produced but not persisted")
	// ErrStopped: the runner is shutting down.
	ErrStopped = errors.New("generation runner stopped")
)

// Retryable reports whether another attempt could succeed. Fetch and
// storage failures are transient; unparseable templates, serialization
// failures and cancellations are not.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, filler.ErrTemplateUnparseable):
		return false
	case errors.Is(err, ErrSerialization):
		return false
	}
	return errors.Is(err, ErrTemplateUnavailable) || errors.Is(err, ErrNotPersisted)
}
