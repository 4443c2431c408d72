// Package templates holds the HTML fragments served to the operations
// console.
package templates

import (
	"time"

	"github.com/csg33k/catering-docgen/internal/domain"
)

// PollInterval is how often a pending fragment asks for a fresh status.
const PollInterval = 2 * time.Second

// Stale reports whether a pending generation has gone quiet for longer
// than after, which usually means the process running it died.
func Stale(d *domain.FilledDocument, after time.Duration, now time.Time) bool {
	return d.GenerationState.Status == domain.GenerationPending &&
		after > 0 && now.Sub(d.UpdatedAt) > after
}

// polls is true while a generation is running and still alive.
func polls(d *domain.FilledDocument, staleAfter time.Duration, now time.Time) bool {
	return d.GenerationState.Status == domain.GenerationPending && !Stale(d, staleAfter, now)
}

// retryable is true for failed runs and for pending ones nobody is
// working on anymore.
func retryable(d *domain.FilledDocument, staleAfter time.Duration, now time.Time) bool {
	return d.GenerationState.Status == domain.GenerationFailed || Stale(d, staleAfter, now)
}
