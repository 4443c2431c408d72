// Package objectstore persists generated documents and returns their
// public URLs, on MinIO or a local directory.
package objectstore

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlug = 48

// ObjectName builds "<prefix>/<yyyy>/<mm>/<slug>-<uuid>.pdf". The random
// suffix keeps regenerated documents from overwriting earlier copies.
func ObjectName(prefix, hint string, at time.Time) string {
	slug := Slug(hint)
	if slug == "" {
		slug = "documento"
	}
	return fmt.Sprintf("%s/%04d/%02d/%s-%s.pdf", Slug(prefix), at.Year(), int(at.Month()), slug, uuid.NewString())
}

// Slug lowercases s, folds accents ("Conceição" → "conceicao") and joins
// the remaining alphanumeric runs with '-'.
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
		if b.Len() >= maxSlug {
			break
		}
	}
	return strings.TrimRight(b.String(), "-")
}
