package templates

import (
	"strconv"

	"github.com/csg33k/catering-docgen/internal/domain"
)

var statusLabels = map[domain.GenerationStatus]string{
	domain.GenerationPending:   "Gerando PDF…",
	domain.GenerationSucceeded: "PDF gerado",
	domain.GenerationFailed:    "Falha na geração",
}

// statusLabel is the pt-BR caption for a generation status.
func statusLabel(s domain.GenerationStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return "PDF ainda não gerado"
}

// documentPath builds "/documents/{id}/{suffix}" for hx-* attributes.
func documentPath(id, suffix string) string {
	return "/documents/" + id + "/" + suffix
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
