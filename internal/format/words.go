package format

import "strings"

const currencyWord = "reais"

var (
	unitWords = [10]string{"", "um", "dois", "três", "quatro", "cinco", "seis", "sete", "oito", "nove"}
	teenWords = [10]string{"dez", "onze", "doze", "treze", "quatorze", "quinze", "dezesseis", "dezessete", "dezoito", "dezenove"}
	tensWords = [10]string{"", "", "vinte", "trinta", "quarenta", "cinquenta", "sessenta", "setenta", "oitenta", "noventa"}
	hundWords = [10]string{"", "cento", "duzentos", "trezentos", "quatrocentos", "quinhentos", "seiscentos", "setecentos", "oitocentos", "novecentos"}
)

// scales names each group of three digits above the units; one and many.
var scales = [...][2]string{
	{"", ""},
	{"mil", "mil"},
	{"milhão", "milhões"},
	{"bilhão", "bilhões"},
	{"trilhão", "trilhões"},
	{"quatrilhão", "quatrilhões"},
	{"quintilhão", "quintilhões"},
}

// AmountInWords spells a whole number of reais in Portuguese:
// 1500 -> "mil e quinhentos reais". Every int64 is covered. Cents are not
// handled; negative amounts are treated as zero.
func AmountInWords(units int64) string {
	if units <= 0 {
		return "zero " + currencyWord
	}

	var groups []int
	for n := units; n > 0; n /= 1000 {
		groups = append(groups, int(n%1000))
	}

	var text string
	lowest := -1
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if g == 0 {
			continue
		}
		lowest = i
		text = join(text, scaleGroup(g, i))
	}
	// "um milhão de reais", but "um milhão e mil reais"
	if lowest >= 2 {
		return text + " de " + currencyWord
	}
	return text + " " + currencyWord
}

// scaleGroup spells a non-zero group g at scale i.
func scaleGroup(g, i int) string {
	switch {
	case i == 0:
		return renderGroup(g)
	case i == 1 && g == 1:
		return "mil"
	case g == 1:
		return "um " + scales[i][0]
	default:
		return renderGroup(g) + " " + scales[i][1]
	}
}

// renderGroup spells 0-999. Zero yields "".
func renderGroup(n int) string {
	c, d, u := n/100, (n/10)%10, n%10

	var text string
	if c > 0 {
		if n == 100 {
			text = "cem"
		} else {
			text = hundWords[c]
		}
	}
	if d == 1 {
		return join(text, teenWords[u])
	}
	if d > 1 {
		text = join(text, tensWords[d])
	}
	if u > 0 {
		text = join(text, unitWords[u])
	}
	return text
}

// join appends next with " e " when head is non-empty.
func join(head, next string) string {
	switch {
	case next == "":
		return head
	case head == "":
		return next
	}
	var b strings.Builder
	b.Grow(len(head) + len(next) + 3)
	b.WriteString(head)
	b.WriteString(" e ")
	b.WriteString(next)
	return b.String()
}
