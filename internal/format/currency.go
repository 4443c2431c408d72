// Package format renders raw domain values as the pt-BR display strings
// written into contract and budget templates. Every function is pure.
package format

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidAmount is returned by ParseCents for text that is not a number
// or does not fit in int64 cents.
var ErrInvalidAmount = errors.New("format: invalid monetary amount")

// Currency renders cents as Brazilian Real, e.g. 850000 -> "R$ 8.500,00".
func Currency(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	reais := cents / 100
	centavos := cents % 100
	return sign + "R$ " + groupThousands(reais) + "," + twoDigits(centavos)
}

// groupThousands inserts '.' every three digits from the right.
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func twoDigits(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

// ParseCents reads an amount typed either with a decimal point ("8500.5")
// or in pt-BR notation ("8.500,50", "R$ 8.500,50") and returns cents.
// Extra decimal digits are truncated.
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if strings.Contains(s, ",") {
		// pt-BR: dots group thousands, the comma separates decimals.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	parts := strings.SplitN(s, ".", 2)
	if parts[0] == "" || !allDigits(parts[0]) {
		return 0, ErrInvalidAmount
	}
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	var frac int64
	if len(parts) == 2 {
		c := parts[1]
		if !allDigits(c) {
			return 0, ErrInvalidAmount
		}
		switch {
		case len(c) == 0:
			c = "00"
		case len(c) == 1:
			c += "0"
		case len(c) > 2:
			c = c[:2]
		}
		frac, _ = strconv.ParseInt(c, 10, 64)
	}
	if whole > (math.MaxInt64-frac)/100 {
		return 0, ErrInvalidAmount
	}
	cents := whole*100 + frac
	if neg {
		cents = -cents
	}
	return cents, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
