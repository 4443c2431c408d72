package format

import (
	"errors"
	"strings"
)

// ErrInvalidCPF reports a CPF that fails the length, repeated-digit or
// check-digit rules.
var ErrInvalidCPF = errors.New("format: invalid CPF")

// StripCPF keeps only the ASCII digits of s.
func StripCPF(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatCPF renders 11 digits as XXX.XXX.XXX-XX. Input that does not
// reduce to exactly 11 digits is returned as its digits, unvalidated.
func FormatCPF(s string) string {
	d := StripCPF(s)
	if len(d) != 11 {
		return d
	}
	return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
}

// ValidCPF applies the two mod-11 check digits of the Brazilian CPF.
func ValidCPF(s string) bool {
	d := StripCPF(s)
	if len(d) != 11 {
		return false
	}
	if strings.Count(d, d[:1]) == 11 {
		return false
	}
	return checkDigit(d[:9], 10) == int(d[9]-'0') &&
		checkDigit(d[:10], 11) == int(d[10]-'0')
}

// ValidateCPF is ValidCPF returning ErrInvalidCPF.
func ValidateCPF(s string) error {
	if !ValidCPF(s) {
		return ErrInvalidCPF
	}
	return nil
}

// checkDigit weights digits from startWeight down to 2.
func checkDigit(digits string, startWeight int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (startWeight - i)
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}
