package format

import (
	"strconv"
	"time"
)

var ptMonths = [12]string{
	"janeiro",
	"fevereiro",
	"março",
	"abril",
	"maio",
	"junho",
	"julho",
	"agosto",
	"setembro",
	"outubro",
	"novembro",
	"dezembro",
}

// MonthName returns the lower-case Portuguese month name.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return ptMonths[m-1]
}

// DateInWords renders "15 de março de 2025". The zero time renders "".
func DateInWords(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.Itoa(t.Day()) + " de " + MonthName(t.Month()) + " de " + strconv.Itoa(t.Year())
}

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// ParseDate accepts ISO dates, RFC 3339 timestamps and dd/mm/yyyy.
func ParseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
