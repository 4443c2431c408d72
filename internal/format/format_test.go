package format_test

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/csg33k/catering-docgen/internal/format"
)

func TestAmountInWords(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "zero reais"},
		{1, "um reais"},
		{10, "dez reais"},
		{15, "quinze reais"},
		{21, "vinte e um reais"},
		{100, "cem reais"},
		{101, "cento e um reais"},
		{115, "cento e quinze reais"},
		{150, "cento e cinquenta reais"},
		{999, "novecentos e noventa e nove reais"},
		{1000, "mil reais"},
		{1100, "mil e cem reais"},
		{1500, "mil e quinhentos reais"},
		{2000, "dois mil reais"},
		{8500, "oito mil e quinhentos reais"},
		{12345, "doze mil e trezentos e quarenta e cinco reais"},
		{100000, "cem mil reais"},
		{1_000_000, "um milhão de reais"},
		{2_500_000, "dois milhões e quinhentos mil reais"},
		{1_001_000, "um milhão e mil reais"},
		{1_000_000_000, "um bilhão de reais"},
		{3_000_001_000, "três bilhões e mil reais"},
		{1_000_000_000_000, "um trilhão de reais"},
		{2_000_000_000_500, "dois trilhões e quinhentos reais"},
		{-5, "zero reais"},
	}
	for _, c := range cases {
		t.Run(fmt.Sprint(c.in), func(t *testing.T) {
			if got := format.AmountInWords(c.in); got != c.want {
				t.Errorf("AmountInWords(%d) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestAmountInWords_Int64Range(t *testing.T) {
	got := format.AmountInWords(math.MaxInt64)
	want := "nove quintilhões e duzentos e vinte e três quatrilhões"
	if !strings.HasPrefix(got, want) || !strings.HasSuffix(got, " reais") {
		t.Errorf("AmountInWords(MaxInt64) = %q", got)
	}
}

func TestCurrency(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "R$ 0,00"},
		{5, "R$ 0,05"},
		{99999, "R$ 999,99"},
		{255000, "R$ 2.550,00"},
		{595000, "R$ 5.950,00"},
		{850000, "R$ 8.500,00"},
		{123456789, "R$ 1.234.567,89"},
		{-150, "-R$ 1,50"},
	}
	for _, c := range cases {
		if got := format.Currency(c.cents); got != c.want {
			t.Errorf("Currency(%d) = %q, want %q", c.cents, got, c.want)
		}
	}
}

func TestParseCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"8500", 850000},
		{"8500.5", 850050},
		{"8500.50", 850050},
		{"8500.509", 850050},
		{"8.500,50", 850050},
		{"R$ 8.500,50", 850050},
		{" 12,3 ", 1230},
		{"-10", -1000},
		{"92233720368547758.07", math.MaxInt64},
	}
	for _, c := range cases {
		got, err := format.ParseCents(c.in)
		if err != nil {
			t.Errorf("ParseCents(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseCents(%q) = %d, want %d", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", "abc", "1.2.3", "R$", "12,ab", "200000000000000000", "92233720368547758,08"} {
		if _, err := format.ParseCents(bad); !errors.Is(err, format.ErrInvalidAmount) {
			t.Errorf("ParseCents(%q): want ErrInvalidAmount, got %v", bad, err)
		}
	}
}

func TestValidCPF(t *testing.T) {
	const valid = "52998224725"

	if !format.ValidCPF(valid) {
		t.Fatalf("ValidCPF(%q) = false, want true", valid)
	}
	if !format.ValidCPF("529.982.247-25") {
		t.Error("punctuated valid CPF rejected")
	}
	if err := format.ValidateCPF(valid); err != nil {
		t.Errorf("ValidateCPF(%q) = %v", valid, err)
	}

	for d := '0'; d <= '9'; d++ {
		repeated := ""
		for i := 0; i < 11; i++ {
			repeated += string(d)
		}
		if format.ValidCPF(repeated) {
			t.Errorf("ValidCPF(%q) = true, want false", repeated)
		}
	}

	// Mutating either check digit must fail.
	for _, pos := range []int{9, 10} {
		b := []byte(valid)
		b[pos] = '0' + (b[pos]-'0'+1)%10
		if format.ValidCPF(string(b)) {
			t.Errorf("check digit %d mutated (%s): still valid", pos+1, b)
		}
	}

	for _, bad := range []string{"", "5299822472", "529982247250", "abc"} {
		if err := format.ValidateCPF(bad); !errors.Is(err, format.ErrInvalidCPF) {
			t.Errorf("ValidateCPF(%q): want ErrInvalidCPF, got %v", bad, err)
		}
	}
}

func TestFormatCPF(t *testing.T) {
	if got := format.FormatCPF("52998224725"); got != "529.982.247-25" {
		t.Errorf("FormatCPF = %q", got)
	}
	if got := format.FormatCPF("123"); got != "123" {
		t.Errorf("short input: FormatCPF = %q, want digits unchanged", got)
	}

	// formatting is stable under strip/re-format for any 11-digit input
	for _, in := range []string{"00000000000", "12345678909", "52998224725", "99999999999", "10293847561"} {
		once := format.FormatCPF(in)
		twice := format.FormatCPF(format.StripCPF(once))
		if once != twice {
			t.Errorf("round trip %q: %q != %q", in, once, twice)
		}
	}
}

func TestDateInWords(t *testing.T) {
	cases := []struct {
		date time.Time
		want string
	}{
		{time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), "15 de março de 2025"},
		{time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), "1 de janeiro de 2024"},
		{time.Date(2026, time.December, 31, 23, 0, 0, 0, time.UTC), "31 de dezembro de 2026"},
		{time.Time{}, ""},
	}
	for _, c := range cases {
		if got := format.DateInWords(c.date); got != c.want {
			t.Errorf("DateInWords(%v) = %q, want %q", c.date, got, c.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2025-03-15", "15/03/2025", "2025-03-15T00:00:00Z"} {
		got, err := format.ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := format.ParseDate("março"); err == nil {
		t.Error("ParseDate(\"março\"): want error")
	}
}

func TestMonthName(t *testing.T) {
	if got := format.MonthName(time.October); got != "outubro" {
		t.Errorf("MonthName(October) = %q", got)
	}
	if got := format.MonthName(13); got != "" {
		t.Errorf("MonthName(13) = %q, want empty", got)
	}
}
