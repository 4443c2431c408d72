package fieldmap

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/format"
)

// Entry is one rendered datum to be written into the template.
type Entry struct {
	Key        string
	Label      string
	Candidates []string
	Value      string
}

// Table is the ordered list of entries for one document.
type Table []Entry

// Keys returns the logical keys in order.
func (t Table) Keys() []string {
	out := make([]string, len(t))
	for i := range t {
		out[i] = t[i].Key
	}
	return out
}

// Value returns the rendered value for key.
func (t Table) Value(key string) (string, bool) {
	for i := range t {
		if t[i].Key == key {
			return t[i].Value, true
		}
	}
	return "", false
}

// Result is the output of Build.
type Result struct {
	Table Table
	// Missing are required raw keys absent from filled_data.
	Missing []string
	// Invalid are raw keys present but not coercible; they are skipped.
	Invalid []string
}

// Build renders data for kind. now supplies the signature date when
// filled_data carries no data_assinatura.
func Build(kind domain.Kind, data domain.FilledData, now time.Time) (*Result, error) {
	b := &builder{kind: kind, data: data}
	switch kind {
	case domain.KindContract:
		b.contract(now)
	case domain.KindBudget:
		b.budget()
	default:
		return nil, fmt.Errorf("fieldmap: unknown document kind %q", kind)
	}
	return &Result{
		Table:   b.table,
		Missing: Missing(kind, data),
		Invalid: b.invalid,
	}, nil
}

type builder struct {
	kind    domain.Kind
	data    domain.FilledData
	table   Table
	invalid []string
}

func (b *builder) contract(now time.Time) {
	b.text("contratante_nome")
	if raw, ok := b.data.Get("contratante_cpf"); ok {
		b.put("contratante_cpf", format.FormatCPF(raw))
	}
	b.text("contratante_endereco")
	b.date("data_evento")
	b.text("horario_inicio")
	b.text("horario_fim")
	b.text("local_evento")
	b.integer("qtd_garcons")
	b.integer("qtd_cozinheiros")
	b.integer("qtd_copeiras")

	total, hasTotal := b.money("valor_total")
	if hasTotal {
		b.put("valor_extenso", format.AmountInWords(total/100))
	}
	deposit, hasDeposit := b.money("valor_sinal")
	if hasTotal && hasDeposit {
		if deposit > total {
			b.invalid = append(b.invalid, "valor_sinal")
		} else {
			b.put("valor_restante", format.Currency(total-deposit))
		}
	}

	b.integer("prazo_pagamento_dias")
	b.integer("convidados_excedentes")
	b.money("valor_hora_extra")
	b.text("chave_pix")

	signed := now
	if raw, ok := b.data.Get("data_assinatura"); ok {
		if t, err := format.ParseDate(raw); err == nil {
			signed = t
		} else {
			b.invalid = append(b.invalid, "data_assinatura")
		}
	}
	if !signed.IsZero() {
		b.put("dia_assinatura", strconv.Itoa(signed.Day()))
		b.put("mes_assinatura", format.MonthName(signed.Month()))
	}
}

func (b *builder) budget() {
	b.text("nome_evento")
	b.date("data_evento")
	b.text("nome_organizador")
	guests, hasGuests := b.integer("qtd_convidados")
	price, hasPrice := b.money("valor_por_convidado")
	if hasGuests && hasPrice {
		if price > 0 && guests > math.MaxInt64/price {
			b.invalid = append(b.invalid, "valor_total")
			return
		}
		b.put("valor_total", format.Currency(guests*price))
	}
}

func (b *builder) put(key, value string) {
	d := definition(b.kind, key)
	b.table = append(b.table, Entry{
		Key:        key,
		Label:      d.Label,
		Candidates: d.Candidates,
		Value:      value,
	})
}

func (b *builder) text(key string) {
	if raw, ok := b.data.Get(key); ok {
		b.put(key, raw)
	}
}

// date renders ISO or dd/mm/yyyy dates in words; other text is kept.
func (b *builder) date(key string) {
	raw, ok := b.data.Get(key)
	if !ok {
		return
	}
	if t, err := format.ParseDate(raw); err == nil {
		b.put(key, format.DateInWords(t))
		return
	}
	b.put(key, raw)
}

// integer writes whole counts; decimal input is truncated.
func (b *builder) integer(key string) (int64, bool) {
	raw, ok := b.data.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f < 0 || f >= math.MaxInt64 {
			b.invalid = append(b.invalid, key)
			return 0, false
		}
		n = int64(f)
	}
	if n < 0 {
		b.invalid = append(b.invalid, key)
		return 0, false
	}
	b.put(key, strconv.FormatInt(n, 10))
	return n, true
}

// money writes a non-negative amount as currency and returns its cents.
func (b *builder) money(key string) (int64, bool) {
	raw, ok := b.data.Get(key)
	if !ok {
		return 0, false
	}
	cents, err := format.ParseCents(raw)
	if err != nil || cents < 0 {
		b.invalid = append(b.invalid, key)
		return 0, false
	}
	b.put(key, format.Currency(cents))
	return cents, true
}
