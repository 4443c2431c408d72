// Package fieldmap turns a document's raw filled_data into the ordered
// list of rendered values the template filler writes, each with the
// candidate form-field names it may carry across template revisions.
package fieldmap

import "github.com/csg33k/catering-docgen/internal/domain"

// Definition is the static half of a mapping entry.
type Definition struct {
	Key        string
	Label      string
	Candidates []string // priority order
}

// contractDefs is in template reading order. The bare numeric names are
// the field ids of the first contract template revision.
var contractDefs = []Definition{
	{Key: "contratante_nome", Label: "Contratante", Candidates: []string{"contratante_nome", "nome_contratante", "nome"}},
	{Key: "contratante_cpf", Label: "CPF", Candidates: []string{"contratante_cpf", "cpf"}},
	{Key: "contratante_endereco", Label: "Endereço", Candidates: []string{"contratante_endereco", "endereco"}},
	{Key: "data_evento", Label: "Data do evento", Candidates: []string{"data_evento", "data_extenso"}},
	{Key: "horario_inicio", Label: "Início", Candidates: []string{"horario_inicio", "hora_inicio"}},
	{Key: "horario_fim", Label: "Término", Candidates: []string{"horario_fim", "hora_fim", "horario_termino"}},
	{Key: "local_evento", Label: "Local", Candidates: []string{"local_evento", "local"}},
	{Key: "qtd_garcons", Label: "Garçons", Candidates: []string{"qtd_garcons", "garcons"}},
	{Key: "qtd_cozinheiros", Label: "Cozinheiros", Candidates: []string{"qtd_cozinheiros", "cozinheiros"}},
	{Key: "qtd_copeiras", Label: "Copeiras", Candidates: []string{"qtd_copeiras", "copeiras"}},
	{Key: "valor_total", Label: "Valor total", Candidates: []string{"valor_total", "9"}},
	{Key: "valor_extenso", Label: "Valor por extenso", Candidates: []string{"valor_extenso", "10"}},
	{Key: "valor_sinal", Label: "Sinal", Candidates: []string{"valor_sinal", "11"}},
	{Key: "valor_restante", Label: "Saldo", Candidates: []string{"valor_restante", "12"}},
	{Key: "prazo_pagamento_dias", Label: "Prazo de pagamento (dias)", Candidates: []string{"prazo_pagamento_dias", "prazo_pagamento", "dias_pagamento"}},
	{Key: "convidados_excedentes", Label: "Convidados excedentes", Candidates: []string{"convidados_excedentes", "excedente_convidados"}},
	{Key: "valor_hora_extra", Label: "Hora extra", Candidates: []string{"valor_hora_extra", "hora_extra"}},
	{Key: "chave_pix", Label: "Chave PIX", Candidates: []string{"chave_pix", "pix"}},
	{Key: "dia_assinatura", Label: "Dia da assinatura", Candidates: []string{"dia_assinatura", "dia_ass"}},
	{Key: "mes_assinatura", Label: "Mês da assinatura", Candidates: []string{"mes_assinatura", "mes_ass"}},
}

var budgetDefs = []Definition{
	{Key: "nome_evento", Label: "Evento", Candidates: []string{"nome_evento", "evento"}},
	{Key: "data_evento", Label: "Data do evento", Candidates: []string{"data_evento", "data_extenso", "data"}},
	{Key: "nome_organizador", Label: "Organizador", Candidates: []string{"nome_organizador", "organizador"}},
	{Key: "qtd_convidados", Label: "Convidados", Candidates: []string{"qtd_convidados", "convidados"}},
	{Key: "valor_por_convidado", Label: "Valor por convidado", Candidates: []string{"valor_por_convidado", "valor_convidado"}},
	{Key: "valor_total", Label: "Valor total", Candidates: []string{"valor_total", "total"}},
}

var contractRequired = []string{
	"contratante_nome", "contratante_cpf", "contratante_endereco",
	"data_evento", "horario_inicio", "horario_fim", "local_evento",
	"qtd_garcons", "qtd_cozinheiros", "qtd_copeiras",
	"valor_total", "valor_sinal", "prazo_pagamento_dias",
	"convidados_excedentes", "valor_hora_extra", "chave_pix",
}

var budgetRequired = []string{
	"nome_evento", "data_evento", "nome_organizador",
	"qtd_convidados", "valor_por_convidado",
}

// Definitions returns the static mapping for kind, nil for unknown kinds.
func Definitions(kind domain.Kind) []Definition {
	switch kind {
	case domain.KindContract:
		return contractDefs
	case domain.KindBudget:
		return budgetDefs
	}
	return nil
}

// Required returns the raw filled_data keys a kind needs.
func Required(kind domain.Kind) []string {
	switch kind {
	case domain.KindContract:
		return contractRequired
	case domain.KindBudget:
		return budgetRequired
	}
	return nil
}

// Missing lists required keys absent from data, in declaration order.
func Missing(kind domain.Kind, data domain.FilledData) []string {
	var out []string
	for _, k := range Required(kind) {
		if !data.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func definition(kind domain.Kind, key string) Definition {
	for _, d := range Definitions(kind) {
		if d.Key == key {
			return d
		}
	}
	panic("fieldmap: no definition for " + string(kind) + "." + key)
}
