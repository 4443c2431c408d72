// Package pdf renders the conference sheet: a one-page, human-readable
// summary of a document's rendered values, used to proof-read a contract
// or budget before the filled template goes to the client.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/fieldmap"
	"github.com/csg33k/catering-docgen/internal/filler"
	"github.com/csg33k/catering-docgen/internal/format"
)

// Sheet is everything drawn on a conference sheet.
type Sheet struct {
	Document *domain.FilledDocument
	Template *domain.Template
	Table    fieldmap.Table
	Missing  []string
	Invalid  []string
	// Report is optional; without it the field column lists candidates.
	Report *filler.Report
	At     time.Time
}

var kindTitles = map[domain.Kind]string{
	domain.KindContract: "CONTRATO DE PRESTAÇÃO DE SERVIÇOS",
	domain.KindBudget:   "ORÇAMENTO",
}

// GenerateSummary writes the conference sheet for s to w.
func GenerateSummary(s *Sheet, w io.Writer) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AliasNbPages("{nb}")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetHeaderFunc(func() { drawHeader(pdf, tr, s) })
	pdf.SetFooterFunc(func() { drawFooter(pdf, tr, s) })
	pdf.AddPage()
	drawDocument(pdf, tr, s)
	drawValues(pdf, tr, s)
	drawGaps(pdf, tr, s)

	return pdf.Output(w)
}

type translator func(string) string

func drawHeader(pdf *fpdf.Fpdf, tr translator, s *Sheet) {
	pageW, _ := pdf.GetPageSize()
	marginL, marginT, marginR, _ := pdf.GetMargins()
	contentW := pageW - marginL - marginR

	title := kindTitles[s.Document.Kind]
	if title == "" {
		title = strings.ToUpper(string(s.Document.Kind))
	}

	pdf.SetFillColor(30, 30, 30)
	pdf.Rect(marginL, marginT, contentW, 10, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(marginL+2, marginT+1.5)
	pdf.CellFormat(contentW*0.75, 7, tr("FOLHA DE CONFERÊNCIA  "+title), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("Página %d de {nb}", pdf.PageNo())), "", 1, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetY(marginT + 13)
}

func drawDocument(pdf *fpdf.Fpdf, tr translator, s *Sheet) {
	pageW, _ := pdf.GetPageSize()
	marginL, _, marginR, _ := pdf.GetMargins()
	contentW := pageW - marginL - marginR
	colHalf := contentW / 2
	d := s.Document

	sectionTitle(pdf, tr, contentW, "DOCUMENTO")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetX(marginL)
	pdf.CellFormat(colHalf, 6, tr("Documento: "+d.ID), "L", 0, "L", false, 0, "")
	pdf.CellFormat(colHalf, 6, tr("Situação: "+string(d.Status)), "R", 1, "L", false, 0, "")

	tpl := d.TemplateID
	if s.Template != nil {
		tpl = s.Template.Name
	}
	pdf.SetX(marginL)
	pdf.CellFormat(colHalf, 6, tr("Modelo: "+tpl), "L", 0, "L", false, 0, "")
	pdf.CellFormat(colHalf, 6, tr("Geração: "+generationLabel(d.GenerationState)), "R", 1, "L", false, 0, "")

	last := "nenhum PDF gerado"
	if d.HasDocument() && d.GeneratedAt != nil {
		last = "último PDF em " + d.GeneratedAt.Local().Format("02/01/2006 15:04")
	}
	pdf.SetX(marginL)
	pdf.CellFormat(contentW, 6, tr(last), "LRB", 1, "L", false, 0, "")
	pdf.Ln(5)
}

func drawValues(pdf *fpdf.Fpdf, tr translator, s *Sheet) {
	pageW, _ := pdf.GetPageSize()
	marginL, _, marginR, _ := pdf.GetMargins()
	contentW := pageW - marginL - marginR

	labelW := contentW * 0.28
	fieldW := contentW * 0.22
	valueW := contentW - labelW - fieldW

	header := func() {
		pdf.SetFillColor(30, 30, 30)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Helvetica", "B", 8.5)
		pdf.SetX(marginL)
		pdf.CellFormat(labelW, 7, tr("Item"), "1", 0, "L", true, 0, "")
		pdf.CellFormat(valueW, 7, tr("Valor"), "1", 0, "L", true, 0, "")
		pdf.CellFormat(fieldW, 7, tr("Campo"), "1", 1, "L", true, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	header()

	_, pageH := pdf.GetPageSize()
	_, _, _, marginB := pdf.GetMargins()
	rowH := 6.5
	for i, e := range s.Table {
		// widths are looked up per cp1252 byte
		lines := pdf.SplitLines([]byte(tr(e.Value)), valueW-2)
		if len(lines) == 0 {
			lines = [][]byte{nil}
		}
		h := rowH * float64(len(lines))
		if pdf.GetY()+h > pageH-marginB-8 {
			pdf.AddPage()
			header()
		}

		field, resolved := fieldColumn(s.Report, e)
		if i%2 == 0 {
			pdf.SetFillColor(250, 250, 250)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		y := pdf.GetY()
		pdf.SetFont("Helvetica", "B", 8.5)
		pdf.SetXY(marginL, y)
		pdf.CellFormat(labelW, h, tr(e.Label), "1", 0, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 8.5)
		pdf.MultiCell(valueW, rowH, string(bytes.Join(lines, []byte("\n"))), "1", "L", true)

		pdf.SetXY(marginL+labelW+valueW, y)
		if !resolved {
			pdf.SetFillColor(250, 225, 225)
			pdf.SetFont("Helvetica", "I", 8)
		} else {
			pdf.SetFont("Helvetica", "", 8)
		}
		pdf.CellFormat(fieldW, h, tr(field), "1", 1, "L", true, 0, "")
		pdf.SetXY(marginL, y+h)
	}
	pdf.Ln(5)
}

// fieldColumn is the template field a value went to, the unresolved
// marker, or the candidate list when no fill was attempted.
func fieldColumn(r *filler.Report, e fieldmap.Entry) (string, bool) {
	if r == nil {
		return strings.Join(e.Candidates, " / "), true
	}
	if f, ok := r.Field(e.Key); ok {
		return f, true
	}
	return "não encontrado", false
}

func drawGaps(pdf *fpdf.Fpdf, tr translator, s *Sheet) {
	if len(s.Missing) == 0 && len(s.Invalid) == 0 {
		return
	}
	pageW, _ := pdf.GetPageSize()
	marginL, _, marginR, _ := pdf.GetMargins()
	contentW := pageW - marginL - marginR

	sectionTitle(pdf, tr, contentW, "PENDÊNCIAS")
	pdf.SetFont("Helvetica", "", 8.5)
	if len(s.Missing) > 0 {
		pdf.SetX(marginL)
		pdf.MultiCell(contentW, 5.5, tr("Não informados: "+strings.Join(s.Missing, ", ")), "LR", "L", false)
	}
	if len(s.Invalid) > 0 {
		pdf.SetX(marginL)
		pdf.MultiCell(contentW, 5.5, tr("Valores inválidos: "+strings.Join(s.Invalid, ", ")), "LR", "L", false)
	}
	pdf.SetX(marginL)
	pdf.CellFormat(contentW, 0, "", "LRB", 1, "L", false, 0, "")
}

func drawFooter(pdf *fpdf.Fpdf, tr translator, s *Sheet) {
	pageW, pageH := pdf.GetPageSize()
	marginL, _, marginR, marginB := pdf.GetMargins()
	contentW := pageW - marginL - marginR

	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	pdf.SetXY(marginL, pageH-marginB-6)
	pdf.SetFont("Helvetica", "I", 7.5)
	pdf.SetTextColor(130, 130, 130)
	pdf.CellFormat(contentW/2, 5, tr("Emitida em "+format.DateInWords(at)), "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW/2, 5, tr("Conferência interna, sem valor contratual"), "", 0, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

func sectionTitle(pdf *fpdf.Fpdf, tr translator, width float64, title string) {
	marginL, _, _, _ := pdf.GetMargins()
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetX(marginL)
	pdf.CellFormat(width, 5.5, tr(title), "LRT", 1, "L", true, 0, "")
}

func generationLabel(s domain.GenerationState) string {
	switch s.Status {
	case domain.GenerationPending:
		return "em andamento"
	case domain.GenerationSucceeded:
		return "concluída"
	case domain.GenerationFailed:
		return fmt.Sprintf("falhou após %d tentativa(s)", s.Attempts)
	}
	return "não agendada"
}
