package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/csg33k/catering-docgen/internal/adapters/sqlite"
	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/generation"
	"github.com/csg33k/catering-docgen/internal/handlers"
)

const validCPF = "529.982.247-25"

// fakeGenerations records schedules and marks the document pending the
// way the runner does, without running anything.
type fakeGenerations struct {
	repo *sqlite.Repository

	mu        sync.Mutex
	scheduled []string
	runResult *generation.Result
	runErr    error
}

func (g *fakeGenerations) Schedule(ctx context.Context, id string) error {
	g.mu.Lock()
	g.scheduled = append(g.scheduled, id)
	g.mu.Unlock()
	return g.repo.SetGenerationState(ctx, id, domain.GenerationState{Status: domain.GenerationPending})
}

func (g *fakeGenerations) Run(_ context.Context, id string) (*generation.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.runErr != nil {
		return nil, g.runErr
	}
	res := *g.runResult
	res.DocumentID = id
	return &res, nil
}

func (g *fakeGenerations) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.scheduled)
}

type fixture struct {
	srv  *httptest.Server
	repo *sqlite.Repository
	gens *fakeGenerations
	dir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := sqlite.New(filepath.Join(dir, "docgen.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	gens := &fakeGenerations{repo: repo, runResult: &generation.Result{URL: "https://files.example.com/x.pdf"}}
	files := filepath.Join(dir, "files")
	if err := os.MkdirAll(files, 0o755); err != nil {
		t.Fatal(err)
	}
	h := handlers.New(repo, gens, handlers.Options{StaleAfter: 10 * time.Minute, FilesDir: files})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, repo: repo, gens: gens, dir: files}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (f *fixture) template(t *testing.T, kind domain.Kind) domain.Template {
	t.Helper()
	resp := f.do(t, "POST", "/templates", map[string]string{
		"kind": string(kind), "name": "Modelo " + string(kind), "source_url": "https://templates.example.com/" + string(kind) + ".pdf",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create template: %d", resp.StatusCode)
	}
	var tpl domain.Template
	decodeBody(t, resp, &tpl)
	return tpl
}

type documentBody struct {
	domain.FilledDocument
	MissingKeys []string `json:"missing_keys"`
}

func (f *fixture) document(t *testing.T, tpl domain.Template, data string) documentBody {
	t.Helper()
	resp := f.do(t, "POST", "/documents", fmt.Sprintf(`{"template_id":%q,"filled_data":%s}`, tpl.ID, data))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create document: %d", resp.StatusCode)
	}
	var d documentBody
	decodeBody(t, resp, &d)
	return d
}

func TestTemplates(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"ok", map[string]string{"kind": "contract", "name": "Contrato", "source_url": "https://x.example.com/c.pdf"}, http.StatusCreated},
		{"local file", map[string]string{"kind": "budget", "name": "Orçamento", "source_url": "file:///srv/templates/orcamento.pdf"}, http.StatusCreated},
		{"bad kind", map[string]string{"kind": "invoice", "name": "Nota", "source_url": "https://x.example.com/n.pdf"}, http.StatusBadRequest},
		{"no name", map[string]string{"kind": "contract", "source_url": "https://x.example.com/c.pdf"}, http.StatusBadRequest},
		{"ftp url", map[string]string{"kind": "contract", "name": "C", "source_url": "ftp://x.example.com/c.pdf"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := f.do(t, "POST", "/templates", tt.body); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	var list []domain.Template
	decodeBody(t, f.do(t, "GET", "/templates", nil), &list)
	if len(list) != 2 {
		t.Fatalf("listed %d templates, want 2", len(list))
	}
	if resp := f.do(t, "GET", "/templates/"+list[0].ID, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("get template: %d", resp.StatusCode)
	}
	if resp := f.do(t, "GET", "/templates/nope", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("get unknown template: %d", resp.StatusCode)
	}
}

func TestCreateDocument_SchedulesGeneration(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, domain.KindContract)

	d := f.document(t, tpl, `{"contratante_nome":"Maria Souza","contratante_cpf":"`+validCPF+`","valor_total":8500,"valor_sinal":"2.000,00"}`)
	if d.Kind != domain.KindContract || d.Status != domain.StatusDraft {
		t.Errorf("kind/status = %s/%s", d.Kind, d.Status)
	}
	if d.GenerationState.Status != domain.GenerationPending {
		t.Errorf("generation_status = %q, want pending", d.GenerationState.Status)
	}
	if f.gens.count() != 1 {
		t.Errorf("scheduled %d times", f.gens.count())
	}
	if got := strings.Join(d.FilledData.Keys(), ","); got != "contratante_nome,contratante_cpf,valor_total,valor_sinal" {
		t.Errorf("key order lost: %s", got)
	}
	if len(d.MissingKeys) == 0 || d.MissingKeys[0] != "contratante_endereco" {
		t.Errorf("missing_keys = %v", d.MissingKeys)
	}
}

func TestCreateDocument_Rejected(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, domain.KindContract)
	tests := []struct {
		name  string
		body  string
		want  int
		field string
	}{
		{"no template", `{"filled_data":{}}`, http.StatusBadRequest, ""},
		{"unknown template", `{"template_id":"nope","filled_data":{}}`, http.StatusUnprocessableEntity, "template_id"},
		{"invalid cpf", `{"template_id":"` + tpl.ID + `","filled_data":{"contratante_cpf":"111.111.111-11"}}`, http.StatusUnprocessableEntity, "contratante_cpf"},
		{"negative amount", `{"template_id":"` + tpl.ID + `","filled_data":{"valor_total":-10}}`, http.StatusUnprocessableEntity, "valor_total"},
		{"unparseable amount", `{"template_id":"` + tpl.ID + `","filled_data":{"valor_sinal":"dois mil"}}`, http.StatusUnprocessableEntity, "valor_sinal"},
		{"nested data", `{"template_id":"` + tpl.ID + `","filled_data":{"x":{"y":1}}}`, http.StatusBadRequest, ""},
		{"bad status", `{"template_id":"` + tpl.ID + `","status":"archived"}`, http.StatusBadRequest, ""},
		{"unknown field", `{"template_id":"` + tpl.ID + `","colour":"red"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, "POST", "/documents", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var body struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			decodeBody(t, resp, &body)
			if tt.field != "" && body.Fields[tt.field] == "" {
				t.Errorf("fields = %v, want %s", body.Fields, tt.field)
			}
		})
	}
	if f.gens.count() != 0 {
		t.Errorf("rejected documents were scheduled")
	}
}

func TestUpdateDocument(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, domain.KindContract)
	budget := f.template(t, domain.KindBudget)
	d := f.document(t, tpl, `{"contratante_nome":"Maria Souza","valor_total":8500}`)

	tests := []struct {
		name        string
		body        string
		want        int
		rescheduled bool
	}{
		{"notes only", `{"notes":"ligar na sexta"}`, http.StatusOK, false},
		{"status only", `{"status":"sent"}`, http.StatusOK, false},
		{"same data", `{"filled_data":{"valor_total":8500}}`, http.StatusOK, false},
		{"new data", `{"filled_data":{"valor_total":9000}}`, http.StatusOK, true},
		{"added key", `{"filled_data":{"local_evento":"Salão Azul"}}`, http.StatusOK, true},
		{"kind mismatch", `{"template_id":"` + budget.ID + `"}`, http.StatusUnprocessableEntity, false},
		{"invalid cpf", `{"filled_data":{"contratante_cpf":"123"}}`, http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.gens.count()
			resp := f.do(t, "PATCH", "/documents/"+d.ID, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if got := f.gens.count() > before; got != tt.rescheduled {
				t.Errorf("rescheduled = %v, want %v", got, tt.rescheduled)
			}
		})
	}

	var got documentBody
	decodeBody(t, f.do(t, "GET", "/documents/"+d.ID, nil), &got)
	if got.Notes != "ligar na sexta" || got.Status != domain.StatusSent {
		t.Errorf("notes/status = %q/%q", got.Notes, got.Status)
	}
	if v, _ := got.FilledData.Get("valor_total"); v != "9000" {
		t.Errorf("valor_total = %q", v)
	}
	if keys := strings.Join(got.FilledData.Keys(), ","); keys != "contratante_nome,valor_total,local_evento" {
		t.Errorf("keys = %s", keys)
	}
	if resp := f.do(t, "PATCH", "/documents/nope", `{"notes":"x"}`); resp.StatusCode != http.StatusNotFound {
		t.Errorf("patch unknown: %d", resp.StatusCode)
	}
}

func TestListAndDeleteDocuments(t *testing.T) {
	f := newFixture(t)
	contract := f.template(t, domain.KindContract)
	budget := f.template(t, domain.KindBudget)
	c := f.document(t, contract, `{}`)
	f.document(t, budget, `{"nome_evento":"Bodas de prata"}`)

	var all, budgets []documentBody
	decodeBody(t, f.do(t, "GET", "/documents", nil), &all)
	decodeBody(t, f.do(t, "GET", "/documents?kind=budget", nil), &budgets)
	if len(all) != 2 || len(budgets) != 1 || budgets[0].Kind != domain.KindBudget {
		t.Errorf("list: all=%d budgets=%d", len(all), len(budgets))
	}
	if resp := f.do(t, "GET", "/documents?kind=invoice", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad kind filter: %d", resp.StatusCode)
	}

	if resp := f.do(t, "DELETE", "/documents/"+c.ID, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if resp := f.do(t, "GET", "/documents/"+c.ID, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted: %d", resp.StatusCode)
	}
	if resp := f.do(t, "DELETE", "/documents/"+c.ID, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete twice: %d", resp.StatusCode)
	}
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, domain.KindContract)
	d := f.document(t, tpl, `{"contratante_nome":"Maria Souza"}`)

	resp := f.do(t, "POST", "/documents/"+d.ID+"/generate", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("async generate: %d", resp.StatusCode)
	}

	resp = f.do(t, "POST", "/documents/"+d.ID+"/generate?wait=1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync generate: %d", resp.StatusCode)
	}
	var res generation.Result
	decodeBody(t, resp, &res)
	if res.DocumentID != d.ID || res.URL == "" {
		t.Errorf("result = %+v", res)
	}

	f.gens.mu.Lock()
	f.gens.runErr = fmt.Errorf("%w: 503", generation.ErrTemplateUnavailable)
	f.gens.mu.Unlock()
	if resp := f.do(t, "POST", "/documents/"+d.ID+"/generate?wait=1", nil); resp.StatusCode != http.StatusBadGateway {
		t.Errorf("unavailable template: %d, want 502", resp.StatusCode)
	}
	if resp := f.do(t, "POST", "/documents/nope/generate", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown document: %d", resp.StatusCode)
	}
}

func TestGenerate_HTMXReturnsFragment(t *testing.T) {
	f := newFixture(t)
	d := f.document(t, f.template(t, domain.KindContract), `{}`)

	req, _ := http.NewRequest("POST", f.srv.URL+"/documents/"+d.ID+"/generate", nil)
	req.Header.Set("HX-Request", "true")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var b bytes.Buffer
	b.ReadFrom(resp.Body)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") || !strings.Contains(b.String(), "hx-trigger") {
		t.Errorf("got %s: %s", resp.Header.Get("Content-Type"), b.String())
	}
}

func TestStatusFragment(t *testing.T) {
	f := newFixture(t)
	d := f.document(t, f.template(t, domain.KindContract), `{}`)
	f.repo.SetGenerationState(context.Background(), d.ID, domain.GenerationState{
		Status: domain.GenerationFailed, Error: "template unavailable: 404", Attempts: 3,
	})

	resp := f.do(t, "GET", "/documents/"+d.ID+"/status", nil)
	var b bytes.Buffer
	b.ReadFrom(resp.Body)
	for _, want := range []string{"Gerar novamente", "template unavailable: 404"} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("fragment lacks %q: %s", want, b.String())
		}
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"plain", `{"contratante_nome":"Maria Souza","valor_total":8500}`},
		{"accented", `{"contratante_nome":"José da Conceição","data_evento":"2025-03-15","valor_total":3000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			d := f.document(t, f.template(t, domain.KindContract), tt.data)

			resp := f.do(t, "GET", "/documents/"+d.ID+"/summary", nil)
			if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/pdf" {
				t.Fatalf("summary: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
			}
			var b bytes.Buffer
			b.ReadFrom(resp.Body)
			if !bytes.HasPrefix(b.Bytes(), []byte("%PDF-")) {
				t.Error("summary is not a PDF")
			}
		})
	}
}

func TestValidateCPF(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name      string
		cpf       string
		want      int
		formatted string
	}{
		{"valid formatted", validCPF, http.StatusOK, validCPF},
		{"valid digits", "52998224725", http.StatusOK, validCPF},
		{"wrong check digit", "52998224724", http.StatusUnprocessableEntity, ""},
		{"repeated digits", "000.000.000-00", http.StatusUnprocessableEntity, ""},
		{"short", "1234", http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, "POST", "/cpf/validate", map[string]string{"cpf": tt.cpf})
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var body struct {
				Valid     bool   `json:"valid"`
				Formatted string `json:"formatted"`
			}
			decodeBody(t, resp, &body)
			if body.Valid != (tt.want == http.StatusOK) || body.Formatted != tt.formatted {
				t.Errorf("body = %+v", body)
			}
		})
	}

	resp, err := http.PostForm(f.srv.URL+"/cpf/validate", map[string][]string{"cpf": {"52998224725"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("form post: %d", resp.StatusCode)
	}
}

func TestRequestIDAndFiles(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(filepath.Join(f.dir, "a.pdf"), []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest("GET", f.srv.URL+"/files/a.pdf", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("serve file: %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q", got)
	}

	if got := f.do(t, "GET", "/templates", nil).Header.Get("X-Request-ID"); got == "" {
		t.Error("no request id generated")
	}
}

func TestWithCORS(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := handlers.WithCORS(inner, []string{"https://console.example.com"})

	req := httptest.NewRequest("GET", "/documents", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("allowed origin header = %q", got)
	}

	req = httptest.NewRequest("GET", "/documents", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}
