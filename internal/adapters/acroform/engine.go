// Package acroform fills and flattens the text fields of a PDF AcroForm.
//
// pdfcpu parses the template into its object model and serializes the
// result; this package walks the field tree, writes /V plus a generated
// appearance stream per widget, and flattens by drawing each widget's
// normal appearance into the page content and dropping the form.
package acroform

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/csg33k/catering-docgen/internal/ports"
)

var (
	ErrUnknownField   = errors.New("acroform: no such text field")
	ErrFlattened      = errors.New("acroform: document already flattened")
	disableConfigOnce sync.Once
)

// maxDepth bounds the field tree walk; malformed files can loop via /Kids.
const maxDepth = 32

// Ff bit 13: multiline text field.
const flagMultiline = 1 << 12

// F bit 2: hidden annotation.
const annotHidden = 1 << 1

// Engine opens templates. It is safe for concurrent use; each Open
// returns an independent document.
type Engine struct {
	conf *model.Configuration
}

func New() *Engine {
	// pdfcpu would otherwise create a config dir under $HOME on first use.
	disableConfigOnce.Do(api.DisableConfigDir)
	return &Engine{}
}

func (e *Engine) config() *model.Configuration {
	if e.conf != nil {
		return e.conf
	}
	return model.NewDefaultConfiguration()
}

// Open parses raw and indexes its text fields.
func (e *Engine) Open(raw []byte) (ports.FormDocument, error) {
	ctx, err := api.ReadAndValidate(bytes.NewReader(raw), e.config())
	if err != nil {
		return nil, fmt.Errorf("acroform: read: %w", err)
	}
	d := &Document{
		ctx:     ctx,
		byName:  map[string]*field{},
		byShort: map[string][]*field{},
	}
	if err := d.collect(); err != nil {
		return nil, err
	}
	return d, nil
}

type field struct {
	name    string
	dict    types.Dict
	widgets []types.Dict
	da      string
	quad    int
	flags   int
}

// Document is one parsed template.
type Document struct {
	ctx       *model.Context
	fields    []*field
	byName    map[string]*field
	byShort   map[string][]*field
	font      *types.IndirectRef
	xobjSeq   int
	flattened bool
}

// inherited carries the inheritable field attributes down the tree.
type inherited struct {
	ft    string
	da    string
	quad  int
	flags int
}

func (d *Document) collect() error {
	catalog, err := d.ctx.Catalog()
	if err != nil {
		return fmt.Errorf("acroform: catalog: %w", err)
	}
	obj, ok := catalog.Find("AcroForm")
	if !ok {
		return nil
	}
	form, err := d.ctx.DereferenceDict(obj)
	if err != nil {
		return fmt.Errorf("acroform: form dict: %w", err)
	}
	if form == nil {
		return nil
	}
	base := inherited{}
	if da, ok := textEntry(form, "DA"); ok {
		base.da = da
	}
	if q, ok := intEntry(form, "Q"); ok {
		base.quad = q
	}
	fieldsObj, ok := form.Find("Fields")
	if !ok {
		return nil
	}
	roots, err := d.ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return fmt.Errorf("acroform: fields: %w", err)
	}
	for _, o := range roots {
		if err := d.walk(o, "", base, 0); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) walk(o types.Object, parent string, inh inherited, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("acroform: field tree deeper than %d", maxDepth)
	}
	fd, err := d.ctx.DereferenceDict(o)
	if err != nil {
		return fmt.Errorf("acroform: field: %w", err)
	}
	if fd == nil {
		return nil
	}

	name := parent
	if t, ok := textEntry(fd, "T"); ok {
		if name != "" {
			name += "."
		}
		name += t
	}
	if ft := fd.NameEntry("FT"); ft != nil {
		inh.ft = *ft
	}
	if da, ok := textEntry(fd, "DA"); ok {
		inh.da = da
	}
	if q, ok := intEntry(fd, "Q"); ok {
		inh.quad = q
	}
	if ff, ok := intEntry(fd, "Ff"); ok {
		inh.flags = ff
	}

	var kidFields []types.Object
	var widgets []types.Dict
	if isWidget(fd) {
		widgets = append(widgets, fd)
	}
	if kidsObj, ok := fd.Find("Kids"); ok {
		kids, err := d.ctx.DereferenceArray(kidsObj)
		if err != nil {
			return fmt.Errorf("acroform: kids of %q: %w", name, err)
		}
		for _, k := range kids {
			kd, err := d.ctx.DereferenceDict(k)
			if err != nil || kd == nil {
				continue
			}
			if _, hasT := kd.Find("T"); hasT {
				kidFields = append(kidFields, k)
			} else {
				widgets = append(widgets, kd)
			}
		}
	}

	for _, k := range kidFields {
		if err := d.walk(k, name, inh, depth+1); err != nil {
			return err
		}
	}
	if len(kidFields) > 0 || inh.ft != "Tx" || name == "" {
		return nil
	}
	if _, dup := d.byName[name]; dup {
		return nil
	}

	f := &field{name: name, dict: fd, widgets: widgets, da: inh.da, quad: inh.quad, flags: inh.flags}
	d.fields = append(d.fields, f)
	d.byName[name] = f
	short := name[strings.LastIndex(name, ".")+1:]
	d.byShort[short] = append(d.byShort[short], f)
	return nil
}

// FieldNames returns fully-qualified text field names in document order.
func (d *Document) FieldNames() []string {
	out := make([]string, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.name
	}
	return out
}

// Lookup matches the fully-qualified name first, then a unique last
// name segment ("contrato.valor_total" answers "valor_total").
func (d *Document) Lookup(name string) (string, bool) {
	if f, ok := d.byName[name]; ok {
		return f.name, true
	}
	if fs := d.byShort[name]; len(fs) == 1 {
		return fs[0].name, true
	}
	return "", false
}

// SetText writes value and regenerates every widget's appearance.
func (d *Document) SetText(name, value string) error {
	if d.flattened {
		return ErrFlattened
	}
	f, ok := d.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	f.dict["V"] = encodeTextString(value)
	for _, w := range f.widgets {
		ap, err := d.appearance(f, w, value)
		if err != nil {
			return fmt.Errorf("acroform: appearance for %q: %w", name, err)
		}
		w["AP"] = types.Dict{"N": *ap}
	}
	return nil
}

// Flatten draws every visible widget into its page, removes the form and
// serializes the document.
func (d *Document) Flatten() ([]byte, error) {
	if d.flattened {
		return nil, ErrFlattened
	}
	d.flattened = true

	for p := 1; p <= d.ctx.PageCount; p++ {
		page, _, _, err := d.ctx.PageDict(p, false)
		if err != nil {
			return nil, fmt.Errorf("acroform: page %d: %w", p, err)
		}
		if page == nil {
			continue
		}
		if err := d.flattenPage(page); err != nil {
			return nil, fmt.Errorf("acroform: flatten page %d: %w", p, err)
		}
	}

	catalog, err := d.ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("acroform: catalog: %w", err)
	}
	delete(catalog, "AcroForm")

	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, fmt.Errorf("acroform: write: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Document) flattenPage(page types.Dict) error {
	annotsObj, ok := page.Find("Annots")
	if !ok {
		return nil
	}
	annots, err := d.ctx.DereferenceArray(annotsObj)
	if err != nil {
		return err
	}

	keep := types.Array{}
	var ops bytes.Buffer
	for _, a := range annots {
		ad, err := d.ctx.DereferenceDict(a)
		if err != nil || ad == nil || !isWidget(ad) {
			keep = append(keep, a)
			continue
		}
		if err := d.bake(page, ad, &ops); err != nil {
			return err
		}
	}

	if len(keep) == 0 {
		delete(page, "Annots")
	} else {
		page["Annots"] = keep
	}
	if ops.Len() == 0 {
		return nil
	}
	return d.appendContent(page, ops.Bytes())
}

// bake emits the drawing operators placing widget's normal appearance
// over its /Rect. Hidden widgets and widgets without appearance vanish.
func (d *Document) bake(page, widget types.Dict, ops *bytes.Buffer) error {
	if f, ok := intEntry(widget, "F"); ok && f&annotHidden != 0 {
		return nil
	}
	ref, stream, ok := d.normalAppearance(widget)
	if !ok {
		return nil
	}
	if st := stream.NameEntry("Subtype"); st == nil {
		stream["Subtype"] = types.Name("Form")
	}

	rect, ok := d.rect(widget["Rect"])
	if !ok {
		return nil
	}
	bbox, ok := d.rect(stream["BBox"])
	if !ok {
		return nil
	}
	bbox = d.matrix(stream["Matrix"]).apply(bbox)

	sx, sy := 1.0, 1.0
	if w := bbox.width(); w > 0 {
		sx = rect.width() / w
	}
	if h := bbox.height(); h > 0 {
		sy = rect.height() / h
	}
	tx := rect.x0 - bbox.x0*sx
	ty := rect.y0 - bbox.y0*sy

	name, err := d.addXObject(page, ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(ops, "q %s 0 0 %s %s %s cm /%s Do Q\n", num(sx), num(sy), num(tx), num(ty), name)
	return nil
}

// normalAppearance resolves /AP /N, picking the /AS state for
// multi-state appearances.
func (d *Document) normalAppearance(widget types.Dict) (types.IndirectRef, types.Dict, bool) {
	apObj, ok := widget.Find("AP")
	if !ok {
		return types.IndirectRef{}, nil, false
	}
	ap, err := d.ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return types.IndirectRef{}, nil, false
	}
	n, ok := ap.Find("N")
	if !ok {
		return types.IndirectRef{}, nil, false
	}
	for i := 0; i < 2; i++ {
		ref, isRef := n.(types.IndirectRef)
		if !isRef {
			if states, isDict := n.(types.Dict); isDict {
				n, ok = pickState(states, widget)
				if !ok {
					return types.IndirectRef{}, nil, false
				}
				continue
			}
			return types.IndirectRef{}, nil, false
		}
		obj, err := d.ctx.Dereference(ref)
		if err != nil {
			return types.IndirectRef{}, nil, false
		}
		switch v := obj.(type) {
		case types.StreamDict:
			return ref, v.Dict, true
		case *types.StreamDict:
			return ref, v.Dict, true
		case types.Dict:
			n, ok = pickState(v, widget)
			if !ok {
				return types.IndirectRef{}, nil, false
			}
		default:
			return types.IndirectRef{}, nil, false
		}
	}
	return types.IndirectRef{}, nil, false
}

func pickState(states, widget types.Dict) (types.Object, bool) {
	as := widget.NameEntry("AS")
	if as == nil {
		return nil, false
	}
	o, ok := states.Find(*as)
	return o, ok
}

func (d *Document) addXObject(page types.Dict, ref types.IndirectRef) (string, error) {
	res, err := d.pageResources(page)
	if err != nil {
		return "", err
	}
	var xobjs types.Dict
	if o, ok := res.Find("XObject"); ok {
		if xobjs, err = d.ctx.DereferenceDict(o); err != nil {
			return "", err
		}
	}
	if xobjs == nil {
		xobjs = types.Dict{}
		res["XObject"] = xobjs
	}
	for {
		d.xobjSeq++
		name := fmt.Sprintf("FlatAP%d", d.xobjSeq)
		if _, taken := xobjs.Find(name); !taken {
			xobjs[name] = ref
			return name, nil
		}
	}
}

// pageResources returns the page's own resources, materializing a copy
// of the inherited ones so new entries do not leak to sibling pages.
func (d *Document) pageResources(page types.Dict) (types.Dict, error) {
	if o, ok := page.Find("Resources"); ok {
		res, err := d.ctx.DereferenceDict(o)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	res := types.Dict{}
	node := page
	for i := 0; i < maxDepth && node != nil; i++ {
		parentObj, ok := node.Find("Parent")
		if !ok {
			break
		}
		parent, err := d.ctx.DereferenceDict(parentObj)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		if o, ok := parent.Find("Resources"); ok {
			inh, err := d.ctx.DereferenceDict(o)
			if err != nil {
				return nil, err
			}
			for k, v := range inh {
				res[k] = v
			}
			break
		}
		node = parent
	}
	page["Resources"] = res
	return res, nil
}

// appendContent wraps the existing content in q/Q and appends ops.
func (d *Document) appendContent(page types.Dict, ops []byte) error {
	pre, err := d.newStream([]byte("q\n"), nil)
	if err != nil {
		return err
	}
	post, err := d.newStream(append([]byte("Q\n"), ops...), nil)
	if err != nil {
		return err
	}

	contents := types.Array{*pre}
	if o, ok := page.Find("Contents"); ok {
		switch v := o.(type) {
		case types.Array:
			contents = append(contents, v...)
		case types.IndirectRef:
			obj, err := d.ctx.Dereference(v)
			if err != nil {
				return err
			}
			if arr, isArr := obj.(types.Array); isArr {
				contents = append(contents, arr...)
			} else {
				contents = append(contents, v)
			}
		}
	}
	contents = append(contents, *post)
	page["Contents"] = contents
	return nil
}

// newStream stores a flate-encoded stream and returns its reference.
func (d *Document) newStream(content []byte, extra types.Dict) (*types.IndirectRef, error) {
	sd, err := d.ctx.NewStreamDictForBuf(content)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sd.Dict[k] = extra[k]
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return d.ctx.IndRefForNewObject(*sd)
}

// helvetica returns the document's shared WinAnsi Helvetica font.
func (d *Document) helvetica() (*types.IndirectRef, error) {
	if d.font != nil {
		return d.font, nil
	}
	ref, err := d.ctx.IndRefForNewObject(types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("Helvetica"),
		"Encoding": types.Name("WinAnsiEncoding"),
	})
	if err != nil {
		return nil, err
	}
	d.font = ref
	return ref, nil
}

func isWidget(d types.Dict) bool {
	st := d.NameEntry("Subtype")
	return st != nil && *st == "Widget"
}
