package acroform

import (
	"encoding/hex"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// textEntry decodes a PDF text string entry (literal or hex, PDFDoc or
// UTF-16BE with BOM).
func textEntry(d types.Dict, key string) (string, bool) {
	o, ok := d.Find(key)
	if !ok {
		return "", false
	}
	return decodeText(o)
}

func decodeText(o types.Object) (string, bool) {
	switch v := o.(type) {
	case types.StringLiteral:
		return decodeBytes(unescapeLiteral(string(v))), true
	case types.HexLiteral:
		s := strings.Join(strings.Fields(string(v)), "")
		if len(s)%2 == 1 {
			s += "0"
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return "", false
		}
		return decodeBytes(b), true
	}
	return "", false
}

func decodeBytes(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	// PDFDocEncoding agrees with Latin-1 for the printable range.
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

func unescapeLiteral(s string) []byte {
	if !strings.ContainsRune(s, '\\') {
		return []byte(s)
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case '\n':
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := int(e - '0')
			for n := 0; n < 2 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; n++ {
				i++
				v = v*8 + int(s[i]-'0')
			}
			out = append(out, byte(v))
		default:
			out = append(out, e)
		}
	}
	return out
}

// encodeTextString encodes a /V value: a literal for ASCII, UTF-16BE
// hex otherwise.
func encodeTextString(s string) types.Object {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return types.StringLiteral(escapeLiteral([]byte(s)))
	}
	units := utf16.Encode([]rune(s))
	b := make([]byte, 0, 2+2*len(units))
	b = append(b, 0xFE, 0xFF)
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	return types.HexLiteral(hex.EncodeToString(b))
}

func escapeLiteral(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch c {
		case '\\', '(', ')':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

var winAnsiEncoder = encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())

// winAnsi encodes s for the WinAnsi Helvetica used in appearances;
// characters outside the code page become '?'.
func winAnsi(s string) []byte {
	b, err := winAnsiEncoder.Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}

func intEntry(d types.Dict, key string) (int, bool) {
	o, ok := d.Find(key)
	if !ok {
		return 0, false
	}
	v, ok := number(o)
	return int(v), ok
}

func number(o types.Object) (float64, bool) {
	switch v := o.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

type rectangle struct {
	x0, y0, x1, y1 float64
}

func (r rectangle) width() float64  { return r.x1 - r.x0 }
func (r rectangle) height() float64 { return r.y1 - r.y0 }

// rect reads a normalized rectangle from an array object.
func (d *Document) rect(o types.Object) (rectangle, bool) {
	if o == nil {
		return rectangle{}, false
	}
	arr, err := d.ctx.DereferenceArray(o)
	if err != nil || len(arr) != 4 {
		return rectangle{}, false
	}
	var v [4]float64
	for i, e := range arr {
		obj, err := d.ctx.Dereference(e)
		if err != nil {
			return rectangle{}, false
		}
		n, ok := number(obj)
		if !ok {
			return rectangle{}, false
		}
		v[i] = n
	}
	return rectangle{
		x0: min(v[0], v[2]), y0: min(v[1], v[3]),
		x1: max(v[0], v[2]), y1: max(v[1], v[3]),
	}, true
}

type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func (d *Document) matrix(o types.Object) matrix {
	if o == nil {
		return identity
	}
	arr, err := d.ctx.DereferenceArray(o)
	if err != nil || len(arr) != 6 {
		return identity
	}
	var m matrix
	for i, e := range arr {
		n, ok := number(e)
		if !ok {
			return identity
		}
		m[i] = n
	}
	return m
}

// apply returns the bounding box of r transformed by m.
func (m matrix) apply(r rectangle) rectangle {
	pts := [4][2]float64{{r.x0, r.y0}, {r.x1, r.y0}, {r.x0, r.y1}, {r.x1, r.y1}}
	var out rectangle
	for i, p := range pts {
		x := m[0]*p[0] + m[2]*p[1] + m[4]
		y := m[1]*p[0] + m[3]*p[1] + m[5]
		if i == 0 {
			out = rectangle{x, y, x, y}
			continue
		}
		out.x0, out.y0 = min(out.x0, x), min(out.y0, y)
		out.x1, out.y1 = max(out.x1, x), max(out.y1, y)
	}
	return out
}
