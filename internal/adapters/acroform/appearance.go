package acroform

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const (
	defaultFontSize = 10.0
	maxAutoSize     = 12.0
	minAutoSize     = 4.0
	padding         = 2.0
	leading         = 1.15
)

// appearance builds the /N appearance stream of one widget showing value.
func (d *Document) appearance(f *field, widget types.Dict, value string) (*types.IndirectRef, error) {
	r, ok := d.rect(widget["Rect"])
	if !ok {
		return nil, fmt.Errorf("widget has no usable /Rect")
	}
	font, err := d.helvetica()
	if err != nil {
		return nil, err
	}
	w, h := r.width(), r.height()
	da := parseDA(f.da)
	content := layout(value, w, h, da, f.quad, f.flags&flagMultiline != 0)

	return d.newStream(content, types.Dict{
		"Type":    types.Name("XObject"),
		"Subtype": types.Name("Form"),
		"BBox":    types.Array{types.Float(0), types.Float(0), types.Float(w), types.Float(h)},
		"Resources": types.Dict{
			"Font": types.Dict{"Helv": *font},
		},
	})
}

// defaultAppearance is the subset of /DA the generator honours.
type defaultAppearance struct {
	size  float64
	color string
}

// parseDA extracts the font size and fill color from strings like
// "/Helv 0 Tf 0 g" or "/F1 9 Tf 0.2 0.2 0.6 rg".
func parseDA(da string) defaultAppearance {
	out := defaultAppearance{color: "0 g"}
	toks := strings.Fields(da)
	for i, tok := range toks {
		switch tok {
		case "Tf":
			if i >= 1 {
				if s, err := strconv.ParseFloat(toks[i-1], 64); err == nil && s >= 0 {
					out.size = s
				}
			}
		case "g", "rg", "k":
			n := map[string]int{"g": 1, "rg": 3, "k": 4}[tok]
			if i >= n {
				out.color = strings.Join(toks[i-n:i+1], " ")
			}
		}
	}
	return out
}

// layout renders the text operators for value inside a w×h box. A zero
// font size means auto: the largest size up to 12pt that fits.
func layout(value string, w, h float64, da defaultAppearance, quad int, multiline bool) []byte {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	size := da.size
	inner := w - 2*padding

	var lines []string
	if multiline {
		if size == 0 {
			size = fitMultiline(value, inner, h)
		}
		lines = wrap(value, inner, size)
	} else {
		value = strings.ReplaceAll(value, "\n", " ")
		if size == 0 {
			size = fitLine(value, inner, h)
		}
		lines = []string{value}
	}

	var b bytes.Buffer
	b.WriteString("/Tx BMC\nq\n")
	fmt.Fprintf(&b, "%s %s %s %s re W n\n", num(1), num(1), num(max(w-2, 0)), num(max(h-2, 0)))
	b.WriteString("BT\n")
	fmt.Fprintf(&b, "/Helv %s Tf\n%s\n", num(size), da.color)

	var y float64
	if multiline {
		y = h - padding - size
	} else {
		// vertically centred, baseline lifted past the descender
		y = (h-size)/2 + size*0.22
	}
	for i, line := range lines {
		x := padding
		switch quad {
		case 1:
			x = (w - textWidth(line, size)) / 2
		case 2:
			x = w - padding - textWidth(line, size)
		}
		fmt.Fprintf(&b, "1 0 0 1 %s %s Tm\n(%s) Tj\n", num(x), num(y-float64(i)*size*leading), escapeLiteral(winAnsi(line)))
	}
	b.WriteString("ET\nQ\nEMC\n")
	return b.Bytes()
}

func fitLine(value string, width, height float64) float64 {
	size := min(maxAutoSize, height*0.7)
	if size <= 0 {
		return defaultFontSize
	}
	for size > minAutoSize && textWidth(value, size) > width {
		size -= 0.5
	}
	return max(size, minAutoSize)
}

func fitMultiline(value string, width, height float64) float64 {
	size := maxAutoSize
	for size > minAutoSize {
		lines := wrap(value, width, size)
		if float64(len(lines))*size*leading+padding <= height {
			break
		}
		size -= 0.5
	}
	return size
}

// wrap breaks value into lines no wider than width, honouring newlines.
func wrap(value string, width, size float64) []string {
	var out []string
	for _, para := range strings.Split(value, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if textWidth(line+" "+w, size) > width {
				out = append(out, line)
				line = w
				continue
			}
			line += " " + w
		}
		out = append(out, line)
	}
	return out
}

// textWidth approximates Helvetica advance widths in text space units.
func textWidth(s string, size float64) float64 {
	var units int
	for _, r := range s {
		units += glyphWidth(r)
	}
	return float64(units) * size / 1000
}

func glyphWidth(r rune) int {
	switch {
	case r == ' ' || strings.ContainsRune("ijlI.,:;|!'/", r):
		return 278
	case strings.ContainsRune("frt()[]-", r):
		return 333
	case r == 'm' || r == 'M':
		return 833
	case r == 'w' || r == 'W':
		return 944
	case r >= 'A' && r <= 'Z':
		return 667
	case r == '@':
		return 1015
	default:
		return 556
	}
}

// num formats a PDF real with at most two decimals.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
